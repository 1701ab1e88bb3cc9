package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/backoffice/internal/config"
	"github.com/tripdesk/backoffice/internal/model"
)

func (e *testEnv) login(t *testing.T, username string) (*model.Account, *model.Session) {
	t.Helper()
	account, err := e.svc.Login(context.Background(), username, strongSecret)
	require.NoError(t, err)
	session, err := e.svc.IssueSession(context.Background(), account, ClientMeta{OriginAddr: "10.0.0.1", ClientInfo: "test"})
	require.NoError(t, err)
	return account, session
}

func TestIssueSession_EmbedsIdentity(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "alice@x.com", "")
	env.store.accountRoles[alice.ID] = append(env.store.accountRoles[alice.ID], RoleAdministrator)

	_, session := env.login(t, "alice")
	assert.NotEmpty(t, session.RefreshToken)
	assert.WithinDuration(t, env.clock.Now().Add(time.Hour), session.AccessExpiresAt, time.Second)

	user, err := env.svc.ParseAccessToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@x.com", user.Email)
	assert.Equal(t, model.AccountKindCustomer, user.Kind)
	assert.Equal(t, []string{RoleCustomer, RoleAdministrator}, user.Roles)
	assert.Equal(t, []string{PermissionAccountsUnlock}, user.Permissions)
	assert.True(t, user.HasPermission(PermissionAccountsUnlock))

	stored := env.store.refreshByHash(digestToken(session.RefreshToken))
	assert.Equal(t, alice.ID, stored.AccountID)
	assert.Equal(t, "10.0.0.1", stored.OriginAddr)
	assert.Equal(t, "test", stored.ClientInfo)
	assert.WithinDuration(t, env.clock.Now().Add(7*24*time.Hour), stored.ExpiresAt, time.Second)
}

func TestRefreshSession_SingleUseSequential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice", "alice@x.com", "")
	_, first := env.login(t, "alice")

	second, err := env.svc.RefreshSession(ctx, first.RefreshToken, ClientMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = env.svc.RefreshSession(ctx, first.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	assertErrorCode(t, err, "AUTH_REFRESH_INVALID")

	old := env.store.refreshByHash(digestToken(first.RefreshToken))
	assert.True(t, old.Revoked)
	require.NotNil(t, old.RevokedAt)
	require.NotNil(t, old.SupersededBy)
	assert.Equal(t, digestToken(second.RefreshToken), *old.SupersededBy)

	_, err = env.svc.RefreshSession(ctx, second.RefreshToken, ClientMeta{})
	assert.NoError(t, err)
}

func TestRefreshSession_SingleUseConcurrent(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@x.com", "")
	_, session := env.login(t, "alice")

	const racers = 16
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.svc.RefreshSession(context.Background(), session.RefreshToken, ClientMeta{})
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
			losses.Add(1)
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, racers-1, losses.Load())
}

func TestRefreshSession_Expired(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@x.com", "")
	_, session := env.login(t, "alice")

	env.clock.Advance(7*24*time.Hour + time.Second)
	_, err := env.svc.RefreshSession(context.Background(), session.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestRefreshSession_UnknownAndEmpty(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.RefreshSession(context.Background(), "nope", ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	_, err = env.svc.RefreshSession(context.Background(), "", ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestRefreshSession_LockedAccountRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "alice@x.com", "")
	_, session := env.login(t, "alice")
	env.store.setAccount(alice.ID, func(a *model.Account) { a.Locked = true })

	_, err := env.svc.RefreshSession(context.Background(), session.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrAccountLocked)

	stored := env.store.refreshByHash(digestToken(session.RefreshToken))
	assert.False(t, stored.Revoked, "rejected refresh must not consume the token")
}

func TestRefreshSession_InactiveAccountRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "alice@x.com", "")
	_, session := env.login(t, "alice")
	env.store.setAccount(alice.ID, func(a *model.Account) { a.Active = false })

	_, err := env.svc.RefreshSession(context.Background(), session.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestRefreshSession_ReuseKeepsOtherSessionsByDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice", "alice@x.com", "")
	_, first := env.login(t, "alice")
	_, other := env.login(t, "alice")

	_, err := env.svc.RefreshSession(ctx, first.RefreshToken, ClientMeta{})
	require.NoError(t, err)
	_, err = env.svc.RefreshSession(ctx, first.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	assert.Equal(t, 2, env.store.activeRefreshCount(alice.ID, env.clock.Now()))
	_, err = env.svc.RefreshSession(ctx, other.RefreshToken, ClientMeta{})
	assert.NoError(t, err)
}

func TestRefreshSession_ReuseRevokesFamilyWhenEnabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.AuthConfig) { c.RevokeFamilyOnReuse = "true" })
	ctx := context.Background()
	alice := env.register(t, "alice", "alice@x.com", "")
	_, first := env.login(t, "alice")
	env.login(t, "alice")

	_, err := env.svc.RefreshSession(ctx, first.RefreshToken, ClientMeta{})
	require.NoError(t, err)
	_, err = env.svc.RefreshSession(ctx, first.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	assert.Zero(t, env.store.activeRefreshCount(alice.ID, env.clock.Now()))
}

func TestLogout_SingleToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice", "alice@x.com", "")
	_, first := env.login(t, "alice")
	_, second := env.login(t, "alice")

	n, err := env.svc.Logout(ctx, alice.ID, first.RefreshToken)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = env.svc.Logout(ctx, alice.ID, first.RefreshToken)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = env.svc.RefreshSession(ctx, first.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	_, err = env.svc.RefreshSession(ctx, second.RefreshToken, ClientMeta{})
	assert.NoError(t, err)
}

func TestLogout_OtherAccountsTokenUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice", "alice@x.com", "")
	bob := env.register(t, "bob", "bob@x.com", "")
	_, aliceSession := env.login(t, "alice")

	n, err := env.svc.Logout(ctx, bob.ID, aliceSession.RefreshToken)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = env.svc.RefreshSession(ctx, aliceSession.RefreshToken, ClientMeta{})
	assert.NoError(t, err)
}

func TestLogout_FullIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice", "alice@x.com", "")
	env.login(t, "alice")
	env.login(t, "alice")

	n, err := env.svc.Logout(ctx, alice.ID, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = env.svc.Logout(ctx, alice.ID, "")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, env.store.activeRefreshCount(alice.ID, env.clock.Now()))
}
