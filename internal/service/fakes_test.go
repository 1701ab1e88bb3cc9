package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tripdesk/backoffice/internal/client"
	"github.com/tripdesk/backoffice/internal/db"
	"github.com/tripdesk/backoffice/internal/model"
)

// fakeStore keeps everything in maps behind one mutex. Each method models
// the single SQL statement (or transaction) of the Postgres store, so the
// conditional updates are atomic here too.
type fakeStore struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*model.Account
	roles        map[string]model.Role
	accountRoles map[uuid.UUID][]string
	refresh      map[string]*model.RefreshToken
	recovery     map[string]*model.RecoveryToken

	// err, when set, is returned by every method whose name is in failOn.
	err    error
	failOn map[string]bool
}

var _ AuthStore = (*fakeStore)(nil)
var _ expiredTokenDeleter = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:     make(map[uuid.UUID]*model.Account),
		accountRoles: make(map[uuid.UUID][]string),
		refresh:      make(map[string]*model.RefreshToken),
		recovery:     make(map[string]*model.RecoveryToken),
		roles: map[string]model.Role{
			RoleCustomer:      {ID: 1, Name: RoleCustomer},
			RoleEmployee:      {ID: 2, Name: RoleEmployee},
			RoleAdministrator: {ID: 3, Name: RoleAdministrator, Permissions: []string{PermissionAccountsUnlock}},
		},
	}
}

func (f *fakeStore) fail(method string) error {
	if f.failOn[method] {
		return f.err
	}
	return nil
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	c.Roles = nil
	return &c
}

func (f *fakeStore) CreateAccount(ctx context.Context, account *model.Account, roleName string) (*model.Account, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateAccount"); err != nil {
		return nil, false, err
	}
	for _, a := range f.accounts {
		if a.Username == account.Username || strings.EqualFold(a.Email, account.Email) {
			return nil, false, db.ErrConflict
		}
	}
	now := time.Now()
	stored := cloneAccount(account)
	stored.Email = strings.ToLower(stored.Email)
	stored.Active = true
	stored.CreatedAt = now
	stored.UpdatedAt = now
	f.accounts[stored.ID] = stored

	_, ok := f.roles[roleName]
	if ok {
		f.accountRoles[stored.ID] = append(f.accountRoles[stored.ID], roleName)
	}
	return cloneAccount(stored), ok, nil
}

func (f *fakeStore) IdentifiersTaken(ctx context.Context, username, email string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var u, e bool
	for _, a := range f.accounts {
		u = u || a.Username == username
		e = e || strings.EqualFold(a.Email, email)
	}
	return u, e, nil
}

func (f *fakeStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (f *fakeStore) GetAccountByLogin(ctx context.Context, login string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("GetAccountByLogin"); err != nil {
		return nil, err
	}
	var byUsername, byEmail *model.Account
	for _, a := range f.accounts {
		if a.Username == login {
			return cloneAccount(a), nil
		}
		if strings.EqualFold(a.Username, login) && (byUsername == nil || a.CreatedAt.Before(byUsername.CreatedAt)) {
			byUsername = a
		}
		if strings.EqualFold(a.Email, login) {
			byEmail = a
		}
	}
	switch {
	case byUsername != nil:
		return cloneAccount(byUsername), nil
	case byEmail != nil:
		return cloneAccount(byEmail), nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if strings.EqualFold(a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) RecordFailedLogin(ctx context.Context, id uuid.UUID, threshold int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return 0, false, db.ErrNotFound
	}
	a.FailedAttempts++
	a.Locked = a.Locked || a.FailedAttempts >= threshold
	return a.FailedAttempts, a.Locked, nil
}

func (f *fakeStore) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || a.Locked {
		return false, nil
	}
	a.FailedAttempts = 0
	a.LastAccessAt = &at
	return true, nil
}

func (f *fakeStore) UnlockAccount(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return db.ErrNotFound
	}
	a.Locked = false
	a.FailedAttempts = 0
	return nil
}

func (f *fakeStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("UpdatePassword"); err != nil {
		return err
	}
	a, ok := f.accounts[id]
	if !ok {
		return db.ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (f *fakeStore) GetAccountRoles(ctx context.Context, accountID uuid.UUID) ([]model.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roles := make([]model.Role, 0)
	for _, name := range f.accountRoles[accountID] {
		roles = append(roles, f.roles[name])
	}
	return roles, nil
}

func (f *fakeStore) InsertRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("InsertRefreshToken"); err != nil {
		return err
	}
	if _, ok := f.refresh[token.TokenHash]; ok {
		return db.ErrConflict
	}
	c := *token
	f.refresh[token.TokenHash] = &c
	return nil
}

func (f *fakeStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.refresh[tokenHash]
	if !ok {
		return nil, db.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeStore) ClaimRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.refresh[tokenHash]
	if !ok || !t.IsActiveAt(now) {
		return nil, db.ErrNotFound
	}
	t.Revoked = true
	t.RevokedAt = &now
	c := *t
	return &c, nil
}

func (f *fakeStore) SetSupersededBy(ctx context.Context, tokenHash, replacementHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.refresh[tokenHash]; ok {
		t.SupersededBy = &replacementHash
	}
	return nil
}

func (f *fakeStore) RevokeRefreshToken(ctx context.Context, accountID uuid.UUID, tokenHash string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.refresh[tokenHash]
	if !ok || t.AccountID != accountID || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	t.RevokedAt = &now
	return true, nil
}

func (f *fakeStore) RevokeAccountRefreshTokens(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.refresh {
		if t.AccountID == accountID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ReplaceRecoveryToken(ctx context.Context, token *model.RecoveryToken) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.recovery {
		if t.AccountID == token.AccountID && t.Purpose == token.Purpose && !t.Used {
			t.Used = true
			usedAt := token.CreatedAt
			t.UsedAt = &usedAt
			n++
		}
	}
	c := *token
	f.recovery[token.TokenHash] = &c
	return n, nil
}

func (f *fakeStore) GetActiveRecoveryToken(ctx context.Context, tokenHash, purpose string, now time.Time) (*model.RecoveryToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.recovery[tokenHash]
	if !ok || t.Purpose != purpose || !t.IsActiveAt(now) {
		return nil, db.ErrNotFound
	}
	c := *t
	return &c, nil
}

// ResetPasswordWithToken leaves every record untouched when it fails.
func (f *fakeStore) ResetPasswordWithToken(ctx context.Context, tokenHash, purpose, passwordHash string, now time.Time) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.recovery[tokenHash]
	if !ok || t.Purpose != purpose || !t.IsActiveAt(now) {
		return uuid.Nil, false, nil
	}
	if err := f.fail("ResetPasswordWithToken"); err != nil {
		return uuid.Nil, false, err
	}
	a, ok := f.accounts[t.AccountID]
	if !ok {
		return uuid.Nil, false, db.ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.Locked = false
	a.FailedAttempts = 0
	for _, other := range f.recovery {
		if other.AccountID == t.AccountID && other.Purpose == purpose && !other.Used {
			other.Used = true
			other.UsedAt = &now
		}
	}
	return t.AccountID, true, nil
}

func (f *fakeStore) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("DeleteExpiredRefreshTokens"); err != nil {
		return 0, err
	}
	var n int64
	for k, t := range f.refresh {
		if !t.ExpiresAt.After(before) {
			delete(f.refresh, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteExpiredRecoveryTokens(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, t := range f.recovery {
		if !t.ExpiresAt.After(before) {
			delete(f.recovery, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) account(id uuid.UUID) model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.accounts[id]
}

func (f *fakeStore) refreshByHash(hash string) model.RefreshToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.refresh[hash]
}

func (f *fakeStore) activeRefreshCount(accountID uuid.UUID, now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.refresh {
		if t.AccountID == accountID && t.IsActiveAt(now) {
			n++
		}
	}
	return n
}

func (f *fakeStore) setAccount(id uuid.UUID, mutate func(a *model.Account)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(f.accounts[id])
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []client.MailMessage
	err  error
}

func (m *fakeMailer) IsConfigured() bool { return true }

func (m *fakeMailer) Send(ctx context.Context, msg client.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *fakeMailer) messages() []client.MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]client.MailMessage(nil), m.sent...)
}
