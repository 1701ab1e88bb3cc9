package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	h, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	digest, err := h.Hash(strongSecret)
	require.NoError(t, err)
	assert.NotEqual(t, strongSecret, digest)

	assert.True(t, h.Verify(strongSecret, digest))
	for _, other := range []string{"", "str0ng!pass", strongSecret + " ", "Str0ng!Pas"} {
		assert.False(t, h.Verify(other, digest), "secret %q", other)
	}

	again, err := h.Hash(strongSecret)
	require.NoError(t, err)
	assert.NotEqual(t, digest, again, "salt must differ per call")
}

func TestPasswordHasher_RejectsBadCost(t *testing.T) {
	_, err := NewPasswordHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)
}

func TestCheckStrength(t *testing.T) {
	tests := []struct {
		secret  string
		ok      bool
		missing []string
	}{
		{secret: strongSecret, ok: true},
		{secret: "NewPass1!", ok: true},
		{secret: "Sh0rt!", missing: []string{"at least 8 characters"}},
		{secret: "alllowercase1!", missing: []string{"an uppercase letter"}},
		{secret: "ALLUPPERCASE1!", missing: []string{"a lowercase letter"}},
		{secret: "NoDigitsHere!", missing: []string{"a digit"}},
		{secret: "NoSymbols123", missing: []string{"a symbol"}},
		{secret: "password", missing: []string{"an uppercase letter", "a digit", "a symbol"}},
		{secret: "Aa1!" + strings.Repeat("x", 70), missing: []string{"at most 72 bytes"}},
	}

	for _, tt := range tests {
		t.Run(tt.secret, func(t *testing.T) {
			ok, reason := CheckStrength(tt.secret)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Empty(t, reason)
				return
			}
			for _, m := range tt.missing {
				assert.Contains(t, reason, m)
			}
		})
	}
}
