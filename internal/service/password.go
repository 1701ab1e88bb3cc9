package service

import (
	"crypto/rand"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

type PasswordHasher struct {
	cost int
	// dummy is verified against when the account does not exist so that
	// unknown usernames cost the same as wrong passwords.
	dummy []byte
}

func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, bcrypt.InvalidCostError(cost)
	}
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	dummy, err := bcrypt.GenerateFromPassword(seed, cost)
	if err != nil {
		return nil, err
	}
	return &PasswordHasher{cost: cost, dummy: dummy}, nil
}

func (h *PasswordHasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (h *PasswordHasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

func (h *PasswordHasher) verifyDummy(secret string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(secret))
}

// CheckStrength applies the password policy. On failure the reason lists
// every unmet requirement.
func CheckStrength(secret string) (bool, string) {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	var reasons []string
	if len([]rune(secret)) < minPasswordLength {
		reasons = append(reasons, "at least 8 characters")
	}
	if len(secret) > maxPasswordBytes {
		reasons = append(reasons, "at most 72 bytes")
	}
	if !hasUpper {
		reasons = append(reasons, "an uppercase letter")
	}
	if !hasLower {
		reasons = append(reasons, "a lowercase letter")
	}
	if !hasDigit {
		reasons = append(reasons, "a digit")
	}
	if !hasSymbol {
		reasons = append(reasons, "a symbol")
	}
	if len(reasons) == 0 {
		return true, ""
	}
	return false, "password must contain " + strings.Join(reasons, ", ")
}
