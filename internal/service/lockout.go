package service

import (
	"time"

	"github.com/samber/oops"
	"github.com/tripdesk/backoffice/internal/model"
)

const defaultMaxFailedAttempts = 5

// LockoutPolicy decides the Active/Locked transitions of an account. The
// store applies them atomically; this type only holds the rules.
type LockoutPolicy struct {
	MaxFailed int
}

func (p LockoutPolicy) Threshold() int {
	if p.MaxFailed <= 0 {
		return defaultMaxFailedAttempts
	}
	return p.MaxFailed
}

// ShouldLock reports whether a counter value has reached the threshold.
func (p LockoutPolicy) ShouldLock(failedAttempts int) bool {
	return failedAttempts >= p.Threshold()
}

// AutoUnlockAfter is always zero: a locked account stays locked until an
// administrator unlocks it.
func (p LockoutPolicy) AutoUnlockAfter() time.Duration {
	return 0
}

// Gate rejects accounts that cannot authenticate. Locked is checked before
// inactive and neither error carries the counter.
func (p LockoutPolicy) Gate(account *model.Account) error {
	if account.Locked {
		return oops.Code("AUTH_ACCOUNT_LOCKED").
			With("account_id", account.ID.String()).
			Wrap(ErrAccountLocked)
	}
	if !account.Active {
		return oops.Code("AUTH_ACCOUNT_INACTIVE").
			With("account_id", account.ID.String()).
			Wrap(ErrAccountInactive)
	}
	return nil
}
