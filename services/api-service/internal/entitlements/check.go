package entitlements

import (
	"errors"
	"fmt"
)

var (
	ErrLimitExceeded = errors.New("usage limit exceeded")
	ErrInvalidAmount = errors.New("usage amount must be positive")
	ErrUnknownAction = errors.New("unknown usage action")
)

// LimitError carries the counter state at rejection time. It matches
// ErrLimitExceeded with errors.Is.
type LimitError struct {
	Action Action
	Limit  int
	Used   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("usage limit exceeded for %s: used %d of %d", e.Action, e.Used, e.Limit)
}

func (e *LimitError) Is(target error) bool { return target == ErrLimitExceeded }

// CanUse reports whether one more unit may be consumed.
func CanUse(used, limit int) bool {
	return limit == Unlimited || used < limit
}

// CheckConsume validates consuming amount units on top of used.
func CheckConsume(action Action, used, amount, limit int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if limit < 0 {
		return nil
	}
	if used+amount > limit {
		return &LimitError{Action: action, Limit: limit, Used: used}
	}
	return nil
}
