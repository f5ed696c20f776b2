package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrPrecondition marks inputs a caller was required to guarantee,
	// e.g. ranking against an empty set of active users.
	ErrPrecondition = errors.New("precondition violated")

	ErrReferralCodeExhausted = errors.New("referral code space exhausted")
)
