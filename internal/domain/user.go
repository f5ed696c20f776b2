package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// ReferralCodeLength is the fixed length of every assigned referral code.
const ReferralCodeLength = 6

// User is a newsletter subscriber.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	ReferralCode string
	// ReferredByID is a lookup-only back reference; chains may contain cycles.
	ReferredByID *string
	IsActive     bool
	BestUser     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName returns the first name, falling back to the email local part.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return EmailLocalPart(u.Email)
}

func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, u.Email)
	}
	if len([]rune(u.FirstName)) > 25 || len([]rune(u.LastName)) > 25 {
		return fmt.Errorf("%w: names are limited to 25 characters", ErrValidation)
	}
	if u.ReferralCode != "" && !IsReferralCode(u.ReferralCode) {
		return fmt.Errorf("%w: invalid referral code %q", ErrValidation, u.ReferralCode)
	}
	if u.ReferredByID != nil && *u.ReferredByID == u.ID && u.ID != "" {
		return fmt.Errorf("%w: user cannot refer themselves", ErrValidation)
	}
	return nil
}

// NormalizeEmail trims the address and lower-cases it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailLocalPart returns everything before the first '@'.
func EmailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// IsReferralCode reports whether code has the shape of an assigned referral code.
func IsReferralCode(code string) bool {
	if len(code) != ReferralCodeLength {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// NormalizeReferralCode upper-cases and trims a code typed by a user.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
