package domain

import "time"

// User represents a registered user and their place in the referral graph.
type User struct {
	ID           int64
	Name         string
	PhoneNumber  string
	ReferralCode string
	// ReferredBy is the referral code of the user who referred this one, if any.
	ReferredBy *string
	CreatedAt  time.Time
}

// WasReferred reports whether the user signed up with a referral code.
func (u User) WasReferred() bool {
	return u.ReferredBy != nil && *u.ReferredBy != ""
}
