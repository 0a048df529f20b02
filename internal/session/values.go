package session

import (
	"github.com/gorilla/sessions"

	"referral-hunt/internal/domain"
)

const (
	keyAuthenticated = "isAuthenticated"
	keyPhoneNumber   = "phoneNumber"
	keyUser          = "user"
)

// IsAuthenticated reports the session's authenticated flag, false when unset.
func IsAuthenticated(s *sessions.Session) bool {
	v, _ := s.Values[keyAuthenticated].(bool)
	return v
}

// SetPendingPhone records the phone number awaiting OTP verification.
func SetPendingPhone(s *sessions.Session, phone string) {
	s.Values[keyPhoneNumber] = phone
}

// PendingPhone returns the phone number awaiting verification.
func PendingPhone(s *sessions.Session) string {
	v, _ := s.Values[keyPhoneNumber].(string)
	return v
}

// Authenticate marks the session as logged in as user.
func Authenticate(s *sessions.Session, user domain.User) {
	s.Values[keyAuthenticated] = true
	s.Values[keyUser] = user
}

// CurrentUser returns the logged in user, if any.
func CurrentUser(s *sessions.Session) (domain.User, bool) {
	u, ok := s.Values[keyUser].(domain.User)
	return u, ok
}

// Invalidate clears the authenticated flag and marks the session for
// destruction on the next save.
func Invalidate(s *sessions.Session) {
	s.Values[keyAuthenticated] = false
	if s.Options == nil {
		s.Options = &sessions.Options{Path: "/"}
	}
	s.Options.MaxAge = -1
}
