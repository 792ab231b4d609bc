package domain

import "time"

// Identity is a user proven by the external identity provider. It is derived
// once at login and carried inside session credentials afterwards; it is never
// persisted on its own.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Session is the decoded content of a valid session credential.
type Session struct {
	Identity
	ExpiresAt time.Time `json:"-"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
