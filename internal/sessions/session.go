// Package sessions enforces a single active session per user. Each login
// bumps a per-user generation number; a client holding an older generation
// has been superseded and must sign out.
package sessions

import "time"

// State is the outcome of a session check.
type State string

const (
	StateActive     State = "active"
	StateSuperseded State = "superseded"
	StateExpired    State = "expired"
)

// Session is the current login of a user.
type Session struct {
	UserID     string    `bson:"_id" json:"userId"`
	Generation int64     `bson:"generation" json:"generation"`
	Token      string    `bson:"token" json:"token"`
	StartedAt  time.Time `bson:"startedAt" json:"startedAt"`
	ExpiresAt  time.Time `bson:"expiresAt" json:"expiresAt"`
}

// Live reports whether s holds an unexpired login at now.
func (s *Session) Live(now time.Time) bool {
	return s != nil && s.Token != "" && now.Before(s.ExpiresAt)
}
