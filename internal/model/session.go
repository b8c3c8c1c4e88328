package model

import "time"

// Session is a durable per-actor workflow session. One row per (actor, role),
// read and written transactionally, so in-flight checkouts and admin wizards
// survive a process restart.
type Session struct {
	ActorID     int64      `json:"actor_id"`
	Role        string     `json:"role"`
	SessionType string     `json:"session_type"`
	Payload     string     `json:"payload"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Session roles.
const (
	SessionRoleBuyer = "buyer"
	SessionRoleAdmin = "admin"
)

// Expired reports whether the session's expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
