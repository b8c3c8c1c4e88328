package store

import "time"

// Config holds the reservation policy knobs.
type Config struct {
	// CancelWindow is how long a buyer may self-cancel a claim.
	// Administrators bypass it.
	CancelWindow time.Duration

	// StaleAfter is the horizon after which a buyer's unclaimed-out claims
	// are auto-released on their next session start.
	StaleAfter time.Duration

	// AllowRepeatClaims relaxes the one-active-claim-group-per-item policy,
	// letting an actor stack additional claims on an item they already hold.
	AllowRepeatClaims bool
}

// DefaultConfig matches the production policy: 5 minutes to self-cancel,
// claims held for 24 hours.
func DefaultConfig() Config {
	return Config{
		CancelWindow: 5 * time.Minute,
		StaleAfter:   24 * time.Hour,
	}
}
