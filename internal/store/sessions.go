package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/claimdesk/claimdesk/internal/model"
)

// UpsertSession creates or replaces an actor's workflow session. A zero ttl
// means the session does not expire on its own.
func UpsertSession(ctx context.Context, db *sql.DB, actorID int64, role, sessionType, payload string, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = time.Now().UTC().Add(ttl).Format(time.DateTime)
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (actor_id, role, session_type, payload, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, ?)
		 ON CONFLICT (actor_id, role) DO UPDATE SET
		   session_type = excluded.session_type,
		   payload = excluded.payload,
		   updated_at = CURRENT_TIMESTAMP,
		   expires_at = excluded.expires_at`,
		actorID, role, sessionType, payload, expires,
	)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// GetSession returns an actor's session for a role, or nil if there is none
// or it has expired. Expired rows are removed on read.
func GetSession(ctx context.Context, db *sql.DB, actorID int64, role string) (*model.Session, error) {
	s := &model.Session{}
	var expires sql.NullTime
	err := db.QueryRowContext(ctx,
		`SELECT actor_id, role, session_type, payload, updated_at, expires_at
		 FROM sessions WHERE actor_id = ? AND role = ?`,
		actorID, role,
	).Scan(&s.ActorID, &s.Role, &s.SessionType, &s.Payload, &s.UpdatedAt, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if expires.Valid {
		s.ExpiresAt = &expires.Time
	}

	if s.Expired(time.Now().UTC()) {
		_ = ClearSession(ctx, db, actorID, role)
		return nil, nil
	}
	return s, nil
}

// ClearSession removes an actor's session for a role.
func ClearSession(ctx context.Context, db *sql.DB, actorID int64, role string) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM sessions WHERE actor_id = ? AND role = ?`, actorID, role,
	)
	if err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
