package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// Settings keys.
const (
	settingJWTSecret     = "jwt_secret"
	SettingAdminPassHash = "admin_password_hash"
	SettingGatewayKey    = "gateway_key"
)

// GetJWTSecret retrieves the JWT secret from the database.
// If no secret exists, it generates one, stores it, and returns it.
// Uses INSERT OR IGNORE + re-SELECT to avoid TOCTOU race on concurrent startup.
func GetJWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	candidate, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		settingJWTSecret, candidate,
	); err != nil {
		return "", fmt.Errorf("storing jwt secret: %w", err)
	}

	// Always read back (either our insert or the existing value).
	var secret string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, settingJWTSecret,
	).Scan(&secret)
	if err != nil {
		return "", fmt.Errorf("querying jwt secret: %w", err)
	}
	return secret, nil
}

// GetSetting returns a settings value, or "" if the key is not set.
func GetSetting(ctx context.Context, db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a settings value, replacing any existing one.
func SetSetting(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("storing setting %s: %w", key, err)
	}
	return nil
}

// EnsureGatewayKey returns the shared key the chat gateway authenticates
// with, generating and storing one on first call.
func EnsureGatewayKey(ctx context.Context, db *sql.DB) (string, error) {
	candidate, err := randomHex(24)
	if err != nil {
		return "", fmt.Errorf("generating gateway key: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		SettingGatewayKey, candidate,
	); err != nil {
		return "", fmt.Errorf("storing gateway key: %w", err)
	}

	return GetSetting(ctx, db, SettingGatewayKey)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
