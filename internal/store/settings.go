package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Setting keys.
const (
	settingJWTSecret = "jwt_secret"
	settingSeededAt  = "seeded_at"
)

// GetSetting returns the value stored under key, or "" if none is set.
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

// ensureSetting stores candidate under key unless a value already exists,
// and returns whichever value ends up stored.
func ensureSetting(ctx context.Context, db *sql.DB, key, candidate string) (string, bool, error) {
	result, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		key, candidate,
	)
	if err != nil {
		return "", false, fmt.Errorf("storing setting %s: %w", key, err)
	}
	n, _ := result.RowsAffected()

	value, err := GetSetting(ctx, db, key)
	if err != nil {
		return "", false, err
	}
	return value, n > 0, nil
}

// GetJWTSecret retrieves the JWT secret from the database, generating and
// storing one on first use.
func GetJWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}

	secret, _, err := ensureSetting(ctx, db, settingJWTSecret, hex.EncodeToString(buf))
	if err != nil {
		return "", err
	}
	return secret, nil
}

// MarkSeeded records that the demo catalogue was loaded. It reports false if
// it had already been recorded.
func MarkSeeded(ctx context.Context, db *sql.DB, at time.Time) (bool, error) {
	_, inserted, err := ensureSetting(ctx, db, settingSeededAt, at.UTC().Format(time.RFC3339))
	return inserted, err
}
