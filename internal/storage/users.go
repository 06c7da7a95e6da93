package storage

import (
	"context"
	"fmt"
)

// LocalLogin is the login of the user seeded by the first migration. It owns
// all data when the server runs without tailnet identity.
const LocalLogin = "local"

// GetOrCreateUser finds or creates a user by login name and returns its ID.
// last_seen is bumped and a non-empty display name replaces the stored one.
func (db *DB) GetOrCreateUser(ctx context.Context, login, displayName string) (int, error) {
	var id int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO users (login, display_name)
		VALUES ($1, $2)
		ON CONFLICT (login) DO UPDATE
			SET last_seen = NOW(), display_name = COALESCE(NULLIF($2, ''), users.display_name)
		RETURNING id
	`, login, displayName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting user %q: %w", login, err)
	}
	return id, nil
}
