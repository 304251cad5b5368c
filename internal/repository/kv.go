package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetKV reports ok=false for missing keys.
func (r *Repo) GetKV(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, r.q(`SELECT value FROM kv_store WHERE key = ?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Repo) SetKV(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO kv_store(key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		  value = excluded.value,
		  updated_at = excluded.updated_at`),
		key, value, time.Now().Unix(),
	)
	return err
}

func (r *Repo) GetSpotifyUser(ctx context.Context, userID string) (*SpotifyUser, error) {
	u := SpotifyUser{UserID: userID}
	var exp int64
	err := r.db.QueryRowContext(ctx, r.q(`
		SELECT access_token, refresh_token, expires_at FROM spotify_users WHERE user_id = ?`), userID,
	).Scan(&u.AccessToken, &u.RefreshToken, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if exp > 0 {
		u.ExpiresAt = time.Unix(exp, 0)
	}
	return &u, nil
}

func (r *Repo) SetSpotifyUser(ctx context.Context, u SpotifyUser) error {
	var exp int64
	if !u.ExpiresAt.IsZero() {
		exp = u.ExpiresAt.Unix()
	}
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO spotify_users(user_id, access_token, refresh_token, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		  access_token = excluded.access_token,
		  refresh_token = CASE WHEN excluded.refresh_token = '' THEN spotify_users.refresh_token ELSE excluded.refresh_token END,
		  expires_at = excluded.expires_at`),
		u.UserID, u.AccessToken, u.RefreshToken, exp,
	)
	return err
}

func (r *Repo) DeleteSpotifyUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, r.q(`DELETE FROM spotify_users WHERE user_id = ?`), userID)
	return err
}
