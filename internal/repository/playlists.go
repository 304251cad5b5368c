package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
)

// GetPlaylist returns nil without error when the playlist does not exist.
func (r *Repo) GetPlaylist(ctx context.Context, userID, name string) (*Playlist, error) {
	var desc, raw string
	err := r.db.QueryRowContext(ctx, r.q(`
		SELECT description, songs FROM user_playlists WHERE user_id = ? AND name = ?`),
		userID, name,
	).Scan(&desc, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := &Playlist{UserID: userID, Name: name, Description: desc, Songs: []Song{}}
	if err := json.Unmarshal([]byte(raw), &p.Songs); err != nil {
		slog.Warn("discarding malformed playlist songs", "userID", userID, "name", name, "err", err)
		p.Songs = []Song{}
	}
	return p, nil
}

func (r *Repo) SetPlaylist(ctx context.Context, p Playlist) error {
	songs := p.Songs
	if songs == nil {
		songs = []Song{}
	}
	raw, err := json.Marshal(songs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.q(`
		INSERT INTO user_playlists(user_id, name, description, songs) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
		  description = excluded.description,
		  songs = excluded.songs`),
		p.UserID, p.Name, p.Description, string(raw),
	)
	return err
}

// ListPlaylists returns the user's playlists ordered by name, without songs.
func (r *Repo) ListPlaylists(ctx context.Context, userID string) ([]Playlist, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT name, description FROM user_playlists WHERE user_id = ? ORDER BY name ASC`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Playlist
	for rows.Next() {
		p := Playlist{UserID: userID}
		if err := rows.Scan(&p.Name, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) DeletePlaylist(ctx context.Context, userID, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM user_playlists WHERE user_id = ? AND name = ?`), userID, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
