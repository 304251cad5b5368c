package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
)

// GetSettings returns the guild settings, or the defaults when the guild
// has never written any.
func (r *Repo) GetSettings(ctx context.Context, guildID string) (Settings, error) {
	return r.getSettings(ctx, r.db, guildID)
}

func (r *Repo) SetSettings(ctx context.Context, s Settings) error {
	unlock := r.locks.lock("settings:" + s.GuildID)
	defer unlock()
	return r.setSettings(ctx, r.db, s)
}

// UpdateSettings is a read-modify-write of one guild's settings.
func (r *Repo) UpdateSettings(ctx context.Context, guildID string, fn func(*Settings)) (Settings, error) {
	unlock := r.locks.lock("settings:" + guildID)
	defer unlock()

	var out Settings
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		s, err := r.getSettings(ctx, tx, guildID)
		if err != nil {
			return err
		}
		fn(&s)
		s.GuildID = guildID
		out = s
		return r.setSettings(ctx, tx, s)
	})
	if err != nil {
		return Settings{}, err
	}
	return out, nil
}

func (r *Repo) getSettings(ctx context.Context, db querier, guildID string) (Settings, error) {
	var (
		s          = DefaultSettings(guildID)
		loop       int
		last, prev sql.NullString
	)
	err := db.QueryRowContext(ctx, r.q(`
		SELECT volume_level, is_looping, last_played, previous_played
		FROM guild_settings WHERE guild_id = ?`), guildID,
	).Scan(&s.Volume, &loop, &last, &prev)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return Settings{}, err
	}
	s.Loop = loop != 0
	s.LastPlayed = decodeSong(guildID, last)
	s.PreviousPlayed = decodeSong(guildID, prev)
	return s, nil
}

func (r *Repo) setSettings(ctx context.Context, db querier, s Settings) error {
	last, err := encodeSong(s.LastPlayed)
	if err != nil {
		return err
	}
	prev, err := encodeSong(s.PreviousPlayed)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, r.q(`
		INSERT INTO guild_settings(guild_id, volume_level, is_looping, last_played, previous_played)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
		  volume_level = excluded.volume_level,
		  is_looping = excluded.is_looping,
		  last_played = excluded.last_played,
		  previous_played = excluded.previous_played`),
		s.GuildID, s.Volume, boolToInt(s.Loop), last, prev,
	)
	return err
}

func encodeSong(s *Song) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeSong(guildID string, raw sql.NullString) *Song {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var s Song
	if err := json.Unmarshal([]byte(raw.String), &s); err != nil {
		slog.Warn("discarding malformed song in settings", "guildID", guildID, "err", err)
		return nil
	}
	return &s
}
