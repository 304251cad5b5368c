package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetQueue returns the guild queue in play order. A missing or unreadable
// row reads as an empty queue.
func (r *Repo) GetQueue(ctx context.Context, guildID string) ([]Song, error) {
	return r.getQueue(ctx, r.db, guildID)
}

func (r *Repo) SetQueue(ctx context.Context, guildID string, songs []Song) error {
	unlock := r.locks.lock("queue:" + guildID)
	defer unlock()
	return r.setQueue(ctx, r.db, guildID, songs)
}

func (r *Repo) DeleteQueue(ctx context.Context, guildID string) error {
	unlock := r.locks.lock("queue:" + guildID)
	defer unlock()
	_, err := r.db.ExecContext(ctx, r.q(`DELETE FROM queues WHERE guild_id = ?`), guildID)
	return err
}

// UpdateQueue applies fn to the current queue and stores the result
// atomically. fn must not block.
func (r *Repo) UpdateQueue(ctx context.Context, guildID string, fn func([]Song) []Song) ([]Song, error) {
	unlock := r.locks.lock("queue:" + guildID)
	defer unlock()

	var out []Song
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := r.getQueue(ctx, tx, guildID)
		if err != nil {
			return err
		}
		out = fn(cur)
		return r.setQueue(ctx, tx, guildID, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) getQueue(ctx context.Context, db querier, guildID string) ([]Song, error) {
	var raw string
	err := db.QueryRowContext(ctx, r.q(`SELECT queue_json FROM queues WHERE guild_id = ?`), guildID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []Song{}, nil
	}
	if err != nil {
		return nil, err
	}
	var songs []Song
	if err := json.Unmarshal([]byte(raw), &songs); err != nil {
		slog.Warn("discarding malformed queue row", "guildID", guildID, "err", err)
		return []Song{}, nil
	}
	if songs == nil {
		songs = []Song{}
	}
	return songs, nil
}

func (r *Repo) setQueue(ctx context.Context, db querier, guildID string, songs []Song) error {
	if songs == nil {
		songs = []Song{}
	}
	raw, err := json.Marshal(songs)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, r.q(`
		INSERT INTO queues(guild_id, queue_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
		  queue_json = excluded.queue_json,
		  updated_at = excluded.updated_at`),
		guildID, string(raw), time.Now().Unix(),
	)
	return err
}
