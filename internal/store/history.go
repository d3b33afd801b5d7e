package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/foamchat/emotewatch/internal/model"
)

const historySchema = `CREATE TABLE IF NOT EXISTS emote_changes (
  channel_id TEXT NOT NULL,
  emote_id   TEXT NOT NULL,
  emote_name TEXT NOT NULL,
  action     TEXT NOT NULL,
  actor      TEXT NOT NULL DEFAULT '',
  ts         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_emote_changes_channel_ts
  ON emote_changes (channel_id, ts DESC);`

// Change is one recorded emote-set change.
type Change struct {
	ChannelID string    `json:"channel_id"`
	EmoteID   string    `json:"emote_id"`
	EmoteName string    `json:"emote_name"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor,omitempty"`
	Ts        time.Time `json:"ts"`
}

// History persists emote-set changes to SQLite.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the underlying database.
func (h *History) Close() error { return h.db.Close() }

// Record writes one row per added and removed emote in the delta.
func (h *History) Record(ctx context.Context, delta model.EmoteDelta) error {
	const q = `INSERT INTO emote_changes (channel_id, emote_id, emote_name, action, actor, ts)
VALUES (?, ?, ?, ?, ?, ?);`

	// Stored as epoch nanoseconds so ORDER BY compares numerically.
	ts := time.Now().UTC().UnixNano()
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history tx: %w", err)
	}

	write := func(r model.EmoteRecord, action string) error {
		_, err := tx.ExecContext(ctx, q, delta.ChannelID, r.ID, r.Name, action, r.Actor, ts)
		return err
	}

	for _, r := range delta.Added {
		if err := write(r, "added"); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording added emote: %w", err)
		}
	}
	for _, r := range delta.Removed {
		if err := write(r, "removed"); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording removed emote: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history tx: %w", err)
	}
	return nil
}

// Recent returns the most recent changes for a channel, newest first.
func (h *History) Recent(ctx context.Context, channelID string, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT channel_id, emote_id, emote_name, action, actor, ts
FROM emote_changes WHERE channel_id = ? ORDER BY ts DESC, rowid DESC LIMIT ?;`

	rows, err := h.db.QueryContext(ctx, q, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var (
			c  Change
			ts int64
		)
		if err := rows.Scan(&c.ChannelID, &c.EmoteID, &c.EmoteName, &c.Action, &c.Actor, &ts); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		c.Ts = time.Unix(0, ts).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return out, nil
}
