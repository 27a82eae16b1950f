package localdb

import (
	"database/sql"
	"errors"
	"time"
)

// Checkpoint keys.
const (
	CheckpointConversationsLoaded = "conversations.loaded_at"
)

// SetCheckpoint stores a sync checkpoint value.
func (db *DB) SetCheckpoint(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, db.stamp())
	return err
}

// Checkpoint returns a sync checkpoint value. ok is false when unset.
func (db *DB) Checkpoint(key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetTimeCheckpoint stores t as an RFC3339 checkpoint.
func (db *DB) SetTimeCheckpoint(key string, t time.Time) error {
	return db.SetCheckpoint(key, t.UTC().Format(time.RFC3339Nano))
}

// TimeCheckpoint reads a checkpoint written by SetTimeCheckpoint.
func (db *DB) TimeCheckpoint(key string) (time.Time, bool, error) {
	v, ok, err := db.Checkpoint(key)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
