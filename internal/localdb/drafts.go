package localdb

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Draft is unsent composer text for a contact.
type Draft struct {
	ContactID string
	Body      string
	UpdatedAt time.Time
}

// GetDraft returns the draft for a contact. ok is false when none is stored.
func (db *DB) GetDraft(contactID string) (Draft, bool, error) {
	var d Draft
	var updated int64
	err := db.QueryRow(`SELECT contact_id, body, updated_at FROM drafts WHERE contact_id = ?`, contactID).
		Scan(&d.ContactID, &d.Body, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, false, nil
	}
	if err != nil {
		return Draft{}, false, err
	}
	d.UpdatedAt = time.UnixMilli(updated)
	return d, true, nil
}

// PutDraft stores a draft. A blank body deletes it.
func (db *DB) PutDraft(contactID, body string) error {
	if strings.TrimSpace(body) == "" {
		return db.DeleteDraft(contactID)
	}
	_, err := db.Exec(`
		INSERT INTO drafts (contact_id, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		contactID, body, db.stamp())
	return err
}

// DeleteDraft removes a contact's draft.
func (db *DB) DeleteDraft(contactID string) error {
	_, err := db.Exec(`DELETE FROM drafts WHERE contact_id = ?`, contactID)
	return err
}
