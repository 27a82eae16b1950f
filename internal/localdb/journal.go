package localdb

import "time"

// Journal statuses.
const (
	JournalStatusQueued = "queued"
	JournalStatusSent   = "sent"
	JournalStatusFailed = "failed"
)

// JournalEntry records one optimistic send attempt.
type JournalEntry struct {
	TempID    string
	ContactID string
	TicketID  string
	Body      string
	Status    string
	ServerID  string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JournalQueued records a send before the request is issued.
func (db *DB) JournalQueued(tempID, contactID, ticketID, body string) error {
	now := db.stamp()
	_, err := db.Exec(`
		INSERT INTO send_journal (temp_id, contact_id, ticket_id, body, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(temp_id) DO UPDATE SET status = 'queued', error = '', updated_at = excluded.updated_at`,
		tempID, contactID, ticketID, body, now, now)
	return err
}

// JournalSent marks a send as acknowledged with the server id.
func (db *DB) JournalSent(tempID, serverID string) error {
	_, err := db.Exec(`UPDATE send_journal SET status = 'sent', server_id = ?, error = '', updated_at = ? WHERE temp_id = ?`,
		serverID, db.stamp(), tempID)
	return err
}

// JournalFailed marks a send as failed with an error message.
func (db *DB) JournalFailed(tempID, errMsg string) error {
	_, err := db.Exec(`UPDATE send_journal SET status = 'failed', error = ?, updated_at = ? WHERE temp_id = ?`,
		errMsg, db.stamp(), tempID)
	return err
}

// FailedSends returns failed sends for a contact, oldest first. An empty
// contactID returns failed sends for every contact.
func (db *DB) FailedSends(contactID string) ([]JournalEntry, error) {
	rows, err := db.Query(`
		SELECT temp_id, contact_id, ticket_id, body, status, server_id, error, created_at, updated_at
		FROM send_journal
		WHERE status = 'failed' AND (? = '' OR contact_id = ?)
		ORDER BY created_at ASC`, contactID, contactID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var created, updated int64
		if err := rows.Scan(&e.TempID, &e.ContactID, &e.TicketID, &e.Body, &e.Status, &e.ServerID, &e.Error, &created, &updated); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created)
		e.UpdatedAt = time.UnixMilli(updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneJournal deletes sent entries last updated before the cutoff.
func (db *DB) PruneJournal(before time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM send_journal WHERE status = 'sent' AND updated_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
