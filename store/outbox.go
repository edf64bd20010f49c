package store

import (
	"time"
)

// OutboxMessage is a queued outbound mesh message. Messages land here
// when the radio link is down and are drained on reconnect.
type OutboxMessage struct {
	ID          int64
	Kind        string
	Channel     int
	Destination string
	Body        string
	Retries     int
	CreatedAt   time.Time
	SentAt      *time.Time
}

func (db *DB) EnqueueOutbox(kind string, channel int, destination, body string) error {
	_, err := db.Exec(db.Q(`INSERT INTO outbox (kind, channel, destination, body) VALUES (?, ?, ?, ?)`),
		kind, channel, destination, body)
	return err
}

func (db *DB) ListPendingOutbox(limit int) ([]*OutboxMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, kind, channel, destination, body, retries, created_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Kind, &m.Channel, &m.Destination, &m.Body, &m.Retries, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at=datetime('now','localtime') WHERE id=?`), id)
	return err
}

func (db *DB) IncrementOutboxRetries(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET retries=retries+1 WHERE id=?`), id)
	return err
}
