package storage

import (
	"database/sql"
	"fmt"
	"time"

	"othello-relay/internal/protocol"
)

// EventRecord is one journaled engine event.
type EventRecord struct {
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendEvents stores events in order, in one transaction.
func (db *DB) AppendEvents(events []protocol.Event, at time.Time) error {
	if len(events) == 0 {
		return nil
	}
	return db.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT INTO events (type, data, created_at) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ev := range events {
			data, err := protocol.Encode(ev)
			if err != nil {
				return fmt.Errorf("encode %s event: %w", ev.Type, err)
			}
			if _, err := stmt.Exec(ev.Type, string(data), at.UTC()); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecentEvents returns the newest limit events, oldest first.
func (db *DB) RecentEvents(limit int) ([]EventRecord, error) {
	rows, err := db.Query(
		`SELECT seq, type, data, created_at FROM
			(SELECT seq, type, data, created_at FROM events ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsSince returns up to limit events with a sequence number above seq.
func (db *DB) EventsSince(seq int64, limit int) ([]EventRecord, error) {
	rows, err := db.Query(
		"SELECT seq, type, data, created_at FROM events WHERE seq > ? ORDER BY seq ASC LIMIT ?",
		seq, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// CountEvents returns the number of journaled events.
func (db *DB) CountEvents() (int64, error) {
	var n int64
	err := db.QueryRow("SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// PruneEvents deletes events recorded before cutoff and reports how many
// were removed.
func (db *DB) PruneEvents(cutoff time.Time) (int64, error) {
	res, err := db.Exec("DELETE FROM events WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]EventRecord, error) {
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(&r.Seq, &r.Type, &r.Data, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
