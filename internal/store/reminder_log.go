package store

import (
	"database/sql"
	"fmt"
)

// ReminderLogStore records which reminder buckets have already been dispatched
// so a member is notified at most once per bucket per due date.
type ReminderLogStore struct {
	db *sql.DB
}

func NewReminderLogStore(db *sql.DB) *ReminderLogStore {
	return &ReminderLogStore{db: db}
}

// WasSent reports whether a reminder for this member, bucket, and due date has
// already been recorded.
func (s *ReminderLogStore) WasSent(memberID int64, bucket int, dueDate string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM reminder_log WHERE member_id = ? AND bucket = ? AND due_date = ?`,
		memberID, bucket, dueDate,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check reminder sent: %w", err)
	}
	return n > 0, nil
}

// RecordSent marks a reminder as dispatched. Duplicate records are ignored.
func (s *ReminderLogStore) RecordSent(memberID int64, bucket int, dueDate string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO reminder_log (member_id, bucket, due_date) VALUES (?, ?, ?)`,
		memberID, bucket, dueDate,
	)
	if err != nil {
		return fmt.Errorf("record reminder sent: %w", err)
	}
	return nil
}
