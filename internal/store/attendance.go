package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dayobello/gymgate/internal/model"
)

// ErrOpenSession is returned when a check-in would create a second open
// attendance record for the same member and day.
var ErrOpenSession = errors.New("open attendance record already exists")

type AttendanceStore struct {
	db *sql.DB
}

func NewAttendanceStore(db *sql.DB) *AttendanceStore {
	return &AttendanceStore{db: db}
}

func scanAttendance(scanner interface{ Scan(...any) error }) (*model.AttendanceRecord, error) {
	var r model.AttendanceRecord
	var checkOut sql.NullTime
	err := scanner.Scan(&r.ID, &r.MemberID, &r.Date, &r.CheckInTime, &checkOut)
	if err != nil {
		return nil, err
	}
	if checkOut.Valid {
		r.CheckOutTime = &checkOut.Time
	}
	return &r, nil
}

const attendanceCols = `id, member_id, date, check_in_time, check_out_time`

// OpenForDay returns the member's open (not checked out) record for the given
// day, or nil if there is none.
func (s *AttendanceStore) OpenForDay(memberID int64, date string) (*model.AttendanceRecord, error) {
	row := s.db.QueryRow(
		`SELECT `+attendanceCols+` FROM attendance_records
		 WHERE member_id = ? AND date = ? AND check_out_time IS NULL`,
		memberID, date,
	)
	r, err := scanAttendance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open attendance record: %w", err)
	}
	return r, nil
}

// CheckIn inserts a new open record. The partial unique index on
// (member_id, date) backs the one-open-session rule; a constraint violation
// maps to ErrOpenSession so concurrent check-ins cannot both succeed.
func (s *AttendanceStore) CheckIn(memberID int64, date string, checkIn time.Time) (*model.AttendanceRecord, error) {
	result, err := s.db.Exec(
		`INSERT INTO attendance_records (member_id, date, check_in_time) VALUES (?, ?, ?)`,
		memberID, date, checkIn,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrOpenSession
		}
		return nil, fmt.Errorf("insert attendance record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+attendanceCols+` FROM attendance_records WHERE id = ?`, id)
	return scanAttendance(row)
}

// CloseOpen checks out the member's open record for the given day. Returns
// false if there was no open record.
func (s *AttendanceStore) CloseOpen(memberID int64, date string, checkOut time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE attendance_records SET check_out_time = ?
		 WHERE member_id = ? AND date = ? AND check_out_time IS NULL`,
		checkOut, memberID, date,
	)
	if err != nil {
		return false, fmt.Errorf("close attendance record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListForDay returns all attendance records for a calendar day.
func (s *AttendanceStore) ListForDay(date string) ([]*model.AttendanceRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+attendanceCols+` FROM attendance_records WHERE date = ? ORDER BY check_in_time`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	defer rows.Close()

	var records []*model.AttendanceRecord
	for rows.Next() {
		r, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// ListForMember returns a member's attendance history, newest first.
func (s *AttendanceStore) ListForMember(memberID int64, limit int) ([]*model.AttendanceRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+attendanceCols+` FROM attendance_records
		 WHERE member_id = ? ORDER BY check_in_time DESC LIMIT ?`,
		memberID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list member attendance: %w", err)
	}
	defer rows.Close()

	var records []*model.AttendanceRecord
	for rows.Next() {
		r, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member attendance: %w", err)
	}
	return records, nil
}
