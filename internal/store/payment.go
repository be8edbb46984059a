package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dayobello/gymgate/internal/model"
)

type PaymentStore struct {
	db *sql.DB
}

func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func scanPayment(scanner interface{ Scan(...any) error }) (*model.PaymentAttempt, error) {
	var p model.PaymentAttempt
	var txID, raw sql.NullString
	var trainerAddon int
	var completedAt, verifiedAt sql.NullTime
	err := scanner.Scan(
		&p.ID, &p.Reference, &txID, &p.MemberID,
		&p.AmountMinor, &p.PlanCode, &p.DurationDays, &trainerAddon,
		&p.Status, &p.VerificationStatus, &raw,
		&p.InitiatedAt, &completedAt, &verifiedAt,
	)
	if err != nil {
		return nil, err
	}
	if txID.Valid {
		p.TransactionID = &txID.String
	}
	if raw.Valid {
		p.RawPayload = &raw.String
	}
	p.TrainerAddon = trainerAddon != 0
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	if verifiedAt.Valid {
		p.VerifiedAt = &verifiedAt.Time
	}
	return &p, nil
}

const paymentCols = `id, reference, transaction_id, member_id,
	amount_minor, plan_code, duration_days, trainer_addon,
	status, verification_status, raw_payload,
	initiated_at, completed_at, verified_at`

// Create records a new pending payment attempt. The amount, plan, and
// duration are snapshots; they are never re-derived after this point.
func (s *PaymentStore) Create(reference string, memberID, amountMinor int64, planCode string, durationDays int, trainerAddon bool) (*model.PaymentAttempt, error) {
	addon := 0
	if trainerAddon {
		addon = 1
	}
	result, err := s.db.Exec(
		`INSERT INTO payment_attempts (reference, member_id, amount_minor, plan_code, duration_days, trainer_addon)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		reference, memberID, amountMinor, planCode, durationDays, addon,
	)
	if err != nil {
		return nil, fmt.Errorf("insert payment attempt: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+paymentCols+` FROM payment_attempts WHERE id = ?`, id)
	return scanPayment(row)
}

func (s *PaymentStore) GetByReference(reference string) (*model.PaymentAttempt, error) {
	row := s.db.QueryRow(`SELECT `+paymentCols+` FROM payment_attempts WHERE reference = ?`, reference)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment attempt: %w", err)
	}
	return p, nil
}

func (s *PaymentStore) ListByMember(memberID int64) ([]*model.PaymentAttempt, error) {
	rows, err := s.db.Query(
		`SELECT `+paymentCols+` FROM payment_attempts WHERE member_id = ? ORDER BY initiated_at DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.PaymentAttempt
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment attempt: %w", err)
		}
		attempts = append(attempts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment attempts: %w", err)
	}
	return attempts, nil
}

// Complete transitions a reference to completed/verified. The status guard
// makes this a compare-and-set: exactly one of any concurrent callers gets
// true, everyone else sees the attempt already completed.
func (s *PaymentStore) Complete(reference string, transactionID *string, rawPayload string, now time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE payment_attempts SET
			status = 'completed',
			verification_status = 'verified',
			transaction_id = COALESCE(?, transaction_id),
			raw_payload = ?,
			completed_at = ?,
			verified_at = ?
		 WHERE reference = ? AND status <> 'completed'`,
		transactionID, rawPayload, now, now, reference,
	)
	if err != nil {
		return false, fmt.Errorf("complete payment attempt: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkFailed records a terminal verification failure. Completed attempts are
// never demoted.
func (s *PaymentStore) MarkFailed(reference, rawPayload string) error {
	_, err := s.db.Exec(
		`UPDATE payment_attempts SET
			status = 'failed',
			verification_status = 'failed',
			raw_payload = ?
		 WHERE reference = ? AND status <> 'completed'`,
		rawPayload, reference,
	)
	if err != nil {
		return fmt.Errorf("mark payment attempt failed: %w", err)
	}
	return nil
}
