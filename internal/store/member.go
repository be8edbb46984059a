package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dayobello/gymgate/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var barcode sql.NullString
	var isAdmin, isActive int
	var start, end, due, lastPayment, lastCheckIn sql.NullTime
	err := scanner.Scan(
		&m.ID, &m.Email, &m.Name, &barcode, &isAdmin, &isActive,
		&m.PlanCode, &m.PlanPriceMinor, &m.PlanDurationDays,
		&m.AccountStatus, &m.PaymentStatus,
		&start, &end, &due, &lastPayment, &lastCheckIn,
		&m.TotalVisits, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if barcode.Valid {
		m.Barcode = barcode.String
	}
	m.IsAdmin = isAdmin != 0
	m.IsActive = isActive != 0
	if start.Valid {
		m.MembershipStartDate = &start.Time
	}
	if end.Valid {
		m.MembershipEndDate = &end.Time
	}
	if due.Valid {
		m.NextDueDate = &due.Time
	}
	if lastPayment.Valid {
		m.LastPaymentDate = &lastPayment.Time
	}
	if lastCheckIn.Valid {
		m.LastCheckIn = &lastCheckIn.Time
	}
	return &m, nil
}

const memberCols = `id, email, name, barcode, is_admin, is_active,
	plan_code, plan_price_minor, plan_duration_days,
	account_status, payment_status,
	membership_start_date, membership_end_date, next_due_date, last_payment_date, last_check_in,
	total_visits, created_at, updated_at`

// Create registers a new member in pending state with a plan snapshot and barcode.
func (s *MemberStore) Create(email, name, barcode string, plan model.Plan) (*model.Member, error) {
	result, err := s.db.Exec(
		`INSERT INTO members (email, name, barcode, plan_code, plan_price_minor, plan_duration_days)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		email, name, barcode, plan.Code, plan.PriceMinor, plan.DurationDays,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// CreateAdmin registers an admin account. Admins have no membership lifecycle.
func (s *MemberStore) CreateAdmin(email, name, passwordHash string) (*model.Member, error) {
	result, err := s.db.Exec(
		`INSERT INTO members (email, name, is_admin, password_hash, plan_code, plan_price_minor, plan_duration_days)
		 VALUES (?, ?, 1, ?, 'walk-in', 0, 1)`,
		email, name, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert admin: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MemberStore) GetByID(id int64) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) GetByEmail(email string) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE email = ?`, email)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member by email: %w", err)
	}
	return m, nil
}

func (s *MemberStore) GetByBarcode(barcode string) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE barcode = ?`, barcode)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member by barcode: %w", err)
	}
	return m, nil
}

// PasswordHash returns the stored password hash for an admin email, or empty
// if the account does not exist or has no password.
func (s *MemberStore) PasswordHash(email string) (int64, string, error) {
	var id int64
	var hash sql.NullString
	err := s.db.QueryRow(`SELECT id, password_hash FROM members WHERE email = ? AND is_admin = 1`, email).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("get password hash: %w", err)
	}
	return id, hash.String, nil
}

func (s *MemberStore) List() ([]*model.Member, error) {
	rows, err := s.db.Query(`SELECT ` + memberCols + ` FROM members ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	return collectMembers(rows)
}

func (s *MemberStore) ListByStatus(status model.AccountStatus) ([]*model.Member, error) {
	rows, err := s.db.Query(
		`SELECT `+memberCols+` FROM members WHERE account_status = ? ORDER BY created_at DESC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("list members by status: %w", err)
	}
	defer rows.Close()
	return collectMembers(rows)
}

// ListReminderCandidates returns non-admin members in active or expired state
// that have a next due date set.
func (s *MemberStore) ListReminderCandidates() ([]*model.Member, error) {
	rows, err := s.db.Query(
		`SELECT ` + memberCols + ` FROM members
		 WHERE is_admin = 0
		   AND account_status IN ('active', 'expired')
		   AND next_due_date IS NOT NULL
		 ORDER BY next_due_date`,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}
	defer rows.Close()
	return collectMembers(rows)
}

func collectMembers(rows *sql.Rows) ([]*model.Member, error) {
	var members []*model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// Activate applies a successful payment to the member: membership restarts at
// start, runs until end, and the paid plan becomes the member's plan.
func (s *MemberStore) Activate(id int64, plan model.Plan, start, end time.Time) error {
	_, err := s.db.Exec(
		`UPDATE members SET
			account_status = 'active',
			payment_status = 'active',
			is_active = 1,
			plan_code = ?,
			plan_price_minor = ?,
			plan_duration_days = ?,
			membership_start_date = ?,
			membership_end_date = ?,
			next_due_date = ?,
			last_payment_date = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		plan.Code, plan.PriceMinor, plan.DurationDays, start, end, end, start, id,
	)
	if err != nil {
		return fmt.Errorf("activate member: %w", err)
	}
	return nil
}

// SetBarcode assigns a barcode only if the member has none. Barcodes are
// immutable once assigned.
func (s *MemberStore) SetBarcode(id int64, barcode string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE members SET barcode = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND barcode IS NULL`,
		barcode, id,
	)
	if err != nil {
		return false, fmt.Errorf("set barcode: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ExpireLapsed demotes active members whose membership end date has passed.
// Returns the number of members transitioned.
func (s *MemberStore) ExpireLapsed(now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE members SET
			account_status = 'expired',
			payment_status = 'overdue',
			is_active = 0,
			updated_at = CURRENT_TIMESTAMP
		 WHERE account_status = 'active' AND membership_end_date < ?`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed members: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ReactivateCurrent promotes expired members whose end date is now in the
// future again, e.g. after a late-processed renewal or a manual date edit.
func (s *MemberStore) ReactivateCurrent(now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE members SET
			account_status = 'active',
			payment_status = 'active',
			is_active = 1,
			updated_at = CURRENT_TIMESTAMP
		 WHERE account_status = 'expired' AND membership_end_date >= ?`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("reactivate members: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// MarkOverdue demotes a single still-active member to expired/overdue. A no-op
// if the member is not active, so redundant calls are safe.
func (s *MemberStore) MarkOverdue(id int64) error {
	_, err := s.db.Exec(
		`UPDATE members SET
			account_status = 'expired',
			payment_status = 'overdue',
			is_active = 0,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND account_status = 'active'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark member overdue: %w", err)
	}
	return nil
}

// RecordVisit increments the visit counter and stamps the last check-in time.
func (s *MemberStore) RecordVisit(id int64, checkIn time.Time) error {
	_, err := s.db.Exec(
		`UPDATE members SET
			total_visits = total_visits + 1,
			last_check_in = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		checkIn, id,
	)
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}
