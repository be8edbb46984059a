package model

import "time"

// AccountStatus is the membership lifecycle state of a member.
type AccountStatus string

const (
	AccountPending   AccountStatus = "pending"
	AccountActive    AccountStatus = "active"
	AccountExpired   AccountStatus = "expired"
	AccountSuspended AccountStatus = "suspended"
)

// PaymentStatus tracks whether a member is paid up.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentActive  PaymentStatus = "active"
	PaymentOverdue PaymentStatus = "overdue"
)

// AttemptStatus is the state of a single payment attempt.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptCompleted AttemptStatus = "completed"
	AttemptFailed    AttemptStatus = "failed"
	AttemptRefunded  AttemptStatus = "refunded"
)

// VerificationStatus is the gateway-verification state of a payment attempt.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

type Member struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Barcode  string `json:"barcode,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
	IsActive bool   `json:"is_active"`

	PlanCode         string `json:"plan_code"`
	PlanPriceMinor   int64  `json:"plan_price_minor"`
	PlanDurationDays int    `json:"plan_duration_days"`

	AccountStatus AccountStatus `json:"account_status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	MembershipStartDate *time.Time `json:"membership_start_date,omitempty"`
	MembershipEndDate   *time.Time `json:"membership_end_date,omitempty"`
	NextDueDate         *time.Time `json:"next_due_date,omitempty"`
	LastPaymentDate     *time.Time `json:"last_payment_date,omitempty"`

	LastCheckIn *time.Time `json:"last_check_in,omitempty"`
	TotalVisits int64      `json:"total_visits"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentAttempt is one row of the payment ledger, keyed by gateway reference.
// Plan, duration, and amount are snapshots taken when the attempt was created;
// later plan changes never alter a historical reconciliation.
type PaymentAttempt struct {
	ID            int64   `json:"id"`
	Reference     string  `json:"reference"`
	TransactionID *string `json:"transaction_id,omitempty"`
	MemberID      int64   `json:"member_id"`

	AmountMinor  int64  `json:"amount_minor"`
	PlanCode     string `json:"plan_code"`
	DurationDays int    `json:"duration_days"`
	TrainerAddon bool   `json:"trainer_addon"`

	Status             AttemptStatus      `json:"status"`
	VerificationStatus VerificationStatus `json:"verification_status"`

	// RawPayload is the gateway response stored verbatim for audit.
	RawPayload *string `json:"-"`

	InitiatedAt time.Time  `json:"initiated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
}

type AttendanceRecord struct {
	ID           int64      `json:"id"`
	MemberID     int64      `json:"member_id"`
	Date         string     `json:"date"` // YYYY-MM-DD in the gym's timezone
	CheckInTime  time.Time  `json:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	MemberID  int64     `json:"member_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
