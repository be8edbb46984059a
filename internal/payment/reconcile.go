// Package payment reconciles gateway payment outcomes with membership state.
// A reference is confirmed and applied exactly once no matter how many times
// the webhook, the client-side verify call, or a retry delivers it.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dayobello/gymgate/internal/gateway"
	"github.com/dayobello/gymgate/internal/model"
	"github.com/dayobello/gymgate/internal/store"
	"github.com/dayobello/gymgate/internal/websocket"
)

var (
	// ErrInvalidInput covers missing references, unknown plans, and other
	// caller mistakes. Nothing was mutated.
	ErrInvalidInput = errors.New("invalid payment input")

	// ErrMemberNotFound means the attempt could not be linked to a member.
	ErrMemberNotFound = errors.New("member not found")

	// ErrVerificationUnavailable means the gateway could not be reached.
	// Nothing was mutated; the caller may retry.
	ErrVerificationUnavailable = errors.New("payment verification unavailable")

	// ErrPaymentFailed means the gateway reported a non-success outcome.
	// Terminal for this reference.
	ErrPaymentFailed = errors.New("payment failed")

	// ErrAmountMismatch means the gateway-reported amount differs from the
	// expected amount. Terminal for this reference; the membership is not
	// activated.
	ErrAmountMismatch = errors.New("payment amount mismatch")
)

// Outcome distinguishes a fresh activation from a duplicate confirmation.
type Outcome string

const (
	OutcomeActivated       Outcome = "activated"
	OutcomeAlreadyVerified Outcome = "already_verified"
)

// Result reports a successful reconciliation.
type Result struct {
	Outcome Outcome               `json:"outcome"`
	Member  *model.Member         `json:"member"`
	Payment *model.PaymentAttempt `json:"payment"`
}

// Params identifies the payment being reconciled and what the caller expects
// it to be worth. MemberID, AmountMinor, PlanCode, and DurationDays are
// optional when a pending attempt already exists for the reference; the
// attempt's snapshot wins in that case.
type Params struct {
	Reference    string
	MemberID     int64
	AmountMinor  int64
	PlanCode     string
	DurationDays int
	TrainerAddon bool
}

// ReceiptSender delivers a payment receipt to the member. The Postmark
// client implements it.
type ReceiptSender interface {
	SendPaymentReceipt(toEmail, name, planName string, amountMinor int64, endDate time.Time) error
}

// Engine applies payment outcomes to the ledger and membership records.
type Engine struct {
	members  *store.MemberStore
	payments *store.PaymentStore
	verifier gateway.Verifier
	hub      *websocket.Hub
	receipts ReceiptSender
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a reconciliation engine. hub and receipts may be nil.
func NewEngine(members *store.MemberStore, payments *store.PaymentStore, verifier gateway.Verifier, hub *websocket.Hub, receipts ReceiptSender, logger *slog.Logger) *Engine {
	return &Engine{
		members:  members,
		payments: payments,
		verifier: verifier,
		hub:      hub,
		receipts: receipts,
		logger:   logger,
		now:      time.Now,
	}
}

// NewReference generates a gateway reference for a new payment attempt.
func NewReference() string {
	return "GG-" + uuid.NewString()
}

// Reconcile confirms a gateway payment and applies its membership effects.
//
// The idempotence guard runs first: a reference already completed and
// verified returns success without side effects, which absorbs duplicate
// webhook deliveries, duplicate client confirmations, and double-submits.
// A transient gateway failure mutates nothing. A definitive non-success or
// an amount mismatch persists the attempt as failed and leaves the member
// untouched.
func (e *Engine) Reconcile(ctx context.Context, p Params) (*Result, error) {
	if p.Reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}

	attempt, err := e.payments.GetByReference(p.Reference)
	if err != nil {
		return nil, err
	}

	if attempt != nil && attempt.Status == model.AttemptCompleted && attempt.VerificationStatus == model.VerificationVerified {
		member, err := e.members.GetByID(attempt.MemberID)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeAlreadyVerified, Member: member, Payment: attempt}, nil
	}

	if attempt == nil {
		attempt, err = e.createAttempt(p)
		if err != nil {
			return nil, err
		}
	}

	v, err := e.verifier.Verify(ctx, p.Reference)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		}
		return nil, err
	}

	if !v.Success {
		if err := e.payments.MarkFailed(p.Reference, v.RawPayload); err != nil {
			return nil, err
		}
		e.logger.Warn("payment verification failed",
			"reference", p.Reference, "member_id", attempt.MemberID, "gateway_status", v.GatewayStatus)
		return nil, fmt.Errorf("%w: gateway status %q", ErrPaymentFailed, v.GatewayStatus)
	}

	// Amount cross-check: the gateway must confirm the amount this attempt
	// was created for, in the same minor unit. This stops a low-value
	// transaction from activating a high-value plan.
	if v.AmountMinor != attempt.AmountMinor {
		if err := e.payments.MarkFailed(p.Reference, v.RawPayload); err != nil {
			return nil, err
		}
		e.logger.Warn("payment amount mismatch",
			"reference", p.Reference, "expected", attempt.AmountMinor, "reported", v.AmountMinor)
		return nil, fmt.Errorf("%w: expected %d, gateway reported %d", ErrAmountMismatch, attempt.AmountMinor, v.AmountMinor)
	}

	return e.complete(p.Reference, attempt, v.TransactionID, v.RawPayload)
}

// CreatePending records a pending attempt ahead of the hosted-gateway flow,
// snapshotting amount, plan, and duration so the webhook can later reconcile
// from the reference alone.
func (e *Engine) CreatePending(p Params) (*model.PaymentAttempt, error) {
	if p.Reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}
	return e.createAttempt(p)
}

// RecordCashPayment records an operator-attested cash payment. No external
// verification runs; the attempt is completed directly and the membership
// activated.
func (e *Engine) RecordCashPayment(ctx context.Context, p Params) (*Result, error) {
	if p.MemberID == 0 {
		return nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	if p.Reference == "" {
		p.Reference = "CASH-" + uuid.NewString()
	}

	attempt, err := e.payments.GetByReference(p.Reference)
	if err != nil {
		return nil, err
	}
	if attempt != nil && attempt.Status == model.AttemptCompleted && attempt.VerificationStatus == model.VerificationVerified {
		member, err := e.members.GetByID(attempt.MemberID)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeAlreadyVerified, Member: member, Payment: attempt}, nil
	}
	if attempt == nil {
		attempt, err = e.createAttempt(p)
		if err != nil {
			return nil, err
		}
	}

	return e.complete(p.Reference, attempt, nil, `{"channel":"cash"}`)
}

func (e *Engine) createAttempt(p Params) (*model.PaymentAttempt, error) {
	if p.MemberID == 0 {
		return nil, fmt.Errorf("%w: no attempt exists for reference %s and no member id was provided", ErrInvalidInput, p.Reference)
	}
	member, err := e.members.GetByID(p.MemberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("%w: id %d", ErrMemberNotFound, p.MemberID)
	}

	planCode := p.PlanCode
	if planCode == "" {
		planCode = member.PlanCode
	}
	plan, ok := model.PlanByCode(planCode)
	if !ok {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, planCode)
	}

	duration := p.DurationDays
	if duration == 0 {
		duration = plan.DurationDays
	}
	amount := p.AmountMinor
	if amount == 0 {
		amount = plan.TotalMinor(p.TrainerAddon)
	}

	return e.payments.Create(p.Reference, member.ID, amount, plan.Code, duration, p.TrainerAddon)
}

// complete transitions the attempt to completed/verified and cascades the
// membership activation. The store-level compare-and-set elects a single
// winner among concurrent callers; losers see the already-verified outcome.
func (e *Engine) complete(reference string, attempt *model.PaymentAttempt, transactionID *string, rawPayload string) (*Result, error) {
	now := e.now()

	won, err := e.payments.Complete(reference, transactionID, rawPayload, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent reconciliation beat us to it.
		updated, err := e.payments.GetByReference(reference)
		if err != nil {
			return nil, err
		}
		member, err := e.members.GetByID(attempt.MemberID)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeAlreadyVerified, Member: member, Payment: updated}, nil
	}

	plan, ok := model.PlanByCode(attempt.PlanCode)
	if !ok {
		plan = model.Plan{Code: attempt.PlanCode, PriceMinor: attempt.AmountMinor, DurationDays: attempt.DurationDays}
	}
	plan.DurationDays = attempt.DurationDays

	// Renewal resets the membership window: it starts now and runs for the
	// paid duration, regardless of any remaining time.
	start := now
	end := start.AddDate(0, 0, attempt.DurationDays)
	if err := e.members.Activate(attempt.MemberID, plan, start, end); err != nil {
		return nil, err
	}

	member, err := e.members.GetByID(attempt.MemberID)
	if err != nil {
		return nil, err
	}
	if member != nil && member.Barcode == "" {
		if err := e.assignBarcode(member); err != nil {
			e.logger.Error("assign barcode after payment", "member_id", member.ID, "error", err)
		} else {
			member, err = e.members.GetByID(attempt.MemberID)
			if err != nil {
				return nil, err
			}
		}
	}

	updated, err := e.payments.GetByReference(reference)
	if err != nil {
		return nil, err
	}

	e.logger.Info("payment reconciled",
		"reference", reference, "member_id", attempt.MemberID,
		"plan", attempt.PlanCode, "amount_minor", attempt.AmountMinor)

	if e.receipts != nil && member != nil {
		planName := plan.Name
		if planName == "" {
			planName = attempt.PlanCode
		}
		// Receipt delivery never blocks or fails the activation.
		if err := e.receipts.SendPaymentReceipt(member.Email, member.Name, planName, attempt.AmountMinor, end); err != nil {
			e.logger.Warn("send payment receipt", "member_id", member.ID, "error", err)
		}
	}

	if e.hub != nil && member != nil {
		e.hub.Broadcast(websocket.Message{
			Event:    "payment_completed",
			MemberID: member.ID,
			Extra: map[string]any{
				"plan":         attempt.PlanCode,
				"amount_minor": attempt.AmountMinor,
			},
		})
	}

	return &Result{Outcome: OutcomeActivated, Member: member, Payment: updated}, nil
}

func (e *Engine) assignBarcode(member *model.Member) error {
	for range 3 {
		barcode, err := model.NewBarcode()
		if err != nil {
			return err
		}
		ok, err := e.members.SetBarcode(member.ID, barcode)
		if err == nil {
			if !ok {
				// Barcode appeared concurrently; nothing to do.
				return nil
			}
			return nil
		}
		// Retry on the off chance of a barcode collision.
	}
	return fmt.Errorf("could not assign a unique barcode to member %d", member.ID)
}
