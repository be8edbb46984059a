package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dayobello/gymgate/internal/database"
	"github.com/dayobello/gymgate/internal/gateway"
	"github.com/dayobello/gymgate/internal/model"
	"github.com/dayobello/gymgate/internal/store"
)

type fakeVerifier struct {
	calls        int
	verification *gateway.Verification
	err          error
}

func (f *fakeVerifier) Verify(ctx context.Context, reference string) (*gateway.Verification, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.verification, nil
}

func successVerification(amountMinor int64) *gateway.Verification {
	txID := "trx-1"
	return &gateway.Verification{
		Success:       true,
		AmountMinor:   amountMinor,
		Channel:       "card",
		GatewayStatus: "success",
		TransactionID: &txID,
		RawPayload:    `{"status":"success"}`,
	}
}

func setupEngine(t *testing.T, verifier gateway.Verifier) (*Engine, *store.MemberStore, *store.PaymentStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ms := store.NewMemberStore(db)
	ps := store.NewPaymentStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(ms, ps, verifier, nil, nil, logger), ms, ps
}

type receipt struct {
	toEmail     string
	planName    string
	amountMinor int64
}

type fakeReceipts struct {
	sent []receipt
	err  error
}

func (f *fakeReceipts) SendPaymentReceipt(toEmail, name, planName string, amountMinor int64, endDate time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, receipt{toEmail: toEmail, planName: planName, amountMinor: amountMinor})
	return nil
}

func newMember(t *testing.T, ms *store.MemberStore, email string) *model.Member {
	t.Helper()
	plan, _ := model.PlanByCode("deluxe")
	m, err := ms.Create(email, "Test Member", "100000000001", plan)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	return m
}

func TestReconcileActivatesMembership(t *testing.T) {
	fake := &fakeVerifier{verification: successVerification(800_000)}
	engine, ms, _ := setupEngine(t, fake)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	m := newMember(t, ms, "ada@example.com")

	result, err := engine.Reconcile(context.Background(), Params{
		Reference: "GG-abc",
		MemberID:  m.ID,
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Outcome != OutcomeActivated {
		t.Errorf("outcome = %q, want activated", result.Outcome)
	}
	if result.Member.AccountStatus != model.AccountActive {
		t.Errorf("account_status = %q, want active", result.Member.AccountStatus)
	}

	wantEnd := now.AddDate(0, 0, 30)
	if result.Member.MembershipEndDate == nil || !result.Member.MembershipEndDate.Equal(wantEnd) {
		t.Errorf("membership_end_date = %v, want %v", result.Member.MembershipEndDate, wantEnd)
	}
	if result.Member.NextDueDate == nil || !result.Member.NextDueDate.Equal(wantEnd) {
		t.Errorf("next_due_date = %v, want %v", result.Member.NextDueDate, wantEnd)
	}
	if result.Payment.Status != model.AttemptCompleted {
		t.Errorf("attempt status = %q, want completed", result.Payment.Status)
	}
	if result.Payment.TransactionID == nil || *result.Payment.TransactionID != "trx-1" {
		t.Errorf("transaction_id = %v", result.Payment.TransactionID)
	}
}

func TestReconcileRenewalResetsWindow(t *testing.T) {
	fake := &fakeVerifier{verification: successVerification(800_000)}
	engine, ms, _ := setupEngine(t, fake)

	m := newMember(t, ms, "ada@example.com")

	// First cycle.
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return first }
	if _, err := engine.Reconcile(context.Background(), Params{Reference: "GG-1", MemberID: m.ID}); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	// Early renewal ten days in. The window resets; no remaining time carries
	// over.
	second := first.AddDate(0, 0, 10)
	engine.now = func() time.Time { return second }
	fake.verification = successVerification(800_000)
	result, err := engine.Reconcile(context.Background(), Params{Reference: "GG-2", MemberID: m.ID})
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	wantEnd := second.AddDate(0, 0, 30)
	if result.Member.MembershipEndDate == nil || !result.Member.MembershipEndDate.Equal(wantEnd) {
		t.Errorf("membership_end_date = %v, want %v", result.Member.MembershipEndDate, wantEnd)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	fake := &fakeVerifier{verification: successVerification(800_000)}
	engine, ms, _ := setupEngine(t, fake)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	m := newMember(t, ms, "ada@example.com")
	p := Params{Reference: "GG-abc", MemberID: m.ID}

	first, err := engine.Reconcile(context.Background(), p)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if first.Outcome != OutcomeActivated {
		t.Fatalf("first outcome = %q", first.Outcome)
	}

	// Webhook replay, client retry, double-submit: all absorbed.
	for range 3 {
		result, err := engine.Reconcile(context.Background(), p)
		if err != nil {
			t.Fatalf("replay reconcile: %v", err)
		}
		if result.Outcome != OutcomeAlreadyVerified {
			t.Errorf("replay outcome = %q, want already_verified", result.Outcome)
		}
	}

	if fake.calls != 1 {
		t.Errorf("verifier calls = %d, want 1", fake.calls)
	}

	got, _ := ms.GetByID(m.ID)
	wantEnd := now.AddDate(0, 0, 30)
	if got.MembershipEndDate == nil || !got.MembershipEndDate.Equal(wantEnd) {
		t.Errorf("membership_end_date drifted: %v", got.MembershipEndDate)
	}
}

func TestReconcileVerificationUnavailable(t *testing.T) {
	fake := &fakeVerifier{err: gateway.ErrUnavailable}
	engine, ms, ps := setupEngine(t, fake)

	m := newMember(t, ms, "ada@example.com")

	_, err := engine.Reconcile(context.Background(), Params{Reference: "GG-abc", MemberID: m.ID})
	if !errors.Is(err, ErrVerificationUnavailable) {
		t.Fatalf("err = %v, want ErrVerificationUnavailable", err)
	}

	// Nothing mutated: the attempt stays pending and can be retried.
	attempt, _ := ps.GetByReference("GG-abc")
	if attempt.Status != model.AttemptPending {
		t.Errorf("attempt status = %q, want pending", attempt.Status)
	}
	got, _ := ms.GetByID(m.ID)
	if got.AccountStatus != model.AccountPending {
		t.Errorf("member activated on transient failure: %q", got.AccountStatus)
	}

	// The retry succeeds.
	fake.err = nil
	fake.verification = successVerification(800_000)
	result, err := engine.Reconcile(context.Background(), Params{Reference: "GG-abc", MemberID: m.ID})
	if err != nil {
		t.Fatalf("retry reconcile: %v", err)
	}
	if result.Outcome != OutcomeActivated {
		t.Errorf("retry outcome = %q", result.Outcome)
	}
}

func TestReconcilePaymentFailed(t *testing.T) {
	fake := &fakeVerifier{verification: &gateway.Verification{
		Success:       false,
		GatewayStatus: "failed",
		RawPayload:    `{"status":"failed"}`,
	}}
	engine, ms, ps := setupEngine(t, fake)

	m := newMember(t, ms, "ada@example.com")

	_, err := engine.Reconcile(context.Background(), Params{Reference: "GG-abc", MemberID: m.ID})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrPaymentFailed", err)
	}

	attempt, _ := ps.GetByReference("GG-abc")
	if attempt.Status != model.AttemptFailed {
		t.Errorf("attempt status = %q, want failed", attempt.Status)
	}
	got, _ := ms.GetByID(m.ID)
	if got.AccountStatus != model.AccountPending {
		t.Errorf("member activated on failed payment: %q", got.AccountStatus)
	}
}

func TestReconcileAmountMismatch(t *testing.T) {
	// Gateway confirms a lower amount than the deluxe attempt expects.
	fake := &fakeVerifier{verification: successVerification(50_000)}
	engine, ms, ps := setupEngine(t, fake)

	m := newMember(t, ms, "ada@example.com")

	_, err := engine.Reconcile(context.Background(), Params{Reference: "GG-abc", MemberID: m.ID})
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("err = %v, want ErrAmountMismatch", err)
	}

	attempt, _ := ps.GetByReference("GG-abc")
	if attempt.Status != model.AttemptFailed {
		t.Errorf("attempt status = %q, want failed", attempt.Status)
	}
	got, _ := ms.GetByID(m.ID)
	if got.AccountStatus != model.AccountPending {
		t.Errorf("member activated despite mismatch: %q", got.AccountStatus)
	}
}

func TestReconcileFromWebhookUsesSnapshot(t *testing.T) {
	fake := &fakeVerifier{verification: successVerification(900_000)}
	engine, ms, _ := setupEngine(t, fake)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	m := newMember(t, ms, "ada@example.com")

	// Initialize created the pending attempt with a trainer addon snapshot.
	if _, err := engine.CreatePending(Params{
		Reference:    "GG-abc",
		MemberID:     m.ID,
		AmountMinor:  900_000,
		PlanCode:     "deluxe",
		DurationDays: 30,
		TrainerAddon: true,
	}); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	// The webhook carries only the reference.
	result, err := engine.Reconcile(context.Background(), Params{Reference: "GG-abc"})
	if err != nil {
		t.Fatalf("webhook reconcile: %v", err)
	}
	if result.Outcome != OutcomeActivated {
		t.Errorf("outcome = %q", result.Outcome)
	}
	if result.Payment.AmountMinor != 900_000 || !result.Payment.TrainerAddon {
		t.Errorf("snapshot lost: %+v", result.Payment)
	}
}

func TestReconcileUnknownReferenceWithoutMember(t *testing.T) {
	fake := &fakeVerifier{verification: successVerification(800_000)}
	engine, _, _ := setupEngine(t, fake)

	_, err := engine.Reconcile(context.Background(), Params{Reference: "GG-orphan"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if fake.calls != 0 {
		t.Errorf("verifier called %d times for an orphan reference", fake.calls)
	}
}

func TestRecordCashPayment(t *testing.T) {
	fake := &fakeVerifier{verification: successVerification(800_000)}
	engine, ms, _ := setupEngine(t, fake)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	m := newMember(t, ms, "ada@example.com")

	result, err := engine.RecordCashPayment(context.Background(), Params{MemberID: m.ID, PlanCode: "weekly"})
	if err != nil {
		t.Fatalf("record cash payment: %v", err)
	}
	if result.Outcome != OutcomeActivated {
		t.Errorf("outcome = %q", result.Outcome)
	}
	// Cash skips gateway verification entirely.
	if fake.calls != 0 {
		t.Errorf("verifier calls = %d, want 0", fake.calls)
	}

	wantEnd := now.AddDate(0, 0, 7)
	if result.Member.MembershipEndDate == nil || !result.Member.MembershipEndDate.Equal(wantEnd) {
		t.Errorf("membership_end_date = %v, want %v", result.Member.MembershipEndDate, wantEnd)
	}
	if result.Payment.AmountMinor != 250_000 {
		t.Errorf("amount_minor = %d, want weekly price", result.Payment.AmountMinor)
	}
}

func TestReconcileSendsReceiptOnce(t *testing.T) {
	fake := &fakeVerifier{verification: successVerification(800_000)}
	engine, ms, _ := setupEngine(t, fake)
	receipts := &fakeReceipts{}
	engine.receipts = receipts

	m := newMember(t, ms, "ada@example.com")
	p := Params{Reference: "GG-abc", MemberID: m.ID}

	if _, err := engine.Reconcile(context.Background(), p); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(receipts.sent) != 1 {
		t.Fatalf("receipts = %d, want 1", len(receipts.sent))
	}
	if receipts.sent[0].toEmail != "ada@example.com" || receipts.sent[0].amountMinor != 800_000 {
		t.Errorf("receipt = %+v", receipts.sent[0])
	}
	if receipts.sent[0].planName != "Deluxe" {
		t.Errorf("plan name = %q, want Deluxe", receipts.sent[0].planName)
	}

	// Replays activate nothing, so they send nothing.
	if _, err := engine.Reconcile(context.Background(), p); err != nil {
		t.Fatalf("replay reconcile: %v", err)
	}
	if len(receipts.sent) != 1 {
		t.Errorf("receipts = %d after replay, want 1", len(receipts.sent))
	}
}

func TestReconcileReceiptFailureDoesNotFailActivation(t *testing.T) {
	fake := &fakeVerifier{verification: successVerification(800_000)}
	engine, ms, _ := setupEngine(t, fake)
	engine.receipts = &fakeReceipts{err: errors.New("postmark down")}

	m := newMember(t, ms, "ada@example.com")

	result, err := engine.Reconcile(context.Background(), Params{Reference: "GG-abc", MemberID: m.ID})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Outcome != OutcomeActivated {
		t.Errorf("outcome = %q, want activated", result.Outcome)
	}
	if result.Member.AccountStatus != model.AccountActive {
		t.Errorf("account_status = %q, want active", result.Member.AccountStatus)
	}
}

func TestReconcileAssignsBarcodeWhenMissing(t *testing.T) {
	fake := &fakeVerifier{verification: successVerification(800_000)}
	engine, ms, _ := setupEngine(t, fake)

	// Admin accounts are created without a barcode; a paying member must end
	// up with one.
	admin, err := ms.CreateAdmin("boss@example.com", "Boss", "hash")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	result, err := engine.Reconcile(context.Background(), Params{
		Reference: "GG-abc",
		MemberID:  admin.ID,
		PlanCode:  "deluxe",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Member.Barcode == "" {
		t.Error("expected a barcode to be assigned on activation")
	}
	if len(result.Member.Barcode) != 12 {
		t.Errorf("barcode = %q, want 12 digits", result.Member.Barcode)
	}
}
