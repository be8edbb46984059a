package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dayobello/gymgate/internal/database"
	"github.com/dayobello/gymgate/internal/model"
)

func setupPaymentDB(t *testing.T) (*sql.DB, *MemberStore, *PaymentStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, NewMemberStore(db), NewPaymentStore(db)
}

func TestPaymentCreateAndGet(t *testing.T) {
	_, ms, ps := setupPaymentDB(t)

	m, _ := ms.Create("ada@example.com", "Ada", "100000000001", mustPlan(t, "deluxe"))

	attempt, err := ps.Create("GG-abc", m.ID, 800_000, "deluxe", 30, false)
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if attempt.Status != model.AttemptPending {
		t.Errorf("status = %q, want pending", attempt.Status)
	}
	if attempt.AmountMinor != 800_000 {
		t.Errorf("amount_minor = %d, want 800000", attempt.AmountMinor)
	}

	got, err := ps.GetByReference("GG-abc")
	if err != nil {
		t.Fatalf("get by reference: %v", err)
	}
	if got == nil || got.MemberID != m.ID || got.DurationDays != 30 {
		t.Fatalf("unexpected attempt: %+v", got)
	}

	missing, err := ps.GetByReference("GG-nope")
	if err != nil {
		t.Fatalf("get missing reference: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown reference")
	}
}

func TestPaymentDuplicateReference(t *testing.T) {
	_, ms, ps := setupPaymentDB(t)

	m, _ := ms.Create("ada@example.com", "Ada", "100000000001", mustPlan(t, "weekly"))

	if _, err := ps.Create("GG-abc", m.ID, 250_000, "weekly", 7, false); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if _, err := ps.Create("GG-abc", m.ID, 250_000, "weekly", 7, false); err == nil {
		t.Error("expected error for duplicate reference")
	}
}

func TestPaymentCompleteWinsOnce(t *testing.T) {
	_, ms, ps := setupPaymentDB(t)

	m, _ := ms.Create("ada@example.com", "Ada", "100000000001", mustPlan(t, "weekly"))
	ps.Create("GG-abc", m.ID, 250_000, "weekly", 7, false)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	txID := "trx-1"

	won, err := ps.Complete("GG-abc", &txID, `{"status":"success"}`, now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !won {
		t.Fatal("first completion should win")
	}

	// Retries and webhook replays lose the CAS.
	won, err = ps.Complete("GG-abc", &txID, `{"status":"success"}`, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("replay complete: %v", err)
	}
	if won {
		t.Error("second completion should lose")
	}

	got, _ := ps.GetByReference("GG-abc")
	if got.Status != model.AttemptCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Errorf("completed_at = %v, want first completion time", got.CompletedAt)
	}
	if got.TransactionID == nil || *got.TransactionID != "trx-1" {
		t.Errorf("transaction_id = %v", got.TransactionID)
	}
}

func TestPaymentMarkFailedNeverDemotesCompleted(t *testing.T) {
	_, ms, ps := setupPaymentDB(t)

	m, _ := ms.Create("ada@example.com", "Ada", "100000000001", mustPlan(t, "weekly"))
	ps.Create("GG-abc", m.ID, 250_000, "weekly", 7, false)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if _, err := ps.Complete("GG-abc", nil, "{}", now); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := ps.MarkFailed("GG-abc", `{"status":"failed"}`); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, _ := ps.GetByReference("GG-abc")
	if got.Status != model.AttemptCompleted {
		t.Errorf("completed attempt demoted to %q", got.Status)
	}
}

func TestPaymentListByMember(t *testing.T) {
	_, ms, ps := setupPaymentDB(t)

	m, _ := ms.Create("ada@example.com", "Ada", "100000000001", mustPlan(t, "weekly"))
	other, _ := ms.Create("ben@example.com", "Ben", "100000000002", mustPlan(t, "weekly"))

	ps.Create("GG-a", m.ID, 250_000, "weekly", 7, false)
	ps.Create("GG-b", m.ID, 250_000, "weekly", 7, false)
	ps.Create("GG-c", other.ID, 250_000, "weekly", 7, false)

	attempts, err := ps.ListByMember(m.ID)
	if err != nil {
		t.Fatalf("list by member: %v", err)
	}
	if len(attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(attempts))
	}
}
