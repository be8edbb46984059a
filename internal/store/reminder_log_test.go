package store

import (
	"testing"

	"github.com/dayobello/gymgate/internal/database"
)

func TestReminderLogDedup(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ms := NewMemberStore(db)
	rl := NewReminderLogStore(db)

	m, _ := ms.Create("ada@example.com", "Ada", "100000000001", mustPlan(t, "weekly"))

	sent, err := rl.WasSent(m.ID, 3, "2026-03-17")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Fatal("nothing recorded yet")
	}

	if err := rl.RecordSent(m.ID, 3, "2026-03-17"); err != nil {
		t.Fatalf("record sent: %v", err)
	}
	// Recording the same bucket twice is a no-op.
	if err := rl.RecordSent(m.ID, 3, "2026-03-17"); err != nil {
		t.Fatalf("record sent again: %v", err)
	}

	sent, err = rl.WasSent(m.ID, 3, "2026-03-17")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if !sent {
		t.Error("expected bucket to be recorded")
	}

	// A different bucket for the same due date is distinct.
	sent, _ = rl.WasSent(m.ID, 1, "2026-03-17")
	if sent {
		t.Error("bucket 1 should not be recorded")
	}

	// A new billing cycle resets dedup.
	sent, _ = rl.WasSent(m.ID, 3, "2026-03-24")
	if sent {
		t.Error("new due date should not be recorded")
	}
}
