package reminder

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dayobello/gymgate/internal/database"
	"github.com/dayobello/gymgate/internal/model"
	"github.com/dayobello/gymgate/internal/store"
)

type sentReminder struct {
	toEmail   string
	kind      string
	daysUntil int
}

type fakeNotifier struct {
	sent []sentReminder
	err  error
}

func (f *fakeNotifier) SendPaymentReminder(toEmail, name, kind string, dueDate time.Time, daysUntil int) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentReminder{toEmail: toEmail, kind: kind, daysUntil: daysUntil})
	return nil
}

func setupReminder(t *testing.T, notifier Notifier) (*Engine, *store.MemberStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ms := store.NewMemberStore(db)
	rl := store.NewReminderLogStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(ms, rl, notifier, logger), ms
}

func memberDueIn(t *testing.T, ms *store.MemberStore, email, barcode string, now time.Time, days int) *model.Member {
	t.Helper()
	plan, _ := model.PlanByCode("deluxe")
	m, err := ms.Create(email, "Member", barcode, plan)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	end := now.AddDate(0, 0, days)
	if err := ms.Activate(m.ID, plan, end.AddDate(0, 0, -plan.DurationDays), end); err != nil {
		t.Fatalf("activate member: %v", err)
	}
	return m
}

func TestDaysUntilRoundsUp(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		due  time.Time
		want int
	}{
		{now.AddDate(0, 0, 7), 7},
		{now.Add(6*24*time.Hour + 12*time.Hour), 7}, // 6.5 days rounds up
		{now.Add(12 * time.Hour), 1},
		{now, 0},
		{now.Add(-12 * time.Hour), 0}, // overdue by half a day still counts as today
		{now.Add(-36 * time.Hour), -1},
		{now.AddDate(0, 0, -7), -7},
	}
	for _, c := range cases {
		if got := DaysUntil(now, c.due); got != c.want {
			t.Errorf("DaysUntil(due=%v) = %d, want %d", c.due, got, c.want)
		}
	}
}

func TestInWindow(t *testing.T) {
	want := map[int]bool{
		8: false, 7: true, 6: false, 4: false, 3: true, 2: false,
		1: true, 0: true,
		-1: true, -3: true, -7: true, -8: false,
	}
	for days, expect := range want {
		if got := inWindow(days); got != expect {
			t.Errorf("inWindow(%d) = %v, want %v", days, got, expect)
		}
	}
}

func TestKindFor(t *testing.T) {
	cases := map[int]Kind{
		7:  KindAdvance,
		3:  KindUrgent,
		1:  KindUrgent,
		0:  KindDueToday,
		-1: KindOverdue,
		-7: KindOverdue,
	}
	for days, want := range cases {
		if got := KindFor(days); got != want {
			t.Errorf("KindFor(%d) = %q, want %q", days, got, want)
		}
	}
}

func TestRunSendsBucketsOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	engine, ms := setupReminder(t, notifier)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	memberDueIn(t, ms, "week@example.com", "100000000001", now, 7)
	memberDueIn(t, ms, "soon@example.com", "100000000002", now, 1)
	// Out of every bucket; never touched.
	memberDueIn(t, ms, "far@example.com", "100000000003", now, 20)

	summary, err := engine.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Sent != 2 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("summary = %+v, want 2 sent", summary)
	}
	if len(notifier.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(notifier.sent))
	}

	// The same day's second run skips everything already dispatched.
	summary, err = engine.Run()
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Sent != 0 || summary.Skipped != 2 {
		t.Errorf("second summary = %+v, want 2 skipped", summary)
	}
	if len(notifier.sent) != 2 {
		t.Errorf("duplicate sends: %d", len(notifier.sent))
	}
}

func TestRunDemotesOverdueMember(t *testing.T) {
	notifier := &fakeNotifier{}
	engine, ms := setupReminder(t, notifier)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	// Due two days ago but the lifecycle sweep has not caught it yet.
	m := memberDueIn(t, ms, "late@example.com", "100000000001", now, -2)

	summary, err := engine.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Sent != 1 {
		t.Fatalf("summary = %+v, want 1 sent", summary)
	}
	if notifier.sent[0].kind != string(KindOverdue) {
		t.Errorf("kind = %q, want Overdue", notifier.sent[0].kind)
	}

	got, _ := ms.GetByID(m.ID)
	if got.AccountStatus != model.AccountExpired || got.PaymentStatus != model.PaymentOverdue {
		t.Errorf("member not demoted: %q/%q", got.AccountStatus, got.PaymentStatus)
	}
}

func TestRunSendFailureDoesNotStopSweep(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("postmark down")}
	engine, ms := setupReminder(t, notifier)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	memberDueIn(t, ms, "a@example.com", "100000000001", now, 3)
	memberDueIn(t, ms, "b@example.com", "100000000002", now, 1)

	summary, err := engine.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Failed != 2 || summary.Sent != 0 {
		t.Fatalf("summary = %+v, want 2 failed", summary)
	}

	// Failures are not recorded; the next sweep retries them.
	notifier.err = nil
	summary, err = engine.Run()
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if summary.Sent != 2 {
		t.Errorf("retry summary = %+v, want 2 sent", summary)
	}
}

func TestPreviewIsReadOnly(t *testing.T) {
	notifier := &fakeNotifier{}
	engine, ms := setupReminder(t, notifier)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	memberDueIn(t, ms, "soon@example.com", "100000000001", now, 3)
	memberDueIn(t, ms, "far@example.com", "100000000002", now, 20)

	previews, err := engine.Preview()
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(previews) != 1 {
		t.Fatalf("previews = %d, want 1", len(previews))
	}
	if previews[0].Kind != KindUrgent || previews[0].DaysUntilDue != 3 {
		t.Errorf("preview = %+v", previews[0])
	}
	if len(notifier.sent) != 0 {
		t.Error("preview must not send")
	}

	// A later sweep still sends; preview recorded nothing.
	summary, err := engine.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Sent != 1 {
		t.Errorf("summary = %+v, want 1 sent", summary)
	}
}

func TestSendSingleBypassesBuckets(t *testing.T) {
	notifier := &fakeNotifier{}
	engine, ms := setupReminder(t, notifier)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	// 20 days out is in no bucket; the manual send still goes out.
	m := memberDueIn(t, ms, "far@example.com", "100000000001", now, 20)

	if err := engine.SendSingle(m.ID); err != nil {
		t.Fatalf("send single: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(notifier.sent))
	}
	if notifier.sent[0].daysUntil != 20 || notifier.sent[0].kind != string(KindAdvance) {
		t.Errorf("sent = %+v", notifier.sent[0])
	}
}

func TestSendSingleNoDueDate(t *testing.T) {
	notifier := &fakeNotifier{}
	engine, ms := setupReminder(t, notifier)

	plan, _ := model.PlanByCode("weekly")
	m, err := ms.Create("pending@example.com", "Pending", "100000000001", plan)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	err = engine.SendSingle(m.ID)
	if !errors.Is(err, ErrNoDueDate) {
		t.Fatalf("err = %v, want ErrNoDueDate", err)
	}
}
