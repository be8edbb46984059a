// Package reminder selects members whose next due date falls into one of a
// fixed set of day-offset buckets and dispatches deduplicated email notices.
package reminder

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dayobello/gymgate/internal/model"
	"github.com/dayobello/gymgate/internal/store"
)

// ErrNoDueDate means the member has no next due date to remind about.
var ErrNoDueDate = errors.New("member has no due date")

// Kind is the display label for a reminder.
type Kind string

const (
	KindOverdue  Kind = "Overdue"
	KindDueToday Kind = "Due Today"
	KindUrgent   Kind = "Urgent"
	KindAdvance  Kind = "Advance Notice"
)

// Notifier delivers a reminder. The Postmark client implements it.
type Notifier interface {
	SendPaymentReminder(toEmail, name, kind string, dueDate time.Time, daysUntil int) error
}

// Summary reports one reminder sweep.
type Summary struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Preview is one row of the read-only admin preview.
type Preview struct {
	Member       *model.Member `json:"member"`
	DaysUntilDue int           `json:"days_until_due"`
	Kind         Kind          `json:"kind"`
}

// DaysUntil returns the whole days from now until due, rounded up. Due in
// 6.5 days counts as 7; overdue by 6.5 days counts as -6.
func DaysUntil(now, due time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}

// KindFor maps a day offset to its display label.
func KindFor(daysUntil int) Kind {
	switch {
	case daysUntil < 0:
		return KindOverdue
	case daysUntil == 0:
		return KindDueToday
	case daysUntil <= 3:
		return KindUrgent
	default:
		return KindAdvance
	}
}

// inWindow reports whether a reminder is due at this day offset: advance
// notices at 7, 3, and 1 days, a due-today notice, and daily overdue notices
// for the first week past due.
func inWindow(daysUntil int) bool {
	switch daysUntil {
	case 7, 3, 1, 0:
		return true
	}
	return daysUntil < 0 && daysUntil >= -7
}

// Engine runs the reminder sweeps.
type Engine struct {
	members  *store.MemberStore
	log      *store.ReminderLogStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(members *store.MemberStore, log *store.ReminderLogStore, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		members:  members,
		log:      log,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Run selects all candidates currently in a bucket and dispatches reminders.
// A send failure is counted and logged but never stops the sweep; an
// already-dispatched bucket is skipped. Overdue members still marked active
// are demoted here as well, so the reminder sweep and the lifecycle sweep
// are safe to run redundantly in either order.
func (e *Engine) Run() (Summary, error) {
	now := e.now()
	var sum Summary

	candidates, err := e.members.ListReminderCandidates()
	if err != nil {
		return sum, err
	}

	for _, m := range candidates {
		days := DaysUntil(now, *m.NextDueDate)
		if !inWindow(days) {
			continue
		}

		dueKey := m.NextDueDate.Format("2006-01-02")
		sent, err := e.log.WasSent(m.ID, days, dueKey)
		if err != nil {
			e.logger.Error("check reminder log", "member_id", m.ID, "error", err)
			sum.Failed++
			continue
		}
		if sent {
			sum.Skipped++
			continue
		}

		if days < 0 && m.AccountStatus == model.AccountActive {
			if err := e.members.MarkOverdue(m.ID); err != nil {
				e.logger.Error("mark member overdue", "member_id", m.ID, "error", err)
			}
		}

		kind := KindFor(days)
		if err := e.notifier.SendPaymentReminder(m.Email, m.Name, string(kind), *m.NextDueDate, days); err != nil {
			e.logger.Warn("send reminder", "member_id", m.ID, "kind", kind, "error", err)
			sum.Failed++
			continue
		}

		if err := e.log.RecordSent(m.ID, days, dueKey); err != nil {
			e.logger.Error("record reminder sent", "member_id", m.ID, "error", err)
		}
		sum.Sent++
	}

	e.logger.Info("reminder sweep finished",
		"candidates", len(candidates), "sent", sum.Sent, "failed", sum.Failed, "skipped", sum.Skipped)
	return sum, nil
}

// Preview returns the members currently in a bucket, annotated with their
// offset and reminder kind. Read-only; nothing is sent or recorded.
func (e *Engine) Preview() ([]Preview, error) {
	now := e.now()

	candidates, err := e.members.ListReminderCandidates()
	if err != nil {
		return nil, err
	}

	var previews []Preview
	for _, m := range candidates {
		days := DaysUntil(now, *m.NextDueDate)
		if !inWindow(days) {
			continue
		}
		previews = append(previews, Preview{
			Member:       m,
			DaysUntilDue: days,
			Kind:         KindFor(days),
		})
	}
	return previews, nil
}

// SendSingle dispatches a reminder to one member immediately, bypassing the
// bucket check. The send is still recorded so the scheduled sweep will not
// repeat it for the same offset.
func (e *Engine) SendSingle(memberID int64) error {
	m, err := e.members.GetByID(memberID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("member %d not found", memberID)
	}
	if m.NextDueDate == nil {
		return fmt.Errorf("%w: member %d", ErrNoDueDate, memberID)
	}

	now := e.now()
	days := DaysUntil(now, *m.NextDueDate)

	if days < 0 && m.AccountStatus == model.AccountActive {
		if err := e.members.MarkOverdue(m.ID); err != nil {
			e.logger.Error("mark member overdue", "member_id", m.ID, "error", err)
		}
	}

	kind := KindFor(days)
	if err := e.notifier.SendPaymentReminder(m.Email, m.Name, string(kind), *m.NextDueDate, days); err != nil {
		return fmt.Errorf("send reminder to member %d: %w", memberID, err)
	}

	if err := e.log.RecordSent(m.ID, days, m.NextDueDate.Format("2006-01-02")); err != nil {
		e.logger.Error("record reminder sent", "member_id", m.ID, "error", err)
	}
	return nil
}
