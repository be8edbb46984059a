// Package attendance handles barcode check-in and check-out, enforcing at
// most one open session per member per calendar day.
package attendance

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dayobello/gymgate/internal/model"
	"github.com/dayobello/gymgate/internal/store"
	"github.com/dayobello/gymgate/internal/websocket"
)

var (
	// ErrMemberNotFound means no member matched the barcode or id.
	ErrMemberNotFound = errors.New("member not found")

	// ErrAlreadyCheckedIn means the member already has an open session today.
	ErrAlreadyCheckedIn = errors.New("already checked in")

	// ErrNoOpenSession means there is nothing to check out of today.
	ErrNoOpenSession = errors.New("no open attendance session")
)

// NotActiveError rejects a check-in for a member whose membership is not
// active. It carries the current status so the caller can tell the member
// why ("membership is expired, please renew").
type NotActiveError struct {
	Status model.AccountStatus
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("membership is not active: status is %s", e.Status)
}

// Result is the outcome of a check-in or check-out.
type Result struct {
	Member *model.Member           `json:"member"`
	Record *model.AttendanceRecord `json:"record"`
}

// Engine toggles attendance state for members.
type Engine struct {
	members *store.MemberStore
	records *store.AttendanceStore
	hub     *websocket.Hub
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an attendance engine. Days are computed in loc, the
// gym's configured timezone. hub may be nil.
func NewEngine(members *store.MemberStore, records *store.AttendanceStore, hub *websocket.Hub, loc *time.Location, logger *slog.Logger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		members: members,
		records: records,
		hub:     hub,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

func (e *Engine) dayKey(t time.Time) string {
	return t.In(e.loc).Format("2006-01-02")
}

// CheckIn opens a session for the member with the given barcode. The member
// must be active; a second check-in without a check-out is rejected.
func (e *Engine) CheckIn(barcode string) (*Result, error) {
	if barcode == "" {
		return nil, fmt.Errorf("%w: barcode is required", ErrMemberNotFound)
	}

	member, err := e.members.GetByBarcode(barcode)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("%w: barcode %s", ErrMemberNotFound, barcode)
	}

	if member.AccountStatus != model.AccountActive {
		return nil, &NotActiveError{Status: member.AccountStatus}
	}

	now := e.now()
	today := e.dayKey(now)

	open, err := e.records.OpenForDay(member.ID, today)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, ErrAlreadyCheckedIn
	}

	record, err := e.records.CheckIn(member.ID, today, now)
	if err != nil {
		if errors.Is(err, store.ErrOpenSession) {
			// Lost a race with a concurrent check-in for the same member.
			return nil, ErrAlreadyCheckedIn
		}
		return nil, err
	}

	if err := e.members.RecordVisit(member.ID, now); err != nil {
		// The open session exists; the counter catches up on the next write.
		e.logger.Error("record visit", "member_id", member.ID, "error", err)
	}

	member, err = e.members.GetByID(member.ID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("member checked in", "member_id", member.ID, "date", today)
	if e.hub != nil {
		e.hub.Broadcast(websocket.Message{
			Event:    "member_checked_in",
			MemberID: member.ID,
			Extra:    map[string]any{"name": member.Name},
		})
	}

	return &Result{Member: member, Record: record}, nil
}

// CheckOut closes the member's open session for today.
func (e *Engine) CheckOut(memberID int64) (*Result, error) {
	member, err := e.members.GetByID(memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("%w: id %d", ErrMemberNotFound, memberID)
	}

	now := e.now()
	today := e.dayKey(now)

	closed, err := e.records.CloseOpen(memberID, today, now)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, ErrNoOpenSession
	}

	e.logger.Info("member checked out", "member_id", memberID, "date", today)
	if e.hub != nil {
		e.hub.Broadcast(websocket.Message{
			Event:    "member_checked_out",
			MemberID: memberID,
			Extra:    map[string]any{"name": member.Name},
		})
	}

	return &Result{Member: member}, nil
}
