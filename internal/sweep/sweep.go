// Package sweep corrects membership status from elapsed time, independently
// of payment events.
package sweep

import (
	"log/slog"
	"time"

	"github.com/dayobello/gymgate/internal/store"
)

// Summary reports the transitions a sweep applied.
type Summary struct {
	Expired     int64 `json:"expired"`
	Reactivated int64 `json:"reactivated"`
}

// Sweeper expires active memberships whose end date has passed and
// reactivates expired members whose end date moved back into the future
// (late-processed renewals, manual date edits). Pending and suspended
// members are never touched. Running it twice with no intervening change
// applies zero additional transitions.
type Sweeper struct {
	members *store.MemberStore
	logger  *slog.Logger
	now     func() time.Time
}

func New(members *store.MemberStore, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		members: members,
		logger:  logger,
		now:     time.Now,
	}
}

// Run performs one full sweep against the current wall clock.
func (s *Sweeper) Run() (Summary, error) {
	now := s.now()

	expired, err := s.members.ExpireLapsed(now)
	if err != nil {
		return Summary{}, err
	}

	reactivated, err := s.members.ReactivateCurrent(now)
	if err != nil {
		return Summary{Expired: expired}, err
	}

	if expired > 0 || reactivated > 0 {
		s.logger.Info("membership sweep applied transitions",
			"expired", expired, "reactivated", reactivated)
	}

	return Summary{Expired: expired, Reactivated: reactivated}, nil
}
