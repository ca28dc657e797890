// Package usage tracks consumed recording minutes against a monthly quota.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voxnote/backend/internal/models"
)

// ErrQuotaExceeded is returned when a recording would exceed the monthly limit.
var ErrQuotaExceeded = errors.New("monthly recording quota exceeded")

// Account is the raw per-user usage state.
type Account struct {
	PlanMinutes  int
	BonusMinutes int
	MinutesUsed  int
	Period       string
}

// Store persists usage state.
type Store interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	// AddMinutes adds minutes to the counter for period, resetting it first when
	// the stored period differs.
	AddMinutes(ctx context.Context, userID uuid.UUID, minutes int, period string) error
}

// Service implements quota checks and charging.
type Service struct {
	store Store
	now   func() time.Time
	loc   *time.Location
}

// NewService creates a usage service. Periods roll over at month boundaries in loc.
func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, now: time.Now, loc: loc}
}

// MinutesFor converts client-reported seconds into billable minutes (ceil).
func MinutesFor(durationSeconds int) int {
	if durationSeconds <= 0 {
		return 0
	}
	return (durationSeconds + 59) / 60
}

// Period returns the usage period key (YYYY-MM) for t.
func Period(t time.Time) string { return t.Format("2006-01") }

// Quota returns used and limit minutes for the current period.
func (s *Service) Quota(ctx context.Context, userID uuid.UUID) (models.Quota, error) {
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return models.Quota{}, fmt.Errorf("get usage: %w", err)
	}
	period := Period(s.now().In(s.loc))
	used := acct.MinutesUsed
	if acct.Period != period {
		used = 0
	}
	return models.Quota{
		UsedMinutes:  used,
		LimitMinutes: acct.PlanMinutes + acct.BonusMinutes,
		Period:       period,
	}, nil
}

// Check returns the minutes a recording of durationSeconds would cost, or
// ErrQuotaExceeded. The check and the later Charge are not atomic: concurrent
// admissions for one user can both pass.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, durationSeconds int) (int, error) {
	q, err := s.Quota(ctx, userID)
	if err != nil {
		return 0, err
	}
	minutes := MinutesFor(durationSeconds)
	if q.UsedMinutes+minutes > q.LimitMinutes {
		return minutes, ErrQuotaExceeded
	}
	return minutes, nil
}

// Charge adds minutes to the current period.
func (s *Service) Charge(ctx context.Context, userID uuid.UUID, minutes int) error {
	if minutes <= 0 {
		return nil
	}
	if err := s.store.AddMinutes(ctx, userID, minutes, Period(s.now().In(s.loc))); err != nil {
		return fmt.Errorf("charge usage: %w", err)
	}
	return nil
}
