package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	acct    Account
	added   []int
	failAdd error
}

func (m *memStore) GetAccount(_ context.Context, _ uuid.UUID) (*Account, error) {
	a := m.acct
	return &a, nil
}

func (m *memStore) AddMinutes(_ context.Context, _ uuid.UUID, minutes int, period string) error {
	if m.failAdd != nil {
		return m.failAdd
	}
	if m.acct.Period != period {
		m.acct.MinutesUsed = 0
	}
	m.acct.MinutesUsed += minutes
	m.acct.Period = period
	m.added = append(m.added, minutes)
	return nil
}

func newService(store Store, now time.Time) *Service {
	s := NewService(store, time.UTC)
	s.now = func() time.Time { return now }
	return s
}

func TestMinutesFor(t *testing.T) {
	cases := map[int]int{0: 0, -5: 0, 1: 1, 59: 1, 60: 1, 61: 2, 3600: 60, 3601: 61}
	for in, want := range cases {
		require.Equal(t, want, MinutesFor(in), "seconds=%d", in)
	}
}

func TestCheckRejectsOverLimit(t *testing.T) {
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	store := &memStore{acct: Account{PlanMinutes: 60, BonusMinutes: 10, MinutesUsed: 65, Period: "2026-10"}}
	s := newService(store, now)

	minutes, err := s.Check(context.Background(), uuid.New(), 301)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.Equal(t, 6, minutes)
	require.Empty(t, store.added)

	minutes, err = s.Check(context.Background(), uuid.New(), 300)
	require.NoError(t, err)
	require.Equal(t, 5, minutes)
}

func TestQuotaResetsOnNewPeriod(t *testing.T) {
	now := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{acct: Account{PlanMinutes: 60, MinutesUsed: 60, Period: "2026-10"}}
	s := newService(store, now)

	q, err := s.Quota(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, 0, q.UsedMinutes)
	require.Equal(t, 60, q.LimitMinutes)
	require.Equal(t, "2026-11", q.Period)

	require.NoError(t, s.Charge(context.Background(), uuid.New(), 3))
	require.Equal(t, 3, store.acct.MinutesUsed)
	require.Equal(t, "2026-11", store.acct.Period)
}

func TestChargeZeroIsNoop(t *testing.T) {
	store := &memStore{failAdd: errors.New("should not be called")}
	require.NoError(t, newService(store, time.Now()).Charge(context.Background(), uuid.New(), 0))
}

func TestChargeWrapsStoreError(t *testing.T) {
	store := &memStore{failAdd: errors.New("conn reset")}
	err := newService(store, time.Now()).Charge(context.Background(), uuid.New(), 2)
	require.ErrorContains(t, err, "charge usage: conn reset")
}
