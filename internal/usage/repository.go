package usage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned when the user row does not exist.
var ErrUserNotFound = errors.New("user not found")

// Repository stores usage counters on the users table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a usage repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetAccount returns a user's plan, bonus and counter.
func (r *Repository) GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	const q = `SELECT plan_minutes, bonus_minutes, minutes_used, COALESCE(usage_period,'') FROM users WHERE id = $1`
	var a Account
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&a.PlanMinutes, &a.BonusMinutes, &a.MinutesUsed, &a.Period); err != nil {
		return nil, err
	}
	return &a, nil
}

// AddMinutes increments the counter, starting from zero when the period changed.
func (r *Repository) AddMinutes(ctx context.Context, userID uuid.UUID, minutes int, period string) error {
	const q = `UPDATE users SET
		minutes_used = CASE WHEN usage_period = $2 THEN minutes_used + $1 ELSE $1 END,
		usage_period = $2,
		updated_at = NOW()
		WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, minutes, period, userID)
	return err
}

// AddBonusMinutes grants extra monthly minutes.
func (r *Repository) AddBonusMinutes(ctx context.Context, userID uuid.UUID, minutes int) (int, error) {
	const q = `UPDATE users SET bonus_minutes = bonus_minutes + $1, updated_at = NOW() WHERE id = $2 RETURNING bonus_minutes`
	var total int
	err := r.pool.QueryRow(ctx, q, minutes, userID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return total, err
}
