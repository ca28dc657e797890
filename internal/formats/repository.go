package formats

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxnote/backend/internal/models"
)

var (
	// ErrNotFound is returned when the format does not exist or belongs to another user.
	ErrNotFound = errors.New("custom format not found")
	// ErrLimitReached is returned when the user already has MaxCustomFormats formats.
	ErrLimitReached = fmt.Errorf("at most %d custom formats per user", models.MaxCustomFormats)
)

// Repository handles custom format persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a formats repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const formatColumns = `id, user_id, name, prompt, is_default, created_at, updated_at`

func scanFormat(row pgx.Row) (*models.CustomFormat, error) {
	var f models.CustomFormat
	err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.Prompt, &f.IsDefault, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// List returns the user's formats, oldest first.
func (r *Repository) List(ctx context.Context, userID uuid.UUID) ([]models.CustomFormat, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+formatColumns+` FROM custom_formats WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.CustomFormat{}
	for rows.Next() {
		f, err := scanFormat(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *f)
	}
	return list, rows.Err()
}

// Get returns one of the user's formats.
func (r *Repository) Get(ctx context.Context, userID, id uuid.UUID) (*models.CustomFormat, error) {
	return scanFormat(r.pool.QueryRow(ctx, `SELECT `+formatColumns+` FROM custom_formats WHERE id = $1 AND user_id = $2`, id, userID))
}

// GetDefault returns the user's default format.
func (r *Repository) GetDefault(ctx context.Context, userID uuid.UUID) (*models.CustomFormat, error) {
	return scanFormat(r.pool.QueryRow(ctx, `SELECT `+formatColumns+` FROM custom_formats WHERE user_id = $1 AND is_default`, userID))
}

// Create inserts a format, enforcing the per-user limit. The user row is
// locked so concurrent creates cannot both pass the count.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, name, prompt string, isDefault bool) (*models.CustomFormat, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
		return nil, err
	}
	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM custom_formats WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return nil, err
	}
	if n >= models.MaxCustomFormats {
		return nil, ErrLimitReached
	}
	if isDefault {
		if err := clearDefault(ctx, tx, userID); err != nil {
			return nil, err
		}
	}
	f, err := scanFormat(tx.QueryRow(ctx,
		`INSERT INTO custom_formats (user_id, name, prompt, is_default) VALUES ($1, $2, $3, $4) RETURNING `+formatColumns,
		userID, name, prompt, isDefault))
	if err != nil {
		return nil, err
	}
	return f, tx.Commit(ctx)
}

// Update changes name and/or prompt; nil leaves the field untouched.
func (r *Repository) Update(ctx context.Context, userID, id uuid.UUID, name, prompt *string) (*models.CustomFormat, error) {
	const q = `UPDATE custom_formats
		SET name = COALESCE($3, name), prompt = COALESCE($4, prompt), updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + formatColumns
	return scanFormat(r.pool.QueryRow(ctx, q, id, userID, name, prompt))
}

// Delete removes a format. Recordings that reference it fall back at processing time.
func (r *Repository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM custom_formats WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefault marks id as the user's default and clears any previous default.
func (r *Repository) SetDefault(ctx context.Context, userID, id uuid.UUID) (*models.CustomFormat, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := clearDefault(ctx, tx, userID); err != nil {
		return nil, err
	}
	f, err := scanFormat(tx.QueryRow(ctx,
		`UPDATE custom_formats SET is_default = TRUE, updated_at = NOW() WHERE id = $1 AND user_id = $2 RETURNING `+formatColumns,
		id, userID))
	if err != nil {
		return nil, err
	}
	return f, tx.Commit(ctx)
}

func clearDefault(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE custom_formats SET is_default = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_default`, userID)
	return err
}
