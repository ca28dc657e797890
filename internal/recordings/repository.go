package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/internal/pipeline"
)

// ErrNotFound is returned when a recording does not exist or belongs to another user.
var ErrNotFound = errors.New("recording not found")

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `SELECT id, user_id, title, duration_seconds, format, custom_format_id, content_type,
	COALESCE(language,''), COALESCE(audio_key,''), status, transcript, formatted_content, destination_references,
	error_message, error_step, created_at, updated_at FROM recordings`

// Create inserts a recording in processing.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings (id, user_id, title, duration_seconds, format, custom_format_id, language, audio_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), NULLIF($8,''), $9)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, rec.ID, rec.UserID, rec.Title, rec.DurationSeconds, rec.Format, rec.CustomFormatID,
		rec.Language, rec.AudioKey, rec.Status).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

// GetByID returns a recording regardless of owner (worker use).
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = $1`, id)
}

// GetByIDForUser returns a recording owned by userID.
func (r *Repository) GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *Repository) getOne(ctx context.Context, q string, args ...any) (*models.Recording, error) {
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListByUser returns a user's recordings, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.RecordingSummary, error) {
	const q = `SELECT id, title, duration_seconds, format, status, error_step, created_at
		FROM recordings WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.RecordingSummary{}
	for rows.Next() {
		var s models.RecordingSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.DurationSeconds, &s.Format, &s.Status, &s.ErrorStep, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListStuck returns recordings still processing with no progress since before.
func (r *Repository) ListStuck(ctx context.Context, before time.Time, limit int) ([]models.Recording, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`,
		models.RecordingStatusProcessing, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// SaveTranscript stores the transcript while the recording is still processing.
func (r *Repository) SaveTranscript(ctx context.Context, id uuid.UUID, transcript string) error {
	const q = `UPDATE recordings SET transcript = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, transcript, id, models.RecordingStatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrAlreadyFinalized
	}
	return nil
}

// Finalize writes the terminal outcome. Only rows still in processing are updated,
// so a recording transitions at most once.
func (r *Repository) Finalize(ctx context.Context, id uuid.UUID, out models.Outcome) error {
	var refs []byte
	if out.DestinationReferences != nil {
		b, err := json.Marshal(out.DestinationReferences)
		if err != nil {
			return fmt.Errorf("marshal destination references: %w", err)
		}
		refs = b
	}
	const q = `UPDATE recordings SET
		status = $1,
		transcript = COALESCE($2, transcript),
		content_type = COALESCE(NULLIF($3,''), content_type),
		formatted_content = COALESCE($4, formatted_content),
		destination_references = COALESCE($5::jsonb, destination_references),
		error_step = NULLIF($6,''),
		error_message = NULLIF($7,''),
		updated_at = NOW()
		WHERE id = $8 AND status = $9`
	tag, err := r.pool.Exec(ctx, q, out.Status, out.Transcript, out.ContentType, out.FormattedContent, refs,
		out.ErrorStep, out.ErrorMessage, id, models.RecordingStatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrAlreadyFinalized
	}
	return nil
}

// Delete removes a user's recording and returns its stored audio key (may be empty).
func (r *Repository) Delete(ctx context.Context, id, userID uuid.UUID) (string, error) {
	const q = `DELETE FROM recordings WHERE id = $1 AND user_id = $2 RETURNING COALESCE(audio_key,'')`
	var key string
	err := r.pool.QueryRow(ctx, q, id, userID).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return key, err
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var (
		rec  models.Recording
		refs []byte
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.DurationSeconds, &rec.Format, &rec.CustomFormatID, &rec.ContentType,
		&rec.Language, &rec.AudioKey, &rec.Status, &rec.Transcript, &rec.FormattedContent, &refs,
		&rec.ErrorMessage, &rec.ErrorStep, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &rec.DestinationReferences); err != nil {
			return nil, fmt.Errorf("decode destination references: %w", err)
		}
	}
	return &rec, nil
}
