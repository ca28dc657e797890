package integrations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxnote/backend/internal/models"
)

// Repository handles per-user destination settings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an integrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByUser returns the user's settings, or nil, nil when none are saved.
func (r *Repository) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Integrations, error) {
	const q = `SELECT user_id, notion_token, notion_database_id, slack_bot_token, slack_channel_id, updated_at
		FROM integrations WHERE user_id = $1`
	var i models.Integrations
	err := r.pool.QueryRow(ctx, q, userID).Scan(&i.UserID, &i.NotionToken, &i.NotionDatabaseID, &i.SlackBotToken, &i.SlackChannelID, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Upsert replaces the user's settings.
func (r *Repository) Upsert(ctx context.Context, in *models.Integrations) error {
	const q = `INSERT INTO integrations (user_id, notion_token, notion_database_id, slack_bot_token, slack_channel_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			notion_token = EXCLUDED.notion_token,
			notion_database_id = EXCLUDED.notion_database_id,
			slack_bot_token = EXCLUDED.slack_bot_token,
			slack_channel_id = EXCLUDED.slack_channel_id,
			updated_at = NOW()
		RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, in.UserID, in.NotionToken, in.NotionDatabaseID, in.SlackBotToken, in.SlackChannelID).Scan(&in.UpdatedAt)
}
