//go:build integration

package recordings

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/internal/pipeline"
	"github.com/voxnote/backend/pkg/database"
)

// Run with: DATABASE_URL=postgres://... go test -tags integration ./internal/recordings/
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool, nil))
	return pool
}

func testUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, password_hash) VALUES ($1, 'x') RETURNING id`,
		uuid.NewString()+"@example.com").Scan(&id)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM recordings WHERE user_id = $1`, id)
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func newProcessing(t *testing.T, repo *Repository, userID uuid.UUID) *models.Recording {
	t.Helper()
	rec := &models.Recording{
		ID:              uuid.New(),
		UserID:          userID,
		Title:           "standup",
		DurationSeconds: 90,
		Format:          models.FormatMeeting,
		Status:          models.RecordingStatusProcessing,
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func TestFinalizeTransitionsOnce(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	rec := newProcessing(t, repo, testUser(t, pool))

	require.NoError(t, repo.SaveTranscript(ctx, rec.ID, "hello team"))

	content := "# Standup"
	require.NoError(t, repo.Finalize(ctx, rec.ID, models.Outcome{
		Status:                models.RecordingStatusCompleted,
		ContentType:           models.FormatMeeting,
		FormattedContent:      &content,
		DestinationReferences: map[string]string{"notion": "page-1"},
	}))

	err := repo.Finalize(ctx, rec.ID, models.Outcome{
		Status:       models.RecordingStatusFailed,
		ErrorStep:    models.StepOther,
		ErrorMessage: "expired",
	})
	require.ErrorIs(t, err, pipeline.ErrAlreadyFinalized)
	require.ErrorIs(t, repo.SaveTranscript(ctx, rec.ID, "late"), pipeline.ErrAlreadyFinalized)

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.RecordingStatusCompleted, got.Status)
	require.Equal(t, "hello team", *got.Transcript)
	require.Equal(t, content, *got.FormattedContent)
	require.Equal(t, map[string]string{"notion": "page-1"}, got.DestinationReferences)
	require.Nil(t, got.ErrorStep)
}

func TestListStuckOnlyProcessing(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	userID := testUser(t, pool)
	stuck := newProcessing(t, repo, userID)
	done := newProcessing(t, repo, userID)
	require.NoError(t, repo.Finalize(ctx, done.ID, models.Outcome{Status: models.RecordingStatusCompleted}))

	list, err := repo.ListStuck(ctx, time.Now().Add(time.Minute), 1000)
	require.NoError(t, err)
	ids := make(map[uuid.UUID]bool, len(list))
	for _, r := range list {
		require.Equal(t, models.RecordingStatusProcessing, r.Status)
		ids[r.ID] = true
	}
	require.True(t, ids[stuck.ID])
	require.False(t, ids[done.ID])

	list, err = repo.ListStuck(ctx, time.Now().Add(-time.Hour), 1000)
	require.NoError(t, err)
	for _, r := range list {
		require.NotEqual(t, stuck.ID, r.ID)
	}
}
