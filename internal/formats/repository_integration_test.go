//go:build integration

package formats

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/pkg/database"
)

// Run with: DATABASE_URL=postgres://... go test -tags integration ./internal/formats/
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
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func TestRepositoryCreateEnforcesLimit(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	userID := testUser(t, pool)

	for i := 0; i < models.MaxCustomFormats; i++ {
		_, err := repo.Create(ctx, userID, fmt.Sprintf("format %d", i), "Summarize.", false)
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, userID, "one too many", "Summarize.", false)
	require.ErrorIs(t, err, ErrLimitReached)

	list, err := repo.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, models.MaxCustomFormats)
}

func TestSetDefaultKeepsSingleDefault(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	userID := testUser(t, pool)

	a, err := repo.Create(ctx, userID, "a", "A", true)
	require.NoError(t, err)
	b, err := repo.Create(ctx, userID, "b", "B", false)
	require.NoError(t, err)

	_, err = repo.SetDefault(ctx, userID, b.ID)
	require.NoError(t, err)

	list, err := repo.List(ctx, userID)
	require.NoError(t, err)
	var defaults []uuid.UUID
	for _, f := range list {
		if f.IsDefault {
			defaults = append(defaults, f.ID)
		}
	}
	require.Equal(t, []uuid.UUID{b.ID}, defaults)

	def, err := repo.GetDefault(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, b.ID, def.ID)
	require.NotEqual(t, a.ID, def.ID)
}
