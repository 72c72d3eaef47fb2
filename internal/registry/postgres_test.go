package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/logvault-systems/logvault/internal/models"
)

// setupTestDatabase starts a PostgreSQL testcontainer and applies the
// initial migration.
func setupTestDatabase(t *testing.T) *PostgresRepository {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("logvault_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "start postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, applyMigration(connStr))

	repo, err := NewPostgresRepository(ctx, connStr)
	require.NoError(t, err)

	t.Cleanup(func() {
		repo.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return repo
}

func applyMigration(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	path := filepath.Join("..", "..", "migrations", "001_init.up.sql")
	migrationSQL, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func testUser(t *testing.T) *models.User {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return &models.User{
		ID:          id.String(),
		Username:    "seneca_" + id.String()[:8],
		TokenDigest: "$2a$10$testdigesttestdigesttestdigesttestdigesttestdigest",
		CreatedAt:   time.Now().UTC(),
	}
}

func testProject(t *testing.T, ownerID string) *models.Project {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return &models.Project{
		ID:           id.String(),
		Name:         "project-" + id.String()[:8],
		Description:  "testcontainer project",
		OwnerID:      ownerID,
		APIKeyDigest: DigestKey("raw-" + id.String()),
		CreatedAt:    time.Now().UTC(),
	}
}

func TestPostgresUserLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainer test in short mode")
	}

	repo := setupTestDatabase(t)
	ctx := context.Background()

	user := testUser(t)
	require.NoError(t, repo.CreateUser(ctx, user))

	// Duplicate username maps to ErrUserExists.
	dup := testUser(t)
	dup.Username = user.Username
	assert.ErrorIs(t, repo.CreateUser(ctx, dup), ErrUserExists)

	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, got.Username)
	assert.Equal(t, user.TokenDigest, got.TokenDigest)

	_, err = repo.GetUserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresProjectLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainer test in short mode")
	}

	repo := setupTestDatabase(t)
	ctx := context.Background()

	owner := testUser(t)
	require.NoError(t, repo.CreateUser(ctx, owner))

	p1 := testProject(t, owner.ID)
	p2 := testProject(t, owner.ID)
	require.NoError(t, repo.CreateProject(ctx, p1))
	require.NoError(t, repo.CreateProject(ctx, p2))

	got, err := repo.GetProjectByID(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, p1.Name, got.Name)
	assert.Equal(t, p1.APIKeyDigest, got.APIKeyDigest)
	assert.Empty(t, got.RetiredKeyDigest)

	projects, err := repo.ListProjectsByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	_, err = repo.GetProjectByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestPostgresRotateProjectKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainer test in short mode")
	}

	repo := setupTestDatabase(t)
	ctx := context.Background()

	owner := testUser(t)
	require.NoError(t, repo.CreateUser(ctx, owner))

	project := testProject(t, owner.ID)
	require.NoError(t, repo.CreateProject(ctx, project))

	newDigest := DigestKey("rotated")
	require.NoError(t, repo.RotateProjectKey(ctx, project.ID, newDigest, project.APIKeyDigest))

	got, err := repo.GetProjectByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, newDigest, got.APIKeyDigest)
	assert.Equal(t, project.APIKeyDigest, got.RetiredKeyDigest)

	err = repo.RotateProjectKey(ctx, uuid.NewString(), DigestKey("x"), "")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}
