package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/provio-systems/provio/internal/models"
)

// dockerAvailable reports whether a Docker endpoint is reachable. The
// container runtime panics during provider setup when no socket exists,
// so the check must happen before any testcontainers call.
func dockerAvailable() bool {
	if os.Getenv("DOCKER_HOST") != "" || os.Getenv("TESTCONTAINERS_HOST_OVERRIDE") != "" {
		return true
	}
	_, err := os.Stat("/var/run/docker.sock")
	return err == nil
}

// setupTestDatabase starts a PostgreSQL testcontainer and applies the
// schema. Requires a local Docker daemon; skipped in short mode.
func setupTestDatabase(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	if !dockerAvailable() {
		t.Skip("docker is not available")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("provio_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, applySchema(connStr))

	store, err := NewPostgresStore(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store
}

func applySchema(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.up.sql"))
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func testCredential(id, owner, username string) *models.Credential {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Credential{
		ID:       id,
		OwnerID:  owner,
		Platform: models.PlatformRoblox,
		Username: username,
		Password: "enc:v1:bm9uY2U0bm9uY2Uw:dGFndGFndGFndGFndGFn:Y2lwaGVydGV4dA==",
		Demographics: &models.Demographics{
			FirstName: "Avery",
			LastName:  "Quinn",
			Gender:    "female",
			BirthDate: "2001-04-12",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgresCredentialRoundTrip(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()

	cred := testCredential("11111111-1111-1111-1111-111111111111", "owner-1", "RoundTrip1")
	require.NoError(t, store.CreateCredential(ctx, cred))

	got, err := store.GetCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, cred.Username, got.Username)
	assert.Equal(t, cred.Password, got.Password)
	require.NotNil(t, got.Demographics)
	assert.Equal(t, "Avery", got.Demographics.FirstName)

	found, err := store.FindCredential(ctx, "owner-1", models.PlatformRoblox, "RoundTrip1")
	require.NoError(t, err)
	assert.Equal(t, cred.ID, found.ID)

	_, err = store.GetCredential(ctx, "22222222-2222-2222-2222-222222222222")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestPostgresUniqueConstraint(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()

	first := testCredential("31111111-1111-1111-1111-111111111111", "owner-1", "UniqueName1")
	require.NoError(t, store.CreateCredential(ctx, first))

	// Same key triggers the composite unique index.
	dup := testCredential("32222222-2222-2222-2222-222222222222", "owner-1", "UniqueName1")
	assert.ErrorIs(t, store.CreateCredential(ctx, dup), ErrDuplicateCredential)

	// Different owner, same platform and username, is allowed.
	other := testCredential("33333333-3333-3333-3333-333333333333", "owner-2", "UniqueName1")
	assert.NoError(t, store.CreateCredential(ctx, other))
}

func TestPostgresUpdateAndDelete(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()

	cred := testCredential("41111111-1111-1111-1111-111111111111", "owner-1", "Mutable1")
	require.NoError(t, store.CreateCredential(ctx, cred))

	cred.Username = "Mutable2"
	cred.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpdateCredential(ctx, cred))

	got, err := store.GetCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mutable2", got.Username)

	require.NoError(t, store.DeleteCredential(ctx, cred.ID))
	_, err = store.GetCredential(ctx, cred.ID)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
	assert.ErrorIs(t, store.DeleteCredential(ctx, cred.ID), ErrCredentialNotFound)
}

func TestPostgresNamePool(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()

	candidate := &models.NameCandidate{
		ID:        "51111111-1111-1111-1111-111111111111",
		Name:      "Rowan Ashford",
		Platform:  models.PlatformDiscord,
		Source:    models.NameSourceManual,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.AddNameCandidate(ctx, candidate))

	// Same name in the same partition is rejected.
	dup := *candidate
	dup.ID = "52222222-2222-2222-2222-222222222222"
	assert.ErrorIs(t, store.AddNameCandidate(ctx, &dup), ErrNameCandidateExists)

	sampled, err := store.SampleName(ctx, models.PlatformDiscord)
	require.NoError(t, err)
	assert.Equal(t, "Rowan Ashford", sampled.Name)

	_, err = store.SampleName(ctx, models.PlatformSteam)
	assert.ErrorIs(t, err, ErrNamePoolEmpty)

	count, err := store.CountNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPostgresAuditEvents(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	event := &models.AuditEvent{
		EventID:   "61111111-1111-1111-1111-111111111111",
		EventType: models.EventAccountCreate,
		Status:    models.StatusSuccess,
		ActorID:   "owner-1",
		Target: models.Target{
			EntityType: "credential",
			EntityID:   "cred-1",
			Platform:   models.PlatformRoblox,
		},
		RequestContext: models.RequestContext{
			IPAddress: "10.0.0.1",
			Timestamp: now,
		},
		Details:     models.EventDetails{UsernameSource: "pool"},
		Performance: &models.Performance{DurationMs: 42},
		Security:    models.Security{RiskScore: 0},
		Retention:   models.Retention{ExpiresAt: now.Add(48 * time.Hour)},
		Signature:   "sig",
		CreatedAt:   now,
	}
	require.NoError(t, store.InsertEvent(ctx, event))

	got, err := store.GetEvent(ctx, event.EventID)
	require.NoError(t, err)
	assert.Equal(t, models.EventAccountCreate, got.EventType)
	assert.Equal(t, "pool", got.Details.UsernameSource)
	require.NotNil(t, got.Performance)
	assert.Equal(t, int64(42), got.Performance.DurationMs)

	// Filtered query
	page, err := store.QueryEvents(ctx, models.EventFilter{ActorID: "owner-1"}, models.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = store.QueryEvents(ctx, models.EventFilter{ActorID: "other"}, models.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	// Security update ratchets the risk block.
	require.NoError(t, store.UpdateEventSecurity(ctx, event.EventID,
		models.Security{RiskScore: 80, Flagged: true, Reasons: []string{"volume"}},
		models.Retention{Permanent: true}))

	got, err = store.GetEvent(ctx, event.EventID)
	require.NoError(t, err)
	assert.True(t, got.Security.Flagged)
	assert.Equal(t, 80, got.Security.RiskScore)
	assert.True(t, got.Retention.Permanent)

	// Flagged events survive the retention sweep even when expired.
	removed, err := store.DeleteExpiredEvents(ctx, now.Add(96*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestPostgresRetentionSweep(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := &models.AuditEvent{
		EventID:        "71111111-1111-1111-1111-111111111111",
		EventType:      models.EventAccountDelete,
		Status:         models.StatusSuccess,
		ActorID:        "owner-1",
		Target:         models.Target{EntityType: "credential"},
		RequestContext: models.RequestContext{Timestamp: now},
		Retention:      models.Retention{ExpiresAt: now.Add(-time.Hour)},
		CreatedAt:      now.Add(-48 * time.Hour),
	}
	fresh := &models.AuditEvent{
		EventID:        "72222222-2222-2222-2222-222222222222",
		EventType:      models.EventAccountCreate,
		Status:         models.StatusSuccess,
		ActorID:        "owner-1",
		Target:         models.Target{EntityType: "credential"},
		RequestContext: models.RequestContext{Timestamp: now},
		Retention:      models.Retention{ExpiresAt: now.Add(time.Hour)},
		CreatedAt:      now,
	}
	require.NoError(t, store.InsertEvent(ctx, expired))
	require.NoError(t, store.InsertEvent(ctx, fresh))

	removed, err := store.DeleteExpiredEvents(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetEvent(ctx, expired.EventID)
	assert.ErrorIs(t, err, ErrEventNotFound)
	_, err = store.GetEvent(ctx, fresh.EventID)
	assert.NoError(t, err)
}
