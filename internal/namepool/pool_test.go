package namepool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/repository"
)

func newTestPool(t *testing.T) (*Pool, *repository.InMemoryStore) {
	t.Helper()
	store := repository.NewInMemoryStore()
	return New(store, nil), store
}

func TestSamplePlatformPartition(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx := context.Background()

	_, err := pool.Add(ctx, "RobloxKid", models.PlatformRoblox, models.NameSourceManual)
	require.NoError(t, err)

	candidate, err := pool.Sample(ctx, models.PlatformRoblox)
	require.NoError(t, err)
	assert.Equal(t, "RobloxKid", candidate.Name)
	assert.Equal(t, models.PlatformRoblox, candidate.Platform)
}

func TestSampleFallsBackToGeneral(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx := context.Background()

	_, err := pool.Add(ctx, "GeneralName", models.PlatformGeneral, models.NameSourceManual)
	require.NoError(t, err)

	// Platform partition is empty; the general one serves the sample.
	candidate, err := pool.Sample(ctx, models.Platform("newplatform"))
	require.NoError(t, err)
	assert.Equal(t, "GeneralName", candidate.Name)
}

func TestSampleSelfSeedsEmptyPool(t *testing.T) {
	pool, store := newTestPool(t)
	ctx := context.Background()

	candidate, err := pool.Sample(ctx, models.PlatformDiscord)
	require.NoError(t, err)
	assert.NotEmpty(t, candidate.Name)
	assert.Equal(t, models.NameSourceSeed, candidate.Source)

	count, err := store.CountNames(ctx)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestSelfSeedRunsOnce(t *testing.T) {
	pool, store := newTestPool(t)
	ctx := context.Background()

	_, err := pool.Sample(ctx, models.PlatformDiscord)
	require.NoError(t, err)
	first, err := store.CountNames(ctx)
	require.NoError(t, err)

	_, err = pool.Sample(ctx, models.PlatformSteam)
	require.NoError(t, err)
	second, err := store.CountNames(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBulkAddBestEffort(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx := context.Background()

	report, err := pool.BulkAdd(ctx, []Entry{
		{Name: "Alpha", Platform: models.PlatformRoblox},
		{Name: "Alpha", Platform: models.PlatformRoblox}, // in-batch duplicate
		{Name: "alpha", Platform: models.PlatformRoblox}, // case-sensitive, distinct
		{Name: "Alpha", Platform: models.PlatformSteam},  // same name, other partition
		{Name: "  ", Platform: models.PlatformRoblox},    // malformed
		{Name: "Beta"},                                   // defaults to general
	})
	require.NoError(t, err)

	assert.Equal(t, 6, report.Submitted)
	assert.Equal(t, 4, report.Inserted)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.Invalid)
}

func TestBulkAddSkipsExistingPoolEntries(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx := context.Background()

	_, err := pool.Add(ctx, "Existing", models.PlatformRoblox, models.NameSourceManual)
	require.NoError(t, err)

	report, err := pool.BulkAdd(ctx, []Entry{
		{Name: "Existing", Platform: models.PlatformRoblox},
		{Name: "Fresh", Platform: models.PlatformRoblox},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Duplicates)
}

func TestImportCorpus(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "corpus.yaml")
	corpus := `names:
  - name: Emma
    platform: roblox
  - name: Lucas
  - name: Emma
    platform: roblox
`
	require.NoError(t, os.WriteFile(path, []byte(corpus), 0o600))

	report, err := pool.ImportCorpus(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Duplicates)
}
