// Package namepool manages the corpus of candidate identity names used
// by credential synthesis, partitioned by platform.
package namepool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/repository"
	"github.com/provio-systems/provio/pkg/logging"
)

// ErrEmpty is returned when neither the requested platform partition
// nor the general partition holds any candidate. Callers are expected
// to fall back to synthetic name generation.
var ErrEmpty = errors.New("namepool: no candidates available")

// seedNames is the small fixed set installed the first time the pool is
// queried while completely empty.
var seedNames = []string{
	"Emma", "Olivia", "Sophia", "Isabella", "Mia",
	"James", "Lucas", "Ethan", "Alexander", "Daniel",
	"Harper", "Evelyn", "Owen", "Henry", "Grace",
}

// Entry is one row of a bulk import.
type Entry struct {
	Name     string          `json:"name" yaml:"name"`
	Platform models.Platform `json:"platform" yaml:"platform"`
}

// BulkReport summarizes a best-effort bulk insertion.
type BulkReport struct {
	Submitted  int `json:"submitted"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}

// Pool samples and maintains name candidates on top of the repository.
type Pool struct {
	store  repository.NamePoolStore
	logger *logging.Logger

	seedOnce sync.Once
}

func New(store repository.NamePoolStore, logger *logging.Logger) *Pool {
	if logger == nil {
		logger = logging.Default()
	}
	return &Pool{store: store, logger: logger}
}

// Sample draws a uniformly random candidate for the platform. When the
// platform partition is empty it falls back to the general partition;
// when that is empty too it returns ErrEmpty. A completely empty pool
// is seeded once with the fixed seed set before retrying.
func (p *Pool) Sample(ctx context.Context, platform models.Platform) (*models.NameCandidate, error) {
	candidate, err := p.sampleWithFallback(ctx, platform)
	if err == nil {
		return candidate, nil
	}
	if !errors.Is(err, ErrEmpty) {
		return nil, err
	}

	seeded, seedErr := p.seedIfEmpty(ctx)
	if seedErr != nil {
		return nil, seedErr
	}
	if !seeded {
		return nil, ErrEmpty
	}
	return p.sampleWithFallback(ctx, platform)
}

func (p *Pool) sampleWithFallback(ctx context.Context, platform models.Platform) (*models.NameCandidate, error) {
	candidate, err := p.store.SampleName(ctx, platform)
	if err == nil {
		return candidate, nil
	}
	if !errors.Is(err, repository.ErrNamePoolEmpty) {
		return nil, fmt.Errorf("namepool: sample %s: %w", platform, err)
	}

	if platform != models.PlatformGeneral {
		candidate, err = p.store.SampleName(ctx, models.PlatformGeneral)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, repository.ErrNamePoolEmpty) {
			return nil, fmt.Errorf("namepool: sample general: %w", err)
		}
	}
	return nil, ErrEmpty
}

// seedIfEmpty installs the fixed seed set at most once per process,
// and only when the pool holds no candidates on any platform.
func (p *Pool) seedIfEmpty(ctx context.Context) (bool, error) {
	seeded := false
	var seedErr error

	p.seedOnce.Do(func() {
		count, err := p.store.CountNames(ctx)
		if err != nil {
			seedErr = fmt.Errorf("namepool: count: %w", err)
			return
		}
		if count > 0 {
			return
		}

		for _, name := range seedNames {
			candidate := &models.NameCandidate{
				ID:        uuid.New().String(),
				Name:      name,
				Platform:  models.PlatformGeneral,
				Source:    models.NameSourceSeed,
				CreatedAt: time.Now().UTC(),
			}
			if err := p.store.AddNameCandidate(ctx, candidate); err != nil &&
				!errors.Is(err, repository.ErrNameCandidateExists) {
				p.logger.WarnContext(ctx, "failed to install seed name",
					"name", name, "error", err)
			}
		}
		p.logger.InfoContext(ctx, "name pool self-seeded", "names", len(seedNames))
		seeded = true
	})

	return seeded, seedErr
}

// Add inserts a single candidate with the given provenance.
func (p *Pool) Add(ctx context.Context, name string, platform models.Platform, source models.NameSource) (*models.NameCandidate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("namepool: name is required")
	}
	if platform == "" {
		platform = models.PlatformGeneral
	}

	candidate := &models.NameCandidate{
		ID:        uuid.New().String(),
		Name:      name,
		Platform:  platform,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.AddNameCandidate(ctx, candidate); err != nil {
		return nil, fmt.Errorf("namepool: add %q: %w", name, err)
	}
	return candidate, nil
}

// BulkAdd inserts entries best-effort: duplicates within the batch are
// dropped case-sensitively on (name, platform), malformed rows are
// counted but do not abort the batch, and rows already present in the
// pool count as duplicates.
func (p *Pool) BulkAdd(ctx context.Context, entries []Entry) (*BulkReport, error) {
	report := &BulkReport{Submitted: len(entries)}
	seen := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			report.Invalid++
			continue
		}
		platform := entry.Platform
		if platform == "" {
			platform = models.PlatformGeneral
		}

		key := name + "|" + string(platform)
		if _, dup := seen[key]; dup {
			report.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		candidate := &models.NameCandidate{
			ID:        uuid.New().String(),
			Name:      name,
			Platform:  platform,
			Source:    models.NameSourceBulk,
			CreatedAt: time.Now().UTC(),
		}
		if err := p.store.AddNameCandidate(ctx, candidate); err != nil {
			if errors.Is(err, repository.ErrNameCandidateExists) {
				report.Duplicates++
				continue
			}
			p.logger.WarnContext(ctx, "bulk add row failed", "name", name, "error", err)
			report.Invalid++
			continue
		}
		report.Inserted++
	}

	return report, nil
}
