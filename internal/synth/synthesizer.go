// Package synth generates platform-compliant usernames, passwords, and
// synthetic demographic payloads. Outputs degrade to fallback values
// instead of erroring so provisioning can always proceed; provenance is
// reported so degraded output stays visible in the audit trail.
package synth

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/namepool"
	"github.com/provio-systems/provio/pkg/logging"
)

// Username provenance values, preserved into audit metadata.
const (
	SourcePool     = "pool"
	SourceFallback = "fallback"
)

// UsernameResult carries a synthesized username and its provenance.
type UsernameResult struct {
	Username     string `json:"username"`
	Source       string `json:"source"`
	OriginalName string `json:"original_name"`
}

// NameSampler is the slice of the name pool the synthesizer needs.
type NameSampler interface {
	Sample(ctx context.Context, platform models.Platform) (*models.NameCandidate, error)
}

// Synthesizer builds credential fields under per-platform policy.
type Synthesizer struct {
	names  NameSampler
	logger *logging.Logger
}

func New(names NameSampler, logger *logging.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Synthesizer{names: names, logger: logger}
}

// SynthesizeUsername draws a base name from the pool, appends a bounded
// numeric suffix, strips non-alphanumerics, and truncates to the
// platform maximum. When the pool is empty it generates a fallback base
// of the form prefix + time token + random token and reports
// Source=fallback.
func (s *Synthesizer) SynthesizeUsername(ctx context.Context, platform models.Platform) UsernameResult {
	policy := models.PolicyFor(platform)

	base := ""
	source := SourceFallback
	if s.names != nil {
		candidate, err := s.names.Sample(ctx, platform)
		switch {
		case err == nil:
			base = candidate.Name
			source = SourcePool
		case errors.Is(err, namepool.ErrEmpty):
			// fall through to fallback generation
		default:
			s.logger.WarnContext(ctx, "name pool sample failed, using fallback",
				"platform", platform, "error", err)
		}
	}
	if base == "" {
		base = fallbackBase()
	}

	username := base + strconv.Itoa(rand.Intn(1000))
	username = stripNonAlnum(username)
	if len(username) > policy.UsernameMaxLen {
		username = username[:policy.UsernameMaxLen]
	}

	return UsernameResult{
		Username:     username,
		Source:       source,
		OriginalName: base,
	}
}

// fallbackBase builds a lowercase alphanumeric base name from a
// time-derived token plus a random token.
func fallbackBase() string {
	timeToken := strconv.FormatInt(time.Now().UnixNano()%46656, 36) // 3 base36 chars
	randToken := strconv.FormatInt(int64(rand.Intn(46656)), 36)
	return "user" + timeToken + randToken
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
