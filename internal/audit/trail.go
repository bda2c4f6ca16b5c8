// Package audit implements the tamper-evident audit trail: structured
// event recording, querying, aggregation, retention, and risk marking.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/repository"
	"github.com/provio-systems/provio/pkg/logging"
)

const (
	// defaultRetention is how long events are kept unless marked
	// permanent or security-relevant.
	defaultRetention = 2 * 365 * 24 * time.Hour

	// defaultStatsWindow is the trailing aggregation window.
	defaultStatsWindow = 30 * 24 * time.Hour

	// topErrorLimit caps the ranked error-frequency table.
	topErrorLimit = 10
)

// ErrInvalidTransition is returned when a status finalization targets
// an event that is not pending.
var ErrInvalidTransition = errors.New("audit: event status is already final")

// Trail is the audit trail service.
type Trail struct {
	store     repository.AuditStore
	signer    *Signer
	logger    *logging.Logger
	retention time.Duration
}

// TrailOption configures a Trail.
type TrailOption func(*Trail)

// WithRetention overrides the default two-year retention period.
func WithRetention(d time.Duration) TrailOption {
	return func(t *Trail) {
		if d > 0 {
			t.retention = d
		}
	}
}

func NewTrail(store repository.AuditStore, signer *Signer, logger *logging.Logger, opts ...TrailOption) *Trail {
	if logger == nil {
		logger = logging.Default()
	}
	t := &Trail{store: store, signer: signer, logger: logger, retention: defaultRetention}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record persists an event. Missing identity fields are filled in: a
// v7 UUID event id, the creation timestamp, and the default retention
// expiry of two years. The event is signed before it is stored.
func (t *Trail) Record(ctx context.Context, event *models.AuditEvent) error {
	if event.EventID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("audit: generate event id: %w", err)
		}
		event.EventID = id.String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.RequestContext.Timestamp.IsZero() {
		event.RequestContext.Timestamp = event.CreatedAt
	}
	if event.Retention.ExpiresAt.IsZero() && !event.Retention.Permanent {
		event.Retention.ExpiresAt = event.CreatedAt.Add(t.retention)
	}
	if t.signer != nil {
		event.Signature = t.signer.Sign(event)
	}

	if err := t.store.InsertEvent(ctx, event); err != nil {
		return fmt.Errorf("audit: record event: %w", err)
	}
	return nil
}

// FinalizeStatus applies the pending->final transition. Any other
// transition is rejected: events are write-once apart from this.
func (t *Trail) FinalizeStatus(ctx context.Context, eventID string, status models.EventStatus, evtErr *models.EventError) error {
	event, err := t.store.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("audit: load event %s: %w", eventID, err)
	}
	if event.Status != models.StatusPending {
		return ErrInvalidTransition
	}
	if err := t.store.UpdateEventStatus(ctx, eventID, status, evtErr); err != nil {
		return fmt.Errorf("audit: finalize event %s: %w", eventID, err)
	}
	return nil
}

// Query returns a filtered, paginated page of events sorted by
// timestamp descending, or by risk score descending for security
// queries.
func (t *Trail) Query(ctx context.Context, filter models.EventFilter, page models.Pagination) (*models.EventPage, error) {
	result, err := t.store.QueryEvents(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	return result, nil
}

// GetEvent loads a single event and verifies its signature, logging a
// warning when verification fails so tampering is observable.
func (t *Trail) GetEvent(ctx context.Context, eventID string) (*models.AuditEvent, error) {
	event, err := t.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if t.signer != nil && event.Signature != "" && !t.signer.Verify(event) {
		t.logger.WarnContext(ctx, "audit event signature mismatch", "event_id", eventID)
	}
	return event, nil
}

// MarkSecurityEvent flags an event as security-relevant. It is the only
// path that flips permanent=true. The call is idempotent: repeated
// invocations converge, reasons are appended (never replaced), and the
// risk score only ratchets upward.
func (t *Trail) MarkSecurityEvent(ctx context.Context, eventID string, reasons []string, riskScore int) error {
	if riskScore < 0 {
		riskScore = 0
	}
	if riskScore > 100 {
		riskScore = 100
	}

	event, err := t.store.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("audit: load event %s: %w", eventID, err)
	}

	security := event.Security
	security.Flagged = true
	if riskScore > security.RiskScore {
		security.RiskScore = riskScore
	}
	security.Reasons = appendNewReasons(security.Reasons, reasons)

	retention := event.Retention
	retention.Permanent = true

	if err := t.store.UpdateEventSecurity(ctx, eventID, security, retention); err != nil {
		return fmt.Errorf("audit: mark security event %s: %w", eventID, err)
	}
	return nil
}

func appendNewReasons(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r] = struct{}{}
	}
	out := existing
	for _, r := range incoming {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Stats aggregates events over a trailing window (default 30 days).
// The computation honors the caller's deadline: when the context
// expires mid-aggregation the partial result is returned with
// Partial=true instead of hanging.
func (t *Trail) Stats(ctx context.Context, window time.Duration, filter models.EventFilter) (*models.AuditStats, error) {
	if window <= 0 {
		window = defaultStatsWindow
	}
	end := time.Now().UTC()
	start := end.Add(-window)

	events, err := t.store.ListEventsInWindow(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("audit: list events for stats: %w", err)
	}

	stats := &models.AuditStats{
		WindowStart: start,
		WindowEnd:   end,
		ByType:      make(map[models.EventType]int),
		ByStatus:    make(map[models.EventStatus]int),
		ByPlatform:  make(map[models.Platform]int),
	}

	trendByDay := make(map[string]*models.DayTrend)
	errorCounts := make(map[string]int)
	var durTotal, durCount int64
	stats.Durations.MinMs = -1

	for i, event := range events {
		// Deadline check every batch of rows, not per row.
		if i%256 == 0 && ctx.Err() != nil {
			stats.Partial = true
			break
		}
		if !eventMatchesStatsFilter(event, filter) {
			continue
		}

		stats.TotalEvents++
		stats.ByType[event.EventType]++
		stats.ByStatus[event.Status]++
		if event.Target.Platform != "" {
			stats.ByPlatform[event.Target.Platform]++
		}

		day := event.CreatedAt.Format("2006-01-02")
		trend, ok := trendByDay[day]
		if !ok {
			trend = &models.DayTrend{Day: day}
			trendByDay[day] = trend
		}
		trend.Total++
		switch event.Status {
		case models.StatusSuccess:
			trend.Success++
		case models.StatusFailure:
			trend.Failure++
		}

		if event.Error != nil && event.Error.Message != "" {
			errorCounts[event.Error.Message]++
		}

		if event.Performance != nil {
			ms := event.Performance.DurationMs
			durTotal += ms
			durCount++
			if stats.Durations.MinMs < 0 || ms < stats.Durations.MinMs {
				stats.Durations.MinMs = ms
			}
			if ms > stats.Durations.MaxMs {
				stats.Durations.MaxMs = ms
			}
		}
	}

	if durCount > 0 {
		stats.Durations.AvgMs = durTotal / durCount
	} else {
		stats.Durations.MinMs = 0
	}

	for _, trend := range trendByDay {
		stats.DailyTrend = append(stats.DailyTrend, *trend)
	}
	sort.Slice(stats.DailyTrend, func(i, j int) bool {
		return stats.DailyTrend[i].Day < stats.DailyTrend[j].Day
	})

	for message, count := range errorCounts {
		stats.TopErrors = append(stats.TopErrors, models.ErrorFrequency{Message: message, Count: count})
	}
	sort.Slice(stats.TopErrors, func(i, j int) bool {
		if stats.TopErrors[i].Count != stats.TopErrors[j].Count {
			return stats.TopErrors[i].Count > stats.TopErrors[j].Count
		}
		return stats.TopErrors[i].Message < stats.TopErrors[j].Message
	})
	if len(stats.TopErrors) > topErrorLimit {
		stats.TopErrors = stats.TopErrors[:topErrorLimit]
	}

	return stats, nil
}

// eventMatchesStatsFilter applies the subset of filters that make sense
// for aggregation (actor, type, platform).
func eventMatchesStatsFilter(event *models.AuditEvent, filter models.EventFilter) bool {
	if filter.ActorID != "" && event.ActorID != filter.ActorID {
		return false
	}
	if filter.EventType != "" && event.EventType != filter.EventType {
		return false
	}
	if filter.Platform != "" && event.Target.Platform != filter.Platform {
		return false
	}
	return true
}

// SweepExpired removes events past their retention expiry. Permanent
// and flagged events are exempt regardless of age.
func (t *Trail) SweepExpired(ctx context.Context) (int, error) {
	removed, err := t.store.DeleteExpiredEvents(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("audit: sweep expired: %w", err)
	}
	return removed, nil
}
