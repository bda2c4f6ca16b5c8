package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/repository"
)

func newTestTrail(t *testing.T) (*Trail, *repository.InMemoryStore) {
	t.Helper()
	store := repository.NewInMemoryStore()
	return NewTrail(store, NewSigner("test-audit-secret"), nil), store
}

func recordEvent(t *testing.T, trail *Trail, mutate func(*models.AuditEvent)) *models.AuditEvent {
	t.Helper()
	event := &models.AuditEvent{
		EventType: models.EventAccountCreate,
		Status:    models.StatusSuccess,
		ActorID:   "user-1",
		Target: models.Target{
			EntityType: "credential",
			EntityID:   "cred-1",
			Platform:   models.PlatformRoblox,
		},
	}
	if mutate != nil {
		mutate(event)
	}
	require.NoError(t, trail.Record(context.Background(), event))
	return event
}

func TestRecordAssignsDefaults(t *testing.T) {
	trail, _ := newTestTrail(t)
	event := recordEvent(t, trail, nil)

	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.CreatedAt.IsZero())
	assert.NotEmpty(t, event.Signature)

	// Default retention is two years out.
	expected := event.CreatedAt.Add(defaultRetention)
	assert.WithinDuration(t, expected, event.Retention.ExpiresAt, time.Second)
	assert.False(t, event.Retention.Permanent)
}

func TestRecordPreservesCallerEventID(t *testing.T) {
	trail, _ := newTestTrail(t)
	event := recordEvent(t, trail, func(e *models.AuditEvent) {
		e.EventID = "fixed-id"
	})
	assert.Equal(t, "fixed-id", event.EventID)
}

func TestSignatureVerifies(t *testing.T) {
	trail, _ := newTestTrail(t)
	event := recordEvent(t, trail, nil)

	signer := NewSigner("test-audit-secret")
	assert.True(t, signer.Verify(event))

	tampered := *event
	tampered.ActorID = "someone-else"
	assert.False(t, signer.Verify(&tampered))
}

func TestFinalizeStatusPendingOnly(t *testing.T) {
	trail, _ := newTestTrail(t)
	ctx := context.Background()

	pending := recordEvent(t, trail, func(e *models.AuditEvent) {
		e.Status = models.StatusPending
	})
	require.NoError(t, trail.FinalizeStatus(ctx, pending.EventID, models.StatusSuccess, nil))

	got, err := trail.GetEvent(ctx, pending.EventID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)

	// A second transition is rejected: events are write-once.
	err = trail.FinalizeStatus(ctx, pending.EventID, models.StatusFailure, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestQueryFlaggedAndMinRisk(t *testing.T) {
	trail, _ := newTestTrail(t)
	ctx := context.Background()

	low := recordEvent(t, trail, nil)
	mid := recordEvent(t, trail, nil)
	high := recordEvent(t, trail, nil)
	recordEvent(t, trail, nil) // unflagged noise

	require.NoError(t, trail.MarkSecurityEvent(ctx, low.EventID, []string{"odd hours"}, 40))
	require.NoError(t, trail.MarkSecurityEvent(ctx, mid.EventID, []string{"burst activity"}, 75))
	require.NoError(t, trail.MarkSecurityEvent(ctx, high.EventID, []string{"impossible travel"}, 95))

	page, err := trail.Query(ctx, models.EventFilter{
		FlaggedOnly:  true,
		MinRiskScore: 70,
		SecuritySort: true,
	}, models.Pagination{Limit: 10})
	require.NoError(t, err)

	require.Len(t, page.Events, 2)
	assert.Equal(t, high.EventID, page.Events[0].EventID, "sorted by risk score descending")
	assert.Equal(t, mid.EventID, page.Events[1].EventID)
	for _, event := range page.Events {
		assert.True(t, event.Security.Flagged)
		assert.GreaterOrEqual(t, event.Security.RiskScore, 70)
	}
}

func TestQuerySortsByTimestampDescending(t *testing.T) {
	trail, _ := newTestTrail(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		offset := time.Duration(i) * time.Minute
		recordEvent(t, trail, func(e *models.AuditEvent) {
			e.CreatedAt = base.Add(offset)
		})
	}

	page, err := trail.Query(ctx, models.EventFilter{}, models.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Events, 3)
	for i := 1; i < len(page.Events); i++ {
		assert.True(t, !page.Events[i].CreatedAt.After(page.Events[i-1].CreatedAt))
	}
}

func TestMarkSecurityEventIdempotent(t *testing.T) {
	trail, _ := newTestTrail(t)
	ctx := context.Background()

	event := recordEvent(t, trail, nil)

	require.NoError(t, trail.MarkSecurityEvent(ctx, event.EventID, []string{"reason-a"}, 80))
	require.NoError(t, trail.MarkSecurityEvent(ctx, event.EventID, []string{"reason-a", "reason-b"}, 60))

	got, err := trail.GetEvent(ctx, event.EventID)
	require.NoError(t, err)

	assert.True(t, got.Security.Flagged)
	assert.True(t, got.Retention.Permanent)
	assert.Equal(t, 80, got.Security.RiskScore, "risk score only ratchets upward")
	assert.Equal(t, []string{"reason-a", "reason-b"}, got.Security.Reasons,
		"reasons appended, never replaced or duplicated")
}

func TestStatsAggregation(t *testing.T) {
	trail, _ := newTestTrail(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		recordEvent(t, trail, func(e *models.AuditEvent) {
			e.CreatedAt = now.Add(-time.Duration(i) * time.Hour)
			e.Performance = &models.Performance{DurationMs: int64(100 * (i + 1))}
		})
	}
	recordEvent(t, trail, func(e *models.AuditEvent) {
		e.Status = models.StatusFailure
		e.Error = &models.EventError{Code: "DUPLICATE_CREDENTIAL", Message: "credential already exists"}
	})
	recordEvent(t, trail, func(e *models.AuditEvent) {
		e.EventType = models.EventAccountDelete
		e.Target.Platform = models.PlatformSteam
	})

	stats, err := trail.Stats(ctx, 0, models.EventFilter{})
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalEvents)
	assert.Equal(t, 4, stats.ByType[models.EventAccountCreate])
	assert.Equal(t, 1, stats.ByType[models.EventAccountDelete])
	assert.Equal(t, 4, stats.ByStatus[models.StatusSuccess])
	assert.Equal(t, 1, stats.ByStatus[models.StatusFailure])
	assert.Equal(t, 4, stats.ByPlatform[models.PlatformRoblox])
	assert.Equal(t, 1, stats.ByPlatform[models.PlatformSteam])

	require.NotEmpty(t, stats.DailyTrend)
	var totalFromTrend, successFromTrend, failureFromTrend int
	for _, day := range stats.DailyTrend {
		totalFromTrend += day.Total
		successFromTrend += day.Success
		failureFromTrend += day.Failure
	}
	assert.Equal(t, 5, totalFromTrend)
	assert.Equal(t, 4, successFromTrend)
	assert.Equal(t, 1, failureFromTrend)

	assert.Equal(t, int64(100), stats.Durations.MinMs)
	assert.Equal(t, int64(300), stats.Durations.MaxMs)
	assert.Equal(t, int64(200), stats.Durations.AvgMs)

	require.Len(t, stats.TopErrors, 1)
	assert.Equal(t, "credential already exists", stats.TopErrors[0].Message)
	assert.Equal(t, 1, stats.TopErrors[0].Count)
}

func TestStatsWindowExcludesOldEvents(t *testing.T) {
	trail, _ := newTestTrail(t)

	recordEvent(t, trail, func(e *models.AuditEvent) {
		e.CreatedAt = time.Now().UTC().Add(-40 * 24 * time.Hour)
	})
	recordEvent(t, trail, nil)

	stats, err := trail.Stats(context.Background(), 0, models.EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEvents)
}

func TestSweepExpiredRespectsExemptions(t *testing.T) {
	trail, _ := newTestTrail(t)
	ctx := context.Background()

	expired := recordEvent(t, trail, func(e *models.AuditEvent) {
		e.Retention.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	})
	flagged := recordEvent(t, trail, func(e *models.AuditEvent) {
		e.Retention.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	})
	require.NoError(t, trail.MarkSecurityEvent(ctx, flagged.EventID, []string{"suspicious"}, 90))
	fresh := recordEvent(t, trail, nil)

	removed, err := trail.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = trail.GetEvent(ctx, expired.EventID)
	assert.ErrorIs(t, err, repository.ErrEventNotFound)

	_, err = trail.GetEvent(ctx, flagged.EventID)
	assert.NoError(t, err, "security-flagged events are retained")

	_, err = trail.GetEvent(ctx, fresh.EventID)
	assert.NoError(t, err)
}
