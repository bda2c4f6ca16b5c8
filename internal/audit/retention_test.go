package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provio-systems/provio/internal/models"
)

func TestSweeperRemovesExpiredEvents(t *testing.T) {
	trail, _ := newTestTrail(t)
	ctx := context.Background()

	recordEvent(t, trail, func(e *models.AuditEvent) {
		e.Retention.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	})
	recordEvent(t, trail, nil)

	sweeper := NewSweeper(trail, 10*time.Millisecond, nil)
	require.NoError(t, sweeper.Start(ctx))
	defer sweeper.Stop()

	assert.Eventually(t, func() bool {
		page, err := trail.Query(ctx, models.EventFilter{}, models.Pagination{Limit: 10})
		return err == nil && len(page.Events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSweeperStartTwiceFails(t *testing.T) {
	trail, _ := newTestTrail(t)
	sweeper := NewSweeper(trail, time.Hour, nil)

	require.NoError(t, sweeper.Start(context.Background()))
	defer sweeper.Stop()

	assert.Error(t, sweeper.Start(context.Background()))
}
