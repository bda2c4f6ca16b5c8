package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provio-systems/provio/internal/models"
	"github.com/provio-systems/provio/internal/repository"
)

func TestEmitterWritesAsynchronously(t *testing.T) {
	trail, _ := newTestTrail(t)
	emitter := NewEmitter(trail, nil)

	emitter.Emit(&models.AuditEvent{
		EventType: models.EventAccountCreate,
		Status:    models.StatusSuccess,
		ActorID:   "user-1",
	})
	emitter.Close()

	page, err := trail.Query(context.Background(), models.EventFilter{}, models.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Events, 1)
}

func TestEmitterCloseDrainsQueue(t *testing.T) {
	trail, _ := newTestTrail(t)
	emitter := NewEmitter(trail, nil, WithQueueSize(64))

	for i := 0; i < 20; i++ {
		emitter.Emit(&models.AuditEvent{
			EventType: models.EventAccountCreate,
			Status:    models.StatusSuccess,
			ActorID:   "user-1",
		})
	}
	emitter.Close()

	page, err := trail.Query(context.Background(), models.EventFilter{}, models.Pagination{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, page.Events, 20)
}

type failingStore struct {
	repository.AuditStore
	mu    sync.Mutex
	calls int
}

func (f *failingStore) InsertEvent(ctx context.Context, event *models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("store unavailable")
}

func TestEmitterReportsTerminalFailures(t *testing.T) {
	store := &failingStore{AuditStore: repository.NewInMemoryStore()}
	trail := NewTrail(store, nil, nil)

	var mu sync.Mutex
	var observed []error
	emitter := NewEmitter(trail, nil, WithErrorHook(func(event *models.AuditEvent, err error) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, err)
	}))

	emitter.Emit(&models.AuditEvent{EventType: models.EventAccountCreate})
	emitter.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 1, "failure must reach the error hook")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 2, store.calls, "one retry before giving up")
}

func TestEmitterQueueFullIsObservable(t *testing.T) {
	// A trail over a store that blocks keeps the queue occupied.
	blocked := make(chan struct{})
	store := &blockingStore{AuditStore: repository.NewInMemoryStore(), release: blocked}
	trail := NewTrail(store, nil, nil)

	var mu sync.Mutex
	var observed []error
	emitter := NewEmitter(trail, nil,
		WithQueueSize(1),
		WithErrorHook(func(event *models.AuditEvent, err error) {
			mu.Lock()
			defer mu.Unlock()
			observed = append(observed, err)
		}))

	// First event occupies the writer, second fills the queue, third
	// cannot be enqueued.
	for i := 0; i < 3; i++ {
		emitter.Emit(&models.AuditEvent{EventType: models.EventAccountCreate})
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) >= 1 && errors.Is(observed[0], ErrQueueFull)
	}, time.Second, 10*time.Millisecond)

	close(blocked)
	emitter.Close()
}

type blockingStore struct {
	repository.AuditStore
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) InsertEvent(ctx context.Context, event *models.AuditEvent) error {
	b.once.Do(func() { <-b.release })
	return b.AuditStore.InsertEvent(ctx, event)
}
