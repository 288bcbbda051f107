package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/config"
	"github.com/iamez/ez-solutions/internal/domain/event"
	"github.com/iamez/ez-solutions/internal/handler"
)

// mockEventRepository is an in-memory event log that enforces the same
// guarded transitions as the real store.
type mockEventRepository struct {
	mu     sync.Mutex
	events map[string]*event.Event
}

func newMockEventRepository() *mockEventRepository {
	return &mockEventRepository{events: make(map[string]*event.Event)}
}

func (m *mockEventRepository) InsertReceived(ctx context.Context, ev *event.Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; ok {
		return false, nil
	}
	copied := *ev
	copied.Status = event.StatusReceived
	m.events[ev.ID] = &copied
	return true, nil
}

func (m *mockEventRepository) MarkQueued(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.events[id]; ok && ev.Status == event.StatusReceived {
		ev.Status = event.StatusQueued
	}
	return nil
}

func (m *mockEventRepository) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*event.Event
	for _, ev := range m.events {
		if ev.Status != event.StatusQueued {
			continue
		}
		if ev.NextAttemptAt != nil && ev.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, ev)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ReceivedAt.Before(due[j].ReceivedAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]event.Event, 0, len(due))
	for _, ev := range due {
		ev.Status = event.StatusProcessing
		ev.Attempts++
		locked := now
		ev.LockedAt = &locked
		claimed = append(claimed, *ev)
	}
	return claimed, nil
}

func (m *mockEventRepository) MarkProcessed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok || ev.Status != event.StatusProcessing {
		return nil
	}
	ev.Status = event.StatusProcessed
	done := time.Now().UTC()
	ev.ProcessedAt = &done
	return nil
}

func (m *mockEventRepository) MarkRetry(ctx context.Context, id string, lastErr string, nextAttemptAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok || ev.Status != event.StatusProcessing {
		return nil
	}
	ev.Status = event.StatusQueued
	ev.LastError = lastErr
	ev.NextAttemptAt = &nextAttemptAt
	ev.LockedAt = nil
	return nil
}

func (m *mockEventRepository) MarkFailed(ctx context.Context, id string, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok || ev.Status != event.StatusProcessing {
		return nil
	}
	ev.Status = event.StatusFailed
	ev.LastError = lastErr
	ev.LockedAt = nil
	return nil
}

func (m *mockEventRepository) Requeue(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok || ev.Status != event.StatusFailed {
		return false, nil
	}
	ev.Status = event.StatusQueued
	ev.Attempts = 0
	ev.NextAttemptAt = nil
	return true, nil
}

func (m *mockEventRepository) ReclaimStranded(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, ev := range m.events {
		stuck := ev.Status == event.StatusProcessing && ev.LockedAt != nil && ev.LockedAt.Before(cutoff)
		stranded := ev.Status == event.StatusReceived && ev.ReceivedAt.Before(cutoff)
		if stuck || stranded {
			ev.Status = event.StatusQueued
			ev.LockedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *mockEventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, event.ErrNotFound
	}
	copied := *ev
	return &copied, nil
}

func (m *mockEventRepository) ListByStatus(ctx context.Context, status event.Status, limit int) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.Event
	for _, ev := range m.events {
		if ev.Status == status {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockEventRepository) addQueued(id, eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = &event.Event{
		ID:         id,
		Type:       eventType,
		Payload:    []byte(`{"id":"` + id + `","type":"` + eventType + `","created":1700000000,"data":{"object":{}}}`),
		Status:     event.StatusQueued,
		ReceivedAt: time.Now().UTC(),
	}
}

// flakyHandler fails a fixed number of times before succeeding.
type flakyHandler struct {
	eventType string
	failures  int
	calls     int
}

func (h *flakyHandler) EventType() string { return h.eventType }

func (h *flakyHandler) Handle(_ context.Context, _ event.Event) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("downstream unavailable")
	}
	return nil
}

func newTestProcessor(repo event.Repository, maxAttempts int, handlers ...handler.Handler) *Processor {
	cfg := &config.Config{
		WorkerCount:        1,
		WorkerPollInterval: 10 * time.Millisecond,
		WorkerBatchSize:    5,
		WorkerMaxAttempts:  maxAttempts,
		HandlerTimeout:     time.Second,
	}
	registry := handler.NewRegistry(zap.NewNop(), handlers...)
	return NewProcessor(cfg, repo, registry, make(chan struct{}), zap.NewNop())
}

func TestProcessor_ProcessesQueuedEvent(t *testing.T) {
	repo := newMockEventRepository()
	repo.addQueued("evt_1", "ping")
	h := &flakyHandler{eventType: "ping"}

	p := newTestProcessor(repo, 3, h)
	p.drain(context.Background(), zap.NewNop())

	assert.Equal(t, 1, h.calls)
	stored, err := repo.GetByID(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, event.StatusProcessed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.NotNil(t, stored.ProcessedAt)
}

func TestProcessor_UnhandledTypeCompletes(t *testing.T) {
	repo := newMockEventRepository()
	repo.addQueued("evt_1", "charge.refunded")

	p := newTestProcessor(repo, 3)
	p.drain(context.Background(), zap.NewNop())

	stored, err := repo.GetByID(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, event.StatusProcessed, stored.Status)
}

func TestProcessor_FailureSchedulesRetry(t *testing.T) {
	repo := newMockEventRepository()
	repo.addQueued("evt_1", "ping")
	h := &flakyHandler{eventType: "ping", failures: 1}

	p := newTestProcessor(repo, 3, h)
	p.drain(context.Background(), zap.NewNop())

	stored, err := repo.GetByID(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, event.StatusQueued, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "downstream unavailable", stored.LastError)
	require.NotNil(t, stored.NextAttemptAt, "retry must carry a due time")
	assert.True(t, stored.NextAttemptAt.After(time.Now()))
}

func TestProcessor_RetriedEventEventuallySucceeds(t *testing.T) {
	repo := newMockEventRepository()
	repo.addQueued("evt_1", "ping")
	h := &flakyHandler{eventType: "ping", failures: 2}

	p := newTestProcessor(repo, 5, h)
	// Each drain pass claims due events once; advance the clock past the
	// scheduled backoff between passes.
	fake := time.Now()
	p.now = func() time.Time { return fake }
	for i := 0; i < 3; i++ {
		p.drain(context.Background(), zap.NewNop())
		fake = fake.Add(10 * time.Minute)
	}

	stored, err := repo.GetByID(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, event.StatusProcessed, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	assert.Equal(t, 3, h.calls)
}

func TestProcessor_ExhaustedAttemptsParkFailed(t *testing.T) {
	repo := newMockEventRepository()
	repo.addQueued("evt_1", "ping")
	h := &flakyHandler{eventType: "ping", failures: 100}

	p := newTestProcessor(repo, 2, h)
	fake := time.Now()
	p.now = func() time.Time { return fake }
	for i := 0; i < 4; i++ {
		p.drain(context.Background(), zap.NewNop())
		fake = fake.Add(10 * time.Minute)
	}

	stored, err := repo.GetByID(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, event.StatusFailed, stored.Status)
	assert.Equal(t, 2, stored.Attempts, "no attempts past the budget")
	assert.Equal(t, 2, h.calls)
	assert.Equal(t, "downstream unavailable", stored.LastError)
}

func TestProcessor_RequeueResetsAttemptBudget(t *testing.T) {
	repo := newMockEventRepository()
	repo.addQueued("evt_1", "ping")
	h := &flakyHandler{eventType: "ping", failures: 2}

	p := newTestProcessor(repo, 2, h)
	fake := time.Now()
	p.now = func() time.Time { return fake }
	for i := 0; i < 3; i++ {
		p.drain(context.Background(), zap.NewNop())
		fake = fake.Add(10 * time.Minute)
	}

	stored, err := repo.GetByID(context.Background(), "evt_1")
	require.NoError(t, err)
	require.Equal(t, event.StatusFailed, stored.Status)

	requeued, err := repo.Requeue(context.Background(), "evt_1")
	require.NoError(t, err)
	require.True(t, requeued)

	p.drain(context.Background(), zap.NewNop())

	stored, err = repo.GetByID(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, event.StatusProcessed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 10 * time.Second},
		{attempt: 1, want: 10 * time.Second},
		{attempt: 2, want: 20 * time.Second},
		{attempt: 3, want: 40 * time.Second},
		{attempt: 4, want: 80 * time.Second},
		{attempt: 5, want: 160 * time.Second},
		{attempt: 6, want: 5 * time.Minute},
		{attempt: 20, want: 5 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDuration(tt.attempt), "attempt %d", tt.attempt)
	}
}
