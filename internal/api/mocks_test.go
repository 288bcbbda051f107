package api

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/config"
	"github.com/iamez/ez-solutions/internal/domain/event"
	"github.com/iamez/ez-solutions/internal/ingest"
)

const (
	testWebhookSecret = "whsec_router_test"
	testAdminToken    = "admin_router_test"
)

// mockEventRepository backs the router tests with an in-memory log.
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
	return nil, nil
}

func (m *mockEventRepository) MarkProcessed(ctx context.Context, id string) error { return nil }

func (m *mockEventRepository) MarkRetry(ctx context.Context, id string, lastErr string, nextAttemptAt time.Time) error {
	return nil
}

func (m *mockEventRepository) MarkFailed(ctx context.Context, id string, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.events[id]; ok {
		ev.Status = event.StatusFailed
		ev.LastError = lastErr
	}
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
	return 0, nil
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

func newTestRouter(t *testing.T, repo event.Repository) *Router {
	t.Helper()
	cfg := &config.Config{
		Port:                "0",
		AdminAPIToken:       testAdminToken,
		WebhookSecret:       testWebhookSecret,
		WebhookReplayWindow: 5 * time.Minute,
		WebhookMaxBodyBytes: 1 << 20,
	}
	logger := zap.NewNop()
	svc, err := ingest.NewService(cfg, repo, nil, logger)
	require.NoError(t, err)
	return NewRouter(cfg, svc, repo, logger)
}
