package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iamez/ez-solutions/internal/config"
	"github.com/iamez/ez-solutions/internal/domain/billing"
	"github.com/iamez/ez-solutions/internal/domain/event"
	"github.com/iamez/ez-solutions/pkg/snowflake"
)

// mockCustomerRepository is a simple in-memory repository for testing.
// updateTierFailures makes the next N UpdateTier calls fail, simulating a
// transient store outage between the subscription write and the tier write.
type mockCustomerRepository struct {
	customers          map[string]*billing.Customer
	tiers              map[int64]billing.Tier
	updateTierFailures int
}

func newMockCustomerRepository() *mockCustomerRepository {
	return &mockCustomerRepository{
		customers: make(map[string]*billing.Customer),
		tiers:     make(map[int64]billing.Tier),
	}
}

func (m *mockCustomerRepository) FindByProviderID(ctx context.Context, providerCustomerID string) (*billing.Customer, error) {
	c, ok := m.customers[providerCustomerID]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (m *mockCustomerRepository) Save(ctx context.Context, customer *billing.Customer) error {
	m.customers[customer.ProviderCustomerID] = customer
	m.tiers[customer.ID] = customer.Tier
	return nil
}

func (m *mockCustomerRepository) UpdateTier(ctx context.Context, customerID int64, tier billing.Tier) error {
	if m.updateTierFailures > 0 {
		m.updateTierFailures--
		return errors.New("customer store unavailable")
	}
	m.tiers[customerID] = tier
	for _, c := range m.customers {
		if c.ID == customerID {
			c.Tier = tier
		}
	}
	return nil
}

// mockSubscriptionRepository keeps mirrors keyed by provider subscription ID
// and enforces the same staleness rule as the real store: only writes
// strictly older than the stored state are rejected.
type mockSubscriptionRepository struct {
	subs map[string]*billing.Subscription
}

func newMockSubscriptionRepository() *mockSubscriptionRepository {
	return &mockSubscriptionRepository{
		subs: make(map[string]*billing.Subscription),
	}
}

func (m *mockSubscriptionRepository) FindByProviderID(ctx context.Context, providerSubscriptionID string) (*billing.Subscription, error) {
	s, ok := m.subs[providerSubscriptionID]
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (m *mockSubscriptionRepository) UpsertIfNewer(ctx context.Context, sub *billing.Subscription) (bool, error) {
	existing, ok := m.subs[sub.ProviderSubscriptionID]
	if !ok {
		copied := *sub
		m.subs[sub.ProviderSubscriptionID] = &copied
		return true, nil
	}
	if existing.SourceTS.After(sub.SourceTS) {
		return false, nil
	}
	copied := *sub
	copied.ID = existing.ID
	m.subs[sub.ProviderSubscriptionID] = &copied
	return true, nil
}

func newTestNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(&config.Config{SnowflakeNodeID: 1})
	require.NoError(t, err)
	return node
}

// makeEvent wraps a domain object in the provider envelope and returns the
// stored event the worker would hand to a handler.
func makeEvent(t *testing.T, id, eventType string, created time.Time, object any) event.Event {
	t.Helper()

	objectJSON, err := json.Marshal(object)
	require.NoError(t, err)

	payload := fmt.Sprintf(`{"id":%q,"type":%q,"created":%d,"data":{"object":%s}}`,
		id, eventType, created.Unix(), objectJSON)

	return event.Event{
		ID:         id,
		Type:       eventType,
		Payload:    json.RawMessage(payload),
		Status:     event.StatusProcessing,
		ReceivedAt: time.Now().UTC(),
	}
}
