package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/domain/billing"
	"github.com/iamez/ez-solutions/pkg/billingclient"
)

type mockSubscriptionFetcher struct {
	subs  map[string]*billingclient.Subscription
	err   error
	calls int
}

func (m *mockSubscriptionFetcher) GetSubscription(ctx context.Context, id string) (*billingclient.Subscription, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	sub, ok := m.subs[id]
	if !ok {
		return nil, &billingclient.APIError{Status: 404, Message: "no such subscription"}
	}
	return sub, nil
}

type checkoutFixture struct {
	customers *mockCustomerRepository
	subs      *mockSubscriptionRepository
	fetcher   *mockSubscriptionFetcher
	handler   *Checkout
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	customers := newMockCustomerRepository()
	subs := newMockSubscriptionRepository()
	fetcher := &mockSubscriptionFetcher{subs: make(map[string]*billingclient.Subscription)}

	require.NoError(t, customers.Save(context.Background(), &billing.Customer{
		ID:                 200,
		Email:              "buyer@example.com",
		ProviderCustomerID: "cus_456",
		Tier:               billing.TierFree,
	}))

	now := time.Now().UTC()
	fetcher.subs["sub_new"] = &billingclient.Subscription{
		ID:                 "sub_new",
		CustomerID:         "cus_456",
		Status:             "active",
		CurrentPeriodStart: now.Unix(),
		CurrentPeriodEnd:   now.Add(30 * 24 * time.Hour).Unix(),
		Items: billingclient.SubscriptionItems{
			Data: []billingclient.SubscriptionItem{
				{Price: billingclient.Price{ID: "price_pro_monthly"}, Quantity: 1},
			},
		},
	}

	return &checkoutFixture{
		customers: customers,
		subs:      subs,
		fetcher:   fetcher,
		handler:   NewCheckout(customers, subs, fetcher, newTestNode(t), zap.NewNop()),
	}
}

func checkoutSession(customer, subscription, planSlug string) map[string]any {
	session := map[string]any{
		"customer":     customer,
		"subscription": subscription,
	}
	if planSlug != "" {
		session["metadata"] = map[string]string{"plan_slug": planSlug}
	}
	return session
}

func TestCheckout_UpgradesCustomer(t *testing.T) {
	f := newCheckoutFixture(t)

	ev := makeEvent(t, "evt_co_1", TypeCheckoutCompleted, time.Now(), checkoutSession("cus_456", "sub_new", "professional"))
	require.NoError(t, f.handler.Handle(context.Background(), ev))

	stored, err := f.subs.FindByProviderID(context.Background(), "sub_new")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(200), stored.CustomerID)
	assert.Equal(t, billing.SubscriptionActive, stored.Status)
	assert.Equal(t, "price_pro_monthly", stored.PriceID)

	assert.Equal(t, billing.TierProfessional, f.customers.tiers[200])
}

func TestCheckout_RedeliveryIsIdempotent(t *testing.T) {
	f := newCheckoutFixture(t)

	ev := makeEvent(t, "evt_co_1", TypeCheckoutCompleted, time.Now(), checkoutSession("cus_456", "sub_new", "professional"))
	require.NoError(t, f.handler.Handle(context.Background(), ev))
	first, err := f.subs.FindByProviderID(context.Background(), "sub_new")
	require.NoError(t, err)

	require.NoError(t, f.handler.Handle(context.Background(), ev))
	second, err := f.subs.FindByProviderID(context.Background(), "sub_new")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, billing.TierProfessional, f.customers.tiers[200])
}

func TestCheckout_RetryAppliesUpgradeAfterTransientFailure(t *testing.T) {
	f := newCheckoutFixture(t)
	f.customers.updateTierFailures = 1

	ev := makeEvent(t, "evt_co_1", TypeCheckoutCompleted, time.Now(), checkoutSession("cus_456", "sub_new", "professional"))

	require.Error(t, f.handler.Handle(context.Background(), ev))
	assert.Equal(t, billing.TierFree, f.customers.tiers[200])

	require.NoError(t, f.handler.Handle(context.Background(), ev))
	assert.Equal(t, billing.TierProfessional, f.customers.tiers[200])
}

func TestCheckout_OneTimePaymentIsIgnored(t *testing.T) {
	f := newCheckoutFixture(t)

	ev := makeEvent(t, "evt_co_1", TypeCheckoutCompleted, time.Now(), checkoutSession("cus_456", "", "professional"))
	require.NoError(t, f.handler.Handle(context.Background(), ev))

	assert.Zero(t, f.fetcher.calls)
	assert.Equal(t, billing.TierFree, f.customers.tiers[200])
}

func TestCheckout_UnknownCustomerIsSkipped(t *testing.T) {
	f := newCheckoutFixture(t)

	ev := makeEvent(t, "evt_co_1", TypeCheckoutCompleted, time.Now(), checkoutSession("cus_missing", "sub_new", "professional"))
	require.NoError(t, f.handler.Handle(context.Background(), ev))

	stored, err := f.subs.FindByProviderID(context.Background(), "sub_new")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCheckout_ProviderFailureIsRetryable(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fetcher.err = errors.New("connection refused")

	ev := makeEvent(t, "evt_co_1", TypeCheckoutCompleted, time.Now(), checkoutSession("cus_456", "sub_new", "professional"))
	err := f.handler.Handle(context.Background(), ev)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch subscription")
}

func TestCheckout_UnknownPlanSlugLeavesTier(t *testing.T) {
	f := newCheckoutFixture(t)

	ev := makeEvent(t, "evt_co_1", TypeCheckoutCompleted, time.Now(), checkoutSession("cus_456", "sub_new", "mystery"))
	require.NoError(t, f.handler.Handle(context.Background(), ev))

	stored, err := f.subs.FindByProviderID(context.Background(), "sub_new")
	require.NoError(t, err)
	require.NotNil(t, stored, "subscription mirror still written")
	assert.Equal(t, billing.TierFree, f.customers.tiers[200])
}
