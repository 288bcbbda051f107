package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/domain/billing"
	"github.com/iamez/ez-solutions/internal/domain/event"
	"github.com/iamez/ez-solutions/pkg/billingclient"
	"github.com/iamez/ez-solutions/pkg/snowflake"
)

const TypeCheckoutCompleted = "checkout.session.completed"

// SubscriptionFetcher retrieves the full subscription from the provider.
// The checkout notification only carries references, so the handler has
// to go back to the source for period bounds and price.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*billingclient.Subscription, error)
}

// Checkout completes a purchase: it mirrors the new subscription and
// lifts the customer onto the tier named in the session metadata.
type Checkout struct {
	customers billing.CustomerRepository
	subs      billing.SubscriptionRepository
	provider  SubscriptionFetcher
	ids       *snowflake.Node
	logger    *zap.Logger
}

func NewCheckout(customers billing.CustomerRepository, subs billing.SubscriptionRepository, provider SubscriptionFetcher, ids *snowflake.Node, logger *zap.Logger) *Checkout {
	return &Checkout{
		customers: customers,
		subs:      subs,
		provider:  provider,
		ids:       ids,
		logger:    logger.Named("checkout"),
	}
}

func (h *Checkout) EventType() string {
	return TypeCheckoutCompleted
}

func (h *Checkout) Handle(ctx context.Context, ev event.Event) error {
	object, sourceTS, err := decodeObject(ev)
	if err != nil {
		return err
	}

	var session checkoutSessionObject
	if err := json.Unmarshal(object, &session); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	if session.Customer == "" || session.Subscription == "" {
		// One-time payments produce sessions without a subscription.
		// Nothing to mirror.
		h.logger.Info("checkout_without_subscription",
			zap.String("event_id", ev.ID),
		)
		return nil
	}

	customer, err := h.customers.FindByProviderID(ctx, session.Customer)
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		h.logger.Warn("checkout_unknown_customer",
			zap.String("event_id", ev.ID),
			zap.String("provider_customer_id", session.Customer),
		)
		return nil
	}

	// The session omits subscription details, fetch the full object. A
	// transient provider failure surfaces as an error so the attempt is
	// retried later.
	providerSub, err := h.provider.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", session.Subscription, err)
	}

	sub := &billing.Subscription{
		ID:                     h.ids.GenerateID(),
		CustomerID:             customer.ID,
		ProviderSubscriptionID: providerSub.ID,
		PriceID:                providerSub.PriceID(),
		Status:                 billing.SubscriptionStatus(providerSub.Status),
		CurrentPeriodStart:     unixPtr(providerSub.CurrentPeriodStart),
		CurrentPeriodEnd:       unixPtr(providerSub.CurrentPeriodEnd),
		CancelAtPeriodEnd:      providerSub.CancelAtPeriodEnd,
		SourceTS:               sourceTS,
	}

	applied, err := h.subs.UpsertIfNewer(ctx, sub)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	if !applied {
		h.logger.Info("checkout_stale_skipped",
			zap.String("event_id", ev.ID),
			zap.String("provider_subscription_id", providerSub.ID),
		)
		return nil
	}

	tier := billing.TierForPlanSlug(session.Metadata["plan_slug"])
	if tier == "" {
		h.logger.Warn("checkout_unknown_plan_slug",
			zap.String("event_id", ev.ID),
			zap.String("plan_slug", session.Metadata["plan_slug"]),
		)
		return nil
	}

	if err := h.customers.UpdateTier(ctx, customer.ID, tier); err != nil {
		return fmt.Errorf("upgrade customer tier: %w", err)
	}
	h.logger.Info("customer_upgraded",
		zap.Int64("customer_id", customer.ID),
		zap.String("tier", string(tier)),
	)

	return nil
}
