package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/domain/billing"
	"github.com/iamez/ez-solutions/internal/domain/event"
	"github.com/iamez/ez-solutions/pkg/snowflake"
)

const (
	TypeSubscriptionUpdated = "customer.subscription.updated"
	TypeSubscriptionDeleted = "customer.subscription.deleted"
)

// SubscriptionChange keeps the local subscription mirror in sync with the
// provider. The same logic serves updated and deleted notifications; a
// deleted subscription arrives as a final canceled state.
//
// Writes go through UpsertIfNewer keyed on the event's source timestamp,
// so an out-of-order arrival never overwrites newer state: arrival order
// is meaningless, source order wins. An equal-version redelivery still
// counts as applied, which lets a retry re-run the tier change after a
// first attempt crashed between the subscription write and the tier write.
type SubscriptionChange struct {
	eventType string
	customers billing.CustomerRepository
	subs      billing.SubscriptionRepository
	ids       *snowflake.Node
	logger    *zap.Logger
}

func NewSubscriptionUpdated(customers billing.CustomerRepository, subs billing.SubscriptionRepository, ids *snowflake.Node, logger *zap.Logger) *SubscriptionChange {
	return newSubscriptionChange(TypeSubscriptionUpdated, customers, subs, ids, logger)
}

func NewSubscriptionDeleted(customers billing.CustomerRepository, subs billing.SubscriptionRepository, ids *snowflake.Node, logger *zap.Logger) *SubscriptionChange {
	return newSubscriptionChange(TypeSubscriptionDeleted, customers, subs, ids, logger)
}

func newSubscriptionChange(eventType string, customers billing.CustomerRepository, subs billing.SubscriptionRepository, ids *snowflake.Node, logger *zap.Logger) *SubscriptionChange {
	return &SubscriptionChange{
		eventType: eventType,
		customers: customers,
		subs:      subs,
		ids:       ids,
		logger:    logger.Named("subscription"),
	}
}

func (h *SubscriptionChange) EventType() string {
	return h.eventType
}

func (h *SubscriptionChange) Handle(ctx context.Context, ev event.Event) error {
	object, sourceTS, err := decodeObject(ev)
	if err != nil {
		return err
	}

	var obj subscriptionObject
	if err := json.Unmarshal(object, &obj); err != nil {
		return fmt.Errorf("decode subscription object: %w", err)
	}
	if obj.ID == "" || obj.Customer == "" {
		return fmt.Errorf("subscription object missing id or customer")
	}

	customer, err := h.customers.FindByProviderID(ctx, obj.Customer)
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		// Not an error: the provider can notify about customers this
		// portal never created. Recorded and completed, no side effects.
		h.logger.Warn("subscription_change_unknown_customer",
			zap.String("event_id", ev.ID),
			zap.String("provider_customer_id", obj.Customer),
		)
		return nil
	}

	status := billing.SubscriptionStatus(obj.Status)
	if h.eventType == TypeSubscriptionDeleted && status == "" {
		status = billing.SubscriptionCanceled
	}

	sub := &billing.Subscription{
		ID:                     h.ids.GenerateID(),
		CustomerID:             customer.ID,
		ProviderSubscriptionID: obj.ID,
		PriceID:                obj.priceID(),
		Status:                 status,
		CurrentPeriodStart:     unixPtr(obj.CurrentPeriodStart),
		CurrentPeriodEnd:       unixPtr(obj.CurrentPeriodEnd),
		CancelAtPeriodEnd:      obj.CancelAtPeriodEnd,
		SourceTS:               sourceTS,
	}

	applied, err := h.subs.UpsertIfNewer(ctx, sub)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	if !applied {
		h.logger.Info("subscription_change_stale_skipped",
			zap.String("event_id", ev.ID),
			zap.String("provider_subscription_id", obj.ID),
		)
		return nil
	}

	if status.RevokesAccess() {
		if err := h.customers.UpdateTier(ctx, customer.ID, billing.TierFree); err != nil {
			return fmt.Errorf("downgrade customer tier: %w", err)
		}
		h.logger.Info("customer_downgraded",
			zap.Int64("customer_id", customer.ID),
			zap.String("subscription_status", string(status)),
		)
	}

	return nil
}
