package billing

import "context"

// CustomerRepository persists Customer entities. Lookups return (nil, nil)
// when the customer is unknown.
type CustomerRepository interface {
	FindByProviderID(ctx context.Context, providerCustomerID string) (*Customer, error)
	Save(ctx context.Context, customer *Customer) error
	UpdateTier(ctx context.Context, customerID int64, tier Tier) error
}

// SubscriptionRepository persists Subscription mirrors.
type SubscriptionRepository interface {
	FindByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)

	// UpsertIfNewer creates the subscription or updates it when the
	// incoming SourceTS is not older than the stored one. Returns
	// applied=false only for writes strictly older than the stored
	// state; an equal-version redelivery counts as applied so callers
	// re-run their follow-up effects.
	UpsertIfNewer(ctx context.Context, sub *Subscription) (applied bool, err error)
}
