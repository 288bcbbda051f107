package billingclient

import (
	"context"
	"fmt"
	"net/http"
)

// Subscription is the provider's view of a subscription, as returned by
// the subscriptions endpoint. Timestamps are unix seconds.
type Subscription struct {
	ID                 string            `json:"id"`
	CustomerID         string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Created            int64             `json:"created"`
	Items              SubscriptionItems `json:"items"`
}

type SubscriptionItems struct {
	Data []SubscriptionItem `json:"data"`
}

type SubscriptionItem struct {
	ID       string `json:"id"`
	Price    Price  `json:"price"`
	Quantity int    `json:"quantity"`
}

type Price struct {
	ID string `json:"id"`
}

// PriceID returns the price of the first subscription item, or "" when
// the subscription has no items.
func (s *Subscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// GetSubscription retrieves a subscription by ID. Results are served
// from the TTL cache when present.
func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	cacheKey := "subscription:" + id
	if v, ok := c.cache.Get(cacheKey); ok {
		if sub, ok := v.(*Subscription); ok {
			return sub, nil
		}
	}

	path := fmt.Sprintf("/v1/subscriptions/%s", id)
	var sub Subscription
	if err := c.call(ctx, true, http.MethodGet, path, nil, &sub); err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	c.cache.Set(cacheKey, &sub)
	return &sub, nil
}
