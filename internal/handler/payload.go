package handler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iamez/ez-solutions/internal/domain/event"
)

// eventEnvelope is the provider's notification wrapper. Created is the
// provider-side send time and doubles as the monotonic version for
// out-of-order protection.
type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// decodeObject extracts the domain object and source timestamp from a
// stored event payload.
func decodeObject(ev event.Event) (json.RawMessage, time.Time, error) {
	var env eventEnvelope
	if err := json.Unmarshal(ev.Payload, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode event envelope: %w", err)
	}
	if len(env.Data.Object) == 0 {
		return nil, time.Time{}, fmt.Errorf("event %s carries no data object", ev.ID)
	}
	return env.Data.Object, time.Unix(env.Created, 0).UTC(), nil
}

// subscriptionObject is the provider's subscription shape, reduced to the
// fields the mirror tracks.
type subscriptionObject struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (o *subscriptionObject) priceID() string {
	if len(o.Items.Data) == 0 {
		return ""
	}
	return o.Items.Data[0].Price.ID
}

func unixPtr(v int64) *time.Time {
	if v == 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}

// checkoutSessionObject is the provider's checkout session shape.
type checkoutSessionObject struct {
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}
