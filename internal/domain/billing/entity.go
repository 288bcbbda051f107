package billing

import "time"

// Tier represents the account subscription level.
type Tier string

const (
	TierFree         Tier = "free"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// TierForPlanSlug maps a catalog plan slug to the tier it grants.
// Unknown slugs grant nothing (empty tier).
func TierForPlanSlug(slug string) Tier {
	switch slug {
	case "starter":
		return TierStarter
	case "professional":
		return TierProfessional
	case "enterprise":
		return TierEnterprise
	default:
		return ""
	}
}

// SubscriptionStatus mirrors the provider's subscription states.
type SubscriptionStatus string

const (
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionPaused            SubscriptionStatus = "paused"
)

// RevokesAccess reports whether the status means the customer should
// drop back to the free tier.
func (s SubscriptionStatus) RevokesAccess() bool {
	switch s {
	case SubscriptionCanceled, SubscriptionUnpaid, SubscriptionIncompleteExpired:
		return true
	default:
		return false
	}
}

// Customer links a portal account to the payments provider's customer object.
type Customer struct {
	ID                 int64     `json:"id,string"`
	Email              string    `json:"email"`
	ProviderCustomerID string    `json:"provider_customer_id"`
	Tier               Tier      `json:"tier"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Subscription mirrors the provider's subscription object. SourceTS is the
// provider-side timestamp of the event that last wrote this row; writes
// carrying an older SourceTS are rejected so late redeliveries never
// regress newer state.
type Subscription struct {
	ID                     int64              `json:"id,string"`
	CustomerID             int64              `json:"customer_id,string"`
	ProviderSubscriptionID string             `json:"provider_subscription_id"`
	PriceID                string             `json:"price_id"`
	Status                 SubscriptionStatus `json:"status"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end"`
	SourceTS               time.Time          `json:"source_ts"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}
