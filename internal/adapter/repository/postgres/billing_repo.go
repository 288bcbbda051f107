package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/iamez/ez-solutions/internal/domain/billing"
)

// CustomerModel is the database DTO with Gorm tags.
type CustomerModel struct {
	ID                 int64  `gorm:"primaryKey"`
	Email              string `gorm:"type:varchar(255);not null"`
	ProviderCustomerID string `gorm:"type:varchar(100);uniqueIndex;not null"`
	Tier               string `gorm:"type:varchar(50);not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (CustomerModel) TableName() string {
	return "customers"
}

// SubscriptionModel is the database DTO with Gorm tags.
type SubscriptionModel struct {
	ID                     int64  `gorm:"primaryKey"`
	CustomerID             int64  `gorm:"not null;index"`
	ProviderSubscriptionID string `gorm:"type:varchar(100);uniqueIndex;not null"`
	PriceID                string `gorm:"type:varchar(100)"`
	Status                 string `gorm:"type:varchar(30);not null;index"`
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool `gorm:"default:false"`
	SourceTS               time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

type CustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) FindByProviderID(ctx context.Context, providerCustomerID string) (*billing.Customer, error) {
	var model CustomerModel
	err := r.db.WithContext(ctx).
		Where("provider_customer_id = ?", providerCustomerID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toCustomerDomain(model), nil
}

func (r *CustomerRepository) Save(ctx context.Context, entity *billing.Customer) error {
	model := toCustomerModel(entity)
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return err
	}
	entity.ID = model.ID
	return nil
}

func (r *CustomerRepository) UpdateTier(ctx context.Context, customerID int64, tier billing.Tier) error {
	return r.db.WithContext(ctx).Model(&CustomerModel{}).
		Where("id = ?", customerID).
		Updates(map[string]any{
			"tier":       string(tier),
			"updated_at": time.Now().UTC(),
		}).Error
}

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) FindByProviderID(ctx context.Context, providerSubscriptionID string) (*billing.Subscription, error) {
	var model SubscriptionModel
	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toSubscriptionDomain(model), nil
}

// UpsertIfNewer applies the subscription mirror unless the incoming source
// timestamp is strictly older than the stored one. An equal timestamp still
// counts as applied: the write is a no-op-equivalent, but a redelivered
// event must re-run its follow-up effects (tier changes) that a crashed
// first attempt may have dropped. A racing insert of the same provider ID
// is absorbed with ON CONFLICT DO NOTHING and falls through to the guarded
// update.
func (r *SubscriptionRepository) UpsertIfNewer(ctx context.Context, sub *billing.Subscription) (bool, error) {
	applied := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var existing SubscriptionModel
		err := tx.Where("provider_subscription_id = ?", sub.ProviderSubscriptionID).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			model := toSubscriptionModel(sub)
			model.CreatedAt = now
			model.UpdatedAt = now
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 1 {
				sub.ID = model.ID
				applied = true
				return nil
			}
			// Lost the insert race; load the winner and fall through to
			// the guarded update.
			if err := tx.Where("provider_subscription_id = ?", sub.ProviderSubscriptionID).
				First(&existing).Error; err != nil {
				return err
			}
		}

		result := tx.Model(&SubscriptionModel{}).
			Where("provider_subscription_id = ? AND source_ts <= ?", sub.ProviderSubscriptionID, sub.SourceTS).
			Updates(map[string]any{
				"customer_id":          sub.CustomerID,
				"price_id":             sub.PriceID,
				"status":               string(sub.Status),
				"current_period_start": sub.CurrentPeriodStart,
				"current_period_end":   sub.CurrentPeriodEnd,
				"cancel_at_period_end": sub.CancelAtPeriodEnd,
				"source_ts":            sub.SourceTS,
				"updated_at":           now,
			})
		if result.Error != nil {
			return result.Error
		}

		sub.ID = existing.ID
		applied = result.RowsAffected > 0
		return nil
	})

	return applied, err
}

// Mappers

func toCustomerDomain(m CustomerModel) *billing.Customer {
	return &billing.Customer{
		ID:                 m.ID,
		Email:              m.Email,
		ProviderCustomerID: m.ProviderCustomerID,
		Tier:               billing.Tier(m.Tier),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func toCustomerModel(d *billing.Customer) CustomerModel {
	return CustomerModel{
		ID:                 d.ID,
		Email:              d.Email,
		ProviderCustomerID: d.ProviderCustomerID,
		Tier:               string(d.Tier),
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func toSubscriptionDomain(m SubscriptionModel) *billing.Subscription {
	return &billing.Subscription{
		ID:                     m.ID,
		CustomerID:             m.CustomerID,
		ProviderSubscriptionID: m.ProviderSubscriptionID,
		PriceID:                m.PriceID,
		Status:                 billing.SubscriptionStatus(m.Status),
		CurrentPeriodStart:     m.CurrentPeriodStart,
		CurrentPeriodEnd:       m.CurrentPeriodEnd,
		CancelAtPeriodEnd:      m.CancelAtPeriodEnd,
		SourceTS:               m.SourceTS,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func toSubscriptionModel(d *billing.Subscription) SubscriptionModel {
	return SubscriptionModel{
		ID:                     d.ID,
		CustomerID:             d.CustomerID,
		ProviderSubscriptionID: d.ProviderSubscriptionID,
		PriceID:                d.PriceID,
		Status:                 string(d.Status),
		CurrentPeriodStart:     d.CurrentPeriodStart,
		CurrentPeriodEnd:       d.CurrentPeriodEnd,
		CancelAtPeriodEnd:      d.CancelAtPeriodEnd,
		SourceTS:               d.SourceTS,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}
