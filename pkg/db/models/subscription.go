package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/payvault-backend/pkg/enums"
)

// Subscription is a recurring charge against a customer's saved card.
type Subscription struct {
	ID                      uuid.UUID                                `gorm:"type:uuid;primaryKey"`
	CustomerID              uuid.UUID                                `gorm:"column:customer_id;type:uuid;not null;index"`
	MerchantID              uuid.UUID                                `gorm:"column:merchant_id;type:uuid;not null;index"`
	Provider                enums.PaymentProvider                    `gorm:"column:provider;type:text;not null"`
	CustomerPaymentMethodID *uuid.UUID                               `gorm:"column:customer_payment_method_id;type:uuid"`
	AmountCents             int64                                    `gorm:"column:amount_cents;not null"`
	Currency                string                                   `gorm:"column:currency;not null"`
	Description             string                                   `gorm:"column:description;not null;default:''"`
	Status                  enums.SubscriptionStatus                 `gorm:"column:status;type:text;not null;default:'ACTIVE';index"`
	Interval                enums.BillingInterval                    `gorm:"column:billing_interval;type:text;not null;default:'MONTH'"`
	IntervalCount           int                                      `gorm:"column:interval_count;not null;default:1"`
	CurrentPeriodStart      *time.Time                               `gorm:"column:current_period_start"`
	CurrentPeriodEnd        *time.Time                               `gorm:"column:current_period_end;index"`
	Metadata                datatypes.JSONType[SubscriptionMetadata] `gorm:"column:metadata;type:jsonb"`
	CreatedAt               time.Time                                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time                                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// SubscriptionMetadata is the only accepted shape of subscriptions.metadata.
type SubscriptionMetadata struct {
	RenewalEnabled           *bool      `json:"renewal_enabled,omitempty"`
	ProductName              string     `json:"product_name,omitempty"`
	LastRenewalError         string     `json:"last_renewal_error,omitempty"`
	LastRenewalAttemptAt     *time.Time `json:"last_renewal_attempt_at,omitempty"`
	LastRenewalTransactionID string     `json:"last_renewal_transaction_id,omitempty"`
	FailedRenewalCount       int        `json:"failed_renewal_count,omitempty"`
}

// RenewalAllowed defaults to true when the flag is absent.
func (m SubscriptionMetadata) RenewalAllowed() bool {
	return m.RenewalEnabled == nil || *m.RenewalEnabled
}
