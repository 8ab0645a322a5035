package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payvault-backend/pkg/enums"
)

// CustomerPaymentMethod is a saved card: an opaque gateway token plus display metadata.
type CustomerPaymentMethod struct {
	ID                      uuid.UUID             `gorm:"type:uuid;primaryKey"`
	CustomerID              uuid.UUID             `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:ux_cpm_customer_provider_fingerprint,priority:1;index"`
	Provider                enums.PaymentProvider `gorm:"column:provider;type:text;not null;uniqueIndex:ux_cpm_customer_provider_fingerprint,priority:2"`
	AccountID               *string               `gorm:"column:account_id"`
	ProviderPaymentMethodID string                `gorm:"column:provider_payment_method_id;not null"`
	Brand                   *string               `gorm:"column:brand"`
	Last4                   *string               `gorm:"column:last4"`
	ExpMonth                *int                  `gorm:"column:exp_month"`
	ExpYear                 *int                  `gorm:"column:exp_year"`
	Fingerprint             string                `gorm:"column:fingerprint;not null;uniqueIndex:ux_cpm_customer_provider_fingerprint,priority:3"`
	IsDefault               bool                  `gorm:"column:is_default;not null;default:false"`
	Status                  enums.CardStatus      `gorm:"column:status;type:text;not null;default:'ACTIVE'"`
	CreatedAt               time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (CustomerPaymentMethod) TableName() string {
	return "customer_payment_methods"
}
