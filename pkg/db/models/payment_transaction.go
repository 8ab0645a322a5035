package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/payvault-backend/pkg/enums"
)

// PaymentTransaction records one charge attempt. The primary key is either the
// gateway transaction id or a deterministic renewal id.
type PaymentTransaction struct {
	ID                      string                `gorm:"column:id;primaryKey"`
	Provider                enums.PaymentProvider `gorm:"column:provider;type:text;not null;index:ix_pt_provider_order,priority:1;index:ix_pt_provider_charge,priority:1"`
	ProviderOrderID         *string               `gorm:"column:provider_order_id;index:ix_pt_provider_order,priority:2"`
	ProviderChargeID        *string               `gorm:"column:provider_charge_id;index:ix_pt_provider_charge,priority:2"`
	MerchantID              uuid.UUID             `gorm:"column:merchant_id;type:uuid;not null;index"`
	CustomerID              uuid.UUID             `gorm:"column:customer_id;type:uuid;not null;index"`
	CustomerPaymentMethodID *uuid.UUID            `gorm:"column:customer_payment_method_id;type:uuid"`
	SubscriptionID          *uuid.UUID            `gorm:"column:subscription_id;type:uuid;index"`
	PeriodKey               *string               `gorm:"column:period_key"`
	AmountCents             int64                 `gorm:"column:amount_cents;not null"`
	Currency                string                `gorm:"column:currency;not null"`
	Status                  string                `gorm:"column:status;not null"`
	StatusV2                enums.PaymentStatusV2 `gorm:"column:status_v2;type:text;not null"`
	PaidAt                  *time.Time            `gorm:"column:paid_at"`
	ErrorMessage            *string               `gorm:"column:error_message"`
	RawPayload              datatypes.JSON        `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt               time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
