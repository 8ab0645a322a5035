package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payvault-backend/pkg/enums"
)

// CustomerProvider links an internal customer to its record at a gateway.
type CustomerProvider struct {
	ID                 uuid.UUID             `gorm:"type:uuid;primaryKey"`
	CustomerID         uuid.UUID             `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:ux_customer_providers_customer_provider,priority:1"`
	Provider           enums.PaymentProvider `gorm:"column:provider;type:text;not null;uniqueIndex:ux_customer_providers_customer_provider,priority:2"`
	ProviderCustomerID string                `gorm:"column:provider_customer_id;not null"`
	AccountID          *string               `gorm:"column:account_id"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (CustomerProvider) TableName() string {
	return "customer_providers"
}
