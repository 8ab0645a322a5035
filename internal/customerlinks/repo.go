package customerlinks

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/payvault-backend/internal/repo"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
)

// Repository persists the mapping between customers and their gateway-side records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, customerID uuid.UUID, provider enums.PaymentProvider) (*models.CustomerProvider, error)
	Upsert(ctx context.Context, link *models.CustomerProvider) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// Find returns nil without error when the customer has no link for provider.
func (r *repository) Find(ctx context.Context, customerID uuid.UUID, provider enums.PaymentProvider) (*models.CustomerProvider, error) {
	link, err := repo.FirstOrNil[models.CustomerProvider](r.DB(ctx).
		Where("customer_id = ? AND provider = ?", customerID, provider))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer provider link")
	}
	return link, nil
}

// Upsert stores the link keyed by (customer_id, provider); an existing row gets
// the new provider customer id and account.
func (r *repository) Upsert(ctx context.Context, link *models.CustomerProvider) error {
	if link == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer provider link is required")
	}
	if strings.TrimSpace(link.ProviderCustomerID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider customer id is required")
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	err := r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider_customer_id", "account_id", "updated_at"}),
	}).Create(link).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert customer provider link")
	}
	return nil
}
