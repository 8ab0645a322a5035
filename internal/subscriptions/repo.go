package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payvault-backend/internal/repo"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
)

const defaultDueLimit = 200

// Repository handles subscription persistence for the renewal flow.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	Update(ctx context.Context, subscription *models.Subscription) error
}

type repository struct {
	repo.Base
}

// NewRepository returns a subscriptions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// FindByID returns nil without error when the subscription does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return r.find(r.DB(ctx), id)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return r.find(r.ForUpdate(ctx), id)
}

func (r *repository) find(conn *gorm.DB, id uuid.UUID) (*models.Subscription, error) {
	sub, err := repo.FirstOrNil[models.Subscription](conn.Where("id = ?", id))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return sub, nil
}

// ListDue returns renewable subscriptions whose period ended at or before now,
// oldest first.
func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}
	var subs []models.Subscription
	if err := r.DB(ctx).
		Where("status IN ?", enums.RenewableSubscriptionStatuses()).
		Where("current_period_end IS NOT NULL AND current_period_end <= ?", now.UTC()).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due subscriptions")
	}
	return subs, nil
}

func (r *repository) Update(ctx context.Context, subscription *models.Subscription) error {
	if err := r.DB(ctx).Save(subscription).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
	}
	return nil
}
