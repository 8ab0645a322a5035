package vault

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/payvault-backend/internal/repo"
	"github.com/angelmondragon/payvault-backend/pkg/db"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
)

// Repository persists saved cards and payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockCards(ctx context.Context, customerID uuid.UUID, provider enums.PaymentProvider) ([]models.CustomerPaymentMethod, error)
	CreateCard(ctx context.Context, card *models.CustomerPaymentMethod) error
	UpdateCard(ctx context.Context, card *models.CustomerPaymentMethod) error
	ClearDefault(ctx context.Context, customerID uuid.UUID, provider enums.PaymentProvider, keepID uuid.UUID) error
	ListActiveCards(ctx context.Context, customerID uuid.UUID, provider *enums.PaymentProvider) ([]models.CustomerPaymentMethod, error)
	FindActiveCard(ctx context.Context, id, customerID uuid.UUID) (*models.CustomerPaymentMethod, error)
	MarkCardExpired(ctx context.Context, id uuid.UUID) error
	FindTransaction(ctx context.Context, id string) (*models.PaymentTransaction, error)
	FindTransactionByProviderRef(ctx context.Context, provider enums.PaymentProvider, orderID, chargeID string) (*models.PaymentTransaction, error)
	InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) (bool, error)
	UpsertTransaction(ctx context.Context, txn *models.PaymentTransaction) error
}

type repository struct {
	repo.Base
}

// NewRepository returns a vault repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// LockCards returns every card of the customer at provider, row-locked for the
// rest of the transaction.
func (r *repository) LockCards(ctx context.Context, customerID uuid.UUID, provider enums.PaymentProvider) ([]models.CustomerPaymentMethod, error) {
	var cards []models.CustomerPaymentMethod
	if err := r.ForUpdate(ctx).
		Where("customer_id = ? AND provider = ?", customerID, provider).
		Order("created_at ASC").
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *repository) CreateCard(ctx context.Context, card *models.CustomerPaymentMethod) error {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	return r.DB(ctx).Create(card).Error
}

func (r *repository) UpdateCard(ctx context.Context, card *models.CustomerPaymentMethod) error {
	return r.DB(ctx).Save(card).Error
}

func (r *repository) ClearDefault(ctx context.Context, customerID uuid.UUID, provider enums.PaymentProvider, keepID uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.CustomerPaymentMethod{}).
		Where("customer_id = ? AND provider = ? AND is_default = ? AND id <> ?", customerID, provider, true, keepID).
		Update("is_default", false).Error
}

// ListActiveCards orders the default card first, then newest first.
func (r *repository) ListActiveCards(ctx context.Context, customerID uuid.UUID, provider *enums.PaymentProvider) ([]models.CustomerPaymentMethod, error) {
	query := r.DB(ctx).
		Where("customer_id = ? AND status = ?", customerID, enums.CardStatusActive)
	if provider != nil {
		query = query.Where("provider = ?", *provider)
	}
	var cards []models.CustomerPaymentMethod
	if err := query.Order("is_default DESC").Order("created_at DESC").Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// FindActiveCard returns nil without error when no ACTIVE card matches.
func (r *repository) FindActiveCard(ctx context.Context, id, customerID uuid.UUID) (*models.CustomerPaymentMethod, error) {
	return repo.FirstOrNil[models.CustomerPaymentMethod](r.DB(ctx).
		Where("id = ? AND customer_id = ? AND status = ?", id, customerID, enums.CardStatusActive))
}

func (r *repository) MarkCardExpired(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.CustomerPaymentMethod{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": enums.CardStatusExpired, "is_default": false}).Error
}

// FindTransaction returns nil without error when id is unknown.
func (r *repository) FindTransaction(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	return repo.FirstOrNil[models.PaymentTransaction](r.DB(ctx).Where("id = ?", id))
}

// FindTransactionByProviderRef looks a transaction up by provider order id,
// falling back to the provider charge id. The newest match wins.
func (r *repository) FindTransactionByProviderRef(ctx context.Context, provider enums.PaymentProvider, orderID, chargeID string) (*models.PaymentTransaction, error) {
	query := r.DB(ctx).Where("provider = ?", provider)
	switch {
	case orderID != "":
		query = query.Where("provider_order_id = ?", orderID)
	case chargeID != "":
		query = query.Where("provider_charge_id = ?", chargeID)
	default:
		return nil, nil
	}

	return repo.FirstOrNil[models.PaymentTransaction](query.Order("created_at DESC"))
}

// InsertTransaction reports false when a row with the same id already exists.
func (r *repository) InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) (bool, error) {
	if err := r.DB(ctx).Create(txn).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpsertTransaction writes txn, replacing every mutable column of an existing row.
func (r *repository) UpsertTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_order_id",
			"provider_charge_id",
			"customer_payment_method_id",
			"amount_cents",
			"currency",
			"status",
			"status_v2",
			"paid_at",
			"error_message",
			"raw_payload",
			"updated_at",
		}),
	}).Create(txn).Error
}
