package customerlinks

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/payvault-backend/internal/repo/repotest"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
)

func TestRepositoryFindMissingReturnsNil(t *testing.T) {
	repo := NewRepository(repotest.Open(t, &models.CustomerProvider{}))

	link, err := repo.Find(context.Background(), uuid.New(), enums.PaymentProviderStripe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link != nil {
		t.Fatalf("expected no link, got %+v", link)
	}
}

func TestRepositoryUpsertReplacesProviderCustomer(t *testing.T) {
	db := repotest.Open(t, &models.CustomerProvider{})
	repo := NewRepository(db)
	ctx := context.Background()
	customerID := uuid.New()

	if err := repo.Upsert(ctx, &models.CustomerProvider{
		CustomerID:         customerID,
		Provider:           enums.PaymentProviderStripe,
		ProviderCustomerID: "cus_old",
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.Upsert(ctx, &models.CustomerProvider{
		CustomerID:         customerID,
		Provider:           enums.PaymentProviderStripe,
		ProviderCustomerID: "cus_new",
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if err := repo.Upsert(ctx, &models.CustomerProvider{
		CustomerID:         customerID,
		Provider:           enums.PaymentProviderPagarme,
		ProviderCustomerID: "cus_pg",
	}); err != nil {
		t.Fatalf("pagarme upsert: %v", err)
	}

	var count int64
	if err := db.Model(&models.CustomerProvider{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected one link per provider, got %d", count)
	}

	link, err := repo.Find(ctx, customerID, enums.PaymentProviderStripe)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if link == nil || link.ProviderCustomerID != "cus_new" {
		t.Fatalf("expected cus_new, got %+v", link)
	}
}

func TestRepositoryUpsertValidates(t *testing.T) {
	repo := NewRepository(repotest.Open(t, &models.CustomerProvider{}))

	err := repo.Upsert(context.Background(), &models.CustomerProvider{CustomerID: uuid.New(), Provider: enums.PaymentProviderAppmax})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
