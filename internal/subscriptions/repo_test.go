package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payvault-backend/internal/repo/repotest"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
)

func seedSubscription(t *testing.T, repo Repository, status enums.SubscriptionStatus, end *time.Time) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		ID:               uuid.New(),
		CustomerID:       uuid.New(),
		MerchantID:       uuid.New(),
		Provider:         enums.PaymentProviderStripe,
		AmountCents:      1000,
		Currency:         "BRL",
		Status:           status,
		Interval:         enums.BillingIntervalMonth,
		IntervalCount:    1,
		CurrentPeriodEnd: end,
	}
	if err := repo.Update(context.Background(), sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

func TestRepositoryListDue(t *testing.T) {
	db := repotest.Open(t, &models.Subscription{})
	repo := NewRepository(db)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	dueOld := seedSubscription(t, repo, enums.SubscriptionStatusActive, &past)
	dueRecent := seedSubscription(t, repo, enums.SubscriptionStatusTrialing, &recent)
	seedSubscription(t, repo, enums.SubscriptionStatusActive, &future)
	seedSubscription(t, repo, enums.SubscriptionStatusCanceled, &past)
	seedSubscription(t, repo, enums.SubscriptionStatusPastDue, &past)
	seedSubscription(t, repo, enums.SubscriptionStatusActive, nil)

	due, err := repo.ListDue(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due subscriptions, got %d", len(due))
	}
	if due[0].ID != dueOld.ID || due[1].ID != dueRecent.ID {
		t.Fatalf("expected oldest first, got %s then %s", due[0].ID, due[1].ID)
	}

	limited, err := repo.ListDue(context.Background(), now, 1)
	if err != nil {
		t.Fatalf("ListDue limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestRepositoryFindByIDMissingReturnsNil(t *testing.T) {
	db := repotest.Open(t, &models.Subscription{})
	repo := NewRepository(db)

	sub, err := repo.FindByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != nil {
		t.Fatalf("expected nil subscription, got %+v", sub)
	}
}

func TestRepositoryUpdatePersistsMetadata(t *testing.T) {
	db := repotest.Open(t, &models.Subscription{})
	repo := NewRepository(db)
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	sub := seedSubscription(t, repo, enums.SubscriptionStatusActive, &end)

	ApplyRenewalOutcome(sub, RenewalOutcome{Kind: OutcomeFailed, Error: "declined"}, end)
	if err := repo.WithTx(db).Update(context.Background(), sub); err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := repo.FindByIDForUpdate(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("FindByIDForUpdate: %v", err)
	}
	if loaded.Status != enums.SubscriptionStatusPastDue {
		t.Fatalf("expected PAST_DUE, got %s", loaded.Status)
	}
	if meta := loaded.Metadata.Data(); meta.LastRenewalError != "declined" || meta.FailedRenewalCount != 1 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}
