package renewals

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/payvault-backend/internal/customerlinks"
	"github.com/angelmondragon/payvault-backend/internal/customers"
	"github.com/angelmondragon/payvault-backend/internal/gateways"
	"github.com/angelmondragon/payvault-backend/internal/notifications"
	"github.com/angelmondragon/payvault-backend/internal/repo/repotest"
	"github.com/angelmondragon/payvault-backend/internal/subscriptions"
	"github.com/angelmondragon/payvault-backend/internal/vault"
	"github.com/angelmondragon/payvault-backend/pkg/appmax"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type stubAppmax struct {
	orderCalls   int
	paymentCalls int
	orderErr     error
	paymentErrs  []error
}

func (s *stubAppmax) CreateOrder(context.Context, appmax.OrderRequest) (*appmax.Order, []byte, error) {
	s.orderCalls++
	if s.orderErr != nil {
		return nil, nil, s.orderErr
	}
	return &appmax.Order{ID: 777}, []byte(`{"id":777}`), nil
}

func (s *stubAppmax) PayWithCreditCard(context.Context, appmax.PaymentRequest) (*appmax.Payment, []byte, error) {
	s.paymentCalls++
	if len(s.paymentErrs) > 0 {
		err := s.paymentErrs[0]
		s.paymentErrs = s.paymentErrs[1:]
		if err != nil {
			return nil, []byte(`{"success":false}`), err
		}
	}
	return &appmax.Payment{PayReference: "pay_777", Status: "approved"}, []byte(`{"pay_reference":"pay_777"}`), nil
}

type stubLocker struct {
	mu       sync.Mutex
	busy     bool
	held     map[string]bool
	released int
}

func (l *stubLocker) TryLock(_ context.Context, key string, _ time.Duration) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy || l.held[key] {
		return nil, ErrLockBusy
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released++
		return nil
	}, nil
}

type recordingNotifier struct {
	events []notifications.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notifications.Event) {
	n.events = append(n.events, event)
}

type fixture struct {
	db       *gorm.DB
	job      *Job
	subs     subscriptions.Repository
	vault    vault.Service
	appmax   *stubAppmax
	locker   *stubLocker
	notifier *recordingNotifier
	customer models.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := repotest.Open(t,
		&models.Customer{},
		&models.CustomerProvider{},
		&models.CustomerPaymentMethod{},
		&models.PaymentTransaction{},
		&models.Subscription{},
	)
	doc := "123.456.789-09"
	customer := models.Customer{ID: uuid.New(), MerchantID: uuid.New(), Name: "Ana", Document: &doc}
	require.NoError(t, db.Create(&customer).Error)

	links := customerlinks.NewRepository(db)
	require.NoError(t, links.Upsert(context.Background(), &models.CustomerProvider{
		CustomerID:         customer.ID,
		Provider:           enums.PaymentProviderAppmax,
		ProviderCustomerID: "998",
	}))

	log := logger.New(logger.Options{ServiceName: "renewals-test", Level: zerolog.Disabled, Output: io.Discard})
	stub := &stubAppmax{}
	appmaxGW, err := gateways.NewAppmaxGateway(stub, log)
	require.NoError(t, err)

	clock := func() time.Time { return fixedNow }
	vaultSvc, err := vault.NewService(vault.ServiceParams{
		Repo:          vault.NewRepository(db),
		Customers:     customers.NewRepository(db),
		CustomerLinks: links,
		Gateways:      gateways.Set{Appmax: appmaxGW},
		Tx:            repotest.Tx(db),
		Logger:        log,
		Clock:         clock,
	})
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		subs:     subscriptions.NewRepository(db),
		vault:    vaultSvc,
		appmax:   stub,
		locker:   &stubLocker{},
		notifier: &recordingNotifier{},
		customer: customer,
	}
	f.job, err = NewJob(JobParams{
		Subscriptions: f.subs,
		Vault:         vaultSvc,
		Tx:            repotest.Tx(db),
		Locker:        f.locker,
		Notifier:      f.notifier,
		Logger:        log,
		Enabled:       true,
		Clock:         clock,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) saveCard(t *testing.T, expYear int) *models.CustomerPaymentMethod {
	t.Helper()
	month := 12
	card, err := f.vault.SaveCard(context.Background(), vault.SaveCardInput{
		CustomerID: f.customer.ID,
		Provider:   enums.PaymentProviderAppmax,
		Token:      "tok_appmax",
		Brand:      "visa",
		Last4:      "4242",
		ExpMonth:   &month,
		ExpYear:    &expYear,
	})
	require.NoError(t, err)
	return card
}

func (f *fixture) seedSubscription(t *testing.T, card *models.CustomerPaymentMethod) *models.Subscription {
	t.Helper()
	start := fixedNow.AddDate(0, -1, 0).Add(-time.Hour)
	end := fixedNow.Add(-time.Hour)
	sub := &models.Subscription{
		ID:                 uuid.New(),
		CustomerID:         f.customer.ID,
		MerchantID:         f.customer.MerchantID,
		Provider:           enums.PaymentProviderAppmax,
		AmountCents:        15000,
		Currency:           "BRL",
		Description:        "Plano mensal",
		Status:             enums.SubscriptionStatusActive,
		Interval:           enums.BillingIntervalMonth,
		IntervalCount:      1,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}
	if card != nil {
		sub.CustomerPaymentMethodID = &card.ID
	}
	require.NoError(t, f.subs.Update(context.Background(), sub))
	return sub
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Subscription {
	t.Helper()
	sub, err := f.subs.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func (f *fixture) countTransactions(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.PaymentTransaction{}).Count(&count).Error)
	return count
}

func TestRenewChargesAndRollsPeriod(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubscription(t, f.saveCard(t, 2030))
	periodEnd := *sub.CurrentPeriodEnd

	result, err := f.job.Renew(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, enums.SubscriptionStatusActive, result.Status)
	assert.Equal(t, subscriptions.OutcomePaid, result.Outcome)

	wantID := "tx_appmax_" + sub.ID.String() + "_" + subscriptions.PeriodKey(periodEnd)
	assert.Equal(t, wantID, result.TransactionID)

	txn, err := f.vault.GetTransaction(context.Background(), wantID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSucceeded, txn.StatusV2)
	require.NotNil(t, txn.SubscriptionID)
	assert.Equal(t, sub.ID, *txn.SubscriptionID)
	require.NotNil(t, txn.PeriodKey)
	assert.Equal(t, subscriptions.PeriodKey(periodEnd), *txn.PeriodKey)

	updated := f.reload(t, sub.ID)
	require.NotNil(t, updated.CurrentPeriodStart)
	assert.True(t, updated.CurrentPeriodStart.Equal(periodEnd))
	assert.True(t, updated.CurrentPeriodEnd.Equal(periodEnd.AddDate(0, 1, 0)))
	assert.Equal(t, wantID, updated.Metadata.Data().LastRenewalTransactionID)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notifications.EventRenewalSucceeded, f.notifier.events[0].Type)
	assert.Equal(t, 1, f.locker.released)
	assert.Empty(t, f.locker.held)
}

func TestRenewIsIdempotentPerPeriod(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubscription(t, f.saveCard(t, 2030))
	originalEnd := *sub.CurrentPeriodEnd

	_, err := f.job.Renew(context.Background(), sub.ID)
	require.NoError(t, err)

	again, err := f.job.Renew(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, SkipNotDue, again.Reason)

	// A crash between the charge and the subscription update leaves the old
	// period in place; the rerun must reuse the paid row instead of charging.
	rewound := f.reload(t, sub.ID)
	rewound.CurrentPeriodEnd = &originalEnd
	require.NoError(t, f.subs.Update(context.Background(), rewound))

	rerun, err := f.job.Renew(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.OutcomePaid, rerun.Outcome)
	assert.Equal(t, 1, f.appmax.orderCalls)
	assert.Equal(t, 1, f.appmax.paymentCalls)
	assert.EqualValues(t, 1, f.countTransactions(t))
}

func TestRenewPaymentTransientLeavesSubscriptionForNextRun(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubscription(t, f.saveCard(t, 2030))
	f.appmax.paymentErrs = []error{pkgerrors.New(pkgerrors.CodeGatewayTransient, "appmax timeout")}

	result, err := f.job.Renew(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.OutcomePending, result.Outcome)
	assert.Equal(t, enums.SubscriptionStatusActive, result.Status)
	assert.Equal(t, 1, f.appmax.paymentCalls, "payment is never retried in the same run")

	pending := f.reload(t, sub.ID)
	assert.True(t, pending.CurrentPeriodEnd.Equal(*sub.CurrentPeriodEnd))
	assert.Contains(t, pending.Metadata.Data().LastRenewalError, "appmax timeout")

	txn, err := f.vault.GetTransaction(context.Background(), result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, vault.StatusPaymentUnknown, txn.Status)

	resumed, err := f.job.Renew(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.OutcomePaid, resumed.Outcome)
	assert.Equal(t, 1, f.appmax.orderCalls, "order from the first run is reused")
	assert.Equal(t, 2, f.appmax.paymentCalls)
	assert.EqualValues(t, 1, f.countTransactions(t))
	assert.Empty(t, f.reload(t, sub.ID).Metadata.Data().LastRenewalError)
}

func TestRenewPaymentRejectedMarksPastDue(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubscription(t, f.saveCard(t, 2030))
	f.appmax.paymentErrs = []error{pkgerrors.New(pkgerrors.CodeGatewayRejected, "card declined")}

	result, err := f.job.Renew(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPastDue, result.Status)

	updated := f.reload(t, sub.ID)
	assert.Equal(t, 1, updated.Metadata.Data().FailedRenewalCount)
	assert.Contains(t, updated.Metadata.Data().LastRenewalError, "card declined")
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notifications.EventRenewalPastDue, f.notifier.events[0].Type)
}

func TestRenewOrderFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubscription(t, f.saveCard(t, 2030))
	f.appmax.orderErr = pkgerrors.New(pkgerrors.CodeGatewayTransient, "appmax unavailable")

	_, err := f.job.Renew(context.Background(), sub.ID)
	require.Error(t, err)
	step, ok := gateways.FailedStep(err)
	require.True(t, ok)
	assert.Equal(t, gateways.StepOrder, step.Step)
	assert.Zero(t, f.appmax.paymentCalls)

	untouched := f.reload(t, sub.ID)
	assert.Equal(t, enums.SubscriptionStatusActive, untouched.Status)
	assert.Nil(t, untouched.Metadata.Data().LastRenewalAttemptAt)
	assert.Empty(t, f.notifier.events)
	assert.Empty(t, f.locker.held)
}

func TestRenewExpiredCardMarksPastDue(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubscription(t, f.saveCard(t, 2025))

	result, err := f.job.Renew(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPastDue, result.Status)
	assert.Zero(t, f.appmax.orderCalls)
	assert.Contains(t, f.reload(t, sub.ID).Metadata.Data().LastRenewalError, string(pkgerrors.CodeCardExpired))
}

func TestRenewSkipReasons(t *testing.T) {
	disabled := false
	cases := []struct {
		name   string
		mutate func(f *fixture, sub *models.Subscription)
		id     func(sub *models.Subscription) uuid.UUID
		want   SkipReason
	}{
		{
			name: "missing subscription",
			id:   func(*models.Subscription) uuid.UUID { return uuid.New() },
			want: SkipSubscriptionNotFound,
		},
		{
			name:   "canceled",
			mutate: func(_ *fixture, sub *models.Subscription) { sub.Status = enums.SubscriptionStatusCanceled },
			want:   SkipSubscriptionInactive,
		},
		{
			name:   "past due",
			mutate: func(_ *fixture, sub *models.Subscription) { sub.Status = enums.SubscriptionStatusPastDue },
			want:   SkipSubscriptionInactive,
		},
		{
			name: "metadata opt-out",
			mutate: func(_ *fixture, sub *models.Subscription) {
				sub.Metadata = datatypes.NewJSONType(models.SubscriptionMetadata{RenewalEnabled: &disabled})
			},
			want: SkipRenewalDisabled,
		},
		{
			name:   "feature flag off",
			mutate: func(f *fixture, _ *models.Subscription) { f.job.enabled = false },
			want:   SkipRenewalDisabled,
		},
		{
			name:   "no period",
			mutate: func(_ *fixture, sub *models.Subscription) { sub.CurrentPeriodEnd = nil },
			want:   SkipPeriodMissing,
		},
		{
			name: "not due yet",
			mutate: func(_ *fixture, sub *models.Subscription) {
				end := fixedNow.Add(time.Hour)
				sub.CurrentPeriodEnd = &end
			},
			want: SkipNotDue,
		},
		{
			name:   "no card",
			mutate: func(_ *fixture, sub *models.Subscription) { sub.CustomerPaymentMethodID = nil },
			want:   SkipPaymentMethodMissing,
		},
		{
			name:   "locked elsewhere",
			mutate: func(f *fixture, _ *models.Subscription) { f.locker.busy = true },
			want:   SkipLockBusy,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			sub := f.seedSubscription(t, f.saveCard(t, 2030))
			if tc.mutate != nil {
				tc.mutate(f, sub)
				require.NoError(t, f.subs.Update(context.Background(), sub))
			}
			id := sub.ID
			if tc.id != nil {
				id = tc.id(sub)
			}

			result, err := f.job.Renew(context.Background(), id)
			require.NoError(t, err)
			assert.True(t, result.Skipped)
			assert.Equal(t, tc.want, result.Reason)
			assert.Zero(t, f.appmax.orderCalls)
			assert.Empty(t, f.locker.held)
		})
	}
}

func TestClassifyReturnsUnexpectedErrors(t *testing.T) {
	boom := errors.New("db down")
	_, err := classify("tx_1", nil, boom)
	assert.ErrorIs(t, err, boom)

	outcome, err := classify("tx_1", nil, pkgerrors.New(pkgerrors.CodeCustomerLinkMissing, "no link"))
	require.NoError(t, err)
	assert.Equal(t, subscriptions.OutcomeFailed, outcome.Kind)
}

func TestNewJobRequiresDependencies(t *testing.T) {
	if _, err := NewJob(JobParams{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
