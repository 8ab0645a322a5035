package renewals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payvault-backend/internal/gateways"
	"github.com/angelmondragon/payvault-backend/internal/notifications"
	"github.com/angelmondragon/payvault-backend/internal/subscriptions"
	"github.com/angelmondragon/payvault-backend/internal/vault"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/gatewayhttp"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
)

const (
	defaultLockTTL = 2 * time.Minute
	lockScope      = "renewal"
)

// SkipReason explains why a renewal did not attempt a charge.
type SkipReason string

const (
	SkipSubscriptionNotFound SkipReason = "subscription_not_found"
	SkipSubscriptionInactive SkipReason = "subscription_inactive"
	SkipRenewalDisabled      SkipReason = "renewal_disabled"
	SkipPeriodMissing        SkipReason = "period_missing"
	SkipNotDue               SkipReason = "not_due"
	SkipPaymentMethodMissing SkipReason = "payment_method_missing"
	SkipLockBusy             SkipReason = "lock_busy"
)

// Result is either a skip with its reason or a processed attempt with the
// subscription status it left behind.
type Result struct {
	Skipped       bool
	Reason        SkipReason
	Success       bool
	Status        enums.SubscriptionStatus
	Outcome       subscriptions.OutcomeKind
	TransactionID string
}

func skipped(reason SkipReason) Result {
	return Result{Skipped: true, Reason: reason}
}

type charger interface {
	Charge(ctx context.Context, input vault.ChargeInput) (*models.PaymentTransaction, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Renewer charges one subscription for its next period.
type Renewer interface {
	Renew(ctx context.Context, subscriptionID uuid.UUID) (Result, error)
}

// JobParams groups dependencies for the renewal job.
type JobParams struct {
	Subscriptions subscriptions.Repository
	Vault         charger
	Tx            txRunner
	Locker        Locker
	LockKey       func(scope, id string) string
	Notifier      notifications.Notifier
	Logger        *logger.Logger
	Metrics       *metrics.GatewayMetrics
	Enabled       bool
	LockTTL       time.Duration
	Clock         func() time.Time
}

// Job renews a single subscription: lock, charge the saved card, apply the outcome.
type Job struct {
	subs     subscriptions.Repository
	vault    charger
	tx       txRunner
	locker   Locker
	lockKey  func(scope, id string) string
	notifier notifications.Notifier
	logg     *logger.Logger
	metrics  *metrics.GatewayMetrics
	enabled  bool
	lockTTL  time.Duration
	clock    func() time.Time
}

func NewJob(params JobParams) (*Job, error) {
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.Vault == nil {
		return nil, fmt.Errorf("vault service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.NewLogNotifier(params.Logger)
	}
	lockKey := params.LockKey
	if lockKey == nil {
		lockKey = func(scope, id string) string { return "lock:" + scope + ":" + id }
	}
	ttl := params.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Job{
		subs:     params.Subscriptions,
		vault:    params.Vault,
		tx:       params.Tx,
		locker:   params.Locker,
		lockKey:  lockKey,
		notifier: notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		enabled:  params.Enabled,
		lockTTL:  ttl,
		clock:    clock,
	}, nil
}

// TransactionID is the deterministic payment id for one subscription period.
func TransactionID(provider enums.PaymentProvider, subscriptionID uuid.UUID, periodKey string) string {
	return fmt.Sprintf("tx_%s_%s_%s", strings.ToLower(string(provider)), subscriptionID, periodKey)
}

func (j *Job) Renew(ctx context.Context, subscriptionID uuid.UUID) (Result, error) {
	ctx = j.logg.WithSubscriptionID(ctx, subscriptionID.String())

	if !j.enabled {
		return j.skip(ctx, SkipRenewalDisabled), nil
	}

	unlock, err := j.locker.TryLock(ctx, j.lockKey(lockScope, subscriptionID.String()), j.lockTTL)
	if err != nil {
		if errors.Is(err, ErrLockBusy) {
			return j.skip(ctx, SkipLockBusy), nil
		}
		return Result{}, err
	}
	defer func() {
		if relErr := unlock(context.WithoutCancel(ctx)); relErr != nil {
			j.logg.Error(ctx, "failed to release renewal lock", relErr)
		}
	}()

	sub, err := j.subs.FindByID(ctx, subscriptionID)
	if err != nil {
		return Result{}, err
	}
	if reason, ok := j.precheck(sub); !ok {
		return j.skip(ctx, reason), nil
	}

	ctx = j.logg.WithFields(ctx, map[string]any{
		"customer_id": sub.CustomerID.String(),
		"provider":    string(sub.Provider),
	})

	periodKey := subscriptions.PeriodKey(*sub.CurrentPeriodEnd)
	txID := TransactionID(sub.Provider, sub.ID, periodKey)
	subID := sub.ID

	txn, chargeErr := j.vault.Charge(ctx, vault.ChargeInput{
		CustomerID:     sub.CustomerID,
		SavedCardID:    *sub.CustomerPaymentMethodID,
		AmountCents:    sub.AmountCents,
		Currency:       sub.Currency,
		Description:    sub.Description,
		Metadata:       map[string]string{"subscription_id": sub.ID.String(), "period_key": periodKey},
		TransactionID:  txID,
		IdempotencyKey: txID,
		SubscriptionID: &subID,
		PeriodKey:      periodKey,
	})

	outcome, err := classify(txID, txn, chargeErr)
	if err != nil {
		j.metrics.IncRenewal("error")
		return Result{}, err
	}
	if chargeErr != nil {
		j.logg.Warn(j.logg.WithField(ctx, "error_message", outcome.Error), "renewal charge did not complete")
	}

	updated, err := j.apply(ctx, sub.ID, outcome)
	if err != nil {
		j.metrics.IncRenewal("error")
		return Result{}, err
	}

	j.notify(ctx, updated, outcome)
	j.metrics.IncRenewal(string(outcome.Kind))
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"transaction_id": outcome.TransactionID,
		"outcome":        string(outcome.Kind),
		"status":         string(updated.Status),
	}), "renewal processed")

	return Result{
		Success:       true,
		Status:        updated.Status,
		Outcome:       outcome.Kind,
		TransactionID: outcome.TransactionID,
	}, nil
}

func (j *Job) precheck(sub *models.Subscription) (SkipReason, bool) {
	switch {
	case sub == nil:
		return SkipSubscriptionNotFound, false
	case !sub.Status.Renewable():
		return SkipSubscriptionInactive, false
	case !sub.Metadata.Data().RenewalAllowed():
		return SkipRenewalDisabled, false
	case sub.CurrentPeriodEnd == nil:
		return SkipPeriodMissing, false
	case !subscriptions.IsDue(sub, j.clock()):
		return SkipNotDue, false
	case sub.CustomerPaymentMethodID == nil:
		return SkipPaymentMethodMissing, false
	}
	return "", true
}

// classify turns a charge result into a subscription outcome. Errors that leave
// the charge state unknown before any payment attempt are returned instead.
func classify(txID string, txn *models.PaymentTransaction, err error) (subscriptions.RenewalOutcome, error) {
	if err == nil {
		outcome := subscriptions.RenewalOutcome{
			Kind:          subscriptions.OutcomeFor(txn.StatusV2),
			TransactionID: txn.ID,
		}
		if outcome.Kind == subscriptions.OutcomeFailed {
			outcome.Error = fmt.Sprintf("payment %s", strings.ToLower(string(txn.StatusV2)))
			if txn.ErrorMessage != nil && *txn.ErrorMessage != "" {
				outcome.Error = *txn.ErrorMessage
			}
		}
		return outcome, nil
	}

	if step, ok := gateways.FailedStep(err); ok {
		if step.Step != gateways.StepPayment {
			return subscriptions.RenewalOutcome{}, err
		}
		kind := subscriptions.OutcomePending
		if pkgerrors.IsCode(err, pkgerrors.CodeGatewayRejected) {
			kind = subscriptions.OutcomeFailed
		}
		return subscriptions.RenewalOutcome{Kind: kind, TransactionID: txID, Error: gatewayhttp.SanitizeText(step.Err.Error())}, nil
	}

	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeCardExpired),
		pkgerrors.IsCode(err, pkgerrors.CodeCustomerLinkMissing),
		pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return subscriptions.RenewalOutcome{Kind: subscriptions.OutcomeFailed, Error: err.Error()}, nil
	}
	return subscriptions.RenewalOutcome{}, err
}

func (j *Job) apply(ctx context.Context, id uuid.UUID, outcome subscriptions.RenewalOutcome) (*models.Subscription, error) {
	var updated *models.Subscription
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.subs.WithTx(tx)
		sub, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		subscriptions.ApplyRenewalOutcome(sub, outcome, j.clock())
		if err := repo.Update(ctx, sub); err != nil {
			return err
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (j *Job) notify(ctx context.Context, sub *models.Subscription, outcome subscriptions.RenewalOutcome) {
	eventType := notifications.EventRenewalPending
	switch outcome.Kind {
	case subscriptions.OutcomePaid:
		eventType = notifications.EventRenewalSucceeded
	case subscriptions.OutcomeFailed:
		eventType = notifications.EventRenewalPastDue
	}
	j.notifier.Notify(ctx, notifications.Event{
		Type:           eventType,
		SubscriptionID: sub.ID.String(),
		CustomerID:     sub.CustomerID.String(),
		MerchantID:     sub.MerchantID.String(),
		Provider:       string(sub.Provider),
		TransactionID:  outcome.TransactionID,
		Status:         string(sub.Status),
		Error:          outcome.Error,
		OccurredAt:     j.clock().UTC(),
	})
}

func (j *Job) skip(ctx context.Context, reason SkipReason) Result {
	j.metrics.IncRenewal(string(reason))
	j.logg.Info(j.logg.WithField(ctx, "reason", string(reason)), "renewal skipped")
	return skipped(reason)
}
