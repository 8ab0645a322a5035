package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/payvault-backend/internal/customerlinks"
	"github.com/angelmondragon/payvault-backend/internal/customers"
	"github.com/angelmondragon/payvault-backend/internal/gateways"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/gatewayhttp"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
)

const (
	StatusOrderCreated   = "order_created"
	StatusPaymentFailed  = "payment_failed"
	StatusPaymentUnknown = "payment_unknown"
)

var (
	last4Pattern    = regexp.MustCompile(`^[0-9]{4}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayResolver interface {
	For(provider enums.PaymentProvider) (gateways.Adapter, error)
}

// Service is the vault manager: it stores card tokens and routes charges to the
// gateway that issued them.
type Service interface {
	SaveCard(ctx context.Context, input SaveCardInput) (*models.CustomerPaymentMethod, error)
	ListCards(ctx context.Context, customerID uuid.UUID, provider *enums.PaymentProvider) ([]models.CustomerPaymentMethod, error)
	Charge(ctx context.Context, input ChargeInput) (*models.PaymentTransaction, error)
	GetTransaction(ctx context.Context, id string) (*models.PaymentTransaction, error)
	FindTransaction(ctx context.Context, provider enums.PaymentProvider, orderID, chargeID string) (*models.PaymentTransaction, error)
}

// ServiceParams groups dependencies for the vault service.
type ServiceParams struct {
	Repo          Repository
	Customers     customers.Repository
	CustomerLinks customerlinks.Repository
	Gateways      gatewayResolver
	Tx            txRunner
	Logger        *logger.Logger
	Metrics       *metrics.GatewayMetrics
	Clock         func() time.Time
}

// SaveCardInput describes a tokenized card to store.
type SaveCardInput struct {
	CustomerID   uuid.UUID
	Provider     enums.PaymentProvider
	Token        string
	AccountID    string
	Brand        string
	Last4        string
	ExpMonth     *int
	ExpYear      *int
	SetAsDefault bool
}

// ChargeInput describes a charge against a saved card. TransactionID makes the
// resulting row deterministic so reruns update it instead of adding another.
type ChargeInput struct {
	CustomerID     uuid.UUID
	SavedCardID    uuid.UUID
	AmountCents    int64
	Currency       string
	Description    string
	Metadata       map[string]string
	TransactionID  string
	IdempotencyKey string
	SubscriptionID *uuid.UUID
	PeriodKey      string
}

type service struct {
	repo      Repository
	customers customers.Repository
	links     customerlinks.Repository
	gateways  gatewayResolver
	tx        txRunner
	logger    *logger.Logger
	metrics   *metrics.GatewayMetrics
	now       func() time.Time
}

// NewService builds the vault service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("vault repo required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customers repo required")
	}
	if params.CustomerLinks == nil {
		return nil, fmt.Errorf("customer links repo required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway resolver required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:      params.Repo,
		customers: params.Customers,
		links:     params.CustomerLinks,
		gateways:  params.Gateways,
		tx:        params.Tx,
		logger:    params.Logger,
		metrics:   params.Metrics,
		now:       clock,
	}, nil
}

// SaveCard stores the token or refreshes the row for the same physical card.
// The customer's card set at the provider stays locked for the whole write so
// concurrent saves cannot both end up default.
func (s *service) SaveCard(ctx context.Context, input SaveCardInput) (*models.CustomerPaymentMethod, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if input.ExpYear != nil {
		year := normalizeYear(*input.ExpYear)
		input.ExpYear = &year
	}
	fingerprint := Fingerprint(input.Provider, input.Brand, input.Last4, input.ExpMonth, input.ExpYear)

	var saved *models.CustomerPaymentMethod
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cards, err := repo.LockCards(ctx, input.CustomerID, input.Provider)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock saved cards")
		}

		var existing *models.CustomerPaymentMethod
		otherDefault := false
		for i := range cards {
			card := &cards[i]
			if card.Fingerprint == fingerprint {
				existing = card
				continue
			}
			if card.IsDefault && card.Status == enums.CardStatusActive {
				otherDefault = true
			}
		}

		card := existing
		if card == nil {
			card = &models.CustomerPaymentMethod{
				ID:          uuid.New(),
				CustomerID:  input.CustomerID,
				Provider:    input.Provider,
				Fingerprint: fingerprint,
			}
		}
		wasDefault := existing != nil && existing.IsDefault && existing.Status == enums.CardStatusActive
		card.ProviderPaymentMethodID = strings.TrimSpace(input.Token)
		card.AccountID = optionalString(input.AccountID)
		card.Brand = optionalString(input.Brand)
		card.Last4 = optionalString(input.Last4)
		card.ExpMonth = input.ExpMonth
		card.ExpYear = input.ExpYear
		card.Status = enums.CardStatusActive
		card.IsDefault = input.SetAsDefault || wasDefault || !otherDefault

		if card.IsDefault {
			if err := repo.ClearDefault(ctx, input.CustomerID, input.Provider, card.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default card")
			}
		}

		if existing != nil {
			err = repo.UpdateCard(ctx, card)
		} else {
			err = repo.CreateCard(ctx, card)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist saved card")
		}
		saved = card
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logger.WithFields(ctx, map[string]any{
		"customer_id": input.CustomerID.String(),
		"provider":    string(input.Provider),
		"card_id":     saved.ID.String(),
		"is_default":  saved.IsDefault,
	})
	s.logger.Info(logCtx, "saved card stored")
	return saved, nil
}

func (s *service) ListCards(ctx context.Context, customerID uuid.UUID, provider *enums.PaymentProvider) ([]models.CustomerPaymentMethod, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if provider != nil && !provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment provider")
	}
	cards, err := s.repo.ListActiveCards(ctx, customerID, provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list saved cards")
	}
	return cards, nil
}

// Charge charges a saved card at the gateway that issued its token and records
// exactly one transaction row for the attempt.
func (s *service) Charge(ctx context.Context, input ChargeInput) (*models.PaymentTransaction, error) {
	currency, err := input.validate()
	if err != nil {
		return nil, err
	}
	ctx = s.logger.WithCustomerID(ctx, input.CustomerID.String())

	card, err := s.repo.FindActiveCard(ctx, input.SavedCardID, input.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load saved card")
	}
	if card == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "saved card not found")
	}
	ctx = s.logger.WithProvider(ctx, string(card.Provider))

	if IsExpired(card, s.now()) {
		if err := s.repo.MarkCardExpired(ctx, card.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark card expired")
		}
		s.logger.Warn(s.logger.WithField(ctx, "card_id", card.ID.String()), "saved card expired")
		return nil, pkgerrors.New(pkgerrors.CodeCardExpired, "saved card is expired")
	}

	customer, err := s.customers.FindByID(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.gateways.For(card.Provider)
	if err != nil {
		return nil, err
	}

	var resumeOrderID string
	if input.TransactionID != "" {
		existing, err := s.repo.FindTransaction(ctx, input.TransactionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
		}
		if existing != nil && existing.StatusV2 == enums.PaymentStatusSucceeded {
			s.logger.Info(s.logger.WithField(ctx, "transaction_id", existing.ID), "transaction already succeeded")
			return existing, nil
		}
		if existing != nil && existing.ProviderOrderID != nil {
			resumeOrderID = *existing.ProviderOrderID
		}
	}

	providerCustomerID, err := s.ensureCustomerLink(ctx, adapter, customer, card)
	if err != nil {
		return nil, err
	}

	base := models.PaymentTransaction{
		ID:                      input.TransactionID,
		Provider:                card.Provider,
		MerchantID:              customer.MerchantID,
		CustomerID:              customer.ID,
		CustomerPaymentMethodID: &card.ID,
		SubscriptionID:          input.SubscriptionID,
		PeriodKey:               optionalString(input.PeriodKey),
		AmountCents:             input.AmountCents,
		Currency:                currency,
	}

	req := gateways.ChargeRequest{
		CustomerID:         customer.ID,
		MerchantID:         customer.MerchantID,
		ProviderCustomerID: providerCustomerID,
		PaymentMethodID:    card.ProviderPaymentMethodID,
		AccountID:          derefString(card.AccountID),
		AmountCents:        input.AmountCents,
		Currency:           currency,
		Description:        input.Description,
		Metadata:           input.Metadata,
		CustomerDocument:   derefString(customer.Document),
		IdempotencyKey:     input.IdempotencyKey,
		ResumeOrderID:      resumeOrderID,
	}
	if input.TransactionID != "" {
		req.OnOrderCreated = func(ctx context.Context, orderID string) error {
			checkpoint := base
			checkpoint.ProviderOrderID = &orderID
			checkpoint.Status = StatusOrderCreated
			checkpoint.StatusV2 = enums.PaymentStatusProcessing
			if err := s.repo.UpsertTransaction(ctx, &checkpoint); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkpoint provider order")
			}
			return nil
		}
	}

	result, err := adapter.ChargeWithSavedCard(ctx, req)
	if err != nil {
		s.recordPaymentStepFailure(ctx, base, err)
		s.logger.Error(ctx, "gateway charge failed", err)
		return nil, err
	}

	txn := base
	if txn.ID == "" {
		txn.ID = result.TransactionID
	}
	if txn.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned no transaction id")
	}
	txn.ProviderOrderID = optionalString(result.OrderID)
	txn.ProviderChargeID = optionalString(result.ChargeID)
	txn.Status = result.Status
	txn.StatusV2 = result.StatusV2
	if len(result.RawResponse) > 0 {
		txn.RawPayload = datatypes.JSON(result.RawResponse)
	}
	if txn.StatusV2 == enums.PaymentStatusSucceeded {
		paidAt := s.now().UTC()
		if result.PaidAt != nil {
			paidAt = *result.PaidAt
		}
		txn.PaidAt = &paidAt
	}

	persisted, err := s.persist(ctx, &txn, input.TransactionID != "")
	if err != nil {
		return nil, err
	}

	s.metrics.IncCharge(string(card.Provider), string(persisted.StatusV2))
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"transaction_id": persisted.ID,
		"status":         persisted.Status,
		"status_v2":      string(persisted.StatusV2),
		"terminal":       persisted.StatusV2.Terminal(),
	}), "charge recorded")
	return persisted, nil
}

func (s *service) GetTransaction(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	txn, err := s.repo.FindTransaction(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return txn, nil
}

func (s *service) FindTransaction(ctx context.Context, provider enums.PaymentProvider, orderID, chargeID string) (*models.PaymentTransaction, error) {
	if !provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment provider")
	}
	orderID, chargeID = strings.TrimSpace(orderID), strings.TrimSpace(chargeID)
	if orderID == "" && chargeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id or charge_id is required")
	}
	txn, err := s.repo.FindTransactionByProviderRef(ctx, provider, orderID, chargeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return txn, nil
}

// ensureCustomerLink resolves the provider customer id, persisting links the
// adapter had to provision.
func (s *service) ensureCustomerLink(ctx context.Context, adapter gateways.Adapter, customer *models.Customer, card *models.CustomerPaymentMethod) (string, error) {
	existing, err := s.links.Find(ctx, customer.ID, card.Provider)
	if err != nil {
		return "", err
	}
	link, err := adapter.EnsureCustomerLink(ctx, gateways.LinkRequest{
		Customer:  *customer,
		AccountID: derefString(card.AccountID),
		Existing:  existing,
	})
	if err != nil {
		return "", err
	}
	if link.Created {
		if err := s.links.Upsert(ctx, &models.CustomerProvider{
			CustomerID:         customer.ID,
			Provider:           card.Provider,
			ProviderCustomerID: link.ProviderCustomerID,
			AccountID:          card.AccountID,
		}); err != nil {
			return "", err
		}
	}
	return link.ProviderCustomerID, nil
}

// recordPaymentStepFailure marks a deterministic row whose order exists at the
// provider but whose payment failed or has an unknown outcome.
func (s *service) recordPaymentStepFailure(ctx context.Context, base models.PaymentTransaction, err error) {
	step, ok := gateways.FailedStep(err)
	if !ok || step.Step != gateways.StepPayment || base.ID == "" {
		return
	}

	txn := base
	txn.ProviderOrderID = optionalString(step.OrderID)
	txn.Status = StatusPaymentUnknown
	txn.StatusV2 = enums.PaymentStatusProcessing
	if pkgerrors.IsCode(err, pkgerrors.CodeGatewayRejected) {
		txn.Status = StatusPaymentFailed
		txn.StatusV2 = enums.PaymentStatusFailed
	}
	message := gatewayhttp.SanitizeText(step.Err.Error())
	txn.ErrorMessage = &message
	if raw := step.Raw; len(raw) > 0 && json.Valid(raw) {
		txn.RawPayload = datatypes.JSON(raw)
	}

	if upsertErr := s.repo.UpsertTransaction(ctx, &txn); upsertErr != nil {
		s.logger.Error(ctx, "failed to record payment step failure", upsertErr)
		return
	}
	s.metrics.IncCharge(string(txn.Provider), string(txn.StatusV2))
}

func (s *service) persist(ctx context.Context, txn *models.PaymentTransaction, deterministic bool) (*models.PaymentTransaction, error) {
	if deterministic {
		if err := s.repo.UpsertTransaction(ctx, txn); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert transaction")
		}
		return txn, nil
	}

	inserted, err := s.repo.InsertTransaction(ctx, txn)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert transaction")
	}
	if inserted {
		return txn, nil
	}

	existing, err := s.repo.FindTransaction(ctx, txn.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load replayed transaction")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "transaction id collided with a row that is gone")
	}
	s.logger.Info(s.logger.WithField(ctx, "transaction_id", existing.ID), "transaction replayed")
	return existing, nil
}

func (in SaveCardInput) validate() error {
	details := map[string]any{}
	if in.CustomerID == uuid.Nil {
		details["customer_id"] = "required"
	}
	if !in.Provider.IsValid() {
		details["provider"] = "must be one of STRIPE, PAGARME, APPMAX"
	}
	if strings.TrimSpace(in.Token) == "" {
		details["token"] = "required"
	}
	if in.ExpMonth != nil && (*in.ExpMonth < 1 || *in.ExpMonth > 12) {
		details["exp_month"] = "must be between 1 and 12"
	}
	if in.ExpYear != nil && *in.ExpYear < 0 {
		details["exp_year"] = "must be positive"
	}
	if last4 := strings.TrimSpace(in.Last4); last4 != "" && !last4Pattern.MatchString(last4) {
		details["last4"] = "must be 4 digits"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid card").WithDetails(details)
	}
	return nil
}

func (in ChargeInput) validate() (string, error) {
	details := map[string]any{}
	if in.CustomerID == uuid.Nil {
		details["customer_id"] = "required"
	}
	if in.SavedCardID == uuid.Nil {
		details["saved_card_id"] = "required"
	}
	if in.AmountCents <= 0 {
		details["amount_cents"] = "must be positive"
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if !currencyPattern.MatchString(currency) {
		details["currency"] = "must be a 3-letter ISO code"
	}
	if len(details) > 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid charge").WithDetails(details)
	}
	return currency, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
