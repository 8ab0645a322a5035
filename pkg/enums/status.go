package enums

import "slices"

// CardStatus is the soft lifecycle state of a saved card.
type CardStatus string

const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusExpired CardStatus = "EXPIRED"
)

func (c CardStatus) String() string { return string(c) }

func (c CardStatus) IsValid() bool {
	return c == CardStatusActive || c == CardStatusExpired
}

// PaymentStatusV2 is the provider-agnostic outcome of a charge attempt.
type PaymentStatusV2 string

const (
	PaymentStatusSucceeded  PaymentStatusV2 = "SUCCEEDED"
	PaymentStatusProcessing PaymentStatusV2 = "PROCESSING"
	PaymentStatusFailed     PaymentStatusV2 = "FAILED"
)

var paymentStatuses = []PaymentStatusV2{PaymentStatusSucceeded, PaymentStatusProcessing, PaymentStatusFailed}

func (p PaymentStatusV2) String() string { return string(p) }

func (p PaymentStatusV2) IsValid() bool { return slices.Contains(paymentStatuses, p) }

// Terminal reports whether no further gateway update is expected.
func (p PaymentStatusV2) Terminal() bool {
	return p == PaymentStatusSucceeded || p == PaymentStatusFailed
}

func ParsePaymentStatusV2(value string) (PaymentStatusV2, error) {
	return parse("payment status", paymentStatuses, value)
}

// SubscriptionStatus is the billing state of a recurring subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing SubscriptionStatus = "TRIALING"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

var (
	subscriptionStatuses = []SubscriptionStatus{
		SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCanceled,
	}
	renewableStatuses = []SubscriptionStatus{SubscriptionStatusActive, SubscriptionStatusTrialing}
)

func (s SubscriptionStatus) String() string { return string(s) }

func (s SubscriptionStatus) IsValid() bool { return slices.Contains(subscriptionStatuses, s) }

// Renewable reports whether the renewal job may charge a subscription in this state.
func (s SubscriptionStatus) Renewable() bool { return slices.Contains(renewableStatuses, s) }

// RenewableSubscriptionStatuses returns the states swept by the renewal job.
func RenewableSubscriptionStatuses() []SubscriptionStatus {
	return append([]SubscriptionStatus(nil), renewableStatuses...)
}

func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	return parse("subscription status", subscriptionStatuses, value)
}

// BillingInterval defines the cadence of a subscription period.
type BillingInterval string

const (
	BillingIntervalMonth BillingInterval = "MONTH"
	BillingIntervalYear  BillingInterval = "YEAR"
)

func (b BillingInterval) String() string { return string(b) }

func (b BillingInterval) IsValid() bool {
	return b == BillingIntervalMonth || b == BillingIntervalYear
}

// Months is the length of one interval in calendar months. Unknown values count as a month.
func (b BillingInterval) Months() int {
	if b == BillingIntervalYear {
		return 12
	}
	return 1
}

func ParseBillingInterval(value string) (BillingInterval, error) {
	return parse("billing interval", []BillingInterval{BillingIntervalMonth, BillingIntervalYear}, value)
}
