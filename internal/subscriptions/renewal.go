package subscriptions

import (
	"time"

	"gorm.io/datatypes"

	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
)

const periodKeyLayout = "20060102"

// OutcomeKind classifies a renewal attempt for the subscription state machine.
type OutcomeKind string

const (
	OutcomePaid    OutcomeKind = "paid"
	OutcomeFailed  OutcomeKind = "failed"
	OutcomePending OutcomeKind = "pending"
)

// RenewalOutcome is what the renewal job learned from one charge attempt.
type RenewalOutcome struct {
	Kind          OutcomeKind
	TransactionID string
	Error         string
}

// OutcomeFor maps a normalized payment status onto the subscription outcome.
func OutcomeFor(status enums.PaymentStatusV2) OutcomeKind {
	switch status {
	case enums.PaymentStatusSucceeded:
		return OutcomePaid
	case enums.PaymentStatusFailed:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// IsDue reports whether the current period has ended.
func IsDue(sub *models.Subscription, now time.Time) bool {
	return sub != nil && sub.CurrentPeriodEnd != nil && !sub.CurrentPeriodEnd.After(now)
}

// PeriodKey identifies the period a renewal charges: the UTC date its start falls on.
func PeriodKey(periodStart time.Time) string {
	return periodStart.UTC().Format(periodKeyLayout)
}

// AddInterval advances t by count intervals, clamping to the end of shorter months.
func AddInterval(t time.Time, interval enums.BillingInterval, count int) time.Time {
	if count <= 0 {
		count = 1
	}
	months := interval.Months() * count

	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); day > last {
		day = last
	}
	hour, minute, sec := t.Clock()
	return time.Date(target.Year(), target.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// ApplyRenewalOutcome moves the subscription through the renewal state machine.
// Paid rolls the period forward and reactivates, failed marks the subscription
// past due, pending leaves status and period untouched.
func ApplyRenewalOutcome(sub *models.Subscription, outcome RenewalOutcome, now time.Time) {
	if sub == nil {
		return
	}
	meta := sub.Metadata.Data()
	attemptAt := now.UTC()
	meta.LastRenewalAttemptAt = &attemptAt
	if outcome.TransactionID != "" {
		meta.LastRenewalTransactionID = outcome.TransactionID
	}

	switch outcome.Kind {
	case OutcomePaid:
		if sub.CurrentPeriodEnd != nil {
			start := *sub.CurrentPeriodEnd
			end := AddInterval(start, sub.Interval, sub.IntervalCount)
			sub.CurrentPeriodStart = &start
			sub.CurrentPeriodEnd = &end
		}
		sub.Status = enums.SubscriptionStatusActive
		meta.LastRenewalError = ""
		meta.FailedRenewalCount = 0
	case OutcomeFailed:
		sub.Status = enums.SubscriptionStatusPastDue
		meta.LastRenewalError = outcome.Error
		meta.FailedRenewalCount++
	default:
		if outcome.Error != "" {
			meta.LastRenewalError = outcome.Error
		}
	}

	sub.Metadata = datatypes.NewJSONType(meta)
}
