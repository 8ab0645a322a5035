package gateways

import (
	"errors"
	"fmt"
)

// Step names a stage of a multi-call provider charge.
type Step string

const (
	StepOrder   Step = "order"
	StepPayment Step = "payment"
)

// StepError reports which stage of a two-step charge failed. OrderID is set once
// the provider accepted the order.
type StepError struct {
	Step    Step
	OrderID string
	Raw     []byte
	Err     error
}

func (e *StepError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s step failed (order %s): %v", e.Step, e.OrderID, e.Err)
	}
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep extracts the failing step from err, if it came from a two-step charge.
func FailedStep(err error) (*StepError, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr, true
	}
	return nil, false
}
