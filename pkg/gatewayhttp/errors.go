package gatewayhttp

import (
	"encoding/json"
	"fmt"
)

// ProviderError is the transport-level failure of a gateway call.
type ProviderError struct {
	Provider   string
	Operation  string
	StatusCode int
	Message    string
	Body       []byte
	Transient  bool
	Timeout    bool
	Attempts   int
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: http %d: %s", e.Provider, e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Operation, e.Message)
}

// Details returns an audit-safe view of the provider response.
func (e *ProviderError) Details() map[string]any {
	details := map[string]any{
		"provider":  e.Provider,
		"operation": e.Operation,
		"attempts":  e.Attempts,
	}
	if e.StatusCode > 0 {
		details["status"] = e.StatusCode
	}
	if len(e.Body) > 0 {
		var payload any
		if err := json.Unmarshal(e.Body, &payload); err == nil {
			details["response"] = payload
		} else {
			details["response"] = string(e.Body)
		}
	}
	return details
}
