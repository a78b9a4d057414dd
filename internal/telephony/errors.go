package telephony

import "fmt"

// TransportError is returned by every provider REST operation. Callers must
// treat it as non-fatal to the surrounding business operation where the
// component contract says so (reminder sweeps continue, live calls degrade
// to fallbacks); only call placement aborts on it.
type TransportError struct {
	// Op identifies the operation: "place_call", "send_sms".
	Op string

	// StatusCode is the provider HTTP status, zero when the request never
	// completed.
	StatusCode int

	// ProviderCode and Message carry the provider's error detail.
	ProviderCode int
	Message      string

	Err error
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("telephony: %s failed: %s (status %d, code %d)", e.Op, e.Message, e.StatusCode, e.ProviderCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("telephony: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("telephony: %s failed (status %d)", e.Op, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }
