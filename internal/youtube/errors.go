package youtube

import "errors"

// Errors surfaced to the enrich handler, which maps them onto queue policy:
// CircuitOpen and transient failures retry normally; QuotaExceeded requeues
// with an extended delay until the quota window rolls over.
var (
	ErrCircuitOpen   = errors.New("youtube: circuit breaker open")
	ErrQuotaExceeded = errors.New("youtube: daily quota exceeded")
)

// TransientError wraps an upstream failure that survived the retry budget.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "youtube: transient upstream failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
