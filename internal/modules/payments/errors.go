package payments

import "errors"

var (
	// ErrGatewayUnavailable is transient: the sweep retries next cycle, the
	// verify endpoint reports "still processing". Never treated as a
	// cancellation signal.
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	ErrBadSignature   = errors.New("notification signature invalid")
	ErrBadPayload     = errors.New("notification payload malformed")
	ErrUnknownGateway = errors.New("unknown gateway")
)
