package instagram

import "fmt"

// Kind classifies platform failures for the publication state machine.
type Kind string

const (
	// KindRateLimited means the platform throttled the call; retry after the
	// reported delay without counting an attempt.
	KindRateLimited Kind = "rate_limited"
	// KindTransient covers network errors, timeouts and 5xx responses.
	KindTransient Kind = "transient"
	// KindAuthExpired means the access token was rejected; route to the token
	// lifecycle manager, not the publish backoff curve.
	KindAuthExpired Kind = "auth_expired"
	// KindPermanent covers invalid media, revoked permissions and content
	// policy violations. Never retried.
	KindPermanent Kind = "permanent"
)

// APIError is the typed failure every platform call returns. The engine never
// sees a raw HTTP error.
type APIError struct {
	Kind       Kind
	StatusCode int
	Code       int // platform error code, e.g. 190 for expired tokens
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instagram api error (%s, http %d, code %d): %s", e.Kind, e.StatusCode, e.Code, e.Message)
}

// AsAPIError unwraps err into an *APIError if it is one.
func AsAPIError(err error) (*APIError, bool) {
	apiErr, ok := err.(*APIError)
	return apiErr, ok
}

// classifyStatus maps an HTTP status and platform error code onto a Kind,
// following the Graph API's documented behavior.
func classifyStatus(status, code int) Kind {
	switch {
	case status == 429 || code == 4 || code == 17: // request limit codes
		return KindRateLimited
	case status == 401 || code == 190: // expired or invalidated token
		return KindAuthExpired
	case status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}
