package integrations

import (
	"errors"
	"net/http"
	"time"

	"github.com/matzehuels/supplychain/pkg/httputil"
)

const httpTimeout = 30 * time.Second

var (
	// ErrNotFound is returned when a package or resource doesn't exist in the registry.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors,
	// 5xx and 429 responses).
	ErrNetwork = errors.New("network error")

	// ErrClient is returned for 4xx responses other than 404 and 429.
	ErrClient = errors.New("request rejected")

	// ErrUnavailable is returned without a request while the circuit breaker
	// is open.
	ErrUnavailable = errors.New("registry temporarily unavailable")
)

// NewHTTPClient creates an HTTP client with a standard timeout for registry requests.
func NewHTTPClient() *http.Client {
	return httputil.NewHTTPClient(httpTimeout)
}
