package crates

import (
	"errors"
	"fmt"

	"github.com/matzehuels/supplychain/pkg/integrations"
	"github.com/matzehuels/supplychain/pkg/publishers"
)

// APIErrorKind classifies registry API failures.
type APIErrorKind string

const (
	// NotFound: the crate or team does not exist. Not retried.
	NotFound APIErrorKind = "not_found"

	// ClientError: the registry rejected the request. Not retried.
	ClientError APIErrorKind = "client_error"

	// Transient: network, timeout or server failures that persisted after
	// retries, or an open circuit breaker.
	Transient APIErrorKind = "transient"
)

// APIError reports a failed lookup. Team is set when the failure happened
// while expanding a team's membership.
type APIError struct {
	Kind  APIErrorKind
	Crate string
	Team  string
	Err   error
}

func (e *APIError) Error() string {
	subject := "crate " + e.Crate
	if e.Team != "" {
		subject = "team " + e.Team
		if e.Crate != "" {
			subject = fmt.Sprintf("crate %s: team %s", e.Crate, e.Team)
		}
	}
	return fmt.Sprintf("%s: %s: %v", subject, e.Kind, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// FailureKind maps the error onto the report annotation.
func (e *APIError) FailureKind() publishers.FailureKind {
	if e.Team != "" && e.Crate != "" {
		return publishers.FailureTeamExpansion
	}
	switch e.Kind {
	case NotFound:
		return publishers.FailureNotFound
	case ClientError:
		return publishers.FailureClient
	}
	return publishers.FailureNetwork
}

var _ publishers.Classifier = (*APIError)(nil)

func classify(err error) APIErrorKind {
	switch {
	case errors.Is(err, integrations.ErrNotFound):
		return NotFound
	case errors.Is(err, integrations.ErrClient):
		return ClientError
	}
	return Transient
}
