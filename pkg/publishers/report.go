package publishers

import (
	"context"
	"errors"
	"sort"
)

// Source records where a package's publishers came from.
type Source string

const (
	SourceSnapshot Source = "snapshot"
	SourceAPI      Source = "api"
	SourceMerged   Source = "merged"
	SourceNone     Source = "none"
)

// FailureKind classifies why publishers could not be fully determined.
type FailureKind string

const (
	FailureNotFound      FailureKind = "not_found"
	FailureClient        FailureKind = "client_error"
	FailureNetwork       FailureKind = "network"
	FailureTeamExpansion FailureKind = "team_expansion"
	FailureUnavailable   FailureKind = "unavailable"
	FailureCanceled      FailureKind = "canceled"
)

// Failure annotates an entry whose publisher set is incomplete or unknown.
// An entry without a Failure was queried successfully, even if its set is empty.
type Failure struct {
	Kind    FailureKind `json:"kind" yaml:"kind"`
	Message string      `json:"message" yaml:"message"`
}

func (f *Failure) Error() string { return string(f.Kind) + ": " + f.Message }

// Classifier is implemented by errors that know their [FailureKind].
type Classifier interface {
	FailureKind() FailureKind
}

// failureFrom converts a lookup error into an annotation.
func failureFrom(err error) *Failure {
	if err == nil {
		return nil
	}
	kind := FailureNetwork
	var c Classifier
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = FailureCanceled
	case errors.As(err, &c):
		kind = c.FailureKind()
	}
	return &Failure{Kind: kind, Message: err.Error()}
}

// Entry is the resolution result for one requested package.
type Entry struct {
	Package    Package
	Publishers *Set
	Source     Source
	Failure    *Failure
}

// Resolved reports whether the publisher set is authoritative.
func (e Entry) Resolved() bool { return e.Failure == nil }

// Report holds one entry per requested package, in request order.
type Report struct {
	Entries []Entry
}

// Lookup returns the first entry for p.
func (r *Report) Lookup(p Package) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Package == p {
			return e, true
		}
	}
	return Entry{}, false
}

// Failures returns the annotated entries in request order.
func (r *Report) Failures() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Failure != nil {
			out = append(out, e)
		}
	}
	return out
}

// PublisherEntry lists the packages one account can publish.
type PublisherEntry struct {
	Account  Account
	Packages []string
}

// ByPublisher inverts the report: for every account, the distinct package
// names it publishes. Accounts with more packages come first; ties are
// broken by display name.
func (r *Report) ByPublisher() []PublisherEntry {
	byID := make(map[AccountID]*PublisherEntry)
	seen := make(map[AccountID]map[string]bool)
	for _, e := range r.Entries {
		for _, a := range e.Publishers.Accounts() {
			id := a.AccountID()
			pe, ok := byID[id]
			if !ok {
				pe = &PublisherEntry{Account: a}
				byID[id] = pe
				seen[id] = make(map[string]bool)
			}
			if !seen[id][e.Package.Name] {
				seen[id][e.Package.Name] = true
				pe.Packages = append(pe.Packages, e.Package.Name)
			}
		}
	}

	out := make([]PublisherEntry, 0, len(byID))
	for _, pe := range byID {
		sort.Strings(pe.Packages)
		out = append(out, *pe)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Packages) != len(out[j].Packages) {
			return len(out[i].Packages) > len(out[j].Packages)
		}
		return out[i].Account.DisplayName() < out[j].Account.DisplayName()
	})
	return out
}
