package snapshot

import (
	"errors"
	"fmt"
	"net/http"
)

// FetchErrorKind tags the failure mode of a dump download.
type FetchErrorKind string

const (
	FetchNetwork   FetchErrorKind = "network"
	FetchStatus    FetchErrorKind = "status"
	FetchTruncated FetchErrorKind = "truncated"
	FetchCorrupt   FetchErrorKind = "corrupt"
	FetchUnpack    FetchErrorKind = "unpack"
	FetchIO        FetchErrorKind = "io"
)

// FetchError reports a failed dump download. StatusCode is set for
// [FetchStatus] only.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether repeating the download may succeed.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case FetchNetwork, FetchTruncated:
		return true
	case FetchStatus:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// StoreError reports a failed write to the snapshot directory. The previously
// installed snapshot, if any, is unaffected.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("snapshot store: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ErrIncomplete is wrapped by errors about staged directories that lack a
// required table.
var ErrIncomplete = errors.New("snapshot is missing a required table")
