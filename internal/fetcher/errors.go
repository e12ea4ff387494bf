package fetcher

import "fmt"

// FailureKind classifies a failed state fetch.
type FailureKind int

const (
	// Transport: the first page failed for a reason other than a timeout.
	Transport FailureKind = iota + 1
	// Timeout: a page did not complete within the page timeout.
	Timeout
	// Partial: a later page failed after earlier pages succeeded.
	Partial
)

func (k FailureKind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Timeout:
		return "timeout"
	case Partial:
		return "partial"
	default:
		return "unknown"
	}
}

// FetchError reports a discarded state fetch. All kinds are transient.
type FetchError struct {
	Kind FailureKind
	// Page is the zero-based index of the page that failed.
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch state (%s, page %d): %v", e.Kind, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
