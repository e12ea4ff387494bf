package resolver

import (
	"fmt"
	"strings"

	"cwstate/internal/registry"
)

// Attempt records one endpoint that could not be used.
type Attempt struct {
	URL string
	Err error
}

// UnsupportedChainError reports an address whose prefix is not in the registry.
type UnsupportedChainError struct {
	Address string
	Prefix  string
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("unsupported chain: no endpoints known for prefix %q (address %s)", e.Prefix, e.Address)
}

func (e *UnsupportedChainError) Unwrap() error {
	return registry.ErrUnsupportedChain
}

// AllEndpointsFailedError lists every endpoint that was tried and why it failed.
type AllEndpointsFailedError struct {
	Prefix   string
	Attempts []Attempt
}

func (e *AllEndpointsFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("all endpoints failed for prefix %q: no candidates", e.Prefix)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "all endpoints failed for prefix %q:", e.Prefix)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "\n  %s: %v", a.URL, a.Err)
	}
	return b.String()
}
