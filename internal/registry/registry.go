// Package registry maps bech32 address prefixes to known public LCD endpoints.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cosmos/cosmos-sdk/types/bech32"
)

// ErrUnsupportedChain is returned when no profile matches an address prefix.
var ErrUnsupportedChain = errors.New("unsupported chain")

// ChainProfile describes one supported network.
type ChainProfile struct {
	Name    string
	Prefix  string
	ChainID string
	// Endpoints are ordered most reliable first.
	Endpoints []string
}

// Registry is an immutable prefix -> profile lookup table.
type Registry struct {
	profiles map[string]ChainProfile
}

// New builds a Registry from profiles. Prefixes must be unique and every profile
// needs at least one endpoint.
func New(profiles ...ChainProfile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]ChainProfile, len(profiles))}
	for _, p := range profiles {
		if p.Prefix == "" {
			return nil, fmt.Errorf("profile %q: empty prefix", p.Name)
		}
		if len(p.Endpoints) == 0 {
			return nil, fmt.Errorf("profile %q: no endpoints", p.Name)
		}
		if _, ok := r.profiles[p.Prefix]; ok {
			return nil, fmt.Errorf("duplicate prefix %q", p.Prefix)
		}
		p.Endpoints = append([]string(nil), p.Endpoints...)
		r.profiles[p.Prefix] = p
	}
	return r, nil
}

// Lookup returns the profile registered for prefix.
func (r *Registry) Lookup(prefix string) (ChainProfile, error) {
	p, ok := r.profiles[prefix]
	if !ok {
		return ChainProfile{}, fmt.Errorf("%w: prefix %q", ErrUnsupportedChain, prefix)
	}
	p.Endpoints = append([]string(nil), p.Endpoints...)
	return p, nil
}

// Profiles returns every profile sorted by prefix.
func (r *Registry) Profiles() []ChainProfile {
	out := make([]ChainProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		p.Endpoints = append([]string(nil), p.Endpoints...)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

// Prefix returns the human-readable part of a bech32 address. The data part never
// contains '1', so the separator is the last '1'.
func Prefix(address string) (string, error) {
	address = strings.TrimSpace(address)
	idx := strings.LastIndex(address, "1")
	if idx < 1 {
		return "", fmt.Errorf("address %q has no bech32 prefix", address)
	}
	return strings.ToLower(address[:idx]), nil
}

// ValidateAddress checks the bech32 encoding of address, including its checksum.
func ValidateAddress(address string) error {
	if _, _, err := bech32.DecodeAndConvert(address); err != nil {
		return fmt.Errorf("invalid bech32 address %q: %w", address, err)
	}
	return nil
}
