// Package upstream decides whether the upstream system allows an instruction
// to be released onto the conveyor.
package upstream

import "context"

// Authority answers release queries for an origin/destination pair.
// A non-nil error means the answer is unknown; callers treat it as a denial.
type Authority interface {
	MayRelease(ctx context.Context, from, to string) (bool, error)
}

// AuthorityFunc adapts a function to the Authority interface.
type AuthorityFunc func(ctx context.Context, from, to string) (bool, error)

// MayRelease calls f.
func (f AuthorityFunc) MayRelease(ctx context.Context, from, to string) (bool, error) {
	return f(ctx, from, to)
}

// AllowAll releases every instruction. Used when no upstream is configured.
type AllowAll struct{}

// MayRelease always returns true.
func (AllowAll) MayRelease(context.Context, string, string) (bool, error) { return true, nil }
