package auth

import (
	"context"
	"strings"

	"github.com/davisshaver/siwe-login/internal/config"
)

// RoleResolver decides the role for an authenticated address. Resolvers
// run in registration order and each sees the role chosen so far; the
// last resolver to return a non-empty role wins. Returning "" keeps the
// current role.
type RoleResolver interface {
	ResolveRole(ctx context.Context, address, current string) (string, error)
}

// RoleResolverFunc adapts a function to the RoleResolver interface.
type RoleResolverFunc func(ctx context.Context, address, current string) (string, error)

func (f RoleResolverFunc) ResolveRole(ctx context.Context, address, current string) (string, error) {
	return f(ctx, address, current)
}

// StaticResolver assigns roles from a fixed per-address table. Address
// comparison ignores case so checksummed and lowercase forms match.
type StaticResolver struct {
	overrides []config.RoleOverride
}

func NewStaticResolver(overrides []config.RoleOverride) *StaticResolver {
	return &StaticResolver{overrides: overrides}
}

func (r *StaticResolver) ResolveRole(_ context.Context, address, _ string) (string, error) {
	role := ""
	for _, o := range r.overrides {
		if strings.EqualFold(o.Address, address) {
			role = o.Role
		}
	}
	return role, nil
}
