package storage

import "context"

type scopeKey struct{}

// Scope limits what a store returns to the records of one tenant. The zero
// Scope is unscoped and admits every record.
type Scope struct {
	Tenant string
}

// WithScope returns a context whose store reads are limited to tenant. An
// empty tenant clears any outer scope.
func WithScope(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, scopeKey{}, Scope{Tenant: tenant})
}

// ScopeFrom returns the scope carried by ctx.
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

// Unscoped reports whether the scope admits every tenant.
func (s Scope) Unscoped() bool { return s.Tenant == "" }

// Admits reports whether a record owned by tenant is visible.
func (s Scope) Admits(tenant string) bool {
	return s.Unscoped() || s.Tenant == tenant
}
