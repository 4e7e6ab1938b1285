package auth

import (
	"context"

	"github.com/rhuss/kette/pkg/storage"
)

type identityKey struct{}

// WithIdentity attaches id to ctx. When the identity belongs to a tenant,
// store reads made with the returned context are scoped to it.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, id)
	if id != nil {
		if tenant := id.TenantID(); tenant != "" {
			ctx = storage.WithScope(ctx, tenant)
		}
	}
	return ctx
}

// IdentityFrom returns the identity attached by WithIdentity, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// SubjectFrom returns the subject of the attached identity, or "".
func SubjectFrom(ctx context.Context) string {
	if id := IdentityFrom(ctx); id != nil {
		return id.Subject
	}
	return ""
}
