// Package apikey authenticates static bearer keys. Only SHA-256 digests of
// the keys are kept in memory.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"maps"
	"slices"

	"github.com/rhuss/kette/pkg/auth"
	"github.com/rhuss/kette/pkg/config"
	"github.com/rhuss/kette/pkg/message"
)

// Key binds a secret to the identity it authenticates.
type Key struct {
	Secret   string
	Identity auth.Identity
}

type entry struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

type Authenticator struct {
	entries []entry
}

func New(keys ...Key) *Authenticator {
	a := &Authenticator{entries: make([]entry, 0, len(keys))}
	for _, k := range keys {
		a.entries = append(a.entries, entry{digest: sha256.Sum256([]byte(k.Secret)), identity: k.Identity})
	}
	return a
}

// FromConfig builds an authenticator from the auth.api_keys section.
func FromConfig(keys []config.APIKeyConfig) *Authenticator {
	out := make([]Key, len(keys))
	for i, k := range keys {
		out[i] = Key{Secret: k.Key, Identity: auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}}
		if k.TenantID != "" {
			out[i].Identity.Metadata = map[string]string{auth.TenantKey: k.TenantID}
		}
	}
	return New(out...)
}

// Challenge asks rejected clients for a bearer token.
func (*Authenticator) Challenge() string { return "Bearer" }

// Authenticate abstains without a bearer header and rejects unknown or
// empty keys.
func (a *Authenticator) Authenticate(_ context.Context, req *message.Request) auth.AuthResult {
	token, ok := auth.BearerToken(req)
	switch {
	case !ok:
		return auth.Pass()
	case token == "":
		return auth.Reject(nil)
	}

	digest := sha256.Sum256([]byte(token))
	var found *entry
	// No early exit: the comparison time must not depend on the match position.
	for i := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], a.entries[i].digest[:]) == 1 && found == nil {
			found = &a.entries[i]
		}
	}
	if found == nil {
		return auth.Reject(nil)
	}

	id := found.identity
	id.Scopes = slices.Clone(id.Scopes)
	id.Metadata = maps.Clone(id.Metadata)
	return auth.Accept(&id)
}
