package auth

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/rhuss/kette/pkg/message"
)

// AuthDecision is an authenticator's vote on a request.
type AuthDecision int

const (
	// Yes accepts the request and ends the chain.
	Yes AuthDecision = iota
	// No rejects the request and ends the chain.
	No
	// Abstain defers to the next authenticator.
	Abstain
)

func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	}
	return "unknown"
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthResult is the outcome of one vote. Identity is set for Yes, Err for No.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity
	Err      error
}

// Accept votes Yes for id.
func Accept(id *Identity) AuthResult { return AuthResult{Decision: Yes, Identity: id} }

// Reject votes No. A nil err is reported as ErrUnauthenticated.
func Reject(err error) AuthResult {
	if err == nil {
		err = ErrUnauthenticated
	}
	return AuthResult{Decision: No, Err: err}
}

// Pass abstains.
func Pass() AuthResult { return AuthResult{Decision: Abstain} }

// TenantKey is the Identity.Metadata key holding the caller's tenant.
const TenantKey = "tenant_id"

// Identity describes an authenticated caller.
type Identity struct {
	Subject     string
	ServiceTier string // rate limit bucket; empty selects the default
	Scopes      []string
	Metadata    map[string]string
}

// Anonymous returns the identity used when no credentials are required.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default"}
}

// TenantID returns Metadata[TenantKey]. It is safe on a nil Identity.
func (id *Identity) TenantID() string {
	if id == nil {
		return ""
	}
	return id.Metadata[TenantKey]
}

// HasScope reports whether scope was granted.
func (id *Identity) HasScope(scope string) bool {
	return id != nil && slices.Contains(id.Scopes, scope)
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, req *message.Request) AuthResult
}

// Challenger is implemented by authenticators that can tell a rejected
// client how to authenticate. Challenge returns a WWW-Authenticate value.
type Challenger interface {
	Challenge() string
}

// AuthChain asks its authenticators in order until one votes Yes or No.
// When all abstain, DefaultDecision applies: Yes admits Anonymous(), any
// other value rejects.
type AuthChain struct {
	Authenticators  []Authenticator
	DefaultDecision AuthDecision
}

func (c *AuthChain) Authenticate(ctx context.Context, req *message.Request) AuthResult {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, req); res.Decision != Abstain {
			return res
		}
	}
	if c.DefaultDecision == Yes {
		return Accept(Anonymous())
	}
	return Reject(nil)
}

// Challenges returns the distinct challenges of the chain's authenticators
// in chain order.
func (c *AuthChain) Challenges() []string {
	var out []string
	for _, a := range c.Authenticators {
		ch, ok := a.(Challenger)
		if !ok {
			continue
		}
		if v := ch.Challenge(); v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

const bearerScheme = "bearer"

// BearerToken returns the credentials of an "Authorization: Bearer" header.
// ok is false without the header or for another scheme. An empty token
// with ok set means the scheme came without credentials.
func BearerToken(req *message.Request) (token string, ok bool) {
	scheme, rest, _ := strings.Cut(strings.TrimSpace(req.Header().Get("Authorization")), " ")
	if !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
