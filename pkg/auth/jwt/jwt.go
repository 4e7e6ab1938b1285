// Package jwt authenticates bearer JWTs signed with RSA keys published at a
// JWKS endpoint.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/kette/pkg/auth"
	"github.com/rhuss/kette/pkg/config"
	"github.com/rhuss/kette/pkg/debug"
	"github.com/rhuss/kette/pkg/message"
)

// Config selects the key source, the required registered claims and the
// claims an identity is built from. Empty Issuer or Audience disables that
// check.
type Config struct {
	Issuer   string
	Audience string
	JWKSURL  string

	UserClaim   string // default "sub"
	TenantClaim string // default "tenant_id"
	ScopesClaim string // default "scope"; a space separated string or an array

	CacheTTL   time.Duration // default 1h
	HTTPClient *http.Client  // default http.DefaultClient
}

// ConfigFrom converts the auth.jwt configuration section.
func ConfigFrom(c config.JWTConfig) Config {
	return Config{
		Issuer:      c.Issuer,
		Audience:    c.Audience,
		JWKSURL:     c.JWKSURL,
		UserClaim:   c.UserClaim,
		TenantClaim: c.TenantClaim,
		ScopesClaim: c.ScopesClaim,
		CacheTTL:    c.CacheTTL,
	}
}

func (c Config) withDefaults() Config {
	def := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	def(&c.UserClaim, "sub")
	def(&c.TenantClaim, auth.TenantKey)
	def(&c.ScopesClaim, "scope")
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	return c
}

var errMissingKID = errors.New("token has no kid header")

type Authenticator struct {
	cfg    Config
	parser *jwtlib.Parser
	keys   *keySet
}

func New(cfg Config) *Authenticator {
	cfg = cfg.withDefaults()
	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		cfg:    cfg,
		parser: jwtlib.NewParser(opts...),
		keys:   newKeySet(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL),
	}
}

// Challenge asks rejected clients for a bearer token.
func (*Authenticator) Challenge() string { return "Bearer" }

// Authenticate abstains without a bearer header. Any token that fails
// signature, registered claim or subject checks is rejected.
func (a *Authenticator) Authenticate(ctx context.Context, req *message.Request) auth.AuthResult {
	raw, ok := auth.BearerToken(req)
	if !ok {
		return auth.Pass()
	}
	if raw == "" {
		return auth.Reject(errors.New("empty bearer token"))
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKID
		}
		return a.keys.lookup(ctx, kid)
	})
	if err != nil {
		debug.Log("auth", "JWT rejected", "error", err)
		return auth.Reject(fmt.Errorf("invalid JWT: %w", err))
	}

	id, err := a.identity(claims)
	if err != nil {
		return auth.Reject(err)
	}
	return auth.Accept(id)
}

func (a *Authenticator) identity(claims jwtlib.MapClaims) (*auth.Identity, error) {
	subject, _ := claims[a.cfg.UserClaim].(string)
	if subject == "" {
		return nil, fmt.Errorf("JWT missing %q claim", a.cfg.UserClaim)
	}
	id := &auth.Identity{Subject: subject, Scopes: scopes(claims[a.cfg.ScopesClaim])}
	if tenant, _ := claims[a.cfg.TenantClaim].(string); tenant != "" {
		id.Metadata = map[string]string{auth.TenantKey: tenant}
	}
	return id, nil
}

func scopes(v any) []string {
	var out []string
	switch v := v.(type) {
	case string:
		out = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
