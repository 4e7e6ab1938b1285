package apikey

import (
	"context"
	"testing"

	"github.com/rhuss/kette/pkg/auth"
	"github.com/rhuss/kette/pkg/config"
	"github.com/rhuss/kette/pkg/message"
)

func authorize(a *Authenticator, header string) auth.AuthResult {
	req := message.NewRequest("GET", nil)
	if header != "" {
		req = req.WithHeader("Authorization", header)
	}
	return a.Authenticate(context.Background(), req)
}

func keyring() *Authenticator {
	return New(
		Key{Secret: "sk-alice", Identity: auth.Identity{
			Subject:     "alice",
			ServiceTier: "standard",
			Metadata:    map[string]string{auth.TenantKey: "org-1"},
		}},
		Key{Secret: "sk-bob", Identity: auth.Identity{Subject: "bob", ServiceTier: "premium"}},
	)
}

func TestAuthenticate(t *testing.T) {
	a := keyring()
	tests := []struct {
		header  string
		want    auth.AuthDecision
		subject string
	}{
		{"Bearer sk-alice", auth.Yes, "alice"},
		{"Bearer sk-bob", auth.Yes, "bob"},
		{"bearer sk-bob", auth.Yes, "bob"},
		{"Bearer sk-mallory", auth.No, ""},
		{"Bearer ", auth.No, ""},
		{"", auth.Abstain, ""},
		{"Basic dXNlcjpwYXNz", auth.Abstain, ""},
	}
	for _, tt := range tests {
		res := authorize(a, tt.header)
		if res.Decision != tt.want {
			t.Errorf("%q: decision = %s, want %s", tt.header, res.Decision, tt.want)
			continue
		}
		if tt.subject != "" && res.Identity.Subject != tt.subject {
			t.Errorf("%q: subject = %q, want %q", tt.header, res.Identity.Subject, tt.subject)
		}
	}

	res := authorize(a, "Bearer sk-alice")
	if res.Identity.ServiceTier != "standard" || res.Identity.TenantID() != "org-1" {
		t.Errorf("alice = %+v", res.Identity)
	}
}

func TestAuthenticateReturnsCopy(t *testing.T) {
	a := keyring()
	first := authorize(a, "Bearer sk-alice")
	first.Identity.Metadata[auth.TenantKey] = "mutated"

	if got := authorize(a, "Bearer sk-alice").Identity.TenantID(); got != "org-1" {
		t.Errorf("tenant = %q, stored identity was mutated", got)
	}
}

func TestFromConfig(t *testing.T) {
	a := FromConfig([]config.APIKeyConfig{
		{Key: "sk-cfg", Subject: "carol", TenantID: "org-9", ServiceTier: "premium"},
		{Key: "sk-plain", Subject: "dave"},
	})

	id := authorize(a, "Bearer sk-cfg").Identity
	if id == nil || id.Subject != "carol" || id.TenantID() != "org-9" || id.ServiceTier != "premium" {
		t.Errorf("carol = %+v", id)
	}
	id = authorize(a, "Bearer sk-plain").Identity
	if id == nil || id.TenantID() != "" || id.Metadata != nil {
		t.Errorf("dave = %+v", id)
	}
}

func TestChallenge(t *testing.T) {
	var a auth.Authenticator = keyring()
	c, ok := a.(auth.Challenger)
	if !ok || c.Challenge() != "Bearer" {
		t.Errorf("api key authenticator should challenge with Bearer")
	}
}
