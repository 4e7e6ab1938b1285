package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/rhuss/kette/pkg/message"
	"github.com/rhuss/kette/pkg/storage"
)

// vote is an Authenticator returning a fixed result.
type vote AuthResult

func (v vote) Authenticate(context.Context, *message.Request) AuthResult { return AuthResult(v) }

func TestAuthChain(t *testing.T) {
	alice := vote(Accept(&Identity{Subject: "alice"}))
	bob := vote(Accept(&Identity{Subject: "bob"}))
	deny := vote(Reject(nil))
	pass := vote(Pass())

	tests := []struct {
		name        string
		voters      []Authenticator
		fallback    AuthDecision
		want        AuthDecision
		wantSubject string
	}{
		{"first yes wins", []Authenticator{alice, deny}, No, Yes, "alice"},
		{"first no wins", []Authenticator{deny, bob}, No, No, ""},
		{"abstain then yes", []Authenticator{pass, bob}, No, Yes, "bob"},
		{"all abstain rejects", []Authenticator{pass, pass}, No, No, ""},
		{"all abstain admits anonymous", []Authenticator{pass}, Yes, Yes, "anonymous"},
		{"empty chain rejects", nil, No, No, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &AuthChain{Authenticators: tt.voters, DefaultDecision: tt.fallback}
			res := chain.Authenticate(context.Background(), message.NewRequest("GET", nil))
			if res.Decision != tt.want {
				t.Fatalf("decision = %s, want %s", res.Decision, tt.want)
			}
			if tt.want == No && !errors.Is(res.Err, ErrUnauthenticated) {
				t.Errorf("err = %v, want ErrUnauthenticated", res.Err)
			}
			if tt.wantSubject != "" && res.Identity.Subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", res.Identity.Subject, tt.wantSubject)
			}
		})
	}
}

func TestIdentityAccessors(t *testing.T) {
	id := &Identity{Subject: "alice", Scopes: []string{"read"}, Metadata: map[string]string{TenantKey: "org-1"}}
	if id.TenantID() != "org-1" {
		t.Errorf("TenantID = %q", id.TenantID())
	}
	if !id.HasScope("read") || id.HasScope("write") {
		t.Errorf("HasScope wrong for %v", id.Scopes)
	}

	var none *Identity
	if none.TenantID() != "" || none.HasScope("read") {
		t.Error("nil identity must be empty")
	}
	if (&Identity{Subject: "bob"}).TenantID() != "" {
		t.Error("identity without metadata has a tenant")
	}
	if a := Anonymous(); a.Subject != "anonymous" || a.ServiceTier != "default" {
		t.Errorf("Anonymous = %+v", a)
	}
}

func TestDecisionString(t *testing.T) {
	for d, want := range map[AuthDecision]string{Yes: "yes", No: "no", Abstain: "abstain", 9: "unknown"} {
		if d.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(d), d.String(), want)
		}
	}
}

func TestWithIdentity(t *testing.T) {
	bg := context.Background()
	if IdentityFrom(bg) != nil || SubjectFrom(bg) != "" {
		t.Fatal("empty context carries an identity")
	}

	ctx := WithIdentity(bg, &Identity{Subject: "alice", Metadata: map[string]string{"tenant_id": "org-1"}})
	if SubjectFrom(ctx) != "alice" {
		t.Errorf("subject = %q, want alice", SubjectFrom(ctx))
	}
	if got := storage.ScopeFrom(ctx).Tenant; got != "org-1" {
		t.Errorf("scope = %q, want org-1", got)
	}

	// A tenantless identity leaves reads unscoped.
	ctx = WithIdentity(bg, &Identity{Subject: "bob"})
	if !storage.ScopeFrom(ctx).Unscoped() {
		t.Error("tenantless identity scoped the context")
	}
	if WithIdentity(bg, nil) == nil {
		t.Error("nil identity produced nil context")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantOK    bool
	}{
		{"", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer sk-1", "sk-1", true},
		{"bearer sk-2", "sk-2", true},
		{"Bearer", "", true},
		{"Bearer   ", "", true},
		{"Bearerish token", "", false},
		{"Bearer \tsk-3 ", "sk-3", true},
	}

	for _, tt := range tests {
		req := message.NewRequest("GET", nil)
		if tt.header != "" {
			req = req.WithHeader("Authorization", tt.header)
		}
		token, ok := BearerToken(req)
		if token != tt.wantToken || ok != tt.wantOK {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, token, ok, tt.wantToken, tt.wantOK)
		}
	}
}
