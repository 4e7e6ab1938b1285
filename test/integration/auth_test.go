package integration

import (
	"net/http"
	"testing"

	"github.com/rhuss/kette/pkg/config"
)

func TestAPIKeyAuthentication(t *testing.T) {
	cfg := baseConfig(testEnv.Upstream.URL)
	cfg.Auth.Type = "apikey"
	cfg.Auth.APIKeys = []config.APIKeyConfig{
		{Key: "sk-alice", Subject: "alice", TenantID: "acme", ServiceTier: "gold"},
	}
	cfg.Auth.RateLimit.Enabled = true
	cfg.Auth.RateLimit.Default = config.TierLimit{RPS: 0.001, Burst: 1}
	cfg.Auth.RateLimit.Tiers = map[string]config.TierLimit{"gold": {RPS: 0.001, Burst: 3}}

	srv, err := startKette(cfg)
	if err != nil {
		t.Fatalf("starting kette: %v", err)
	}
	defer srv.Stop()
	url := baseURL(srv) + "/echo/secure"

	t.Run("missing key", func(t *testing.T) {
		resp := getURL(t, url)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		var body errorBody
		decodeJSON(t, resp, &body)
		if body.Error.Type != "unauthorized" {
			t.Errorf("error.type = %q", body.Error.Type)
		}
	})

	t.Run("health bypasses auth", func(t *testing.T) {
		resp := getURL(t, baseURL(srv)+"/healthz")
		readBody(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("tier burst then 429", func(t *testing.T) {
		auth := map[string]string{"Authorization": "Bearer sk-alice"}
		for i := range 3 {
			resp := getWithHeaders(t, url, auth)
			readBody(t, resp)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("request %d: expected 200, got %d", i+1, resp.StatusCode)
			}
		}
		resp := getWithHeaders(t, url, auth)
		readBody(t, resp)
		if resp.StatusCode != http.StatusTooManyRequests {
			t.Errorf("expected 429 after burst, got %d", resp.StatusCode)
		}
	})
}
