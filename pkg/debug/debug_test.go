package debug

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/rhuss/kette/pkg/config"
)

// withCategories activates list for the duration of the test.
func withCategories(t *testing.T, list string) {
	t.Helper()
	prev := active.Load()
	setCategories(list)
	t.Cleanup(func() { active.Store(prev) })
}

func TestCategories(t *testing.T) {
	tests := []struct {
		list string
		want []string
	}{
		{"", []string{}},
		{"transport", []string{"transport"}},
		{" Proxy , TRANSPORT ", []string{"proxy", "transport"}},
		{"auth,,auth", []string{"auth"}},
	}
	for _, tt := range tests {
		withCategories(t, tt.list)
		if got := Categories(); !slices.Equal(got, tt.want) {
			t.Errorf("Categories(%q) = %v, want %v", tt.list, got, tt.want)
		}
	}
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		list     string
		category string
		want     bool
	}{
		{"transport,proxy", "proxy", true},
		{"transport,proxy", "auth", false},
		{"transport", "all", false},
		{"all", "anything", true},
		{"", "transport", false},
	}
	for _, tt := range tests {
		withCategories(t, tt.list)
		if got := Enabled(tt.category); got != tt.want {
			t.Errorf("Enabled(%q) with %q = %v, want %v", tt.category, tt.list, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"trace": LevelTrace, "DEBUG": slog.LevelDebug, " info ": slog.LevelInfo,
		"": slog.LevelInfo, "Warning": slog.LevelWarn, "ERROR": slog.LevelError,
		"verbose": slog.LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("got %q", got)
	}
}

func restoreDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestSetupJSON(t *testing.T) {
	restoreDefault(t)
	withCategories(t, "")
	t.Setenv(envCategories, "")
	t.Setenv(envLevel, "")

	var buf bytes.Buffer
	logger := setup(&buf, config.LoggingConfig{Debug: "transport", Level: "debug", Format: "json"})

	Log("transport", "hello", "key", "value")
	Log("auth", "hidden")
	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"debug":"transport"`) {
		t.Errorf("output = %q, want JSON debug entry", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("disabled category was logged")
	}
	if logger.Enabled(context.Background(), LevelTrace) {
		t.Error("trace enabled at debug level")
	}
}

func TestSetupEnvironmentWins(t *testing.T) {
	restoreDefault(t)
	withCategories(t, "")
	t.Setenv(envCategories, "auth")
	t.Setenv(envLevel, "TRACE")

	var buf bytes.Buffer
	setup(&buf, config.LoggingConfig{Debug: "transport", Level: "info"})

	if got := Categories(); !slices.Equal(got, []string{"auth"}) {
		t.Errorf("Categories = %v, want [auth]", got)
	}
	if !TraceEnabled("auth") || TraceEnabled("transport") {
		t.Error("trace gating wrong")
	}
	Trace("auth", "raw", "k", "v")
	if !strings.Contains(buf.String(), "msg=raw") {
		t.Errorf("output = %q, want trace line", buf.String())
	}
}
