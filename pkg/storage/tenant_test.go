package storage

import (
	"context"
	"testing"
)

func TestScopeFrom(t *testing.T) {
	bg := context.Background()
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"empty context", bg, ""},
		{"scoped", WithScope(bg, "org-1"), "org-1"},
		{"innermost wins", WithScope(WithScope(bg, "org-1"), "org-2"), "org-2"},
		{"cleared", WithScope(WithScope(bg, "org-1"), ""), ""},
		{"foreign key ignored", context.WithValue(bg, "tenant", "org-1"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScopeFrom(tt.ctx).Tenant; got != tt.want {
				t.Errorf("tenant = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScopeAdmits(t *testing.T) {
	var all Scope
	if !all.Unscoped() || !all.Admits("org-1") || !all.Admits("") {
		t.Error("zero scope must admit everything")
	}

	org1 := Scope{Tenant: "org-1"}
	if org1.Unscoped() {
		t.Error("tenant scope reported unscoped")
	}
	if !org1.Admits("org-1") {
		t.Error("own record rejected")
	}
	if org1.Admits("org-2") || org1.Admits("") {
		t.Error("foreign or ownerless record admitted")
	}
}
