package syncer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRuleRouterRoute(t *testing.T) {
	router := NewRuleRouter([]RouteRule{
		{Name: "invoices", Profile: "billing", FromContains: "billing@vendor.com"},
		{Name: "support", Profile: "support", SubjectContains: "ticket"},
	})

	tests := []struct {
		name        string
		msg         *Message
		wantRoute   string
		wantProfile string
		wantRule    string
	}{
		{
			name:        "matches sender rule",
			msg:         &Message{From: "Billing <billing@vendor.com>", Subject: "Invoice"},
			wantRoute:   RouteAgent,
			wantProfile: "billing",
			wantRule:    "invoices",
		},
		{
			name:        "matches subject rule case-insensitively",
			msg:         &Message{From: "someone@example.com", Subject: "Re: TICKET 123"},
			wantRoute:   RouteAgent,
			wantProfile: "support",
			wantRule:    "support",
		},
		{
			name:      "no rule matches",
			msg:       &Message{From: "friend@example.com", Subject: "lunch?"},
			wantRoute: RoutePipeline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := router.Route(tt.msg)
			if got.Route != tt.wantRoute {
				t.Errorf("Route = %s, want %s", got.Route, tt.wantRoute)
			}
			if got.Profile != tt.wantProfile {
				t.Errorf("Profile = %s, want %s", got.Profile, tt.wantProfile)
			}
			if got.Rule != tt.wantRule {
				t.Errorf("Rule = %s, want %s", got.Rule, tt.wantRule)
			}
		})
	}
}

func TestRuleRouterRequiresAllConditions(t *testing.T) {
	router := NewRuleRouter([]RouteRule{
		{Name: "both", Profile: "p", FromContains: "alerts@", SubjectContains: "outage"},
	})

	got := router.Route(&Message{From: "alerts@example.com", Subject: "weekly digest"})
	if got.Route != RoutePipeline {
		t.Errorf("expected pipeline when only one condition matches, got %s", got.Route)
	}

	got = router.Route(&Message{From: "alerts@example.com", Subject: "Outage in us-east"})
	if got.Route != RouteAgent {
		t.Errorf("expected agent when both conditions match, got %s", got.Route)
	}
}

func TestRuleRouterDefaultsProfile(t *testing.T) {
	router := NewRuleRouter([]RouteRule{{Name: "catchall"}})

	got := router.Route(&Message{From: "anyone@example.com"})
	if got.Route != RouteAgent || got.Profile != "default" {
		t.Errorf("expected agent route with default profile, got %+v", got)
	}
}

func TestLoadRuleRouter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	content := `[{"name":"invoices","profile":"billing","from_contains":"billing@"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	router, err := LoadRuleRouter(path)
	if err != nil {
		t.Fatalf("LoadRuleRouter failed: %v", err)
	}
	got := router.Route(&Message{From: "billing@vendor.com"})
	if got.Route != RouteAgent {
		t.Errorf("expected loaded rule to match, got %+v", got)
	}
}

func TestLoadRuleRouterMissingFile(t *testing.T) {
	router, err := LoadRuleRouter("/nonexistent/rules.json")
	if err != nil {
		t.Fatalf("expected missing file to be tolerated, got %v", err)
	}
	got := router.Route(&Message{From: "anyone@example.com"})
	if got.Route != RoutePipeline {
		t.Errorf("expected empty router to route to pipeline, got %s", got.Route)
	}
}

func TestLoadRuleRouterMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadRuleRouter(path); err == nil {
		t.Fatal("expected error for malformed rules file")
	}
}
