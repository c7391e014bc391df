package routing

import (
	"testing"

	oasis "github.com/nevindra/clawgate"
)

func TestRouteByPrefix(t *testing.T) {
	rt, err := NewRouter("default", &RoutingRule{Kind: MatchPrefix, Pattern: "/remind", Target: "schedule"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	target := rt.Route("telegram", oasis.IncomingMessage{Text: "/remind me tomorrow"})
	if target != "schedule" {
		t.Fatalf("got %q", target)
	}
}

func TestRouteByRegex(t *testing.T) {
	rt, err := NewRouter("default", &RoutingRule{Kind: MatchRegex, Pattern: `(?i)^deploy\s+\w+`, Target: "ops"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	target := rt.Route("slack", oasis.IncomingMessage{Text: "Deploy staging"})
	if target != "ops" {
		t.Fatalf("got %q", target)
	}
}

func TestRouteByChannel(t *testing.T) {
	rt, err := NewRouter("default", &RoutingRule{Kind: MatchChannel, Channel: "discord", Target: "discord-handler"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rt.Route("discord", oasis.IncomingMessage{Text: "anything"}); got != "discord-handler" {
		t.Fatalf("got %q", got)
	}
	if got := rt.Route("telegram", oasis.IncomingMessage{Text: "anything"}); got != "default" {
		t.Fatalf("got %q, expected fallback", got)
	}
}

func TestRouteFirstMatchWins(t *testing.T) {
	rt, err := NewRouter("default",
		&RoutingRule{Kind: MatchPrefix, Pattern: "/", Target: "generic-command"},
		&RoutingRule{Kind: MatchPrefix, Pattern: "/remind", Target: "schedule"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rt.Route("telegram", oasis.IncomingMessage{Text: "/remind"}); got != "generic-command" {
		t.Fatalf("expected first matching rule to win, got %q", got)
	}
}

func TestRuleChannelFilterAppliesToPrefixRules(t *testing.T) {
	rt, err := NewRouter("default", &RoutingRule{Kind: MatchPrefix, Channel: "telegram", Pattern: "/remind", Target: "schedule"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rt.Route("discord", oasis.IncomingMessage{Text: "/remind"}); got != "default" {
		t.Fatalf("expected channel-scoped rule to not match other channels, got %q", got)
	}
}

func TestNewRouterRejectsInvalidRegex(t *testing.T) {
	_, err := NewRouter("default", &RoutingRule{Kind: MatchRegex, Pattern: "(", Target: "x"})
	if err == nil {
		t.Fatal("expected invalid regex to fail compilation")
	}
}

func TestNewRouterRejectsMissingTarget(t *testing.T) {
	_, err := NewRouter("default", &RoutingRule{Kind: MatchPrefix, Pattern: "/x"})
	if err == nil {
		t.Fatal("expected missing target to fail compilation")
	}
}

func TestRouteNoMatchReturnsFallback(t *testing.T) {
	rt, _ := NewRouter("fallback-target", &RoutingRule{Kind: MatchPrefix, Pattern: "/x", Target: "y"})
	if got := rt.Route("telegram", oasis.IncomingMessage{Text: "hello"}); got != "fallback-target" {
		t.Fatalf("got %q", got)
	}
}
