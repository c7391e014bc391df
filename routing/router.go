// Package routing matches an inbound message against a list of rules to
// decide which skill, tool, or channel handler should receive it, the way
// a reverse proxy matches a request against an ordered route table.
package routing

import (
	"regexp"
	"strings"

	oasis "github.com/nevindra/clawgate"
)

// MatchKind tags how a RoutingRule compares against an inbound message.
type MatchKind int

const (
	MatchPrefix MatchKind = iota
	MatchRegex
	MatchChannel
)

// RoutingRule maps a match condition to a target identifier (a skill name,
// a tool name, a channel handler key). Rules are evaluated in the order
// they appear in a Router; the first match wins.
type RoutingRule struct {
	Kind    MatchKind
	Channel string // required for MatchChannel; also an optional filter for MatchPrefix/MatchRegex
	Pattern string // literal prefix for MatchPrefix, regex source for MatchRegex
	Target  string

	compiled *regexp.Regexp
}

// Compile validates the rule and, for MatchRegex rules, pre-compiles the
// pattern so Match never pays compilation cost on the hot path.
func (r *RoutingRule) Compile() *oasis.Error {
	if r.Target == "" {
		return oasis.NewInvalidArgument("routing rule missing target", "")
	}
	switch r.Kind {
	case MatchPrefix:
		if r.Pattern == "" {
			return oasis.NewInvalidArgument("prefix rule missing pattern", r.Target)
		}
	case MatchRegex:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return oasis.NewInvalidArgument("invalid routing regex", err.Error())
		}
		r.compiled = re
	case MatchChannel:
		if r.Channel == "" {
			return oasis.NewInvalidArgument("channel rule missing channel", r.Target)
		}
	default:
		return oasis.NewInvalidArgument("unknown routing match kind", "")
	}
	return nil
}

// Matches reports whether msg on channel satisfies this rule.
func (r *RoutingRule) Matches(channel string, msg oasis.IncomingMessage) bool {
	if r.Channel != "" && r.Channel != channel {
		return false
	}
	switch r.Kind {
	case MatchPrefix:
		return strings.HasPrefix(msg.Text, r.Pattern)
	case MatchRegex:
		return r.compiled != nil && r.compiled.MatchString(msg.Text)
	case MatchChannel:
		return true
	default:
		return false
	}
}

// Router holds an ordered list of compiled rules and a fallback target used
// when nothing matches.
type Router struct {
	rules    []*RoutingRule
	fallback string
}

// NewRouter compiles rules in order, returning the first compile error
// encountered. fallback is the target returned by Route when no rule matches.
func NewRouter(fallback string, rules ...*RoutingRule) (*Router, *oasis.Error) {
	for _, r := range rules {
		if err := r.Compile(); err != nil {
			return nil, err
		}
	}
	return &Router{rules: rules, fallback: fallback}, nil
}

// Route returns the target of the first matching rule, or the fallback
// target (which may be empty, meaning "no route") if nothing matches.
func (rt *Router) Route(channel string, msg oasis.IncomingMessage) string {
	for _, r := range rt.rules {
		if r.Matches(channel, msg) {
			return r.Target
		}
	}
	return rt.fallback
}
