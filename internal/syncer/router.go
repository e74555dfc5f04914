package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Routes an inbound message takes.
const (
	RoutePipeline = "pipeline"
	RouteAgent    = "agent"
)

// RouteResult says whether a message goes through the classify
// pipeline or to an agent profile.
type RouteResult struct {
	Route   string
	Profile string
	Rule    string
}

// Router decides the route for an inbound message.
type Router interface {
	Route(msg *Message) RouteResult
}

// RouteRule matches messages by sender and subject substrings. Empty
// fields match everything, so a rule with only a profile is a
// catch-all.
type RouteRule struct {
	Name            string `json:"name"`
	Profile         string `json:"profile"`
	FromContains    string `json:"from_contains,omitempty"`
	SubjectContains string `json:"subject_contains,omitempty"`
}

// RuleRouter routes to an agent profile when any rule matches, and to
// the classify pipeline otherwise.
type RuleRouter struct {
	rules []RouteRule
}

func NewRuleRouter(rules []RouteRule) *RuleRouter {
	return &RuleRouter{rules: rules}
}

// LoadRuleRouter reads routing rules from a JSON file. A missing path
// yields a router with no rules, which sends everything down the
// pipeline.
func LoadRuleRouter(path string) (*RuleRouter, error) {
	if path == "" {
		return NewRuleRouter(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRuleRouter(nil), nil
		}
		return nil, fmt.Errorf("failed to read routing rules: %w", err)
	}
	var rules []RouteRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse routing rules: %w", err)
	}
	return NewRuleRouter(rules), nil
}

func (r *RuleRouter) Route(msg *Message) RouteResult {
	for _, rule := range r.rules {
		if rule.matches(msg) {
			profile := rule.Profile
			if profile == "" {
				profile = "default"
			}
			return RouteResult{Route: RouteAgent, Profile: profile, Rule: rule.Name}
		}
	}
	return RouteResult{Route: RoutePipeline}
}

func (rule RouteRule) matches(msg *Message) bool {
	if rule.FromContains != "" && !strings.Contains(strings.ToLower(msg.From), strings.ToLower(rule.FromContains)) {
		return false
	}
	if rule.SubjectContains != "" && !strings.Contains(strings.ToLower(msg.Subject), strings.ToLower(rule.SubjectContains)) {
		return false
	}
	return true
}
