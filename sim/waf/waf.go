// Package waf evaluates web application firewall rules against requests.
//
// Rules live in one list ordered by ascending priority and combine managed
// rule groups, custom rules and rate-based rules. Evaluation walks the list:
// a non-matching rule is skipped, a COUNT match is recorded and evaluation
// continues, and the first match with a terminating action (ALLOW, BLOCK,
// CAPTCHA, CHALLENGE) ends evaluation and becomes the disposition. When nothing
// terminates, the engine's default action applies.
package waf

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Action is what a matching rule does with a request.
type Action string

const (
	ActionAllow     Action = "ALLOW"
	ActionBlock     Action = "BLOCK"
	ActionCount     Action = "COUNT"
	ActionCaptcha   Action = "CAPTCHA"
	ActionChallenge Action = "CHALLENGE"
)

// Terminating reports whether a match with this action stops evaluation.
func (a Action) Terminating() bool {
	return a != ActionCount
}

// ParseAction accepts action names in any case.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionAllow, ActionBlock, ActionCount, ActionCaptcha, ActionChallenge:
		return a, nil
	default:
		return "", fmt.Errorf("unknown waf action %q", s)
	}
}

// RuleKind tags where a rule came from.
type RuleKind string

const (
	KindManaged RuleKind = "managed"
	KindCustom  RuleKind = "custom"
	KindRate    RuleKind = "rate"
)

// Input is the view of a request the rules can inspect.
type Input struct {
	Method    string
	Path      string
	Query     string
	ClientIP  string
	UserAgent string
	Body      string
}

// Matcher decides whether a rule applies. now is simulated time and only
// matters to stateful matchers such as rate limits.
type Matcher interface {
	Match(in Input, now time.Time) bool
}

// MatchFunc adapts a function to Matcher.
type MatchFunc func(in Input, now time.Time) bool

// Match implements Matcher.
func (f MatchFunc) Match(in Input, now time.Time) bool { return f(in, now) }

// Rule is one entry in the evaluation list.
type Rule struct {
	Name     string
	Priority int
	Action   Action
	Kind     RuleKind
	Match    Matcher
}

// Decision is the outcome of evaluating one request.
type Decision struct {
	Action          Action
	TerminatingRule string   // empty when the default action applied
	MatchedRules    []string // in evaluation order, up to and including the terminator
	DefaultApplied  bool
}

// Engine holds a priority-ordered rule list and a default action.
// Not safe for concurrent use: rate-based matchers keep per-client state.
type Engine struct {
	defaultAction Action
	rules         []Rule
}

// NewEngine validates and sorts rules. The default action must be terminating.
// Rules with equal priority keep their given order.
func NewEngine(defaultAction Action, rules []Rule) (*Engine, error) {
	var problems []string
	if !defaultAction.Terminating() || defaultAction == "" {
		problems = append(problems, fmt.Sprintf("default action must be terminating, got %q", defaultAction))
	}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			problems = append(problems, "rule with empty name")
		}
		if seen[r.Name] {
			problems = append(problems, fmt.Sprintf("duplicate rule name %q", r.Name))
		}
		seen[r.Name] = true
		if _, err := ParseAction(string(r.Action)); err != nil {
			problems = append(problems, fmt.Sprintf("rule %q: %v", r.Name, err))
		}
		if r.Match == nil {
			problems = append(problems, fmt.Sprintf("rule %q has no matcher", r.Name))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	sorted := append([]Rule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &Engine{defaultAction: defaultAction, rules: sorted}, nil
}

// DefaultAction returns the action applied when no rule terminates.
func (e *Engine) DefaultAction() Action { return e.defaultAction }

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate runs the rule list against in.
func (e *Engine) Evaluate(in Input, now time.Time) Decision {
	var d Decision
	for _, r := range e.rules {
		if !r.Match.Match(in, now) {
			continue
		}
		d.MatchedRules = append(d.MatchedRules, r.Name)
		if r.Action.Terminating() {
			d.Action = r.Action
			d.TerminatingRule = r.Name
			return d
		}
	}
	d.Action = e.defaultAction
	d.DefaultApplied = true
	return d
}
