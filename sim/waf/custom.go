package waf

import (
	"fmt"
	"strings"
	"time"
)

// CustomRuleSpec declares a custom rule. Every non-empty condition must hold
// for the rule to match; at least one condition is required.
type CustomRuleSpec struct {
	Name              string   `yaml:"name" json:"name"`
	Priority          int      `yaml:"priority" json:"priority"`
	Action            string   `yaml:"action" json:"action"`
	Path              string   `yaml:"path,omitempty" json:"path,omitempty"`
	PathPrefix        string   `yaml:"path_prefix,omitempty" json:"path_prefix,omitempty"`
	Method            string   `yaml:"method,omitempty" json:"method,omitempty"`
	IPRanges          []string `yaml:"ip_ranges,omitempty" json:"ip_ranges,omitempty"`
	UserAgentContains string   `yaml:"user_agent_contains,omitempty" json:"user_agent_contains,omitempty"`
	QueryContains     string   `yaml:"query_contains,omitempty" json:"query_contains,omitempty"`
	BodyContains      string   `yaml:"body_contains,omitempty" json:"body_contains,omitempty"`
}

// Rule compiles the spec.
func (s CustomRuleSpec) Rule() (Rule, error) {
	if s.Name == "" {
		return Rule{}, fmt.Errorf("custom rule needs a name")
	}
	action, err := ParseAction(s.Action)
	if err != nil {
		return Rule{}, fmt.Errorf("custom rule %q: %w", s.Name, err)
	}
	prefixes, err := parsePrefixes(s.IPRanges)
	if err != nil {
		return Rule{}, fmt.Errorf("custom rule %q: %w", s.Name, err)
	}

	var conds []func(Input) bool
	if s.Path != "" {
		conds = append(conds, func(in Input) bool { return in.Path == s.Path })
	}
	if s.PathPrefix != "" {
		conds = append(conds, func(in Input) bool { return strings.HasPrefix(in.Path, s.PathPrefix) })
	}
	if s.Method != "" {
		method := strings.ToUpper(s.Method)
		conds = append(conds, func(in Input) bool { return strings.ToUpper(in.Method) == method })
	}
	if len(prefixes) > 0 {
		conds = append(conds, func(in Input) bool { return inPrefixes(prefixes, in.ClientIP) })
	}
	if s.UserAgentContains != "" {
		needle := strings.ToLower(s.UserAgentContains)
		conds = append(conds, func(in Input) bool { return strings.Contains(strings.ToLower(in.UserAgent), needle) })
	}
	if s.QueryContains != "" {
		conds = append(conds, func(in Input) bool { return strings.Contains(in.Query, s.QueryContains) })
	}
	if s.BodyContains != "" {
		conds = append(conds, func(in Input) bool { return strings.Contains(in.Body, s.BodyContains) })
	}
	if len(conds) == 0 {
		return Rule{}, fmt.Errorf("custom rule %q has no conditions", s.Name)
	}

	return Rule{
		Name:     s.Name,
		Priority: s.Priority,
		Action:   action,
		Kind:     KindCustom,
		Match: MatchFunc(func(in Input, _ time.Time) bool {
			for _, c := range conds {
				if !c(in) {
					return false
				}
			}
			return true
		}),
	}, nil
}
