package waf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func always(name string, priority int, action Action) Rule {
	return Rule{Name: name, Priority: priority, Action: action, Kind: KindCustom,
		Match: MatchFunc(func(Input, time.Time) bool { return true })}
}

func never(name string, priority int, action Action) Rule {
	return Rule{Name: name, Priority: priority, Action: action, Kind: KindCustom,
		Match: MatchFunc(func(Input, time.Time) bool { return false })}
}

// TestEngine_AdminPathScenario verifies:
// GIVEN default ALLOW and one custom BLOCK rule on /admin
// WHEN /admin and / are evaluated
// THEN /admin is blocked by the rule and / falls through to ALLOW
func TestEngine_AdminPathScenario(t *testing.T) {
	rule, err := CustomRuleSpec{Name: "block-admin", Priority: 1, Action: "block", Path: "/admin"}.Rule()
	require.NoError(t, err)
	engine, err := NewEngine(ActionAllow, []Rule{rule})
	require.NoError(t, err)

	admin := engine.Evaluate(Input{Method: "GET", Path: "/admin"}, t0)
	assert.Equal(t, ActionBlock, admin.Action)
	assert.Equal(t, "block-admin", admin.TerminatingRule)
	assert.False(t, admin.DefaultApplied)

	root := engine.Evaluate(Input{Method: "GET", Path: "/"}, t0)
	assert.Equal(t, ActionAllow, root.Action)
	assert.True(t, root.DefaultApplied)
	assert.Empty(t, root.MatchedRules)
}

func TestEngine_StopsAtFirstTerminator(t *testing.T) {
	// Declared out of order: evaluation must follow priority, not slice order.
	rules := []Rule{
		always("late-block", 30, ActionBlock),
		always("count-1", 10, ActionCount),
		always("captcha", 20, ActionCaptcha),
		never("skipped", 15, ActionBlock),
		always("count-after", 25, ActionCount),
	}
	engine, err := NewEngine(ActionAllow, rules)
	require.NoError(t, err)

	d := engine.Evaluate(Input{}, t0)

	assert.Equal(t, ActionCaptcha, d.Action)
	assert.Equal(t, "captcha", d.TerminatingRule)
	assert.Equal(t, []string{"count-1", "captcha"}, d.MatchedRules)
	assert.NotContains(t, d.MatchedRules, "count-after")
	assert.NotContains(t, d.MatchedRules, "late-block")
}

func TestEngine_CountNeverChangesDisposition(t *testing.T) {
	for _, def := range []Action{ActionAllow, ActionBlock} {
		withCount, err := NewEngine(def, []Rule{always("c1", 1, ActionCount), always("c2", 2, ActionCount)})
		require.NoError(t, err)
		without, err := NewEngine(def, nil)
		require.NoError(t, err)

		a := withCount.Evaluate(Input{}, t0)
		b := without.Evaluate(Input{}, t0)
		assert.Equal(t, b.Action, a.Action, "default %s", def)
		assert.Equal(t, []string{"c1", "c2"}, a.MatchedRules)
		assert.True(t, a.DefaultApplied)
	}
}

func TestEngine_EqualPriorityKeepsDeclaredOrder(t *testing.T) {
	engine, err := NewEngine(ActionAllow, []Rule{always("first", 5, ActionBlock), always("second", 5, ActionAllow)})
	require.NoError(t, err)
	assert.Equal(t, "first", engine.Evaluate(Input{}, t0).TerminatingRule)
}

func TestNewEngine_RejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		def     Action
		rules   []Rule
		message string
	}{
		{"count default", ActionCount, nil, "default action must be terminating"},
		{"duplicate names", ActionAllow, []Rule{always("x", 1, ActionBlock), always("x", 2, ActionBlock)}, "duplicate rule name"},
		{"bad action", ActionAllow, []Rule{always("x", 1, Action("DENY"))}, "unknown waf action"},
		{"nil matcher", ActionAllow, []Rule{{Name: "x", Action: ActionBlock}}, "no matcher"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.def, tt.rules)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestManagedRules_Signatures(t *testing.T) {
	ipRep, err := IPReputation(3, ActionBlock, DefaultBadIPRanges)
	require.NoError(t, err)

	tests := []struct {
		name  string
		rule  Rule
		input Input
		want  bool
	}{
		{"sqli union select", CommonRuleSet(1, ActionBlock), Input{Path: "/api/products", Query: "id=1%20UNION%20SELECT%20password"}, true},
		{"sqli tautology", CommonRuleSet(1, ActionBlock), Input{Path: "/login", Body: "user=admin' OR '1'='1"}, true},
		{"xss script tag", CommonRuleSet(1, ActionBlock), Input{Path: "/search", Query: "q=<script>alert(1)</script>"}, true},
		{"clean request", CommonRuleSet(1, ActionBlock), Input{Path: "/api/cart", Query: "page=2"}, false},
		{"path traversal", KnownBadInputs(2, ActionBlock), Input{Path: "/static/../../etc/passwd"}, true},
		{"log4shell", KnownBadInputs(2, ActionBlock), Input{Path: "/", Body: "${jndi:ldap://x}"}, true},
		{"plain path", KnownBadInputs(2, ActionBlock), Input{Path: "/static/app.js"}, false},
		{"bad ip", ipRep, Input{ClientIP: "203.0.113.77"}, true},
		{"good ip", ipRep, Input{ClientIP: "10.1.2.3"}, false},
		{"unparseable ip", ipRep, Input{ClientIP: "not-an-ip"}, false},
		{"bot ua", BotControl(4, ActionChallenge), Input{UserAgent: "python-requests/2.31"}, true},
		{"empty ua", BotControl(4, ActionChallenge), Input{}, true},
		{"browser ua", BotControl(4, ActionChallenge), Input{UserAgent: "Mozilla/5.0 (X11; Linux x86_64)"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Match.Match(tt.input, t0))
		})
	}
}

func TestRateBased_MatchesAfterLimitAndRecovers(t *testing.T) {
	// GIVEN a limit of 3 requests per 60s window
	rule, err := RateBased("rate-limit", 1, ActionBlock, 3, time.Minute)
	require.NoError(t, err)
	in := Input{ClientIP: "10.0.0.1"}

	// WHEN the same client sends 4 requests in the same simulated second
	var matches []bool
	for i := 0; i < 4; i++ {
		matches = append(matches, rule.Match.Match(in, t0))
	}

	// THEN only the 4th matches, other clients are unaffected
	assert.Equal(t, []bool{false, false, false, true}, matches)
	assert.False(t, rule.Match.Match(Input{ClientIP: "10.0.0.2"}, t0))

	// AND after 30 simulated seconds a token has refilled
	assert.False(t, rule.Match.Match(in, t0.Add(30*time.Second)))
}

func TestRateBased_RejectsBadLimits(t *testing.T) {
	_, err := RateBased("r", 1, ActionBlock, 0, time.Minute)
	assert.Error(t, err)
	_, err = RateBased("r", 1, ActionBlock, 10, 0)
	assert.Error(t, err)
}

func TestCustomRuleSpec_AllConditionsMustHold(t *testing.T) {
	rule, err := CustomRuleSpec{
		Name: "post-login-from-office", Priority: 1, Action: "ALLOW",
		PathPrefix: "/login", Method: "post", IPRanges: []string{"10.0.0.0/8"},
	}.Rule()
	require.NoError(t, err)

	assert.True(t, rule.Match.Match(Input{Path: "/login/sso", Method: "POST", ClientIP: "10.4.4.4"}, t0))
	assert.False(t, rule.Match.Match(Input{Path: "/login/sso", Method: "GET", ClientIP: "10.4.4.4"}, t0))
	assert.False(t, rule.Match.Match(Input{Path: "/login", Method: "POST", ClientIP: "192.168.1.1"}, t0))

	_, err = CustomRuleSpec{Name: "empty", Action: "BLOCK"}.Rule()
	assert.ErrorContains(t, err, "no conditions")
	_, err = CustomRuleSpec{Name: "bad", Action: "BLOCK", IPRanges: []string{"nope"}}.Rule()
	assert.Error(t, err)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" challenge ")
	require.NoError(t, err)
	assert.Equal(t, ActionChallenge, a)
	assert.True(t, a.Terminating())
	assert.False(t, ActionCount.Terminating())
}
