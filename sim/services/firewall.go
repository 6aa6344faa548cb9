package services

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/waf"
	"gopkg.in/yaml.v3"
)

// Managed rule group names accepted in params.managed_rules.
const (
	ManagedCommon         = "common"
	ManagedKnownBadInputs = "known_bad_inputs"
	ManagedIPReputation   = "ip_reputation"
)

// Firewall modes. Detection evaluates and records but never blocks.
const (
	ModePrevention = "prevention"
	ModeDetection  = "detection"
)

const (
	challengePenalty  = 4.0 // latency factor for users solving a CAPTCHA/CHALLENGE
	awsWCULimit       = 1500
	maxRulesPerPolicy = 200
)

// Rule priorities for generated rules; custom rules keep their own.
const (
	priorityRate     = 50
	priorityIPRep    = 100
	priorityCommon   = 110
	priorityBadInput = 120
	priorityBot      = 130
)

// Web ACL capacity units per rule, as AWS meters them.
var wcu = map[string]int{
	ManagedCommon:         700,
	ManagedKnownBadInputs: 200,
	ManagedIPReputation:   25,
	"bot_control":         50,
	"rate":                2,
	"custom":              1,
}

// Firewall models AWS WAF, Cloud Armor and Azure WAF. Every admitted request
// runs through a rule engine; see sim/waf for evaluation order.
//
// Extension state: the compiled rule list, per-client rate limiters and the
// verdicts of the latest tick.
type Firewall struct {
	sim.BaseModel

	engine        *waf.Engine
	mode          string
	botControl    bool
	adaptive      bool // gcp: adaptive protection
	capacityUnits int

	decisions  []sim.RuleDecision
	byAction   map[waf.Action]int // this tick
	evaluated  int
	blocked    int
	challenged int
}

var firewallParams = []string{
	"default_action", "managed_rules", "managed_action", "bot_control", "bot_action", "ip_reputation_ranges",
	"rate_limit", "rate_window", "rate_action", "custom_rules", "mode", "adaptive_protection",
}

func newFirewall(cfg sim.ServiceConfig, rng *rand.Rand, defaultWindow time.Duration) (*Firewall, *sim.Params) {
	params := sim.NewParams(cfg.Params)
	fw := &Firewall{
		BaseModel:  sim.NewBaseModel(cfg, profileFor(cfg.Provider, cfg.Type), params, rng),
		mode:       params.OneOf("mode", ModePrevention, ModePrevention, ModeDetection),
		botControl: params.Bool("bot_control", false),
		byAction:   make(map[waf.Action]int),
	}

	action := func(key string, def waf.Action) waf.Action {
		a, err := waf.ParseAction(params.String(key, string(def)))
		if err != nil {
			params.Violate("%s: %v", key, err)
			return def
		}
		return a
	}
	defaultAction := action("default_action", waf.ActionAllow)
	if defaultAction != waf.ActionAllow && defaultAction != waf.ActionBlock {
		params.Violate("default_action must be ALLOW or BLOCK, got %s", defaultAction)
		defaultAction = waf.ActionAllow
	}
	managedAction := action("managed_action", waf.ActionBlock)

	var rules []waf.Rule
	groups := []string{ManagedCommon, ManagedKnownBadInputs}
	if params.Has("managed_rules") {
		groups = params.StringList("managed_rules")
	}
	for _, g := range groups {
		switch g {
		case ManagedCommon:
			rules = append(rules, waf.CommonRuleSet(priorityCommon, managedAction))
		case ManagedKnownBadInputs:
			rules = append(rules, waf.KnownBadInputs(priorityBadInput, managedAction))
		case ManagedIPReputation:
			ranges := waf.DefaultBadIPRanges
			if params.Has("ip_reputation_ranges") {
				ranges = params.StringList("ip_reputation_ranges")
			}
			r, err := waf.IPReputation(priorityIPRep, managedAction, ranges)
			if err != nil {
				params.Violate("ip_reputation_ranges: %v", err)
				continue
			}
			rules = append(rules, r)
		default:
			params.Violate("unknown managed rule group %q (want %s, %s or %s)", g, ManagedCommon, ManagedKnownBadInputs, ManagedIPReputation)
			continue
		}
		fw.capacityUnits += wcu[g]
	}
	if params.Has("ip_reputation_ranges") && !contains(groups, ManagedIPReputation) {
		params.Violate("ip_reputation_ranges requires the %s managed group", ManagedIPReputation)
	}
	botAction := action("bot_action", waf.ActionBlock)
	if fw.botControl {
		rules = append(rules, waf.BotControl(priorityBot, botAction))
		fw.capacityUnits += wcu["bot_control"]
	} else if params.Has("bot_action") {
		params.Violate("bot_action requires bot_control")
	}

	if limit := params.NonNegativeInt("rate_limit", 0); limit > 0 {
		window := time.Duration(params.NonNegativeInt("rate_window", int(defaultWindow/time.Second))) * time.Second
		r, err := waf.RateBased("rate-limit", priorityRate, action("rate_action", waf.ActionBlock), limit, window)
		if err != nil {
			params.Violate("rate_limit: %v", err)
		} else {
			rules = append(rules, r)
			fw.capacityUnits += wcu["rate"]
		}
	}

	for i, raw := range params.List("custom_rules") {
		spec, err := decodeCustomRule(raw)
		if err != nil {
			params.Violate("custom_rules[%d]: %v", i, err)
			continue
		}
		r, err := spec.Rule()
		if err != nil {
			params.Violate("custom_rules[%d]: %v", i, err)
			continue
		}
		rules = append(rules, r)
		fw.capacityUnits += wcu["custom"]
	}

	engine, err := waf.NewEngine(defaultAction, rules)
	if err != nil {
		params.Violate("%v", err)
		engine, _ = waf.NewEngine(waf.ActionAllow, nil)
	}
	fw.engine = engine
	return fw, params
}

// decodeCustomRule converts one params.custom_rules entry, as decoded from
// YAML or JSON, into a rule spec. Unknown fields are rejected.
func decodeCustomRule(raw any) (waf.CustomRuleSpec, error) {
	var spec waf.CustomRuleSpec
	data, err := yaml.Marshal(raw)
	if err != nil {
		return spec, fmt.Errorf("encoding rule: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return spec, fmt.Errorf("decoding rule: %w", err)
	}
	return spec, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func newAWSWAF(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	fw, params := newFirewall(cfg, rng, 5*time.Minute)
	if fw.capacityUnits > awsWCULimit {
		params.Violate("web ACL uses %d WCUs, limit is %d", fw.capacityUnits, awsWCULimit)
	}
	if params.Has("mode") || params.Has("adaptive_protection") {
		params.Violate("mode and adaptive_protection are not AWS WAF settings; use COUNT actions")
	}
	return fw, sim.FinishParams(cfg, params, firewallParams...)
}

func newCloudArmor(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	fw, params := newFirewall(cfg, rng, time.Minute)
	fw.adaptive = params.Bool("adaptive_protection", false)
	if n := len(fw.engine.Rules()); n > maxRulesPerPolicy {
		params.Violate("security policy has %d rules, limit is %d", n, maxRulesPerPolicy)
	}
	if params.Has("mode") {
		params.Violate("mode is not a Cloud Armor setting; use preview (COUNT) actions")
	}
	return fw, sim.FinishParams(cfg, params, firewallParams...)
}

func newAzureWAF(cfg sim.ServiceConfig, rng *rand.Rand) (sim.Service, error) {
	fw, params := newFirewall(cfg, rng, time.Minute)
	if params.Has("adaptive_protection") {
		params.Violate("adaptive_protection is not an Azure WAF setting")
	}
	if n := len(fw.engine.Rules()); n > maxRulesPerPolicy {
		params.Violate("policy has %d rules, limit is %d", n, maxRulesPerPolicy)
	}
	return fw, sim.FinishParams(cfg, params, firewallParams...)
}

// Process implements sim.Service.
func (fw *Firewall) Process(ctx sim.TickContext, batch []*sim.Request) sim.ProcessResult {
	fw.Observe(len(batch))
	fw.decisions = make([]sim.RuleDecision, 0, len(batch))
	fw.byAction = make(map[waf.Action]int)
	fw.evaluated, fw.blocked, fw.challenged = 0, 0, 0
	inspect := 1 + 0.01*float64(len(fw.engine.Rules()))

	var res sim.ProcessResult
	for _, req := range batch {
		if fw.ShouldDrop() {
			fw.Drop(req)
			res.Dropped = append(res.Dropped, req)
			continue
		}
		d := fw.engine.Evaluate(waf.Input{
			Method:    req.Method,
			Path:      req.URLPath,
			Query:     req.Query,
			ClientIP:  req.ClientIP,
			UserAgent: req.UserAgent,
			Body:      req.Body,
		}, ctx.Now)
		fw.evaluated++
		fw.byAction[d.Action]++

		action := d.Action
		if fw.mode == ModeDetection {
			action = waf.ActionAllow
		}
		switch action {
		case waf.ActionBlock:
			fw.Block(req, fw.LatencyMs(inspect))
			res.Blocked = append(res.Blocked, req)
		case waf.ActionCaptcha, waf.ActionChallenge:
			if req.Kind == sim.KindUser {
				fw.challenged++
				fw.Serve(req, inspect*challengePenalty)
				res.Processed = append(res.Processed, req)
			} else {
				fw.Block(req, fw.LatencyMs(inspect))
				res.Blocked = append(res.Blocked, req)
			}
		default:
			fw.Serve(req, inspect)
			res.Processed = append(res.Processed, req)
		}
		if req.Status == sim.StatusBlocked {
			fw.blocked++
		}
		fw.decisions = append(fw.decisions, sim.RuleDecision{
			Tick:            ctx.Tick,
			ServiceID:       fw.ID(),
			RequestID:       req.ID,
			Kind:            req.Kind,
			Source:          req.Source,
			Action:          string(d.Action),
			TerminatingRule: d.TerminatingRule,
			MatchedRules:    d.MatchedRules,
			DefaultApplied:  d.DefaultApplied,
			Status:          req.Status,
		})
	}
	return res
}

// Decisions implements sim.DecisionReporter.
func (fw *Firewall) Decisions() []sim.RuleDecision {
	return append([]sim.RuleDecision(nil), fw.decisions...)
}

// RuleNames returns the compiled rules in evaluation order.
func (fw *Firewall) RuleNames() []string {
	rules := fw.engine.Rules()
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

// CostBreakdown implements sim.Service.
func (fw *Firewall) CostBreakdown() []sim.CostTerm {
	rules := len(fw.engine.Rules())
	terms := []sim.CostTerm{
		{Name: "load", Amount: fw.LoadCost()},
		{Name: "rules", Amount: float64(rules) * 0.001},
		{Name: "requests", Amount: float64(fw.evaluated) * 0.0000006},
	}
	if fw.botControl {
		terms = append(terms, sim.CostTerm{Name: "bot_control", Amount: fw.BaseCost() * 0.5})
	}
	if fw.adaptive {
		terms = append(terms, sim.CostTerm{Name: "adaptive_protection", Amount: fw.BaseCost()})
	}
	return terms
}

// Cost implements sim.Service.
func (fw *Firewall) Cost() float64 { return sim.SumCost(fw.CostBreakdown()) }

// State implements sim.Service.
func (fw *Firewall) State() sim.ServiceState {
	stats := map[string]float64{
		"rules":          float64(len(fw.engine.Rules())),
		"capacity_units": float64(fw.capacityUnits),
		"evaluated":      float64(fw.evaluated),
		"blocked":        float64(fw.blocked),
		"challenged":     float64(fw.challenged),
	}
	for a, n := range fw.byAction {
		stats["action_"+strings.ToLower(string(a))] = float64(n)
	}
	return fw.BaseState(fw.Cost(), stats)
}
