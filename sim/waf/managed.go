package waf

import (
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Managed rule group names.
const (
	GroupCommon         = "managed-common"
	GroupKnownBadInputs = "managed-known-bad-inputs"
	GroupIPReputation   = "managed-ip-reputation"
	GroupBotControl     = "managed-bot-control"
)

var (
	sqliSignatures = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bunion\b.{0,40}\bselect\b`),
		regexp.MustCompile(`(?i)'\s*or\s+'?\d+'?\s*=\s*'?\d+`),
		regexp.MustCompile(`(?i);\s*(drop|delete|truncate|alter)\s+table\b`),
		regexp.MustCompile(`(?i)\bsleep\s*\(\s*\d+\s*\)`),
		regexp.MustCompile(`(?i)'\s*--`),
	}
	xssSignatures = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<\s*script\b`),
		regexp.MustCompile(`(?i)javascript\s*:`),
		regexp.MustCompile(`(?i)\bon(error|load|mouseover)\s*=`),
		regexp.MustCompile(`(?i)<\s*(iframe|img|svg)\b[^>]*\bsrc\s*=`),
	}
	badInputSignatures = []*regexp.Regexp{
		regexp.MustCompile(`\.\.[/\\]`),
		regexp.MustCompile(`(?i)/etc/(passwd|shadow)`),
		regexp.MustCompile(`(?i)\$\{jndi:`),
		regexp.MustCompile(`(?i)\b(cmd|powershell)\.exe\b`),
		regexp.MustCompile(`(?i)/\.(git|env)\b`),
	}
	botSignatures = []string{"bot", "crawler", "spider", "curl/", "wget/", "python-requests", "scrapy", "headless"}
)

// DefaultBadIPRanges is the reputation list used when none is configured.
var DefaultBadIPRanges = []string{"203.0.113.0/24", "198.51.100.0/24"}

// inspected returns the decoded text the signature rules look at.
func inspected(in Input) string {
	parts := []string{in.Path, in.Query, in.Body}
	for i, p := range parts {
		if dec, err := url.QueryUnescape(p); err == nil {
			parts[i] = dec
		}
	}
	return strings.Join(parts, "\n")
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// CommonRuleSet matches SQL injection and cross-site scripting signatures.
func CommonRuleSet(priority int, action Action) Rule {
	return Rule{
		Name:     GroupCommon,
		Priority: priority,
		Action:   action,
		Kind:     KindManaged,
		Match: MatchFunc(func(in Input, _ time.Time) bool {
			s := inspected(in)
			return anyMatch(sqliSignatures, s) || anyMatch(xssSignatures, s)
		}),
	}
}

// KnownBadInputs matches path traversal and known exploit payloads.
func KnownBadInputs(priority int, action Action) Rule {
	return Rule{
		Name:     GroupKnownBadInputs,
		Priority: priority,
		Action:   action,
		Kind:     KindManaged,
		Match: MatchFunc(func(in Input, _ time.Time) bool {
			return anyMatch(badInputSignatures, inspected(in))
		}),
	}
}

// IPReputation matches clients inside any of the given CIDR ranges.
func IPReputation(priority int, action Action, cidrs []string) (Rule, error) {
	prefixes, err := parsePrefixes(cidrs)
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		Name:     GroupIPReputation,
		Priority: priority,
		Action:   action,
		Kind:     KindManaged,
		Match: MatchFunc(func(in Input, _ time.Time) bool {
			return inPrefixes(prefixes, in.ClientIP)
		}),
	}, nil
}

// BotControl matches automated clients by user-agent signature.
func BotControl(priority int, action Action) Rule {
	return Rule{
		Name:     GroupBotControl,
		Priority: priority,
		Action:   action,
		Kind:     KindManaged,
		Match: MatchFunc(func(in Input, _ time.Time) bool {
			return IsBotUserAgent(in.UserAgent)
		}),
	}
}

// IsBotUserAgent reports whether ua carries a known automation signature.
// An empty user agent counts as a bot.
func IsBotUserAgent(ua string) bool {
	if strings.TrimSpace(ua) == "" {
		return true
	}
	lower := strings.ToLower(ua)
	for _, sig := range botSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

func parsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, err
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func inPrefixes(prefixes []netip.Prefix, ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
