package session

import (
	"regexp"
	"strings"
	"unicode"
)

// SanitizeInput strips control characters and neutralizes markup in raw
// user input before it is stored or forwarded anywhere.
func SanitizeInput(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		if r == '\n' || r == '\t' {
			sb.WriteRune(' ')
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		sb.WriteRune(r)
	}
	s := sb.String()
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return strings.TrimSpace(s)
}

var (
	speechEmphasisRe = regexp.MustCompile(`[*_#` + "`" + `~]+`)
	speechBulletRe   = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
)

// SanitizeForSpeech rewrites display text into something a synthesis voice
// can read naturally: emphasis markers removed, list bullets collapsed into
// spoken conjunctions, whitespace flattened.
func SanitizeForSpeech(text string) string {
	s := speechBulletRe.ReplaceAllString(text, "next, ")
	s = speechEmphasisRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// defaultThreatPatterns matches the injection shapes the intake scanner
// refuses outright. Matches are logged as critical security events and the
// message never reaches the tutoring endpoint.
var defaultThreatPatterns = []string{
	`(?i)'\s*or\s*'?\d*'?\s*=\s*'?\d*`,
	`(?i);\s*(drop|delete|truncate|alter|insert|update)\s`,
	`(?i)union\s+(all\s+)?select`,
	`(?i)<script[\s>]`,
	`(?i)javascript\s*:`,
	`--\s*$`,
	`(?i)exec(ute)?\s*\(`,
}

type threatScanner struct {
	patterns []*regexp.Regexp
}

func newThreatScanner(patterns []string) (*threatScanner, error) {
	if len(patterns) == 0 {
		patterns = defaultThreatPatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return &threatScanner{patterns: compiled}, nil
}

// Match returns the pattern source that matched, or "" when clean.
func (t *threatScanner) Match(input string) string {
	for _, re := range t.patterns {
		if re.MatchString(input) {
			return re.String()
		}
	}
	return ""
}
