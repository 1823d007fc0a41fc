// Package sentinel implements the verification pipeline: risk
// classification and the Tier 1 (static), Tier 2 (contract), and Tier 3
// (bounded model checking dispatch) checks.
package sentinel

import (
	"regexp"
	"strings"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
)

var (
	forceL3Path = regexp.MustCompile(`(?i)(auth|login|password|payment|encrypt|migration)`)
	forceL3Content = regexp.MustCompile(`(?i)(eval\(|exec\(|os\.system\()`)
	unparamSQL = regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE)\s+.*["'+]\s*\+\s*\w+`)
	cryptoPrimitive = regexp.MustCompile(`(?i)\b(md5|sha1|des|rc4)\b`)

	functionalChange = regexp.MustCompile(`(?m)^\s*(if|for|while|switch|func|def|class)\b`)
	externalIO       = regexp.MustCompile(`(?i)(http\.(Get|Post)|requests\.|fetch\(|os\.Open|ioutil\.ReadFile|net\.Dial)`)
)

// ClassifyInput carries the inputs to the risk classifier.
type ClassifyInput struct {
	Path       string
	Content    string
	CallerHint string
}

// Classify applies the ordered rule set of spec §4.4: first match wins.
func Classify(in ClassifyInput) domain.RiskGrade {
	if forceL3Path.MatchString(in.Path) ||
		forceL3Content.MatchString(in.Content) ||
		unparamSQL.MatchString(in.Content) ||
		cryptoPrimitive.MatchString(in.Content) {
		return domain.RiskL3
	}

	if functionalChange.MatchString(in.Content) || externalIO.MatchString(in.Content) {
		return domain.RiskL2
	}

	return domain.RiskL1
}

// isTrivialDocChange reports whether content looks like documentation,
// whitespace, or a comment-only change — used by callers that want to
// short-circuit before even calling Classify.
func isTrivialDocChange(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}
	for _, line := range strings.Split(trimmed, "\n") {
		l := strings.TrimSpace(line)
		if l == "" || strings.HasPrefix(l, "//") || strings.HasPrefix(l, "#") {
			continue
		}
		return false
	}
	return true
}
