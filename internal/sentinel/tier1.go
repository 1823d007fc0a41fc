package sentinel

import (
	"regexp"

	"github.com/tidwall/gjson"
)

// Finding is one structured result from a tier check.
type Finding struct {
	Rule     string
	Message  string
	Severity string // "warn" or "fail"
}

// TierResult is the structured outcome of a single tier check, spec §4.4.
type TierResult struct {
	Tier     string
	Status   string // "pass", "fail", "unavailable"
	Findings []Finding
}

var (
	credentialPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"api_key", regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*(?::=|[:=])\s*['"][A-Za-z0-9_\-]{16,}['"]`)},
		{"password_assignment", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*(?::=|[:=])\s*['"][^'"]{4,}['"]`)},
		{"ssh_key", regexp.MustCompile(`-----BEGIN (RSA|OPENSSH|DSA|EC) PRIVATE KEY-----`)},
		{"certificate_block", regexp.MustCompile(`-----BEGIN CERTIFICATE-----`)},
	}
	piiPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"national_id", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{"credit_card", regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)},
		{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	}

	controlFlowKeyword = regexp.MustCompile(`(?m)\b(if|else|for|while|switch|case|catch|except)\b`)
)

const (
	cyclomaticWarnThreshold = 10
	cyclomaticFailThreshold = 20
)

// RunTier1 performs the static scan required for every risk grade:
// credential/PII regex detection and an approximate cyclomatic
// complexity count. LEAN mode sampling (10% of L1 traffic) is applied
// by the caller before invoking RunTier1, not inside it.
func RunTier1(content string) TierResult {
	result := TierResult{Tier: "T1", Status: "pass"}

	if isTrivialDocChange(content) {
		return result
	}

	for _, p := range credentialPatterns {
		if p.re.MatchString(content) {
			result.Findings = append(result.Findings, Finding{Rule: "credential:" + p.name, Message: "hardcoded credential pattern detected", Severity: "fail"})
		}
	}
	for _, p := range piiPatterns {
		if p.re.MatchString(content) {
			result.Findings = append(result.Findings, Finding{Rule: "pii:" + p.name, Message: "PII pattern detected", Severity: "fail"})
		}
	}

	complexity := estimateCyclomaticComplexity(content)
	switch {
	case complexity > cyclomaticFailThreshold:
		result.Findings = append(result.Findings, Finding{Rule: "complexity", Message: "cyclomatic complexity exceeds fail threshold", Severity: "fail"})
	case complexity > cyclomaticWarnThreshold:
		result.Findings = append(result.Findings, Finding{Rule: "complexity", Message: "cyclomatic complexity exceeds warn threshold", Severity: "warn"})
	}

	for _, f := range result.Findings {
		if f.Severity == "fail" {
			result.Status = "fail"
			break
		}
	}
	return result
}

// estimateCyclomaticComplexity approximates McCabe complexity as
// 1 + count of decision-point keywords, an AST-free proxy adequate for
// a structural (not semantic) static check.
func estimateCyclomaticComplexity(content string) int {
	return 1 + len(controlFlowKeyword.FindAllString(content, -1))
}

// ExtractIOHints reads a build/task manifest attached to an artifact
// (JSON, e.g. a CI step descriptor or package manifest) and returns any
// declared I/O or network surface the manifest's author admitted to,
// independent of whether the source text itself matches externalIO.
// Declared hints a text scan would miss (e.g. I/O performed by a called
// library rather than inline) still count toward Tier 1's findings.
func ExtractIOHints(manifestJSON string) []string {
	if manifestJSON == "" || !gjson.Valid(manifestJSON) {
		return nil
	}
	var hints []string
	for _, v := range gjson.Get(manifestJSON, "io_hints").Array() {
		if s := v.String(); s != "" {
			hints = append(hints, s)
		}
	}
	return hints
}

// RunTier1WithManifest runs RunTier1 and additionally flags any
// manifest-declared I/O hint as a finding, so a caller that has a
// structured manifest alongside raw content gets the union of both
// signals rather than text-only coverage.
func RunTier1WithManifest(content, manifestJSON string) TierResult {
	result := RunTier1(content)
	for _, hint := range ExtractIOHints(manifestJSON) {
		result.Findings = append(result.Findings, Finding{
			Rule: "declared_io:" + hint, Message: "manifest declares external I/O surface", Severity: "warn",
		})
	}
	return result
}
