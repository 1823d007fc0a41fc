package sentinel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// Predicate is a contract clause over a named variable expressed as a
// closed linear range [Min, Max]. The contract checker treats pre/post
// conditions as metadata attached to a function descriptor rather than
// relying on language-level decorators (spec §9).
type Predicate struct {
	Variable string
	Min      float64
	Max      float64
}

// ContractDescriptor is the pre/post/invariant metadata for one function,
// the representation the contract checker consumes directly.
type ContractDescriptor struct {
	FunctionName string
	Preconditions  []Predicate
	Postconditions []Predicate
	Invariants     []Predicate
}

// overlap reports whether two linear ranges on the same variable share
// any point; disjoint ranges signal a logical contradiction between a
// precondition and a postcondition naming the same variable.
func overlap(a, b Predicate) bool {
	return a.Min <= b.Max && b.Min <= a.Max
}

// CheckContradictions runs a constraint solver over linear ranges: for
// every variable named in both pre- and post-conditions, the ranges
// must overlap, or the stated contract is self-contradictory.
func CheckContradictions(d ContractDescriptor) []Finding {
	var findings []Finding
	for _, pre := range d.Preconditions {
		for _, post := range d.Postconditions {
			if pre.Variable != post.Variable {
				continue
			}
			if !overlap(pre, post) {
				findings = append(findings, Finding{
					Rule:    "logical_contradiction",
					Message: fmt.Sprintf("precondition %s in [%.2f,%.2f] contradicts postcondition in [%.2f,%.2f]", pre.Variable, pre.Min, pre.Max, post.Min, post.Max),
					Severity: "fail",
				})
			}
		}
	}
	return findings
}

// Citation policy, spec §4.4: transitive depth <= 2, quote window of at
// least +/-2 sentences or 200 characters.
const (
	MaxCitationDepth    = 2
	MinQuoteWindowChars = 200
	MinQuoteWindowSentences = 2
)

// Citation is one citation in a claim, with its transitive chain depth
// (0 = directly cited primary source).
type Citation struct {
	URL          string
	Depth        int
	QuotedWindow string
}

// CheckCitationPolicy enforces max transitive depth and the minimum
// quote window around each citation.
func CheckCitationPolicy(citations []Citation) []Finding {
	var findings []Finding
	for _, c := range citations {
		if c.Depth > MaxCitationDepth {
			findings = append(findings, Finding{
				Rule:    "citation_depth_exceeded",
				Message: fmt.Sprintf("citation %s has transitive depth %d, exceeds max %d", c.URL, c.Depth, MaxCitationDepth),
				Severity: "fail",
			})
			continue
		}
		if len(c.QuotedWindow) < MinQuoteWindowChars && countSentences(c.QuotedWindow) < MinQuoteWindowSentences {
			findings = append(findings, Finding{
				Rule:    "quote_window_too_narrow",
				Message: fmt.Sprintf("citation %s quote window below minimum context", c.URL),
				Severity: "fail",
			})
		}
	}
	return findings
}

func countSentences(s string) int {
	count := 0
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	if count == 0 && strings.TrimSpace(s) != "" {
		return 1
	}
	return count
}

// ParseContractFromJSON builds a ContractDescriptor from a JSON contract
// document of the form {"function_name": "...", "preconditions": [...],
// "postconditions": [...], "invariants": [...]}, each predicate list an
// array of {"variable","min","max"} objects. Agents submit contracts in
// this wire format rather than constructing ContractDescriptor directly.
func ParseContractFromJSON(doc string) (ContractDescriptor, error) {
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return ContractDescriptor{}, fmt.Errorf("parse contract document: %w", err)
	}

	name, _ := jsonpath.Get("$.function_name", v)
	d := ContractDescriptor{FunctionName: fmt.Sprintf("%v", name)}

	sections := []struct {
		path string
		dst  *[]Predicate
	}{
		{"$.preconditions", &d.Preconditions},
		{"$.postconditions", &d.Postconditions},
		{"$.invariants", &d.Invariants},
	}
	for _, s := range sections {
		items, err := jsonpath.Get(s.path, v)
		if err != nil {
			continue // section omitted entirely is valid: an empty predicate list
		}
		list, ok := items.([]any)
		if !ok {
			continue
		}
		for _, raw := range list {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			p := Predicate{Variable: fmt.Sprintf("%v", m["variable"])}
			if min, ok := m["min"].(float64); ok {
				p.Min = min
			}
			if max, ok := m["max"].(float64); ok {
				p.Max = max
			}
			*s.dst = append(*s.dst, p)
		}
	}
	return d, nil
}

// RunTier2 combines contradiction checking and citation policy into a
// single tier result. Contradictions short-circuit the claim as
// VERIFIED_FALSE at the pipeline level, not merely a failed check.
func RunTier2(d ContractDescriptor, citations []Citation) TierResult {
	result := TierResult{Tier: "T2", Status: "pass"}
	result.Findings = append(result.Findings, CheckContradictions(d)...)
	result.Findings = append(result.Findings, CheckCitationPolicy(citations)...)
	for _, f := range result.Findings {
		if f.Severity == "fail" {
			result.Status = "fail"
			break
		}
	}
	return result
}
