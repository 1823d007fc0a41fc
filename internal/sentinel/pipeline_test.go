package sentinel_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/sentinel"
)

func TestRunL1CleanArtifactIsVerified(t *testing.T) {
	out, err := sentinel.Run(context.Background(), sentinel.PipelineInput{
		Classify: sentinel.ClassifyInput{Path: "README.md", Content: "// docs only\n"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskL1, out.Risk)
	assert.Equal(t, sentinel.StateVerified, out.State)
}

func TestRunL2QuarantinesOnTier1Fail(t *testing.T) {
	out, err := sentinel.Run(context.Background(), sentinel.PipelineInput{
		Classify: sentinel.ClassifyInput{
			Path:    "fetch.go",
			Content: `resp, _ := http.Get("https://example.com"); password := "hunter22222"`,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskL2, out.Risk)
	assert.Equal(t, sentinel.StateQuarantined, out.State)
}

func TestRunL2VerifiedWhenTiersPass(t *testing.T) {
	citations := []sentinel.Citation{{URL: "https://example.com/a", Depth: 1, QuotedWindow: strings.Repeat("x", 220)}}
	out, err := sentinel.Run(context.Background(), sentinel.PipelineInput{
		Classify:  sentinel.ClassifyInput{Path: "fetch.go", Content: `resp, _ := http.Get("https://example.com")`},
		Citations: citations,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskL2, out.Risk)
	assert.Equal(t, sentinel.StateVerified, out.State)
}

func TestRunL2VerifiedFalseOnLogicalContradiction(t *testing.T) {
	out, err := sentinel.Run(context.Background(), sentinel.PipelineInput{
		Classify: sentinel.ClassifyInput{Path: "fetch.go", Content: `resp, _ := http.Get("https://example.com")`},
		Contract: sentinel.ContractDescriptor{
			Preconditions:  []sentinel.Predicate{{Variable: "x", Min: 0, Max: 10}},
			Postconditions: []sentinel.Predicate{{Variable: "x", Min: 20, Max: 30}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, sentinel.StateVerifiedFalse, out.State)
}

func TestRunL3NoBackendEscalatesConditional(t *testing.T) {
	citations := []sentinel.Citation{{URL: "https://example.com/a", Depth: 1, QuotedWindow: strings.Repeat("x", 220)}}
	out, err := sentinel.Run(context.Background(), sentinel.PipelineInput{
		Classify:  sentinel.ClassifyInput{Path: "internal/auth/login.go", Content: "package auth\nfunc Login() {}"},
		Citations: citations,
		Tier3:     nil,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskL3, out.Risk)
	assert.Equal(t, sentinel.StateConditional, out.State)
	assert.True(t, out.Escalate)
}

func TestRunL1SampledUnderLeanStillRunsTier1(t *testing.T) {
	out, err := sentinel.Run(context.Background(), sentinel.PipelineInput{
		Classify:   sentinel.ClassifyInput{Path: "README.md", Content: `api_key := "sk-ABCDEFGHIJKLMNOPQRSTUVWX"`},
		LeanSample: true,
	})
	require.NoError(t, err)
	assert.Equal(t, sentinel.StateVerifiedFalse, out.State, "a sampled L1 artifact still runs Tier 1 and can be rejected")
}
