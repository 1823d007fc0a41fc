package trust_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MythologIQ/QoreLogic-sub000/internal/trust"
)

func TestTransitiveTrustSelfIsOne(t *testing.T) {
	g := trust.NewGraph(nil, nil, nil)
	assert.Equal(t, 1.0, g.TransitiveTrust("a", "a"))
}

func TestTransitiveTrustDirectEdge(t *testing.T) {
	g := trust.NewGraph([]trust.Edge{{From: "a", To: "b", Weight: 0.8}}, nil, map[string]float64{"b": 0.9})
	assert.InDelta(t, 0.8*0.5, g.TransitiveTrust("a", "b"), 1e-9)
}

func TestTransitiveTrustNoPathIsZero(t *testing.T) {
	g := trust.NewGraph([]trust.Edge{{From: "a", To: "b", Weight: 0.8}}, nil, nil)
	assert.Equal(t, 0.0, g.TransitiveTrust("a", "z"))
}

func TestTransitiveTrustSybilGuardBreaksPath(t *testing.T) {
	edges := []trust.Edge{
		{From: "a", To: "low", Weight: 1.0},
		{From: "low", To: "b", Weight: 1.0},
	}
	nodeTrust := map[string]float64{"low": 0.1} // at or below sybilGuardThreshold
	g := trust.NewGraph(edges, nil, nodeTrust)
	assert.Equal(t, 0.0, g.TransitiveTrust("a", "b"), "a path through a low-trust intermediary must not contribute")
}

func TestTransitiveTrustAnchorTeleport(t *testing.T) {
	g := trust.NewGraph(nil, []string{"overseer"}, nil)
	assert.Greater(t, g.TransitiveTrust("a", "overseer"), 0.0, "an unreachable anchor still contributes a teleport fraction")
}

func TestTransitiveTrustBoundedHops(t *testing.T) {
	edges := []trust.Edge{
		{From: "a", To: "b", Weight: 1.0},
		{From: "b", To: "c", Weight: 1.0},
		{From: "c", To: "d", Weight: 1.0},
		{From: "d", To: "e", Weight: 1.0},
	}
	g := trust.NewGraph(edges, nil, nil)
	assert.Equal(t, 0.0, g.TransitiveTrust("a", "e"), "a path longer than the hop bound must not be found")
}
