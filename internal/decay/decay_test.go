package decay

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

func testEngine() *Engine {
	return NewEngine(config.DefaultParameters().Decay)
}

func TestRetrievability_FreshIsOne(t *testing.T) {
	for _, s := range []float64{1, 7, 30, 365} {
		if got := Retrievability(0, s); got != 1.0 {
			t.Errorf("R(0, %f) = %f, want 1.0", s, got)
		}
	}
}

func TestRetrievability_StrictlyDecreasing(t *testing.T) {
	prev := Retrievability(0, 30)
	for d := 1.0; d <= 365; d += 1 {
		r := Retrievability(d, 30)
		if r >= prev {
			t.Fatalf("R not strictly decreasing at day %f: %f >= %f", d, r, prev)
		}
		if r <= 0 || r > 1 {
			t.Fatalf("R out of (0,1] at day %f: %f", d, r)
		}
		prev = r
	}
}

func TestRetrievability_HalfAtStabilityLn2(t *testing.T) {
	// R(S*ln2, S) = 0.5 by construction.
	s := 30.0
	got := Retrievability(s*math.Ln2, s)
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestCompute_Lifecycle(t *testing.T) {
	e := testEngine()
	now := time.Now()

	cases := []struct {
		name      string
		daysSince float64
		stability float64
		want      types.LifecycleState
	}{
		{"fresh is active", 0, 30, types.StateActive},
		{"slightly aged fact stays active", 5, 30, types.StateActive},
		{"weak band", 20, 30, types.StateWeak},
		{"dormant by duration", 45, 365, types.StateDormant},
		{"compressed", 120, 365, types.StateCompressed},
		{"archived", 400, 365, types.StateArchived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			accessed := now.Add(-time.Duration(tc.daysSince*24) * time.Hour)
			node := &types.Node{
				Stability:      tc.stability,
				LastAccessedAt: &accessed,
				CreatedAt:      accessed,
			}
			state := e.Compute(node, now)
			assert.Equal(t, tc.want, state.Lifecycle)
		})
	}
}

func TestLifecycle_NeverRegressesInBatchRule(t *testing.T) {
	// The batch keeps the later of stored and computed stage; verify the
	// ordering helper backs that up for every pair.
	stages := types.ValidLifecycleStates
	for i, a := range stages {
		for j, b := range stages {
			got := types.IsLaterStage(a, b)
			want := i > j
			assert.Equal(t, want, got, "IsLaterStage(%s, %s)", a, b)
		}
	}
}

func TestOnAccess_GrowsStabilityAndResetsR(t *testing.T) {
	e := testEngine()
	node := &types.Node{Stability: 30, Difficulty: 0.3}
	s, r := e.OnAccess(node)
	assert.Greater(t, s, 30.0)
	assert.Equal(t, 1.0, r)
}

func TestOnAccess_DifficultyDampensGrowth(t *testing.T) {
	e := testEngine()
	easy := &types.Node{Stability: 30, Difficulty: 0.1}
	hard := &types.Node{Stability: 30, Difficulty: 0.9}
	sEasy, _ := e.OnAccess(easy)
	sHard, _ := e.OnAccess(hard)
	assert.Greater(t, sEasy, sHard)
	assert.Greater(t, sHard, 30.0)
}

func TestCascadeWeight_FlooredAndMonotone(t *testing.T) {
	e := testEngine()

	// High retrievability barely moves the weight.
	assert.InDelta(t, 1.0, e.CascadeWeight(1.0, 1.0), 1e-9)

	// Lower retrievability drags harder.
	w1 := e.CascadeWeight(0.8, 0.7)
	w2 := e.CascadeWeight(0.8, 0.2)
	assert.Less(t, w2, w1)

	// Never below the floor, no matter how far gone the node is.
	floor := config.DefaultParameters().Decay.CascadeFloor
	assert.Equal(t, floor, e.CascadeWeight(0.11, 0.0))
	assert.Equal(t, floor, e.CascadeWeight(floor, 0.0))
}

func TestDefaults_PerBehaviorType(t *testing.T) {
	e := testEngine()
	episode := e.Defaults(types.BehaviorEpisode)
	identity := e.Defaults(types.BehaviorIdentity)
	assert.Less(t, episode.Stability, identity.Stability)

	// Unknown types get the episode defaults.
	unknown := e.Defaults("bogus")
	assert.Equal(t, episode, unknown)
}

func TestNewNode_AppliesDefaults(t *testing.T) {
	e := testEngine()
	node := &types.Node{BehaviorType: types.BehaviorFact}
	e.NewNode(node)
	assert.Equal(t, e.Defaults(types.BehaviorFact).Stability, node.Stability)
	assert.Equal(t, 1.0, node.Retrievability)
	assert.Equal(t, types.StateActive, node.State)
}
