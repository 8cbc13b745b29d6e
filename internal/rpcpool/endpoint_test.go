package rpcpool

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEndpoint_ScoreStaysInBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	for run := 0; run < 50; run++ {
		ep := newEndpoint("node")
		for step := 0; step < 200; step++ {
			if r.IntN(2) == 0 {
				ep.recordSuccess(time.Duration(r.IntN(6000)) * time.Millisecond)
			} else {
				ep.recordFailure(time.Now())
			}
			assert.GreaterOrEqual(t, ep.score, minScore, "run %d step %d", run, step)
			assert.LessOrEqual(t, ep.score, maxScore, "run %d step %d", run, step)
		}
	}
}

func TestEndpoint_SuccessCapsAtMax(t *testing.T) {
	ep := newEndpoint("node")
	for i := 0; i < 100; i++ {
		ep.recordSuccess(0)
	}
	assert.Equal(t, maxScore, ep.score)
}

func TestEndpoint_SuccessFormula(t *testing.T) {
	ep := newEndpoint("node")
	ep.recordSuccess(300 * time.Millisecond)
	assert.InDelta(t, 1.0+0.05-0.1, ep.score, 1e-9)

	// slow but successful responses still lose score
	ep = newEndpoint("node")
	ep.recordSuccess(3 * time.Second)
	assert.Less(t, ep.score, initialScore)
}

func TestEndpoint_ConsecutiveFailuresDecayToZero(t *testing.T) {
	ep := newEndpoint("node")
	prev := ep.score
	expected := []float64{0.8, 0.4, 0.0, 0.0}
	for i, want := range expected {
		ep.recordFailure(time.Now())
		assert.LessOrEqual(t, ep.score, prev)
		assert.InDelta(t, want, ep.score, 1e-9, "failure %d", i+1)
		assert.Equal(t, i+1, ep.consecutiveFailures)
		prev = ep.score
	}
	assert.False(t, ep.lastFailureTime.IsZero())
}

func TestEndpoint_SuccessResetsFailures(t *testing.T) {
	ep := newEndpoint("node")
	for i := 0; i < 7; i++ {
		ep.recordFailure(time.Now())
	}
	assert.Equal(t, 7, ep.consecutiveFailures)

	ep.recordSuccess(10 * time.Millisecond)
	assert.Equal(t, 0, ep.consecutiveFailures)

	// penalty restarts from the first step
	ep.score = 1.0
	ep.recordFailure(time.Now())
	assert.InDelta(t, 0.8, ep.score, 1e-9)
}

func TestEndpoint_StatusCopy(t *testing.T) {
	ep := newEndpoint("node")
	st := ep.status()
	assert.Nil(t, st.LastFailureAt)
	assert.True(t, st.Healthy)

	ep.recordFailure(time.Now())
	ep.recordFailure(time.Now())
	ep.recordFailure(time.Now())
	st = ep.status()
	assert.NotNil(t, st.LastFailureAt)
	assert.False(t, st.Healthy)
	assert.Equal(t, uint64(3), st.Failures)
}
