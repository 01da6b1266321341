package trainer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationFrequency(t *testing.T) {
	tests := []struct {
		batches  int
		patience int
		want     int
	}{
		{batches: 5, patience: 10, want: 5},
		{batches: 100, patience: 10, want: 5},
		{batches: 3, patience: 10000, want: 3},
		{batches: 5, patience: 1, want: 1},
		{batches: 0, patience: 10, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidationFrequency(tt.batches, tt.patience), "batches=%d patience=%d", tt.batches, tt.patience)
	}
}

func TestEarlyStoppingInitialState(t *testing.T) {
	e := NewEarlyStopping(10, 2, 0.995, 5)
	assert.True(t, math.IsInf(e.Best(), 1))
	assert.Equal(t, -1, e.BestIteration())
	assert.Equal(t, 10.0, e.Patience())
	assert.Equal(t, 5, e.Frequency())

	assert.False(t, e.ShouldValidate(3))
	assert.True(t, e.ShouldValidate(4))
	assert.True(t, e.ShouldValidate(9))
	assert.False(t, e.Exhausted(9))
	assert.True(t, e.Exhausted(10))
}

func TestEarlyStoppingTwoTierUpdate(t *testing.T) {
	e := NewEarlyStopping(10, 2, 0.995, 5)

	// Any improvement on +Inf is significant, but 4·2 does not beat 10.
	d := e.Observe(4, 1.0)
	assert.True(t, d.Improved)
	assert.False(t, d.PatienceRaised)
	assert.Equal(t, 10.0, d.Patience)

	d = e.Observe(9, 0.5)
	assert.True(t, d.Improved)
	assert.True(t, d.PatienceRaised)
	assert.Equal(t, 18.0, d.Patience)

	// 0.499 is better than 0.5 but not by the 0.5% threshold: best moves,
	// patience does not.
	d = e.Observe(14, 0.499)
	assert.True(t, d.Improved)
	assert.False(t, d.PatienceRaised)
	assert.Equal(t, 0.499, d.Best)
	assert.Equal(t, 18.0, d.Patience)
	assert.Equal(t, 14, e.BestIteration())

	// A worse score changes nothing.
	d = e.Observe(19, 0.6)
	assert.False(t, d.Improved)
	assert.Equal(t, 0.499, d.Best)
	assert.Equal(t, 14, e.BestIteration())

	// The threshold is relative to the latest best, not the best at the
	// last patience raise.
	d = e.Observe(24, 0.49)
	assert.True(t, d.PatienceRaised)
	assert.Equal(t, 48.0, d.Patience)
}

func TestEarlyStoppingNeverShrinksPatience(t *testing.T) {
	e := NewEarlyStopping(100, 2, 0.995, 10)
	d := e.Observe(9, 0.3)
	assert.True(t, d.Improved)
	assert.False(t, d.PatienceRaised)
	assert.Equal(t, 100.0, e.Patience())
}

func TestEarlyStoppingFractionalIncrease(t *testing.T) {
	e := NewEarlyStopping(4, 1.5, 0.995, 2)
	e.Observe(13, 1.0)
	assert.Equal(t, 19.5, e.Patience())
	assert.False(t, e.Exhausted(19))
	assert.True(t, e.Exhausted(20))
}
