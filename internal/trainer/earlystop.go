package trainer

import "math"

// ValidationFrequency returns how many minibatch iterations pass between
// validation rounds: min(nTrainBatches, patience/2), at least 1.
func ValidationFrequency(nTrainBatches, patience int) int {
	freq := nTrainBatches
	if half := patience / 2; half < freq {
		freq = half
	}
	if freq < 1 {
		freq = 1
	}
	return freq
}

// Decision is the outcome of one validation round
type Decision struct {
	Improved       bool
	PatienceRaised bool
	Best           float64
	Patience       float64
}

// EarlyStopping tracks the best validation score and the patience budget.
// Any strict improvement updates the best score; only an improvement below
// best·threshold extends patience to iter·increase.
type EarlyStopping struct {
	patience  float64
	increase  float64
	threshold float64
	frequency int

	best     float64
	bestIter int
}

// NewEarlyStopping creates the stopping state for a run over nTrainBatches
// minibatches per epoch.
func NewEarlyStopping(patience int, increase, threshold float64, nTrainBatches int) *EarlyStopping {
	return &EarlyStopping{
		patience:  float64(patience),
		increase:  increase,
		threshold: threshold,
		frequency: ValidationFrequency(nTrainBatches, patience),
		best:      math.Inf(1),
		bestIter:  -1,
	}
}

// Frequency returns the validation frequency in iterations
func (e *EarlyStopping) Frequency() int {
	return e.frequency
}

// ShouldValidate reports whether iteration iter (0-based) ends with a
// validation round.
func (e *EarlyStopping) ShouldValidate(iter int) bool {
	return (iter+1)%e.frequency == 0
}

// Observe records the validation score measured at iter.
func (e *EarlyStopping) Observe(iter int, score float64) Decision {
	var d Decision
	if score < e.best {
		d.Improved = true
		if score < e.best*e.threshold {
			if extended := float64(iter) * e.increase; extended > e.patience {
				e.patience = extended
				d.PatienceRaised = true
			}
		}
		e.best = score
		e.bestIter = iter
	}
	d.Best = e.best
	d.Patience = e.patience
	return d
}

// Exhausted reports whether training must stop after iteration iter.
func (e *EarlyStopping) Exhausted(iter int) bool {
	return e.patience <= float64(iter)
}

// Best returns the best validation score so far, +Inf before any round
func (e *EarlyStopping) Best() float64 {
	return e.best
}

// BestIteration returns the iteration of the best score, -1 before any round
func (e *EarlyStopping) BestIteration() int {
	return e.bestIter
}

// Patience returns the current patience budget in iterations
func (e *EarlyStopping) Patience() float64 {
	return e.patience
}
