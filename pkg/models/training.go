package models

import "time"

// ValidationRound is emitted every time the trainer evaluates the validation
// partition.
type ValidationRound struct {
	RunID           string    `json:"run_id"`
	Epoch           int       `json:"epoch"`
	Minibatch       int       `json:"minibatch"`
	NumMinibatches  int       `json:"num_minibatches"`
	Iteration       int       `json:"iteration"`
	Metric          string    `json:"metric"`
	ValidationScore float64   `json:"validation_score"`
	TestScore       *float64  `json:"test_score,omitempty"`
	ValidationAUC   *float64  `json:"validation_auc,omitempty"`
	TrainCost       float64   `json:"train_cost"`
	BestValidation  float64   `json:"best_validation"`
	Patience        float64   `json:"patience"`
	Improved        bool      `json:"improved"`
	PatienceRaised  bool      `json:"patience_raised"`
	Timestamp       time.Time `json:"timestamp"`
}

// RunSummary is the final report of a training run.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Epochs          int           `json:"epochs"`
	Iterations      int           `json:"iterations"`
	BestValidation  float64       `json:"best_validation"`
	BestIteration   int           `json:"best_iteration"`
	Patience        float64       `json:"patience"`
	StopReason      string        `json:"stop_reason"`
	FinalTrainCost  float64       `json:"final_train_cost"`
	Duration        time.Duration `json:"duration"`
	EpochsPerSecond float64       `json:"epochs_per_second"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
}
