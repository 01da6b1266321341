// Package evaluation scores trained sequence models beyond the training loss.
package evaluation

import (
	"fmt"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/seqrnn/internal/dataset"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// Scorer is implemented by models that expose per-timestep class probabilities.
type Scorer interface {
	PredictProba(seq dataset.Sequence) (*mat.Dense, error)
}

// BinaryAUC returns the area under the ROC curve of scores as a predictor of
// labels == 1. Both classes must be present.
func BinaryAUC(scores []float64, labels []int) (float64, error) {
	if len(scores) != len(labels) {
		return 0, errors.NewShapeError(errors.CodeDimensionMismatch,
			fmt.Sprintf("%d scores but %d labels", len(scores), len(labels)))
	}

	y := append([]float64(nil), scores...)
	classes := make([]bool, len(labels))
	var positives int
	for i, label := range labels {
		switch label {
		case 0:
		case 1:
			classes[i] = true
			positives++
		default:
			return 0, errors.NewShapeError(errors.CodeInvalidLabel,
				fmt.Sprintf("label %d at %d is not binary", label, i))
		}
	}
	if positives == 0 || positives == len(labels) {
		return 0, errors.NewDataError(errors.CodeInsufficientData, "AUC needs both classes")
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// SequenceAUC scores every timestep of seqs by the probability of class 1 and
// returns the binary AUC against the per-timestep labels.
func SequenceAUC(model Scorer, seqs []dataset.Sequence) (float64, error) {
	var scores []float64
	var labels []int
	for _, seq := range seqs {
		p, err := model.PredictProba(seq)
		if err != nil {
			return 0, err
		}
		r, c := p.Dims()
		if c != 2 {
			return 0, errors.NewShapeError(errors.CodeShapeMismatch,
				fmt.Sprintf("AUC needs 2 classes, model has %d", c))
		}
		for i := 0; i < r; i++ {
			scores = append(scores, p.At(i, 1))
		}
		labels = append(labels, seq.Y...)
	}
	return BinaryAUC(scores, labels)
}
