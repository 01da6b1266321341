package dataset

import (
	"fmt"

	"github.com/petar/GoMNIST"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/pkg/constants"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// LoadMNIST reads the gzipped IDX files in dir. The first trainSize training
// images become the train partition, the remaining ones the validation
// partition and the official test set the test partition.
func LoadMNIST(dir string, trainSize int, layout string, seqLen int) (*Split, error) {
	train, test, err := GoMNIST.Load(dir)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeData, errors.CodeDataNotFound,
			fmt.Sprintf("failed to load MNIST from %s", dir))
	}
	return SplitMNIST(train, test, trainSize, layout, seqLen)
}

// SplitMNIST converts loaded MNIST sets into a Split. With the flat layout
// every image is one row and rows are chunked into sequences of seqLen. With
// the rows layout every image is a sequence of its pixel rows, labelled with
// the digit at each step.
func SplitMNIST(train, test *GoMNIST.Set, trainSize int, layout string, seqLen int) (*Split, error) {
	if train == nil || test == nil {
		return nil, errors.NewDataError(errors.CodeDataNotFound, "MNIST sets are missing")
	}
	n := train.Count()
	if trainSize <= 0 || trainSize >= n {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("MNIST train size must be in (0, %d), got %d", n, trainSize))
	}

	convert := func(name string, set *GoMNIST.Set, lo, hi int) (*Partition, error) {
		switch layout {
		case constants.LayoutRows:
			return mnistRows(name, set, lo, hi)
		case constants.LayoutFlat, "":
			x, y := mnistFlat(set, lo, hi)
			return FromFlat(name, x, y, seqLen)
		default:
			return nil, errors.NewConfigurationError(errors.CodeInvalidConfig,
				fmt.Sprintf("unknown MNIST layout %q", layout))
		}
	}

	trainPart, err := convert(constants.PartitionTrain, train, 0, trainSize)
	if err != nil {
		return nil, err
	}
	validPart, err := convert(constants.PartitionValid, train, trainSize, n)
	if err != nil {
		return nil, err
	}
	testPart, err := convert(constants.PartitionTest, test, 0, test.Count())
	if err != nil {
		return nil, err
	}
	return &Split{Train: trainPart, Valid: validPart, Test: testPart}, nil
}

func mnistFlat(set *GoMNIST.Set, lo, hi int) (*mat.Dense, []int) {
	d := set.NRow * set.NCol
	x := mat.NewDense(hi-lo, d, nil)
	y := make([]int, hi-lo)
	for i := lo; i < hi; i++ {
		img, label := set.Get(i)
		row := x.RawRowView(i - lo)
		for j, px := range img {
			row[j] = float64(px) / 255
		}
		y[i-lo] = int(label)
	}
	return x, y
}

// mnistRows reads each image as an NRow x NCol tensor, one pixel row per
// timestep.
func mnistRows(name string, set *GoMNIST.Set, lo, hi int) (*Partition, error) {
	x := make([][][]float64, 0, hi-lo)
	y := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		img, label := set.Get(i)
		example := make([][]float64, set.NRow)
		for r := range example {
			row := make([]float64, set.NCol)
			for c := range row {
				row[c] = float64(img[r*set.NCol+c]) / 255
			}
			example[r] = row
		}
		x = append(x, example)
		y = append(y, int(label))
	}
	return FromTensor(name, x, y)
}
