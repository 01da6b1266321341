package trainer

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/seqrnn/internal/rnn"
	"github.com/inferloop/seqrnn/pkg/errors"
)

// SGD applies param -= rate·grad in place. With a positive momentum it keeps
// a velocity per tensor: v = momentum·v - rate·grad, param += v.
type SGD struct {
	rate     float64
	momentum float64
	velocity *rnn.Params
}

// NewSGD creates an optimizer
func NewSGD(rate, momentum float64) *SGD {
	return &SGD{rate: rate, momentum: momentum}
}

// Step updates params with grads
func (s *SGD) Step(params, grads *rnn.Params) error {
	ps, gs := params.Tensors(), grads.Tensors()
	for i := range ps {
		pr, pc := ps[i].Dims()
		gr, gc := gs[i].Dims()
		if pr != gr || pc != gc {
			return errors.NewShapeError(errors.CodeShapeMismatch,
				fmt.Sprintf("gradient for %s is %dx%d, parameter is %dx%d", rnn.ParamNames[i], gr, gc, pr, pc))
		}
	}

	if s.momentum == 0 {
		for i := range ps {
			addScaledRows(ps[i], -s.rate, gs[i])
		}
		return nil
	}

	if s.velocity == nil {
		s.velocity = rnn.ZerosLike(params)
	}
	vs := s.velocity.Tensors()
	for i := range ps {
		vs[i].Scale(s.momentum, vs[i])
		addScaledRows(vs[i], -s.rate, gs[i])
		ps[i].Add(ps[i], vs[i])
	}
	return nil
}

func addScaledRows(dst *mat.Dense, alpha float64, src *mat.Dense) {
	r, _ := dst.Dims()
	for i := 0; i < r; i++ {
		floats.AddScaled(dst.RawRowView(i), alpha, src.RawRowView(i))
	}
}
