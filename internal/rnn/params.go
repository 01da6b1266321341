package rnn

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ParamNames lists the trainable tensors in the order returned by Tensors.
var ParamNames = []string{"W", "U", "b", "V", "c"}

// Params holds the five tensors of a SequenceModel. The same layout carries
// gradients.
type Params struct {
	W *mat.Dense // hidden x hidden
	U *mat.Dense // input x hidden
	B *mat.Dense // 1 x hidden
	V *mat.Dense // hidden x classes
	C *mat.Dense // 1 x classes
}

// Tensors returns the tensors in ParamNames order.
func (p *Params) Tensors() []*mat.Dense {
	return []*mat.Dense{p.W, p.U, p.B, p.V, p.C}
}

// ZerosLike allocates a zero Params with the same shapes as p.
func ZerosLike(p *Params) *Params {
	return &Params{
		W: zerosLike(p.W),
		U: zerosLike(p.U),
		B: zerosLike(p.B),
		V: zerosLike(p.V),
		C: zerosLike(p.C),
	}
}

func zerosLike(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	return mat.NewDense(r, c, nil)
}

// sumSquares returns the sum of the squared entries of m.
func sumSquares(m *mat.Dense) float64 {
	r, _ := m.Dims()
	var s float64
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		s += floats.Dot(row, row)
	}
	return s
}

// addScaled computes dst += alpha*src row by row.
func addScaled(dst *mat.Dense, alpha float64, src *mat.Dense) {
	r, _ := dst.Dims()
	for i := 0; i < r; i++ {
		floats.AddScaled(dst.RawRowView(i), alpha, src.RawRowView(i))
	}
}
