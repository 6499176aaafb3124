// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jacobian

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// matProvider differentiates the linear residual 𝑭(u) = 𝑨u,
// so products are exact up to rounding.
type matProvider struct{ a *mat.Dense }

func (p matProvider) JVP(dst []float64, _ Func, _ int, _, v []float64) error {
	var y mat.VecDense
	y.MulVec(p.a, mat.NewVecDense(len(v), v))
	copy(dst, y.RawVector().Data)
	return nil
}

func (p matProvider) VJP(dst []float64, _ Func, _ int, _, w []float64) error {
	var y mat.VecDense
	y.MulVec(p.a.T(), mat.NewVecDense(len(w), w))
	copy(dst, y.RawVector().Data)
	return nil
}

// jacProvider differentiates through a caller-supplied analytic
// Jacobian evaluated at the operator point.
type jacProvider struct{ jac func(u []float64) *mat.Dense }

func (p jacProvider) JVP(dst []float64, f Func, m int, u, v []float64) error {
	return matProvider{p.jac(u)}.JVP(dst, f, m, u, v)
}

func (p jacProvider) VJP(dst []float64, f Func, m int, u, w []float64) error {
	return matProvider{p.jac(u)}.VJP(dst, f, m, u, w)
}

func linearFunc(a *mat.Dense) Func {
	return func(y, u []float64) {
		var t mat.VecDense
		t.MulVec(a, mat.NewVecDense(len(u), u))
		copy(y, t.RawVector().Data)
	}
}

func testMatrix() *mat.Dense {
	return mat.NewDense(3, 4, []float64{
		2, -1, 0, 3,
		0, 4, 1, -2,
		-3, 0, 5, 1,
	})
}

func TestOperatorLinear(t *testing.T) {
	a := testMatrix()
	u := []float64{1, -2, 0.5, 3}
	op, err := NewOperator(linearFunc(a), 3, u, matProvider{a})
	require.NoError(t, err)

	m, n := op.Dims()
	require.Equal(t, 3, m)
	require.Equal(t, 4, n)
	require.Equal(t, u, op.Point())

	v := []float64{0.5, 1, -1, 2}
	got := make([]float64, 3)
	require.NoError(t, op.Apply(got, v))

	var want mat.VecDense
	want.MulVec(a, mat.NewVecDense(4, v))
	assert.InDeltaSlice(t, want.RawVector().Data, got, 1e-15)

	w := []float64{1, -0.5, 2}
	gotT := make([]float64, 4)
	require.NoError(t, op.ApplyTrans(gotT, w))

	var wantT mat.VecDense
	wantT.MulVec(a.T(), mat.NewVecDense(3, w))
	assert.InDeltaSlice(t, wantT.RawVector().Data, gotT, 1e-15)
}

// The defining property of a true adjoint: ⟨w, 𝑱v⟩ = ⟨𝑱ᵀw, v⟩.
func TestOperatorAdjointConsistency(t *testing.T) {
	jac := func(u []float64) *mat.Dense {
		return mat.NewDense(2, 2, []float64{
			math.Cos(u[0]), -math.Sin(u[1]),
			u[1] * math.Exp(u[0]*u[1]), u[0] * math.Exp(u[0]*u[1]),
		})
	}
	f := func(y, u []float64) {
		y[0] = math.Sin(u[0]) + math.Cos(u[1])
		y[1] = math.Exp(u[0] * u[1])
	}

	u := []float64{0.7, -0.3}
	op, err := NewOperator(f, 2, u, jacProvider{jac})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	jv := make([]float64, 2)
	jtw := make([]float64, 2)
	for trial := 0; trial < 20; trial++ {
		v := []float64{rng.NormFloat64(), rng.NormFloat64()}
		w := []float64{rng.NormFloat64(), rng.NormFloat64()}
		require.NoError(t, op.Apply(jv, v))
		require.NoError(t, op.ApplyTrans(jtw, w))
		lhs := w[0]*jv[0] + w[1]*jv[1]
		rhs := jtw[0]*v[0] + jtw[1]*v[1]
		assert.InDelta(t, lhs, rhs, 1e-12*(1+math.Abs(lhs)))
	}
}

func TestOperatorDimensionMismatch(t *testing.T) {
	a := testMatrix()
	u := make([]float64, 4)
	op, err := NewOperator(linearFunc(a), 3, u, matProvider{a})
	require.NoError(t, err)

	dst3, dst4 := make([]float64, 3), make([]float64, 4)
	assert.ErrorIs(t, op.Apply(dst3, make([]float64, 5)), ErrDimension)
	assert.ErrorIs(t, op.Apply(dst4, make([]float64, 4)), ErrDimension)
	assert.ErrorIs(t, op.ApplyTrans(dst4, make([]float64, 4)), ErrDimension)
	assert.ErrorIs(t, op.ApplyTrans(dst3, make([]float64, 3)), ErrDimension)
}

type nanProvider struct{}

func (nanProvider) JVP(dst []float64, _ Func, _ int, _, _ []float64) error {
	dst[0] = math.NaN()
	return nil
}

func (nanProvider) VJP(dst []float64, _ Func, _ int, _, _ []float64) error {
	dst[0] = math.Inf(1)
	return nil
}

func TestOperatorNonFinite(t *testing.T) {
	f := func(y, u []float64) { copy(y, u) }
	u := []float64{1, 2}
	op, err := NewOperator(f, 2, u, nanProvider{})
	require.NoError(t, err)

	dst := make([]float64, 2)
	assert.ErrorIs(t, op.Apply(dst, []float64{1, 0}), ErrNonFinite)
	assert.ErrorIs(t, op.ApplyTrans(dst, []float64{1, 0}), ErrNonFinite)
}

func TestNewOperatorValidate(t *testing.T) {
	f := func(y, u []float64) { copy(y, u) }
	u := []float64{1}
	p := nanProvider{}

	_, err := NewOperator(nil, 1, u, p)
	assert.Error(t, err)
	_, err = NewOperator(f, 1, u, nil)
	assert.Error(t, err)
	_, err = NewOperator(f, 0, u, p)
	assert.Error(t, err)
	_, err = NewOperator(f, 1, nil, p)
	assert.Error(t, err)
}

func TestPure(t *testing.T) {
	f := Pure(func(u []float64) []float64 {
		return []float64{u[0] + u[1], u[0] * u[1]}
	})
	y := make([]float64, 2)
	f(y, []float64{3, 4})
	assert.Equal(t, []float64{7, 12}, y)
}
