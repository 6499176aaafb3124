// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jacobian represents the Jacobian 𝑱 of a vector residual
// 𝑭(𝐮) : ℝⁿ → ℝᵐ as a matrix-free linear operator.
//
// The m×n matrix 𝑱 is never formed. Instead the Operator evaluates
//   - 𝑱·𝐯 with a single forward-mode directional derivative
//   - 𝐰ᵀ𝑱 with a single reverse-mode directional derivative
//
// where both derivative evaluations are delegated to a Provider.
// Explicit matrices can still be recovered on demand with AssembleDense,
// or with AssembleColored when the sparsity structure of 𝑱 is known and
// a column Coloring makes the reconstruction cheaper than n products.
package jacobian

import (
	"errors"
	"math"
)

var (
	// ErrDimension reports a vector whose length disagrees with the operator shape.
	ErrDimension = errors.New("jacobian: dimension mismatch")
	// ErrNonFinite reports a NaN or Inf in a derivative result.
	// It signals either an inadmissible evaluation point or a blow-up upstream.
	ErrNonFinite = errors.New("jacobian: non-finite result")
)

// Func evaluates a residual in place: y = 𝑭(u).
// The lengths of y and u are fixed for the lifetime of any Operator
// built around the function. A Func must be free of side effects
// outside its output argument: the operator assumes repeated
// evaluation at a point always produces the same residual.
type Func func(y, u []float64)

// Pure adapts an allocating residual 𝑭(u) → y to the in-place form.
// Prefer writing the in-place form directly to avoid one allocation
// per evaluation.
func Pure(f func(u []float64) []float64) Func {
	return func(y, u []float64) {
		copy(y, f(u))
	}
}

// Provider computes directional derivatives of a Func at a point.
// It is the capability an automatic-differentiation engine (or a
// finite-difference fallback) must expose for the Operator to work.
//
// A Provider must not retain derivative state across calls, must be
// seeded only through the explicit direction argument, and must report
// a distinguishable error rather than silently returning zeros when
// the function is not differentiable at the requested point.
// Implementations may freely overwrite u and the direction during a
// call, provided both are restored on return: the Operator hands over
// its own scratch copy of the direction, never caller memory.
type Provider interface {
	// JVP stores the Jacobian-vector product 𝑱(u)·v into dst.
	// dst has length m, u and v have length n.
	JVP(dst []float64, f Func, m int, u, v []float64) error
	// VJP stores the vector-Jacobian product wᵀ𝑱(u) into dst.
	// dst and u have length n, w has length m.
	VJP(dst []float64, f Func, m int, u, w []float64) error
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
