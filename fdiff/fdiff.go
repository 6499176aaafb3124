// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fdiff estimates directional derivatives of a residual by
// finite differences.
//
// It is the reference implementation of the jacobian.Provider
// capability for callers without an automatic-differentiation engine:
// forward-mode products cost one or two extra residual evaluations,
// reverse-mode products fall back to columnwise differencing and cost
// O(n) evaluations.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
package fdiff

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/matfree/jacobian"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

// ErrInadmissible reports a non-finite residual evaluation at or near
// the differentiation point, e.g. a log or division domain error hit
// by a perturbed argument.
var ErrInadmissible = errors.New("fdiff: inadmissible value")

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

var _ jacobian.Provider = (*Provider)(nil)

// Provider approximates jacobian.Provider by finite differences.
// The zero value uses forward differences with automatic step sizes.
//
// A Provider reuses internal scratch buffers across calls and must not
// be shared between goroutines, matching the single-owner discipline
// of the operator it serves.
type Provider struct {
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute absolute step size as
	// h = RelStep * sign(x0) * abs(x0).
	// A step is selected automatically when RelStep is zero.
	RelStep float64
	// Absolute step size to use. Takes precedence over RelStep.
	AbsStep float64

	x, f0, f1, f2 []float64
}

func reuse(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

func (p *Provider) eps() float64 {
	if p.Method == Central {
		return cubeEps
	}
	return sqrtEps
}

// stepAt selects the absolute difference step for a coordinate value,
// guarding against steps rounded away by x + h == x.
func (p *Provider) stepAt(x float64) float64 {
	abs, rel := p.AbsStep, p.RelStep
	if abs == 0 && rel == 0 {
		return math.Copysign(p.eps(), x) * math.Max(1, math.Abs(x))
	}
	s := abs
	if s == 0 {
		s = math.Copysign(rel, x) * math.Abs(x)
	}
	if d := (x + s) - x; d == 0 {
		s = math.Copysign(p.eps(), x) * math.Max(1, math.Abs(x))
	}
	return s
}

// stepAlong selects the difference step for a whole-vector direction v,
// scaled so the largest perturbed coordinate moves by roughly the
// coordinatewise step.
func (p *Provider) stepAlong(u, v []float64) float64 {
	vnorm := floats.Norm(v, math.Inf(1))
	if vnorm == 0 {
		return 0
	}
	if p.AbsStep != 0 {
		return p.AbsStep / vnorm
	}
	rel := p.RelStep
	if rel == 0 {
		rel = p.eps()
	}
	unorm := floats.Norm(u, math.Inf(1))
	return rel * math.Max(1, unorm) / vnorm
}

// JVP stores the finite-difference estimate of 𝑱(u)·v into dst.
//
// Forward method: (𝑭(u+h𝐯) - 𝑭(u)) / h, two residual evaluations.
// Central method: (𝑭(u+h𝐯) - 𝑭(u-h𝐯)) / 2h, also two evaluations.
func (p *Provider) JVP(dst []float64, f jacobian.Func, m int, u, v []float64) error {
	n := len(u)
	if len(v) != n || len(dst) != m {
		return jacobian.ErrDimension
	}
	h := p.stepAlong(u, v)
	if h == 0 {
		clear(dst)
		return nil
	}

	p.x = reuse(p.x, n)
	p.f1 = reuse(p.f1, m)
	p.f2 = reuse(p.f2, m)
	x, f1, f2 := p.x, p.f1, p.f2

	if p.Method == Central {
		for i := range x {
			x[i] = u[i] - h*v[i]
		}
		f(f1, x)
		for i := range x {
			x[i] = u[i] + h*v[i]
		}
		f(f2, x)
		d := 1 / (2 * h)
		for j := range dst {
			dst[j] = (f2[j] - f1[j]) * d
		}
	} else {
		f(f1, u)
		for i := range x {
			x[i] = u[i] + h*v[i]
		}
		f(f2, x)
		d := 1 / h
		for j := range dst {
			dst[j] = (f2[j] - f1[j]) * d
		}
	}

	if !finite(f1) || !finite(f2) {
		return ErrInadmissible
	}
	return nil
}

// VJP stores the finite-difference estimate of 𝐰ᵀ𝑱(u) into dst.
//
// There is no reverse-mode shortcut in a differencing scheme: each of
// the n components is recovered from a coordinate perturbation, so a
// VJP costs n+1 (Forward) or 2n (Central) residual evaluations.
// u is perturbed one coordinate at a time and restored on return.
func (p *Provider) VJP(dst []float64, f jacobian.Func, m int, u, w []float64) error {
	n := len(u)
	if len(w) != m || len(dst) != n {
		return jacobian.ErrDimension
	}

	p.f0 = reuse(p.f0, m)
	p.f1 = reuse(p.f1, m)
	p.f2 = reuse(p.f2, m)
	f0, f1, f2 := p.f0, p.f1, p.f2

	central := p.Method == Central
	if !central {
		f(f0, u)
		if !finite(f0) {
			return ErrInadmissible
		}
	}

	for j := 0; j < n; j++ {
		s := p.stepAt(u[j])
		t := u[j]
		var d float64
		if central {
			u[j] = t - s
			f(f1, u)
			u[j] = t + s
			f(f2, u)
			u[j] = t
			d = 1 / (2 * s)
		} else {
			u[j] = t + s
			f(f2, u)
			u[j] = t
			f1, d = f0, 1/s
		}
		if !finite(f1) || !finite(f2) {
			return ErrInadmissible
		}
		var sum float64
		for i := range w {
			sum += w[i] * (f2[i] - f1[i]) * d
		}
		dst[j] = sum
	}
	return nil
}

// Jacobian estimates the whole m×n Jacobian of f at u by columnwise
// differencing, without going through an operator. dst may be nil to
// allocate the result. Cost: n+1 (Forward) or 2n (Central) residual
// evaluations. Useful as an independent cross-check of matrix-free
// assembly.
func (p *Provider) Jacobian(dst *mat.Dense, f jacobian.Func, m int, u []float64) (*mat.Dense, error) {
	n := len(u)
	if m <= 0 || n == 0 {
		return nil, jacobian.ErrDimension
	}
	if dst == nil {
		dst = mat.NewDense(m, n, nil)
	} else if r, c := dst.Dims(); r != m || c != n {
		return nil, jacobian.ErrDimension
	}

	p.f0 = reuse(p.f0, m)
	p.f1 = reuse(p.f1, m)
	p.f2 = reuse(p.f2, m)
	f0, f1, f2 := p.f0, p.f1, p.f2

	central := p.Method == Central
	if !central {
		f(f0, u)
		if !finite(f0) {
			return nil, ErrInadmissible
		}
	}

	for j := 0; j < n; j++ {
		s := p.stepAt(u[j])
		t := u[j]
		var d float64
		if central {
			u[j] = t - s
			f(f1, u)
			u[j] = t + s
			f(f2, u)
			u[j] = t
			d = 1 / (2 * s)
		} else {
			u[j] = t + s
			f(f2, u)
			u[j] = t
			f1, d = f0, 1/s
		}
		if !finite(f1) || !finite(f2) {
			return nil, ErrInadmissible
		}
		for i := 0; i < m; i++ {
			dst.Set(i, j, (f2[i]-f1[i])*d)
		}
	}
	return dst, nil
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
