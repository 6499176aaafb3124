// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package krylov solves square linear systems 𝑨·𝐱 = 𝐛 given only the
// ability to apply the matrix to a vector, with a restarted GMRES
// iteration. The matrix is never accessed entrywise, so the system
// may be backed by a matrix-free operator such as a Jacobian.
package krylov

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrIterationLimit reports that the iteration budget was exhausted
	// before the tolerance was met. The best approximate solution so
	// far is still returned.
	ErrIterationLimit = errors.New("krylov: iteration limit reached")
	// ErrBreakdown reports a non-finite value in the Arnoldi recurrence,
	// typically caused by a non-finite matrix-vector product.
	ErrBreakdown = errors.New("krylov: orthogonalization breakdown")
)

// System describes the matrix of the linear system by its action on
// vectors.
type System struct {
	// MulVec computes 𝑨·v and stores the result into dst.
	// It must be non-nil.
	MulVec func(dst, v []float64)
	// MulTransVec computes 𝑨ᵀ·v and stores the result into dst.
	// GMRES does not use it; it is part of the contract surface for
	// methods and preconditioners that need the transpose.
	MulTransVec func(dst, v []float64)
}

// Settings holds the options for a linear solve.
// Zero values of the fields mean defaults.
type Settings struct {
	// Tolerance on the relative residual |𝐛 - 𝑨𝐱| / |𝐛|.
	// Default 1e-8.
	Tolerance float64
	// MaxIterations limits the total number of inner iterations.
	// Default twice the system dimension.
	MaxIterations int
	// Restart is the GMRES restart length.
	// Default (and maximum) is the system dimension.
	Restart int
	// X0 is an optional initial guess of length dim.
	X0 []float64
}

func defaultSettings(s *Settings, dim int) {
	if s.Tolerance == 0 {
		s.Tolerance = 1e-8
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 2 * dim
	}
	if s.Restart == 0 || s.Restart > dim {
		s.Restart = dim
	}
}

// Stats holds statistics about an iterative solve.
type Stats struct {
	// Iterations is the number of inner iterations performed.
	Iterations int
	// MulVec is the number of matrix-vector products commanded.
	MulVec int
	// ResidualNorm is the final true residual norm |𝐛 - 𝑨𝐱|.
	ResidualNorm float64
	// StartTime is an approximate time when the solve was started.
	StartTime time.Time
	// Runtime is an approximate duration of the solve.
	Runtime time.Duration
}

// Result holds the result of an iterative solve.
type Result struct {
	// X is the approximate solution.
	X []float64
	// Stats holds the statistics of the solve.
	Stats Stats
}

// Solve runs restarted GMRES on the system of len(b) linear equations
// 𝑨·𝐱 = 𝐛. It converges when the true residual norm drops below
// Tolerance·|𝐛|, and returns ErrIterationLimit with the best
// approximation when the budget runs out first.
func Solve(a System, b []float64, s Settings) (Result, error) {
	stats := Stats{StartTime: time.Now()}

	dim := len(b)
	switch {
	case dim == 0:
		panic("krylov: zero dimension")
	case a.MulVec == nil:
		panic("krylov: nil matrix-vector multiplication")
	case s.X0 != nil && len(s.X0) != dim:
		panic("krylov: mismatched length of initial guess")
	}

	defaultSettings(&s, dim)

	x := make([]float64, dim)
	r := make([]float64, dim)
	if s.X0 != nil {
		copy(x, s.X0)
		a.MulVec(r, x)
		stats.MulVec++
		floats.AddScaledTo(r, b, -1, r) // r = b - Ax
	} else {
		copy(r, b)
	}

	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		bnorm = 1
	}
	threshold := s.Tolerance * bnorm

	var err error
	rnorm := floats.Norm(r, 2)
	if rnorm > threshold {
		err = iterate(a, b, x, r, threshold, s, &stats)
	}
	stats.ResidualNorm = floats.Norm(r, 2)
	stats.Runtime = time.Since(stats.StartTime)
	return Result{X: x, Stats: stats}, err
}

// iterate runs restart cycles until the true residual passes the
// threshold or the iteration budget runs out. r holds the current
// residual on entry and the final residual on return.
func iterate(a System, b, x, r []float64, threshold float64, s Settings, stats *Stats) error {
	g := newGMRES(len(b), s.Restart)
	for {
		if err := g.cycle(a, x, r, threshold, s.MaxIterations, stats); err != nil {
			return err
		}
		// The Givens recurrence only estimates the residual norm,
		// recompute the true residual before deciding.
		a.MulVec(r, x)
		stats.MulVec++
		floats.AddScaledTo(r, b, -1, r)
		if floats.Norm(r, 2) <= threshold {
			return nil
		}
		if stats.Iterations >= s.MaxIterations {
			return ErrIterationLimit
		}
	}
}
