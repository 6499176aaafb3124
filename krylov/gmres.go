// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package krylov

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
)

// gmres holds the workspace of the restarted GMRES recurrence:
// the Krylov basis V, the upper Hessenberg matrix H stored columnwise
// with leading dimension ldh, the rotated right-hand side s, and the
// Givens rotations that keep H triangular.
type gmres struct {
	dim, restart, ldh int

	v    []float64 // dim × (restart+1) basis, column j at v[j*dim:]
	h    []float64 // (restart+1) × restart Hessenberg, column i at h[i*ldh:]
	s    []float64
	y    []float64
	w    []float64
	givs []givens
}

type givens struct {
	c, s float64
}

func newGMRES(dim, restart int) *gmres {
	k := restart
	return &gmres{
		dim: dim, restart: k, ldh: k + 1,
		v:    make([]float64, dim*(k+1)),
		h:    make([]float64, (k+1)*k),
		s:    make([]float64, k+1),
		y:    make([]float64, k+1),
		w:    make([]float64, dim),
		givs: make([]givens, k),
	}
}

// cycle runs one restart cycle starting from the residual r and folds
// the resulting correction into x. It stops early when the estimated
// residual norm passes threshold, on a lucky breakdown (the solution
// lies in the current subspace), or when the iteration budget is hit.
func (g *gmres) cycle(a System, x, r []float64, threshold float64, maxIter int, stats *Stats) error {
	n := g.dim
	rnorm := floats.Norm(r, 2)
	if math.IsNaN(rnorm) || math.IsInf(rnorm, 0) {
		return ErrBreakdown
	}
	if rnorm == 0 {
		return nil
	}

	v0 := g.v[:n]
	copy(v0, r)
	floats.Scale(1/rnorm, v0)
	clear(g.s)
	g.s[0] = rnorm

	used := 0
	for i := 0; i < g.restart; i++ {
		vi := g.v[i*n : (i+1)*n]
		a.MulVec(g.w, vi)
		stats.MulVec++

		// Construct the i-th column of H with the modified Gram-Schmidt
		// process so that V stays orthonormal.
		hi := g.h[i*g.ldh : i*g.ldh+i+2]
		for k := 0; k <= i; k++ {
			vk := g.v[k*n : (k+1)*n]
			hki := floats.Dot(vk, g.w)
			hi[k] = hki
			floats.AddScaled(g.w, -hki, vk)
		}
		wnorm := floats.Norm(g.w, 2)
		hi[i+1] = wnorm // H[i+1,i] = |w|
		if math.IsNaN(wnorm) || math.IsInf(wnorm, 0) {
			return ErrBreakdown
		}

		lucky := wnorm == 0
		if !lucky {
			vip1 := g.v[(i+1)*n : (i+2)*n]
			copy(vip1, g.w)
			floats.Scale(1/wnorm, vip1)
		}

		// Apply the previous rotations to the new column, then compute
		// and apply the rotation that zeroes H[i+1,i].
		for j := 0; j < i; j++ {
			hi[j], hi[j+1] = rotvec(hi[j], hi[j+1], g.givs[j])
		}
		g.givs[i] = drotg(hi[i], hi[i+1])
		hi[i], hi[i+1] = rotvec(hi[i], hi[i+1], g.givs[i])
		g.s[i], g.s[i+1] = rotvec(g.s[i], g.s[i+1], g.givs[i])

		// |s[i+1]| estimates the residual norm of the updated solution.
		rnorm = math.Abs(g.s[i+1])
		stats.Iterations++
		used = i + 1
		if lucky || rnorm <= threshold || stats.Iterations >= maxIter {
			break
		}
	}

	g.update(x, used)
	return nil
}

// update adds V·y to x, where y solves the k×k triangular system
// H y = s left behind by the Givens rotations.
func (g *gmres) update(x []float64, k int) {
	if k == 0 {
		return
	}
	y := g.y[:k]
	copy(y, g.s[:k])
	// H is upper triangular but stored columnwise, which row-major BLAS
	// sees as the transpose of a lower triangular matrix.
	bi := blas64.Implementation()
	bi.Dtrsv(blas.Lower, blas.Trans, blas.NonUnit, k, g.h, g.ldh, y, 1)
	n := g.dim
	for j := 0; j < k; j++ {
		floats.AddScaled(x, y[j], g.v[j*n:(j+1)*n])
	}
}

func drotg(a, b float64) givens {
	if b == 0 {
		return givens{c: 1, s: 0}
	}
	if math.Abs(b) > math.Abs(a) {
		tmp := -a / b
		s := 1 / math.Sqrt(1+tmp*tmp)
		return givens{c: tmp * s, s: s}
	}
	tmp := -b / a
	c := 1 / math.Sqrt(1+tmp*tmp)
	return givens{c: c, s: tmp * c}
}

func rotvec(x, y float64, g givens) (rx, ry float64) {
	rx = g.c*x - g.s*y
	ry = g.s*x + g.c*y
	return
}
