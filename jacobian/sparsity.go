// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jacobian

import (
	"errors"
	"math"
	"sort"
)

// Pattern records the structural nonzeros of an m×n Jacobian as a
// sorted row-index set per column. It is a conservative
// over-approximation: entry (i,j) present means ∂𝑭ᵢ/∂uⱼ may be
// nonzero, absence means it is structurally zero.
//
// A pattern detected at one point is only trusted where the residual
// exercises the same control-flow branches. When 𝑭 branches on its
// input, reusing a pattern across qualitatively different points can
// silently drop entries; re-detect at a representative point of the
// new region instead.
type Pattern struct {
	m, n int
	cols [][]int
}

// NewPattern builds a pattern from explicit per-column row indices,
// e.g. one produced by an external sparsity detector. Row indices may
// be unsorted and contain duplicates; out-of-range indices are an
// error. cols may be shorter than n, missing columns are empty.
func NewPattern(m, n int, cols [][]int) (*Pattern, error) {
	if m <= 0 || n <= 0 {
		return nil, errors.New("jacobian: dimensions must be greater than 0")
	}
	if len(cols) > n {
		return nil, errors.New("jacobian: more columns than pattern width")
	}
	p := &Pattern{m: m, n: n, cols: make([][]int, n)}
	for j, rows := range cols {
		if len(rows) == 0 {
			continue
		}
		dst := make([]int, len(rows))
		copy(dst, rows)
		sort.Ints(dst)
		w := 0
		for k, i := range dst {
			if i < 0 || i >= m {
				return nil, errors.New("jacobian: row index out of range")
			}
			if k > 0 && i == dst[k-1] {
				continue
			}
			dst[w] = i
			w++
		}
		p.cols[j] = dst[:w]
	}
	return p, nil
}

// DetectPattern probes op with the n basis directions at its current
// point and records every entry whose magnitude exceeds tol (tol ≤ 0
// keeps exact nonzeros only). Cost: n operator applications.
//
// The result is a per-point artifact, see the Pattern caveat on
// input-dependent control flow.
func DetectPattern(op *Operator, tol float64) (*Pattern, error) {
	m, n := op.Dims()
	if tol < 0 {
		tol = 0
	}
	p := &Pattern{m: m, n: n, cols: make([][]int, n)}
	e := make([]float64, n)
	col := make([]float64, m)
	for j := 0; j < n; j++ {
		e[j] = 1
		err := op.Apply(col, e)
		e[j] = 0
		if err != nil {
			return nil, err
		}
		for i, v := range col {
			if math.Abs(v) > tol {
				p.cols[j] = append(p.cols[j], i)
			}
		}
	}
	return p, nil
}

// Dims returns the pattern shape (m, n).
func (p *Pattern) Dims() (m, n int) { return p.m, p.n }

// Nonzero reports whether entry (i, j) is a structural nonzero.
func (p *Pattern) Nonzero(i, j int) bool {
	if i < 0 || i >= p.m || j < 0 || j >= p.n {
		return false
	}
	rows := p.cols[j]
	k := sort.SearchInts(rows, i)
	return k < len(rows) && rows[k] == i
}

// NumNonzero returns the total structural nonzero count.
func (p *Pattern) NumNonzero() (nnz int) {
	for _, rows := range p.cols {
		nnz += len(rows)
	}
	return
}

// RowIndices returns the sorted structural nonzero rows of column j.
// The returned slice is shared, treat it as read-only.
func (p *Pattern) RowIndices(j int) []int { return p.cols[j] }

// Coloring groups structurally non-interfering columns: two columns
// may share a color only when their nonzero row sets are disjoint, so
// one Jacobian-vector product along the color indicator direction
// recovers every column of the group at once.
//
// A coloring is tied to the Pattern it was computed from and must be
// recomputed whenever the pattern changes.
type Coloring struct {
	// Colors maps column index to color, 0 ≤ Colors[j] < NumColors.
	Colors []int
	// NumColors is the number of colors used, at most the column count.
	NumColors int
}

// GreedyColor colors the columns of p with a sequential greedy scheme:
// each column takes the lowest color whose occupied rows do not
// intersect its own. The result is valid by construction but not
// necessarily minimal; for banded patterns it matches the bandwidth.
func GreedyColor(p *Pattern) Coloring {
	colors := make([]int, p.n)
	var occ [][]bool // rows already claimed, per color
	for j := 0; j < p.n; j++ {
		rows := p.cols[j]
		c := -1
		for k := range occ {
			free := true
			for _, i := range rows {
				if occ[k][i] {
					free = false
					break
				}
			}
			if free {
				c = k
				break
			}
		}
		if c < 0 {
			occ = append(occ, make([]bool, p.m))
			c = len(occ) - 1
		}
		for _, i := range rows {
			occ[c][i] = true
		}
		colors[j] = c
	}
	return Coloring{Colors: colors, NumColors: len(occ)}
}

// Groups returns the column indices of each color.
func (c Coloring) Groups() [][]int {
	groups := make([][]int, c.NumColors)
	for j, k := range c.Colors {
		groups[k] = append(groups[k], j)
	}
	return groups
}

// Valid checks the coloring invariant against p: every pair of
// same-colored columns has disjoint nonzero rows. The check costs
// O(nnz) and is meant for validating externally supplied colorings
// during development; a violated invariant is otherwise undetectable
// and silently corrupts colored assembly.
func (c Coloring) Valid(p *Pattern) bool {
	if len(c.Colors) != p.n || c.NumColors > p.n {
		return false
	}
	seen := make([][]bool, c.NumColors)
	for j, k := range c.Colors {
		if k < 0 || k >= c.NumColors {
			return false
		}
		if seen[k] == nil {
			seen[k] = make([]bool, p.m)
		}
		for _, i := range p.cols[j] {
			if seen[k][i] {
				return false
			}
			seen[k][i] = true
		}
	}
	return true
}
