// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jacobian

import (
	"gonum.org/v1/gonum/mat"
)

// AssembleDense reconstructs the explicit m×n Jacobian by applying op
// to every basis direction, one column per application. dst may be nil
// to allocate the result, or an m×n matrix to reuse. Cost: exactly n
// operator applications.
func AssembleDense(dst *mat.Dense, op *Operator) (*mat.Dense, error) {
	m, n := op.Dims()
	if dst == nil {
		dst = mat.NewDense(m, n, nil)
	} else if r, c := dst.Dims(); r != m || c != n {
		return nil, ErrDimension
	}
	e := make([]float64, n)
	col := make([]float64, m)
	for j := 0; j < n; j++ {
		e[j] = 1
		err := op.Apply(col, e)
		e[j] = 0
		if err != nil {
			return nil, err
		}
		dst.SetCol(j, col)
	}
	return dst, nil
}

// AssembleColored reconstructs the explicit Jacobian with one operator
// application per color: the direction carries a 1 in every column of
// the color, and the compressed product is decompressed through the
// sparsity pattern. Entries outside the pattern are left zero.
// Cost: exactly col.NumColors applications, at most n and typically
// far fewer for banded or sparse structures.
//
// The coloring invariant is assumed, not checked: same-colored columns
// with overlapping rows alias additively into wrong entries without
// any detectable failure. Validate a questionable coloring with
// Coloring.Valid, or compare against AssembleDense at a representative
// point during development.
func AssembleColored(dst *mat.Dense, op *Operator, p *Pattern, col Coloring) (*mat.Dense, error) {
	m, n := op.Dims()
	if pm, pn := p.Dims(); pm != m || pn != n || len(col.Colors) != n {
		return nil, ErrDimension
	}
	if dst == nil {
		dst = mat.NewDense(m, n, nil)
	} else if r, c := dst.Dims(); r != m || c != n {
		return nil, ErrDimension
	}
	dst.Zero()
	d := make([]float64, n)
	jv := make([]float64, m)
	for k := 0; k < col.NumColors; k++ {
		clear(d)
		for j, c := range col.Colors {
			if c == k {
				d[j] = 1
			}
		}
		if err := op.Apply(jv, d); err != nil {
			return nil, err
		}
		for j, c := range col.Colors {
			if c != k {
				continue
			}
			for _, i := range p.cols[j] {
				dst.Set(i, j, jv[i])
			}
		}
	}
	return dst, nil
}
