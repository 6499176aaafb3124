// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jacobian

import "errors"

// Operator is the Jacobian of a residual 𝑭 at a linearization point,
// exposed as a matrix-free m×n linear operator.
//
// The operator borrows the caller's point slice without copying: the
// current contents of that slice are the linearization point, so a
// Newton iteration can keep updating its iterate and rebuild a cheap
// operator around it each outer step. The caller must not mutate the
// point while an Apply or ApplyTrans call is in flight.
//
// Apply and ApplyTrans reuse two owned scratch buffers, so a single
// Operator must not be used from multiple goroutines. Create one
// operator per goroutine instead; operators around the same Func and
// point are cheap.
type Operator struct {
	m, n int
	f    Func
	u    []float64 // linearization point, borrowed
	prov Provider

	out []float64 // forward derivative scratch, length m
	adj []float64 // reverse derivative scratch, length n
	dir []float64 // direction scratch, length max(m, n)
}

// NewOperator builds the Jacobian operator of f at point u.
// m is the residual length; the input length is len(u).
func NewOperator(f Func, m int, u []float64, p Provider) (*Operator, error) {
	switch {
	case f == nil:
		return nil, errors.New("jacobian: residual function is required")
	case p == nil:
		return nil, errors.New("jacobian: derivative provider is required")
	case m <= 0 || len(u) == 0:
		return nil, errors.New("jacobian: dimensions must be greater than 0")
	}
	n := len(u)
	return &Operator{
		m: m, n: n,
		f: f, u: u, prov: p,
		out: make([]float64, m),
		adj: make([]float64, n),
		dir: make([]float64, max(m, n)),
	}, nil
}

// Dims returns the operator shape (m, n), fixed for its lifetime.
func (op *Operator) Dims() (m, n int) { return op.m, op.n }

// Point returns the borrowed linearization point.
func (op *Operator) Point() []float64 { return op.u }

// Apply stores the Jacobian-vector product 𝑱(u)·v into dst using one
// forward-mode derivative evaluation. v has length n, dst length m.
//
// The internal scratch is zeroed before the provider call so no seed
// or derivative value can leak from a previous application.
func (op *Operator) Apply(dst, v []float64) error {
	if len(v) != op.n || len(dst) != op.m {
		return ErrDimension
	}
	dir := op.dir[:op.n]
	copy(dir, v) // providers may perturb the direction
	clear(op.out)
	if err := op.prov.JVP(op.out, op.f, op.m, op.u, dir); err != nil {
		return err
	}
	copy(dst, op.out)
	if !allFinite(dst) {
		return ErrNonFinite
	}
	return nil
}

// ApplyTrans stores the vector-Jacobian product 𝐰ᵀ𝑱(u) into dst using
// one reverse-mode derivative evaluation. w has length m, dst length n.
func (op *Operator) ApplyTrans(dst, w []float64) error {
	if len(w) != op.m || len(dst) != op.n {
		return ErrDimension
	}
	dir := op.dir[:op.m]
	copy(dir, w)
	clear(op.adj)
	if err := op.prov.VJP(op.adj, op.f, op.m, op.u, dir); err != nil {
		return err
	}
	copy(dst, op.adj)
	if !allFinite(dst) {
		return ErrNonFinite
	}
	return nil
}
