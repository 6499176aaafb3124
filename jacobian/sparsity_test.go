// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jacobian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// tridiagonal n×n matrix with bands (-1, 2, -1)
func tridiag(n int) *mat.Dense {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 2)
		if i > 0 {
			a.Set(i, i-1, -1)
		}
		if i < n-1 {
			a.Set(i, i+1, -1)
		}
	}
	return a
}

func TestNewPattern(t *testing.T) {
	p, err := NewPattern(3, 2, [][]int{{2, 0, 2}, {1}})
	require.NoError(t, err)

	m, n := p.Dims()
	assert.Equal(t, 3, m)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{0, 2}, p.RowIndices(0)) // sorted, deduplicated
	assert.Equal(t, []int{1}, p.RowIndices(1))
	assert.Equal(t, 3, p.NumNonzero())

	assert.True(t, p.Nonzero(2, 0))
	assert.False(t, p.Nonzero(1, 0))
	assert.False(t, p.Nonzero(5, 0))

	_, err = NewPattern(3, 2, [][]int{{3}})
	assert.Error(t, err)
	_, err = NewPattern(0, 2, nil)
	assert.Error(t, err)
	_, err = NewPattern(3, 1, [][]int{{0}, {1}})
	assert.Error(t, err)
}

func TestDetectPattern(t *testing.T) {
	const n = 6
	a := tridiag(n)
	u := make([]float64, n)
	op, err := NewOperator(linearFunc(a), n, u, matProvider{a})
	require.NoError(t, err)

	p, err := DetectPattern(op, 0)
	require.NoError(t, err)

	for j := 0; j < n; j++ {
		var want []int
		for i := max(0, j-1); i <= min(n-1, j+1); i++ {
			want = append(want, i)
		}
		assert.Equal(t, want, p.RowIndices(j), "column %d", j)
	}
	assert.Equal(t, 3*n-2, p.NumNonzero())
}

func TestGreedyColorTridiagonal(t *testing.T) {
	const n = 8
	a := tridiag(n)
	u := make([]float64, n)
	op, _ := NewOperator(linearFunc(a), n, u, matProvider{a})
	p, err := DetectPattern(op, 0)
	require.NoError(t, err)

	c := GreedyColor(p)
	require.Len(t, c.Colors, n)
	assert.LessOrEqual(t, c.NumColors, 3) // bandwidth of the tridiagonal
	assert.True(t, c.Valid(p))

	var cols int
	for _, grp := range c.Groups() {
		cols += len(grp)
	}
	assert.Equal(t, n, cols)
}

func TestGreedyColorExtremes(t *testing.T) {
	// Diagonal structure: every column shares one color.
	diag, err := NewPattern(4, 4, [][]int{{0}, {1}, {2}, {3}})
	require.NoError(t, err)
	c := GreedyColor(diag)
	assert.Equal(t, 1, c.NumColors)
	assert.True(t, c.Valid(diag))

	// Dense structure: no two columns can share.
	full := make([][]int, 4)
	for j := range full {
		full[j] = []int{0, 1, 2, 3}
	}
	dense, err := NewPattern(4, 4, full)
	require.NoError(t, err)
	c = GreedyColor(dense)
	assert.Equal(t, 4, c.NumColors)
	assert.True(t, c.Valid(dense))
}

func TestColoringValid(t *testing.T) {
	p, err := NewPattern(3, 3, [][]int{{0, 1}, {1, 2}, {0, 2}})
	require.NoError(t, err)

	// Every pair of columns interferes, one shared color is invalid.
	bad := Coloring{Colors: []int{0, 0, 1}, NumColors: 2}
	assert.False(t, bad.Valid(p))

	good := Coloring{Colors: []int{0, 1, 2}, NumColors: 3}
	assert.True(t, good.Valid(p))

	short := Coloring{Colors: []int{0, 1}, NumColors: 2}
	assert.False(t, short.Valid(p))

	out := Coloring{Colors: []int{0, 1, 3}, NumColors: 3}
	assert.False(t, out.Valid(p))
}
