package fabric

import (
	"fmt"
	"math"
	"math/rand"
)

// Matrix is a dense square matrix over float64, stored row-major.
// Transform matrices between scales are Matrix values of the fabric dimension.
type Matrix struct {
	dim  int
	data []float64
}

// NewMatrix creates a zero matrix of the given dimension.
func NewMatrix(dim int) *Matrix {
	return &Matrix{
		dim:  dim,
		data: make([]float64, dim*dim),
	}
}

// Identity creates an identity matrix of the given dimension.
func Identity(dim int) *Matrix {
	m := NewMatrix(dim)
	for i := 0; i < dim; i++ {
		m.data[i*dim+i] = 1
	}
	return m
}

// randomMatrix creates a matrix of i.i.d. Gaussian entries with the given
// standard deviation, drawn from rng.
func randomMatrix(dim int, std float64, rng *rand.Rand) *Matrix {
	m := NewMatrix(dim)
	for i := range m.data {
		m.data[i] = rng.NormFloat64() * std
	}
	return m
}

// MatrixFromRows builds a Matrix from nested rows, the snapshot wire form.
// Returns ErrSchema if the rows are empty, ragged, non-square, or non-finite.
func MatrixFromRows(rows [][]float64) (*Matrix, error) {
	dim := len(rows)
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrSchema)
	}
	m := NewMatrix(dim)
	for r, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: matrix row %d has %d columns, want %d", ErrSchema, r, len(row), dim)
		}
		for c, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: matrix entry (%d,%d)", ErrSchema, r, c)
			}
			m.data[r*dim+c] = v
		}
	}
	return m, nil
}

// Dim returns the matrix dimension.
func (m *Matrix) Dim() int {
	return m.dim
}

// At returns the entry at row r, column c.
func (m *Matrix) At(r, c int) float64 {
	return m.data[r*m.dim+c]
}

// Set assigns the entry at row r, column c.
func (m *Matrix) Set(r, c int, v float64) {
	m.data[r*m.dim+c] = v
}

// Apply computes the matrix-vector product of m and vec.
// The caller guarantees len(vec) == Dim().
func (m *Matrix) Apply(vec []float64) []float64 {
	out := make([]float64, m.dim)
	for r := 0; r < m.dim; r++ {
		row := m.data[r*m.dim : (r+1)*m.dim]
		var sum float64
		for c, v := range vec {
			sum += row[c] * v
		}
		out[r] = sum
	}
	return out
}

// Clone returns a deep copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.dim)
	copy(out.data, m.data)
	return out
}

// Rows returns the matrix as nested rows, the snapshot wire form.
func (m *Matrix) Rows() [][]float64 {
	rows := make([][]float64, m.dim)
	for r := 0; r < m.dim; r++ {
		row := make([]float64, m.dim)
		copy(row, m.data[r*m.dim:(r+1)*m.dim])
		rows[r] = row
	}
	return rows
}

// finite reports whether every entry is a finite float.
func (m *Matrix) finite() bool {
	for _, v := range m.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
