package fabric

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// scalePair is an ordered (from, to) key for transform lookup.
type scalePair struct {
	from Scale
	to   Scale
}

// Transformer owns the learnable linear maps between scales. One matrix
// exists per ordered pair of distinct scales; the reverse direction is a
// distinct, independently trainable matrix, never derived as the transpose
// or inverse of the forward one.
type Transformer struct {
	dimension int

	mu       sync.RWMutex
	matrices map[scalePair]*Matrix
}

// newTransformer creates a Transformer with a Gaussian-noise matrix for
// every ordered pair of distinct scales, so early transforms carry
// near-zero signal until trained.
func newTransformer(scales []Scale, dimension int, std float64, rng *rand.Rand) *Transformer {
	matrices := make(map[scalePair]*Matrix, len(scales)*(len(scales)-1))
	for _, from := range scales {
		for _, to := range scales {
			if from == to {
				continue
			}
			matrices[scalePair{from, to}] = randomMatrix(dimension, std, rng)
		}
	}
	return &Transformer{
		dimension: dimension,
		matrices:  matrices,
	}
}

// Dimension returns the matrix dimensionality.
func (t *Transformer) Dimension() int {
	return t.dimension
}

// Apply converts vec from one scale's space to another's.
// A same-scale pair returns a copy of the input. A registered pair computes
// the matrix-vector product. An unregistered pair is a hard
// ErrMissingTransform; there is no identity or reversed-matrix fallback.
func (t *Transformer) Apply(vec []float64, from, to Scale) ([]float64, error) {
	if len(vec) != t.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), t.dimension)
	}
	if from == to {
		out := make([]float64, len(vec))
		copy(out, vec)
		return out, nil
	}
	t.mu.RLock()
	m, ok := t.matrices[scalePair{from, to}]
	if !ok {
		t.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s->%s", ErrMissingTransform, from, to)
	}
	out := m.Apply(vec)
	t.mu.RUnlock()
	return out, nil
}

// Matrix returns a copy of the matrix for the ordered pair.
func (t *Transformer) Matrix(from, to Scale) (*Matrix, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.matrices[scalePair{from, to}]
	if !ok {
		return nil, fmt.Errorf("%w: %s->%s", ErrMissingTransform, from, to)
	}
	return m.Clone(), nil
}

// Set replaces the matrix for the ordered pair. Only pairs created at
// construction may be replaced; a same-scale or unknown pair is
// ErrMissingTransform, a wrong-size matrix ErrDimension, a non-finite one
// ErrInvalidVector.
func (t *Transformer) Set(from, to Scale, m *Matrix) error {
	if m.Dim() != t.dimension {
		return fmt.Errorf("%w: matrix is %dx%d, want %dx%d", ErrDimension, m.Dim(), m.Dim(), t.dimension, t.dimension)
	}
	if !m.finite() {
		return fmt.Errorf("%w: transform %s->%s", ErrInvalidVector, from, to)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := scalePair{from, to}
	if _, ok := t.matrices[key]; !ok {
		return fmt.Errorf("%w: %s->%s", ErrMissingTransform, from, to)
	}
	t.matrices[key] = m.Clone()
	return nil
}

// Train performs one normalized delta-rule step pulling M*source toward
// target: M += rate * (target - M*source) * source^T / |source|^2.
// The residual |target - M*source| contracts by (1 - rate) per step for
// rate in (0, 1]. A source with near-zero norm is a no-op, consistent
// with the degenerate-vector policy of similarity.
func (t *Transformer) Train(from, to Scale, source, target []float64, rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("%w: %v", ErrLearningRate, rate)
	}
	if len(source) != t.dimension || len(target) != t.dimension {
		return fmt.Errorf("%w: source %d, target %d, want %d", ErrDimension, len(source), len(target), t.dimension)
	}
	for _, vec := range [][]float64{source, target} {
		for i, v := range vec {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: element %d", ErrInvalidVector, i)
			}
		}
	}
	var norm2 float64
	for _, v := range source {
		norm2 += v * v
	}
	if rate == 0 || norm2 < normEpsilon*normEpsilon {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.matrices[scalePair{from, to}]
	if !ok {
		return fmt.Errorf("%w: %s->%s", ErrMissingTransform, from, to)
	}
	projected := m.Apply(source)
	scale := rate / norm2
	for r := 0; r < t.dimension; r++ {
		residual := target[r] - projected[r]
		for c := 0; c < t.dimension; c++ {
			m.data[r*t.dimension+c] += scale * residual * source[c]
		}
	}
	return nil
}

// pairs returns all registered ordered pairs in deterministic order.
func (t *Transformer) pairs() []scalePair {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]scalePair, 0, len(t.matrices))
	for key := range t.matrices {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].from != out[j].from {
			return out[i].from < out[j].from
		}
		return out[i].to < out[j].to
	})
	return out
}

// snapshotLocked copies every matrix while holding the lock acquired via
// lockRead; used by Fabric.Snapshot for a torn-free view.
func (t *Transformer) snapshotLocked() map[scalePair]*Matrix {
	out := make(map[scalePair]*Matrix, len(t.matrices))
	for key, m := range t.matrices {
		out[key] = m.Clone()
	}
	return out
}

func (t *Transformer) lockRead()   { t.mu.RLock() }
func (t *Transformer) unlockRead() { t.mu.RUnlock() }

// restore overwrites all matrices from a validated snapshot.
func (t *Transformer) restore(matrices map[scalePair]*Matrix) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, m := range matrices {
		t.matrices[key] = m.Clone()
	}
}
