package fabric

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// Store holds the embedding vector and metadata for every component at one
// scale. Components are created at fabric-initialization time for every id
// in [0, cardinality); the store never grows or shrinks. Reads take a
// shared lock, writes an exclusive one, so similarity scans from multiple
// callers do not block each other.
type Store struct {
	scale     Scale
	dimension int

	mu         sync.RWMutex
	embeddings [][]float64
	metadata   []Metadata
}

// newStore creates a Store with every embedding initialized to
// small-magnitude Gaussian noise drawn from rng.
func newStore(scale Scale, cardinality, dimension int, std float64, rng *rand.Rand) *Store {
	embeddings := make([][]float64, cardinality)
	for i := range embeddings {
		vec := make([]float64, dimension)
		for j := range vec {
			vec[j] = rng.NormFloat64() * std
		}
		embeddings[i] = vec
	}
	return &Store{
		scale:      scale,
		dimension:  dimension,
		embeddings: embeddings,
		metadata:   make([]Metadata, cardinality),
	}
}

// Scale returns the scale this store belongs to.
func (s *Store) Scale() Scale {
	return s.scale
}

// Dimension returns the embedding dimensionality.
func (s *Store) Dimension() int {
	return s.dimension
}

// Count returns the fixed component cardinality.
func (s *Store) Count() int {
	return len(s.embeddings)
}

// Embedding returns a copy of the embedding vector for id.
// Returns ErrComponentRange if id is outside [0, Count()).
func (s *Store) Embedding(id int) ([]float64, error) {
	if err := s.checkID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, s.dimension)
	copy(out, s.embeddings[id])
	return out, nil
}

// SetEmbedding replaces the embedding vector for id.
// The vector is validated for length and finiteness before any mutation.
func (s *Store) SetEmbedding(id int, vec []float64) error {
	if err := s.checkID(id); err != nil {
		return err
	}
	if err := s.checkVector(vec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.embeddings[id], vec)
	return nil
}

// Metadata returns a copy of the metadata for id.
func (s *Store) Metadata(id int) (Metadata, error) {
	if err := s.checkID(id); err != nil {
		return Metadata{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata[id].clone(), nil
}

// SetMetadata replaces the metadata for id.
func (s *Store) SetMetadata(id int, md Metadata) error {
	if err := s.checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[id] = md.clone()
	return nil
}

// Similarities returns the cosine similarity of vec against every component,
// indexed by component id, under a single shared lock.
func (s *Store) Similarities(vec []float64) ([]float64, error) {
	if err := s.checkVector(vec); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sims := make([]float64, len(s.embeddings))
	for i, emb := range s.embeddings {
		sims[i] = Cosine(vec, emb)
	}
	return sims, nil
}

// matches scans every component under one shared lock, computing cosine
// similarity against vec and applying pred to the component's metadata.
// Components rejected by pred are omitted. A nil pred admits everything.
func (s *Store) matches(vec []float64, pred func(int, Metadata) (bool, error)) ([]Match, error) {
	if err := s.checkVector(vec); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Match, 0, len(s.embeddings))
	for i, emb := range s.embeddings {
		if pred != nil {
			ok, err := pred(i, s.metadata[i])
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, Match{Component: i, Score: Cosine(vec, emb)})
	}
	return out, nil
}

// observe pulls the embedding for id toward obs by rate.
// rate 1 replaces the embedding outright so the result is exact.
func (s *Store) observe(id int, obs []float64, rate float64) error {
	if err := s.checkID(id); err != nil {
		return err
	}
	if err := s.checkVector(obs); err != nil {
		return err
	}
	if rate == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	emb := s.embeddings[id]
	if rate == 1 {
		copy(emb, obs)
		return nil
	}
	for i := range emb {
		emb[i] += rate * (obs[i] - emb[i])
	}
	return nil
}

// norms returns the Euclidean norm of every embedding, indexed by id.
func (s *Store) norms() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.embeddings))
	for i, emb := range s.embeddings {
		var sum float64
		for _, v := range emb {
			sum += v * v
		}
		out[i] = math.Sqrt(sum)
	}
	return out
}

// snapshotLocked copies embeddings and metadata while holding the lock the
// caller acquired via lockRead; used by Fabric.Snapshot for a torn-free view.
func (s *Store) snapshotLocked() ([][]float64, []Metadata) {
	embeddings := make([][]float64, len(s.embeddings))
	for i, emb := range s.embeddings {
		vec := make([]float64, len(emb))
		copy(vec, emb)
		embeddings[i] = vec
	}
	metadata := make([]Metadata, len(s.metadata))
	for i, md := range s.metadata {
		metadata[i] = md.clone()
	}
	return embeddings, metadata
}

// lockRead and unlockRead expose the store's shared lock for multi-store
// snapshot sections.
func (s *Store) lockRead()   { s.mu.RLock() }
func (s *Store) unlockRead() { s.mu.RUnlock() }

// restore overwrites all embeddings and metadata from a validated snapshot.
func (s *Store) restore(embeddings [][]float64, metadata []Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, emb := range embeddings {
		copy(s.embeddings[i], emb)
	}
	for i, md := range metadata {
		s.metadata[i] = md.clone()
	}
}

func (s *Store) checkID(id int) error {
	if id < 0 || id >= len(s.embeddings) {
		return fmt.Errorf("%w: %d at scale %q (cardinality %d)", ErrComponentRange, id, s.scale, len(s.embeddings))
	}
	return nil
}

func (s *Store) checkVector(vec []float64) error {
	if len(vec) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), s.dimension)
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: element %d", ErrInvalidVector, i)
		}
	}
	return nil
}
