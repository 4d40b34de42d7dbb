package fabric

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func testStore(t *testing.T, cardinality, dimension int) *Store {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	return newStore("test", cardinality, dimension, 0.01, rng)
}

func TestStore_Init(t *testing.T) {
	s := testStore(t, 10, 8)

	if s.Count() != 10 {
		t.Errorf("expected 10 components, got %d", s.Count())
	}
	if s.Dimension() != 8 {
		t.Errorf("expected dimension 8, got %d", s.Dimension())
	}
	if s.Scale() != "test" {
		t.Errorf("expected scale \"test\", got %q", s.Scale())
	}

	// Init noise is small but not all-zero across the store.
	var total float64
	for i := 0; i < s.Count(); i++ {
		emb, err := s.Embedding(i)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, v := range emb {
			total += math.Abs(v)
			if math.Abs(v) > 0.1 {
				t.Errorf("component %d: init value %v too large for std 0.01", i, v)
			}
		}
	}
	if total == 0 {
		t.Error("expected nonzero init noise")
	}
}

func TestStore_Embedding_RangeErrors(t *testing.T) {
	s := testStore(t, 5, 4)

	for _, id := range []int{-1, 5, 100} {
		if _, err := s.Embedding(id); !errors.Is(err, ErrComponentRange) {
			t.Errorf("id %d: expected ErrComponentRange, got %v", id, err)
		}
	}
}

func TestStore_Embedding_ReturnsCopy(t *testing.T) {
	s := testStore(t, 2, 3)

	emb, err := s.Embedding(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	emb[0] = 999

	again, err := s.Embedding(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again[0] == 999 {
		t.Error("mutating a returned embedding leaked into the store")
	}
}

func TestStore_SetEmbedding(t *testing.T) {
	s := testStore(t, 3, 4)

	want := []float64{1, 2, 3, 4}
	if err := s.SetEmbedding(1, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Embedding(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	// Caller's slice stays independent after the write.
	want[0] = -77
	got, _ = s.Embedding(1)
	if got[0] == -77 {
		t.Error("store aliased the caller's slice")
	}
}

func TestStore_SetEmbedding_Validation(t *testing.T) {
	s := testStore(t, 3, 4)
	before, _ := s.Embedding(0)

	tests := []struct {
		name string
		vec  []float64
		want error
	}{
		{"too short", []float64{1, 2}, ErrDimension},
		{"too long", []float64{1, 2, 3, 4, 5}, ErrDimension},
		{"nil", nil, ErrDimension},
		{"nan", []float64{1, math.NaN(), 3, 4}, ErrInvalidVector},
		{"inf", []float64{1, 2, math.Inf(1), 4}, ErrInvalidVector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SetEmbedding(0, tt.vec); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// Rejected writes leave the embedding untouched.
	after, _ := s.Embedding(0)
	for i := range before {
		if before[i] != after[i] {
			t.Fatal("rejected write mutated the embedding")
		}
	}
}

func TestStore_Metadata_RoundTrip(t *testing.T) {
	s := testStore(t, 2, 3)

	md := Metadata{Name: "keratinocyte", Kind: "cell", Extra: map[string]any{"layer": "epidermis"}}
	if err := s.SetMetadata(0, md); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Metadata(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "keratinocyte" || got.Kind != "cell" {
		t.Errorf("unexpected metadata: %+v", got)
	}
	if got.Extra["layer"] != "epidermis" {
		t.Errorf("expected extra key to survive, got %+v", got.Extra)
	}

	// The stored copy is independent of both the input and the output.
	md.Extra["layer"] = "dermis"
	got.Extra["layer"] = "hypodermis"
	again, _ := s.Metadata(0)
	if again.Extra["layer"] != "epidermis" {
		t.Error("metadata map aliased across the store boundary")
	}
}

func TestStore_Metadata_RangeError(t *testing.T) {
	s := testStore(t, 2, 3)

	if _, err := s.Metadata(2); !errors.Is(err, ErrComponentRange) {
		t.Errorf("expected ErrComponentRange, got %v", err)
	}
	if err := s.SetMetadata(-1, Metadata{}); !errors.Is(err, ErrComponentRange) {
		t.Errorf("expected ErrComponentRange, got %v", err)
	}
}

func TestStore_Similarities(t *testing.T) {
	s := testStore(t, 3, 2)
	if err := s.SetEmbedding(0, []float64{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEmbedding(1, []float64{0, 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEmbedding(2, []float64{-1, 0}); err != nil {
		t.Fatal(err)
	}

	sims, err := s.Similarities([]float64{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sims) != 3 {
		t.Fatalf("expected one similarity per component, got %d", len(sims))
	}
	if math.Abs(sims[0]-1) > 1e-12 {
		t.Errorf("component 0: expected 1.0, got %v", sims[0])
	}
	if math.Abs(sims[1]) > 1e-12 {
		t.Errorf("component 1: expected 0.0, got %v", sims[1])
	}
	if math.Abs(sims[2]+1) > 1e-12 {
		t.Errorf("component 2: expected -1.0, got %v", sims[2])
	}
}

func TestStore_Similarities_DimensionError(t *testing.T) {
	s := testStore(t, 3, 2)
	if _, err := s.Similarities([]float64{1, 2, 3}); !errors.Is(err, ErrDimension) {
		t.Errorf("expected ErrDimension, got %v", err)
	}
}
