package fabric

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/zoobzio/capitan"
)

func testFabric(t *testing.T, opts ...Option) *Fabric {
	t.Helper()
	base := []Option{
		WithDimension(4),
		WithScales(ScaleSpec{Name: "a", Cardinality: 3}, ScaleSpec{Name: "b", Cardinality: 2}),
		WithSeed(1),
	}
	f, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to create fabric: %v", err)
	}
	return f
}

func TestNew_Defaults(t *testing.T) {
	f, err := New(WithSeed(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.Dimension() != 128 {
		t.Errorf("expected default dimension 128, got %d", f.Dimension())
	}
	if f.InitStd() != 0.01 {
		t.Errorf("expected default init std 0.01, got %v", f.InitStd())
	}
	if f.LearningRate() != 0.01 {
		t.Errorf("expected default learning rate 0.01, got %v", f.LearningRate())
	}

	scales := f.Scales()
	wantScales := []Scale{ScaleCellular, ScaleTissue, ScaleRegion, ScaleSystem}
	if len(scales) != len(wantScales) {
		t.Fatalf("expected %d scales, got %d", len(wantScales), len(scales))
	}
	wantCounts := map[Scale]int{
		ScaleCellular: 1000,
		ScaleTissue:   50,
		ScaleRegion:   20,
		ScaleSystem:   5,
	}
	for i, scale := range scales {
		if scale != wantScales[i] {
			t.Errorf("scale %d: expected %q, got %q", i, wantScales[i], scale)
		}
		n, err := f.Cardinality(scale)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != wantCounts[scale] {
			t.Errorf("scale %q: expected cardinality %d, got %d", scale, wantCounts[scale], n)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want error
	}{
		{"zero dimension", []Option{WithDimension(0)}, ErrDimension},
		{"negative dimension", []Option{WithDimension(-4)}, ErrDimension},
		{"rate above one", []Option{WithLearningRate(1.5)}, ErrLearningRate},
		{"negative rate", []Option{WithLearningRate(-0.1)}, ErrLearningRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts...); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNew_TopologyValidation(t *testing.T) {
	if _, err := New(WithScales()); err == nil {
		t.Error("expected error for empty topology")
	}
	if _, err := New(WithScales(ScaleSpec{Name: "", Cardinality: 5})); err == nil {
		t.Error("expected error for empty scale name")
	}
	if _, err := New(WithScales(ScaleSpec{Name: "a", Cardinality: 0})); err == nil {
		t.Error("expected error for zero cardinality")
	}
	if _, err := New(WithScales(
		ScaleSpec{Name: "a", Cardinality: 3},
		ScaleSpec{Name: "a", Cardinality: 5},
	)); err == nil {
		t.Error("expected error for duplicate scale")
	}
}

func TestNew_SeedReproducible(t *testing.T) {
	f1 := testFabric(t)
	f2 := testFabric(t)

	for _, scale := range f1.Scales() {
		n, _ := f1.Cardinality(scale)
		for id := 0; id < n; id++ {
			e1, err := f1.Embedding(scale, id)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			e2, err := f2.Embedding(scale, id)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i := range e1 {
				if e1[i] != e2[i] {
					t.Fatalf("scale %q component %d: seeded init diverged", scale, id)
				}
			}
		}
	}

	m1, err := f1.Transformer().Matrix("a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m2, err := f2.Transformer().Matrix("a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for r := 0; r < m1.Dim(); r++ {
		for c := 0; c < m1.Dim(); c++ {
			if m1.At(r, c) != m2.At(r, c) {
				t.Fatal("seeded transform init diverged")
			}
		}
	}
}

func TestFabric_Store_UnknownScale(t *testing.T) {
	f := testFabric(t)

	if _, err := f.Store("nowhere"); !errors.Is(err, ErrUnknownScale) {
		t.Errorf("expected ErrUnknownScale, got %v", err)
	}
	if _, err := f.Embedding("nowhere", 0); !errors.Is(err, ErrUnknownScale) {
		t.Errorf("expected ErrUnknownScale, got %v", err)
	}
	if err := f.SetEmbedding(context.Background(), "nowhere", 0, make([]float64, 4)); !errors.Is(err, ErrUnknownScale) {
		t.Errorf("expected ErrUnknownScale, got %v", err)
	}
	if _, err := f.Transform(make([]float64, 4), "a", "nowhere"); !errors.Is(err, ErrUnknownScale) {
		t.Errorf("expected ErrUnknownScale, got %v", err)
	}
	if _, err := f.Norms("nowhere"); !errors.Is(err, ErrUnknownScale) {
		t.Errorf("expected ErrUnknownScale, got %v", err)
	}
}

func TestFabric_SetAndGetEmbedding(t *testing.T) {
	f := testFabric(t)
	ctx := context.Background()

	want := []float64{1, 0, 0, 0}
	if err := f.SetEmbedding(ctx, "a", 0, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := f.Embedding("a", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestFabric_Norms(t *testing.T) {
	f := testFabric(t)
	ctx := context.Background()

	if err := f.SetEmbedding(ctx, "b", 0, []float64{3, 4, 0, 0}); err != nil {
		t.Fatal(err)
	}
	norms, err := f.Norms("b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(norms) != 2 {
		t.Fatalf("expected one norm per component, got %d", len(norms))
	}
	if math.Abs(norms[0]-5) > 1e-12 {
		t.Errorf("expected norm 5, got %v", norms[0])
	}
}

func TestFabric_State(t *testing.T) {
	f := testFabric(t)

	state := f.State()
	if state.Dimension != 4 {
		t.Errorf("expected dimension 4, got %d", state.Dimension)
	}
	if len(state.Scales) != 2 {
		t.Fatalf("expected 2 scale states, got %d", len(state.Scales))
	}
	a := state.Scales["a"]
	if a.Cardinality != 3 {
		t.Errorf("expected cardinality 3, got %d", a.Cardinality)
	}
	if a.NormMean <= 0 {
		t.Errorf("expected positive mean norm from init noise, got %v", a.NormMean)
	}
	if a.NormStd < 0 {
		t.Errorf("expected non-negative norm std, got %v", a.NormStd)
	}
}

func TestFabric_DefaultMetadata(t *testing.T) {
	f, err := New(WithSeed(1), WithDefaultMetadata())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	md, err := f.Metadata(ScaleCellular, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.Name != "keratinocyte" || md.Kind != "cell" {
		t.Errorf("unexpected cellular metadata: %+v", md)
	}

	md, err = f.Metadata(ScaleTissue, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.Name != "stratum_corneum" || md.Kind != "layer" {
		t.Errorf("unexpected tissue metadata: %+v", md)
	}
	if md.Extra["layer"] != "epidermis" {
		t.Errorf("expected layer extra, got %+v", md.Extra)
	}

	md, err = f.Metadata(ScaleSystem, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.Name != "barrier_function" || md.Kind != "function" {
		t.Errorf("unexpected system metadata: %+v", md)
	}
}

func TestFabric_SetEmbedding_EmitsSignals(t *testing.T) {
	f := testFabric(t)
	ctx := context.Background()

	var gotWritten, gotFailed bool
	var mu sync.Mutex

	l1 := capitan.Hook(EmbeddingWritten, func(_ context.Context, _ *capitan.Event) {
		mu.Lock()
		gotWritten = true
		mu.Unlock()
	})
	l2 := capitan.Hook(EmbeddingWriteFailed, func(_ context.Context, e *capitan.Event) {
		mu.Lock()
		gotFailed = true
		mu.Unlock()
	})

	if err := f.SetEmbedding(ctx, "a", 0, []float64{1, 2, 3, 4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = f.SetEmbedding(ctx, "a", 0, []float64{1, 2})

	// Wait for async events to be processed
	_ = l1.Drain(ctx)
	_ = l2.Drain(ctx)
	l1.Close()
	l2.Close()

	mu.Lock()
	defer mu.Unlock()
	if !gotWritten {
		t.Error("expected EmbeddingWritten signal")
	}
	if !gotFailed {
		t.Error("expected EmbeddingWriteFailed signal")
	}
}
