package fabric

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/zoobzio/capitan"
)

// Fabric is the aggregate owning one Store per scale, every cross-scale
// transform matrix, and the global configuration. It is constructed once,
// mutated through learning and update calls for its whole lifetime, and
// serialized on demand. Fabrics never share stores or matrices.
type Fabric struct {
	dimension    int
	initStd      float64
	learningRate float64
	codec        Codec

	scales      []Scale
	stores      map[Scale]*Store
	transformer *Transformer
}

// New creates a Fabric, pre-populating every scale's components and a
// transform matrix for every ordered pair of distinct scales.
func New(opts ...Option) (*Fabric, error) {
	cfg := config{
		dimension:    128,
		initStd:      0.01,
		learningRate: 0.01,
		scales:       DefaultScales(),
		codec:        JSONCodec{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimension, cfg.dimension)
	}
	if cfg.initStd < 0 || math.IsNaN(cfg.initStd) || math.IsInf(cfg.initStd, 0) {
		return nil, fmt.Errorf("fabric: invalid init std %v", cfg.initStd)
	}
	if cfg.learningRate < 0 || cfg.learningRate > 1 || math.IsNaN(cfg.learningRate) {
		return nil, fmt.Errorf("%w: %v", ErrLearningRate, cfg.learningRate)
	}
	if len(cfg.scales) == 0 {
		return nil, fmt.Errorf("fabric: topology needs at least one scale")
	}
	if cfg.codec == nil {
		cfg.codec = JSONCodec{}
	}

	seed := cfg.seed
	if !cfg.seedSet {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	f := &Fabric{
		dimension:    cfg.dimension,
		initStd:      cfg.initStd,
		learningRate: cfg.learningRate,
		codec:        cfg.codec,
		scales:       make([]Scale, 0, len(cfg.scales)),
		stores:       make(map[Scale]*Store, len(cfg.scales)),
	}
	for _, spec := range cfg.scales {
		if spec.Name == "" {
			return nil, fmt.Errorf("fabric: empty scale name")
		}
		if spec.Cardinality <= 0 {
			return nil, fmt.Errorf("fabric: scale %q cardinality %d", spec.Name, spec.Cardinality)
		}
		if _, dup := f.stores[spec.Name]; dup {
			return nil, fmt.Errorf("fabric: duplicate scale %q", spec.Name)
		}
		f.scales = append(f.scales, spec.Name)
		f.stores[spec.Name] = newStore(spec.Name, spec.Cardinality, cfg.dimension, cfg.initStd, rng)
	}
	f.transformer = newTransformer(f.scales, cfg.dimension, cfg.initStd, rng)

	if cfg.defaultMetadata {
		f.stampDefaultMetadata()
	}
	return f, nil
}

// Dimension returns the embedding dimensionality D.
func (f *Fabric) Dimension() int {
	return f.dimension
}

// InitStd returns the initialization noise standard deviation.
func (f *Fabric) InitStd() float64 {
	return f.initStd
}

// LearningRate returns the configured default learning rate.
func (f *Fabric) LearningRate() float64 {
	return f.learningRate
}

// Scales returns the topology, ordered fine to coarse.
func (f *Fabric) Scales() []Scale {
	out := make([]Scale, len(f.scales))
	copy(out, f.scales)
	return out
}

// Cardinality returns the fixed component count at a scale.
func (f *Fabric) Cardinality(scale Scale) (int, error) {
	store, err := f.Store(scale)
	if err != nil {
		return 0, err
	}
	return store.Count(), nil
}

// Store returns the embedding store for a scale.
// Returns ErrUnknownScale if the scale is not part of the topology.
func (f *Fabric) Store(scale Scale) (*Store, error) {
	store, ok := f.stores[scale]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScale, scale)
	}
	return store, nil
}

// Transformer returns the cross-scale transformer.
func (f *Fabric) Transformer() *Transformer {
	return f.transformer
}

// Embedding returns a copy of the embedding at (scale, id).
func (f *Fabric) Embedding(scale Scale, id int) ([]float64, error) {
	store, err := f.Store(scale)
	if err != nil {
		return nil, err
	}
	return store.Embedding(id)
}

// SetEmbedding replaces the embedding at (scale, id).
// The vector is validated before any mutation.
func (f *Fabric) SetEmbedding(ctx context.Context, scale Scale, id int, vec []float64) error {
	store, err := f.Store(scale)
	if err != nil {
		return err
	}
	if err := store.SetEmbedding(id, vec); err != nil {
		capitan.Emit(ctx, EmbeddingWriteFailed,
			FieldScale.Field(string(scale)),
			FieldComponent.Field(id),
			FieldError.Field(err),
		)
		return err
	}
	capitan.Emit(ctx, EmbeddingWritten,
		FieldScale.Field(string(scale)),
		FieldComponent.Field(id),
	)
	return nil
}

// Metadata returns a copy of the metadata at (scale, id).
func (f *Fabric) Metadata(scale Scale, id int) (Metadata, error) {
	store, err := f.Store(scale)
	if err != nil {
		return Metadata{}, err
	}
	return store.Metadata(id)
}

// SetMetadata replaces the metadata at (scale, id).
func (f *Fabric) SetMetadata(ctx context.Context, scale Scale, id int, md Metadata) error {
	store, err := f.Store(scale)
	if err != nil {
		return err
	}
	if err := store.SetMetadata(id, md); err != nil {
		return err
	}
	capitan.Emit(ctx, MetadataWritten,
		FieldScale.Field(string(scale)),
		FieldComponent.Field(id),
	)
	return nil
}

// Transform converts vec from one scale's space to another's.
// See Transformer.Apply for the lookup and fallback contract.
func (f *Fabric) Transform(vec []float64, from, to Scale) ([]float64, error) {
	if _, err := f.Store(from); err != nil {
		return nil, err
	}
	if _, err := f.Store(to); err != nil {
		return nil, err
	}
	return f.transformer.Apply(vec, from, to)
}

// SetTransform replaces the matrix for the ordered pair (from, to).
func (f *Fabric) SetTransform(from, to Scale, m *Matrix) error {
	if _, err := f.Store(from); err != nil {
		return err
	}
	if _, err := f.Store(to); err != nil {
		return err
	}
	return f.transformer.Set(from, to, m)
}

// TrainTransform applies one learning step to the (from, to) matrix,
// pulling the projected source toward target by rate.
func (f *Fabric) TrainTransform(ctx context.Context, from, to Scale, source, target []float64, rate float64) error {
	if _, err := f.Store(from); err != nil {
		return err
	}
	if _, err := f.Store(to); err != nil {
		return err
	}
	start := time.Now()
	if err := f.transformer.Train(from, to, source, target, rate); err != nil {
		return err
	}
	capitan.Emit(ctx, TransformTrained,
		FieldScale.Field(string(from)),
		FieldTarget.Field(string(to)),
		FieldRate.Field(rate),
		FieldDuration.Field(time.Since(start)),
	)
	return nil
}

// Norms returns the Euclidean norm of every embedding at a scale,
// indexed by component id. Collaborators use this as a compact
// feature-vector read of fabric state.
func (f *Fabric) Norms(scale Scale) ([]float64, error) {
	store, err := f.Store(scale)
	if err != nil {
		return nil, err
	}
	return store.norms(), nil
}

// ScaleState summarizes one scale for monitoring.
type ScaleState struct {
	Cardinality int     `json:"cardinality"`
	NormMean    float64 `json:"norm_mean"`
	NormStd     float64 `json:"norm_std"`
}

// State reports per-scale embedding statistics.
type State struct {
	Dimension int                  `json:"dimension"`
	Scales    map[Scale]ScaleState `json:"scales"`
}

// State returns current fabric statistics for monitoring and debugging.
func (f *Fabric) State() State {
	state := State{
		Dimension: f.dimension,
		Scales:    make(map[Scale]ScaleState, len(f.scales)),
	}
	for _, scale := range f.scales {
		norms := f.stores[scale].norms()
		var mean float64
		for _, n := range norms {
			mean += n
		}
		mean /= float64(len(norms))
		var variance float64
		for _, n := range norms {
			variance += (n - mean) * (n - mean)
		}
		variance /= float64(len(norms))
		state.Scales[scale] = ScaleState{
			Cardinality: len(norms),
			NormMean:    mean,
			NormStd:     math.Sqrt(variance),
		}
	}
	return state
}

// stampDefaultMetadata writes the well-known anatomy names onto the leading
// components of whichever default scales exist in the topology.
func (f *Fabric) stampDefaultMetadata() {
	stamp := func(scale Scale, entries []Metadata) {
		store, ok := f.stores[scale]
		if !ok {
			return
		}
		for i, md := range entries {
			if i >= store.Count() {
				break
			}
			// Construction-time write; ids are in range by the loop bound.
			_ = store.SetMetadata(i, md)
		}
	}

	cellular := []struct {
		name string
		kind string
	}{
		{"keratinocyte", "cell"},
		{"melanocyte", "cell"},
		{"langerhans_cell", "cell"},
		{"merkel_cell", "cell"},
		{"fibroblast", "cell"},
		{"collagen", "structure"},
		{"elastin", "structure"},
		{"sebaceous_gland", "structure"},
	}
	mds := make([]Metadata, len(cellular))
	for i, c := range cellular {
		mds[i] = Metadata{Name: c.name, Kind: c.kind}
	}
	stamp(ScaleCellular, mds)

	tissue := []struct {
		name  string
		layer string
	}{
		{"stratum_corneum", "epidermis"},
		{"stratum_lucidum", "epidermis"},
		{"stratum_granulosum", "epidermis"},
		{"stratum_spinosum", "epidermis"},
		{"stratum_basale", "epidermis"},
		{"papillary_dermis", "dermis"},
		{"reticular_dermis", "dermis"},
		{"hypodermis", "dermis"},
	}
	mds = make([]Metadata, len(tissue))
	for i, tl := range tissue {
		mds[i] = Metadata{Name: tl.name, Kind: "layer", Extra: map[string]any{"layer": tl.layer}}
	}
	stamp(ScaleTissue, mds)

	regions := []string{"face", "scalp", "neck", "chest", "back", "arms", "hands", "abdomen", "legs", "feet"}
	mds = make([]Metadata, len(regions))
	for i, r := range regions {
		mds[i] = Metadata{Name: r, Kind: "region", Extra: map[string]any{"body_part": r}}
	}
	stamp(ScaleRegion, mds)

	systems := []string{"barrier_function", "immune_response", "thermal_regulation", "sensory_perception", "vitamin_synthesis"}
	mds = make([]Metadata, len(systems))
	for i, s := range systems {
		mds[i] = Metadata{Name: s, Kind: "function", Extra: map[string]any{"function": s}}
	}
	stamp(ScaleSystem, mds)
}
