package fabric

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// SnapshotSchemaVersion is the snapshot format this package writes.
// Snapshots declaring any other version are rejected rather than guessed at.
const SnapshotSchemaVersion = 1

// ScaleSnapshot holds one scale's persisted state. Scales are stored as an
// ordered list so the fine-to-coarse topology survives serialization.
type ScaleSnapshot struct {
	Name        Scale       `json:"name"`
	Cardinality int         `json:"cardinality"`
	Embeddings  [][]float64 `json:"embeddings"`
	Metadata    []Metadata  `json:"metadata"`
}

// Snapshot is a portable, loadable representation of an entire fabric:
// every embedding, every metadata entry, every transform matrix, and the
// global configuration.
type Snapshot struct {
	SchemaVersion int                    `json:"schema_version"`
	ID            uuid.UUID              `json:"id"`
	CreatedAt     time.Time              `json:"created_at"`
	Dimension     int                    `json:"dimension"`
	InitStd       float64                `json:"init_std"`
	LearningRate  float64                `json:"learning_rate"`
	Scales        []ScaleSnapshot        `json:"scales"`
	Transforms    map[string][][]float64 `json:"transforms"`
}

// transformKey renders the ordered-pair key used in snapshots.
func transformKey(from, to Scale) string {
	return string(from) + "->" + string(to)
}

// parseTransformKey splits a "from->to" snapshot key.
func parseTransformKey(key string) (Scale, Scale, error) {
	from, to, ok := strings.Cut(key, "->")
	if !ok || from == "" || to == "" {
		return "", "", fmt.Errorf("%w: malformed transform key %q", ErrSchema, key)
	}
	return Scale(from), Scale(to), nil
}

// Snapshot captures the fabric state atomically relative to concurrent
// writers: every per-scale lock and the transform lock are held for the
// duration of the copy, so no torn mid-update state can be observed.
// Writers only ever hold one store lock, so the ordered acquisition here
// cannot deadlock.
func (f *Fabric) Snapshot() *Snapshot {
	for _, scale := range f.scales {
		f.stores[scale].lockRead()
	}
	f.transformer.lockRead()
	defer func() {
		f.transformer.unlockRead()
		for _, scale := range f.scales {
			f.stores[scale].unlockRead()
		}
	}()

	snap := &Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		ID:            uuid.New(),
		CreatedAt:     time.Now().UTC(),
		Dimension:     f.dimension,
		InitStd:       f.initStd,
		LearningRate:  f.learningRate,
		Scales:        make([]ScaleSnapshot, 0, len(f.scales)),
		Transforms:    make(map[string][][]float64),
	}
	for _, scale := range f.scales {
		store := f.stores[scale]
		embeddings, metadata := store.snapshotLocked()
		snap.Scales = append(snap.Scales, ScaleSnapshot{
			Name:        scale,
			Cardinality: store.Count(),
			Embeddings:  embeddings,
			Metadata:    metadata,
		})
	}
	for key, m := range f.transformer.snapshotLocked() {
		snap.Transforms[transformKey(key.from, key.to)] = m.Rows()
	}
	return snap
}

// Save serializes the fabric through its codec onto w.
func (f *Fabric) Save(ctx context.Context, w io.Writer) error {
	start := time.Now()
	snap := f.Snapshot()
	data, err := f.codec.Marshal(snap)
	if err != nil {
		capitan.Emit(ctx, SnapshotFailed, FieldError.Field(err))
		return err
	}
	if _, err := w.Write(data); err != nil {
		capitan.Emit(ctx, SnapshotFailed, FieldError.Field(err))
		return err
	}
	capitan.Emit(ctx, SnapshotSaved,
		FieldSnapshot.Field(snap.ID.String()),
		FieldDuration.Field(time.Since(start)),
	)
	return nil
}

// SaveFile serializes the fabric to a file at path.
func (f *Fabric) SaveFile(ctx context.Context, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Save(ctx, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Load reconstructs a fabric from a JSON snapshot stream.
func Load(ctx context.Context, r io.Reader) (*Fabric, error) {
	return LoadWithCodec(ctx, r, JSONCodec{})
}

// LoadWithCodec reconstructs a fabric from a snapshot stream using a
// custom codec.
func LoadWithCodec(ctx context.Context, r io.Reader, codec Codec) (*Fabric, error) {
	start := time.Now()
	data, err := io.ReadAll(r)
	if err != nil {
		capitan.Emit(ctx, SnapshotFailed, FieldError.Field(err))
		return nil, err
	}
	var snap Snapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		err = fmt.Errorf("%w: %v", ErrSchema, err)
		capitan.Emit(ctx, SnapshotFailed, FieldError.Field(err))
		return nil, err
	}
	f, err := FromSnapshot(&snap)
	if err != nil {
		capitan.Emit(ctx, SnapshotFailed, FieldError.Field(err))
		return nil, err
	}
	f.codec = codec
	capitan.Emit(ctx, SnapshotLoaded,
		FieldSnapshot.Field(snap.ID.String()),
		FieldDuration.Field(time.Since(start)),
	)
	return f, nil
}

// LoadFile reconstructs a fabric from a snapshot file at path.
func LoadFile(ctx context.Context, path string) (*Fabric, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Load(ctx, file)
}

// FromSnapshot reconstructs an equivalent fabric from a snapshot document.
// Any version, dimension, or cardinality inconsistency is a hard ErrSchema;
// partial loads are not attempted.
func FromSnapshot(snap *Snapshot) (*Fabric, error) {
	if err := snap.validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(0))
	f := &Fabric{
		dimension:    snap.Dimension,
		initStd:      snap.InitStd,
		learningRate: snap.LearningRate,
		codec:        JSONCodec{},
		scales:       make([]Scale, 0, len(snap.Scales)),
		stores:       make(map[Scale]*Store, len(snap.Scales)),
	}
	for _, sc := range snap.Scales {
		f.scales = append(f.scales, sc.Name)
		store := newStore(sc.Name, sc.Cardinality, snap.Dimension, 0, rng)
		store.restore(sc.Embeddings, sc.Metadata)
		f.stores[sc.Name] = store
	}

	f.transformer = newTransformer(f.scales, snap.Dimension, 0, rng)
	matrices := make(map[scalePair]*Matrix, len(snap.Transforms))
	for key, rows := range snap.Transforms {
		from, to, err := parseTransformKey(key)
		if err != nil {
			return nil, err
		}
		m, err := MatrixFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("transform %q: %w", key, err)
		}
		if m.Dim() != snap.Dimension {
			return nil, fmt.Errorf("%w: transform %q is %dx%d, want %dx%d", ErrSchema, key, m.Dim(), m.Dim(), snap.Dimension, snap.Dimension)
		}
		matrices[scalePair{from, to}] = m
	}
	f.transformer.restore(matrices)
	return f, nil
}

// validate checks a snapshot's internal consistency before any state is built.
func (s *Snapshot) validate() error {
	if s.SchemaVersion != SnapshotSchemaVersion {
		return fmt.Errorf("%w: schema version %d, want %d", ErrSchema, s.SchemaVersion, SnapshotSchemaVersion)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrSchema, s.Dimension)
	}
	if len(s.Scales) == 0 {
		return fmt.Errorf("%w: no scales", ErrSchema)
	}
	seen := make(map[Scale]struct{}, len(s.Scales))
	for _, sc := range s.Scales {
		if sc.Name == "" {
			return fmt.Errorf("%w: empty scale name", ErrSchema)
		}
		if _, dup := seen[sc.Name]; dup {
			return fmt.Errorf("%w: duplicate scale %q", ErrSchema, sc.Name)
		}
		seen[sc.Name] = struct{}{}
		if sc.Cardinality <= 0 {
			return fmt.Errorf("%w: scale %q cardinality %d", ErrSchema, sc.Name, sc.Cardinality)
		}
		if len(sc.Embeddings) != sc.Cardinality {
			return fmt.Errorf("%w: scale %q holds %d embeddings, cardinality %d", ErrSchema, sc.Name, len(sc.Embeddings), sc.Cardinality)
		}
		if len(sc.Metadata) != sc.Cardinality {
			return fmt.Errorf("%w: scale %q holds %d metadata entries, cardinality %d", ErrSchema, sc.Name, len(sc.Metadata), sc.Cardinality)
		}
		for id, emb := range sc.Embeddings {
			if len(emb) != s.Dimension {
				return fmt.Errorf("%w: scale %q component %d has dimension %d, want %d", ErrSchema, sc.Name, id, len(emb), s.Dimension)
			}
			for _, v := range emb {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("%w: scale %q component %d is non-finite", ErrSchema, sc.Name, id)
				}
			}
		}
	}
	// Every ordered pair of distinct scales must carry a matrix, and no key
	// may reference a scale outside the topology.
	for key := range s.Transforms {
		from, to, err := parseTransformKey(key)
		if err != nil {
			return err
		}
		if _, ok := seen[from]; !ok {
			return fmt.Errorf("%w: transform %q references unknown scale %q", ErrSchema, key, from)
		}
		if _, ok := seen[to]; !ok {
			return fmt.Errorf("%w: transform %q references unknown scale %q", ErrSchema, key, to)
		}
		if from == to {
			return fmt.Errorf("%w: transform %q maps a scale to itself", ErrSchema, key)
		}
	}
	for _, from := range s.Scales {
		for _, to := range s.Scales {
			if from.Name == to.Name {
				continue
			}
			if _, ok := s.Transforms[transformKey(from.Name, to.Name)]; !ok {
				return fmt.Errorf("%w: missing transform %q", ErrSchema, transformKey(from.Name, to.Name))
			}
		}
	}
	return nil
}
