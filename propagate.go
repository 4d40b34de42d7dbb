package fabric

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/zoobzio/capitan"
)

// Propagate diffuses an activation from one component into every component
// of a target scale: the source embedding is transformed into the target
// space, and each target component receives strength * max(0, cosine)
// against its own embedding. Negative similarity contributes zero;
// propagation is excitatory only, so strength must be non-negative and
// every activation is >= 0. The result holds one entry per target
// component and is not normalized.
func (f *Fabric) Propagate(ctx context.Context, source Scale, id int, target Scale, strength float64) (map[int]float64, error) {
	if math.IsNaN(strength) || math.IsInf(strength, 0) || strength < 0 {
		return nil, fmt.Errorf("%w: strength %v", ErrInvalidVector, strength)
	}
	sourceStore, err := f.Store(source)
	if err != nil {
		return nil, err
	}
	targetStore, err := f.Store(target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	emb, err := sourceStore.Embedding(id)
	if err != nil {
		return nil, err
	}
	projected, err := f.transformer.Apply(emb, source, target)
	if err != nil {
		return nil, err
	}
	sims, err := targetStore.Similarities(projected)
	if err != nil {
		return nil, err
	}

	activations := make(map[int]float64, len(sims))
	for i, sim := range sims {
		if sim < 0 {
			sim = 0
		}
		activations[i] = strength * sim
	}

	capitan.Emit(ctx, PropagateCompleted,
		FieldScale.Field(string(source)),
		FieldComponent.Field(id),
		FieldTarget.Field(string(target)),
		FieldStrength.Field(strength),
		FieldCount.Field(len(activations)),
		FieldDuration.Field(time.Since(start)),
	)
	return activations, nil
}
