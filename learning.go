package fabric

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zoobzio/capitan"
)

// Observe pulls the embedding at (scale, id) toward an observed vector:
// embedding += rate * (observation - embedding). A rate of 1
// replaces the embedding outright; 0 is a no-op. The observation is
// validated for length and finiteness before any mutation.
func (f *Fabric) Observe(ctx context.Context, scale Scale, id int, observation []float64, rate float64) error {
	store, err := f.Store(scale)
	if err != nil {
		return err
	}
	if rate < 0 || rate > 1 {
		err := fmt.Errorf("%w: %v", ErrLearningRate, rate)
		capitan.Emit(ctx, ObserveFailed,
			FieldScale.Field(string(scale)),
			FieldComponent.Field(id),
			FieldError.Field(err),
		)
		return err
	}
	start := time.Now()
	if err := store.observe(id, observation, rate); err != nil {
		capitan.Emit(ctx, ObserveFailed,
			FieldScale.Field(string(scale)),
			FieldComponent.Field(id),
			FieldError.Field(err),
		)
		return err
	}
	capitan.Emit(ctx, ObserveCompleted,
		FieldScale.Field(string(scale)),
		FieldComponent.Field(id),
		FieldRate.Field(rate),
		FieldDuration.Field(time.Since(start)),
	)
	return nil
}

// ObserveBatch applies Observe to each (id, observation) pair in ascending
// id order, checking ctx between components so long-running batch learning
// can be cancelled cooperatively. On cancellation the updates already
// applied are retained and ctx.Err() is returned.
func (f *Fabric) ObserveBatch(ctx context.Context, scale Scale, observations map[int][]float64, rate float64) error {
	if _, err := f.Store(scale); err != nil {
		return err
	}
	ids := make([]int, 0, len(observations))
	for id := range observations {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.Observe(ctx, scale, id, observations[id], rate); err != nil {
			return err
		}
	}
	return nil
}
