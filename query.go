package fabric

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/vecna"
)

// Query ranks every component at a scale by cosine similarity against vec
// and returns the top k, descending by score with ties broken by ascending
// component id. k larger than the cardinality is truncated, not an error;
// k <= 0 yields an empty result.
func (f *Fabric) Query(ctx context.Context, vec []float64, scale Scale, k int) ([]Match, error) {
	return f.query(ctx, vec, scale, k, nil)
}

// QueryFilter is Query restricted to components whose metadata matches the
// vecna filter. A nil filter matches everything.
// Returns ErrInvalidQuery if the filter contains validation errors and
// ErrOperatorNotSupported for operators the evaluator cannot apply.
func (f *Fabric) QueryFilter(ctx context.Context, vec []float64, scale Scale, k int, filter *vecna.Filter) ([]Match, error) {
	if filter == nil {
		return f.query(ctx, vec, scale, k, nil)
	}
	if err := filter.Err(); err != nil {
		return nil, wrapInvalidQuery(err)
	}
	pred := func(_ int, md Metadata) (bool, error) {
		return evalFilter(filter, md)
	}
	return f.query(ctx, vec, scale, k, pred)
}

func (f *Fabric) query(ctx context.Context, vec []float64, scale Scale, k int, pred func(int, Metadata) (bool, error)) ([]Match, error) {
	store, err := f.Store(scale)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	matches, err := store.matches(vec, pred)
	if err != nil {
		return nil, err
	}
	matches = topMatches(matches, k)
	capitan.Emit(ctx, QueryCompleted,
		FieldScale.Field(string(scale)),
		FieldCount.Field(len(matches)),
		FieldDuration.Field(time.Since(start)),
	)
	return matches, nil
}
