// Package fabric implements a multi-scale embedding fabric: a hierarchical,
// learnable vector-embedding store that represents components at several
// levels of granularity, transforms representations between levels,
// propagates activation signals across levels, and answers nearest-neighbor
// similarity queries. The Fabric is the single source of truth for embedding
// state; collaborators hold (scale, id) addresses and re-read on each access.
package fabric

import (
	"context"

	"github.com/google/uuid"
	"github.com/orgitcog/fabric/internal/shared"
)

// Semantic errors for fabric operations (re-exported from internal/shared).
var (
	ErrUnknownScale         = shared.ErrUnknownScale
	ErrComponentRange       = shared.ErrComponentRange
	ErrDimension            = shared.ErrDimension
	ErrInvalidVector        = shared.ErrInvalidVector
	ErrMissingTransform     = shared.ErrMissingTransform
	ErrLearningRate         = shared.ErrLearningRate
	ErrSchema               = shared.ErrSchema
	ErrNotFound             = shared.ErrNotFound
	ErrInvalidQuery         = shared.ErrInvalidQuery
	ErrOperatorNotSupported = shared.ErrOperatorNotSupported
)

// SnapshotStore defines durable storage for fabric snapshots.
// Implementations (archive) satisfy this interface.
type SnapshotStore interface {
	// Put stores a snapshot. Re-putting an ID replaces the stored payload.
	Put(ctx context.Context, snap *Snapshot) error

	// Get retrieves a snapshot by ID.
	// Returns ErrNotFound if the ID does not exist.
	Get(ctx context.Context, id uuid.UUID) (*Snapshot, error)

	// Latest returns the most recently created snapshot.
	// Returns ErrNotFound if the store is empty.
	Latest(ctx context.Context) (*Snapshot, error)

	// List returns snapshot IDs, newest first.
	// Limit of 0 means no limit.
	List(ctx context.Context, limit int) ([]uuid.UUID, error)

	// Delete removes a snapshot by ID.
	// Returns ErrNotFound if the ID does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
