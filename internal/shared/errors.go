// Package shared contains canonical type definitions shared across fabric.
package shared //nolint:revive // internal shared package is intentional

import "errors"

// Semantic errors for fabric operations.
var (
	// ErrUnknownScale indicates the named scale is not part of the fabric topology.
	ErrUnknownScale = errors.New("fabric: unknown scale")

	// ErrComponentRange indicates a component id outside [0, cardinality) for its scale.
	ErrComponentRange = errors.New("fabric: component id out of range")

	// ErrDimension indicates a vector or matrix whose size does not match the fabric dimension.
	ErrDimension = errors.New("fabric: dimension mismatch")

	// ErrInvalidVector indicates a vector containing NaN or Inf values.
	ErrInvalidVector = errors.New("fabric: non-finite vector")

	// ErrMissingTransform indicates no matrix is registered for an ordered scale pair.
	ErrMissingTransform = errors.New("fabric: missing transform")

	// ErrLearningRate indicates a learning rate outside [0, 1].
	ErrLearningRate = errors.New("fabric: learning rate out of range")

	// ErrSchema indicates a snapshot incompatible with the expected schema.
	ErrSchema = errors.New("fabric: snapshot schema mismatch")

	// ErrNotFound indicates the requested snapshot does not exist.
	ErrNotFound = errors.New("fabric: snapshot not found")

	// ErrInvalidQuery indicates a metadata filter containing validation errors.
	ErrInvalidQuery = errors.New("fabric: invalid query")

	// ErrOperatorNotSupported indicates a filter operator the evaluator cannot apply.
	ErrOperatorNotSupported = errors.New("fabric: operator not supported")
)
