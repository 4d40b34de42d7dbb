package fabric

import "github.com/zoobzio/capitan"

// Signals for fabric lifecycle events.
var (
	EmbeddingWritten     = capitan.NewSignal("fabric.embedding.written", "Component embedding replaced")
	EmbeddingWriteFailed = capitan.NewSignal("fabric.embedding.write_failed", "Component embedding write rejected")
	MetadataWritten      = capitan.NewSignal("fabric.metadata.written", "Component metadata replaced")
	PropagateCompleted   = capitan.NewSignal("fabric.propagate.completed", "Signal propagation completed")
	QueryCompleted       = capitan.NewSignal("fabric.query.completed", "Similarity query completed")
	ObserveCompleted     = capitan.NewSignal("fabric.observe.completed", "Observation update applied")
	ObserveFailed        = capitan.NewSignal("fabric.observe.failed", "Observation update rejected")
	TransformTrained     = capitan.NewSignal("fabric.transform.trained", "Transform matrix training step applied")
	SnapshotSaved        = capitan.NewSignal("fabric.snapshot.saved", "Fabric snapshot serialized")
	SnapshotLoaded       = capitan.NewSignal("fabric.snapshot.loaded", "Fabric restored from snapshot")
	SnapshotFailed       = capitan.NewSignal("fabric.snapshot.failed", "Snapshot save or load failed")
)

// Field keys for event extraction.
var (
	FieldScale     = capitan.NewStringKey("scale")
	FieldTarget    = capitan.NewStringKey("target")
	FieldComponent = capitan.NewIntKey("component")
	FieldCount     = capitan.NewIntKey("count")
	FieldDuration  = capitan.NewDurationKey("duration")
	FieldError     = capitan.NewErrorKey("error")
	FieldStrength  = capitan.NewKey[float64]("strength", "fabric.Strength")
	FieldRate      = capitan.NewKey[float64]("rate", "fabric.Rate")
	FieldSnapshot  = capitan.NewStringKey("snapshot")
)
