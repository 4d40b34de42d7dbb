package fabric

// Scale identifies one hierarchical level of component granularity.
type Scale string

// Default scales, ordered fine to coarse.
const (
	// ScaleCellular is the microscopic level: cells, proteins, molecular structures.
	ScaleCellular Scale = "cellular"

	// ScaleTissue is the layer level: epidermis, dermis, hypodermis.
	ScaleTissue Scale = "tissue"

	// ScaleRegion is the body-region level: face, arms, torso.
	ScaleRegion Scale = "region"

	// ScaleSystem is the whole-body integration level.
	ScaleSystem Scale = "system"
)

// ScaleSpec declares one scale of a fabric topology.
type ScaleSpec struct {
	Name        Scale
	Cardinality int
}

// DefaultScales returns the default four-level topology with its fixed
// component cardinalities.
func DefaultScales() []ScaleSpec {
	return []ScaleSpec{
		{Name: ScaleCellular, Cardinality: 1000},
		{Name: ScaleTissue, Cardinality: 50},
		{Name: ScaleRegion, Cardinality: 20},
		{Name: ScaleSystem, Cardinality: 5},
	}
}
