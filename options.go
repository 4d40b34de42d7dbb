package fabric

// config collects constructor settings before validation.
type config struct {
	dimension       int
	initStd         float64
	learningRate    float64
	seed            int64
	seedSet         bool
	scales          []ScaleSpec
	codec           Codec
	defaultMetadata bool
}

// Option configures a Fabric at construction.
type Option func(*config)

// WithDimension sets the embedding dimensionality D.
// If not specified, 128 is used.
func WithDimension(d int) Option {
	return func(c *config) {
		c.dimension = d
	}
}

// WithInitStd sets the standard deviation of the Gaussian noise used to
// initialize embeddings and transform matrices.
// If not specified, 0.01 is used.
func WithInitStd(std float64) Option {
	return func(c *config) {
		c.initStd = std
	}
}

// WithLearningRate sets the default learning rate carried in the fabric
// configuration. If not specified, 0.01 is used.
func WithLearningRate(rate float64) Option {
	return func(c *config) {
		c.learningRate = rate
	}
}

// WithSeed fixes the random source used for initialization, making fabric
// construction reproducible across runs.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
		c.seedSet = true
	}
}

// WithScales replaces the default four-level topology.
// Specs are ordered fine to coarse.
func WithScales(specs ...ScaleSpec) Option {
	return func(c *config) {
		c.scales = specs
	}
}

// WithCodec sets a custom codec for snapshot serialization.
// If not specified, JSONCodec is used.
func WithCodec(codec Codec) Option {
	return func(c *config) {
		c.codec = codec
	}
}

// WithDefaultMetadata stamps the well-known anatomy names onto the leading
// components of whichever default scales are present in the topology.
func WithDefaultMetadata() Option {
	return func(c *config) {
		c.defaultMetadata = true
	}
}
