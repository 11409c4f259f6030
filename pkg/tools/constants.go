package tools

// Limits for the feature tools
const (
	// MaxFeatureLimit caps one page of get_features or query_features.
	MaxFeatureLimit = 500

	// IndexCacheSize is the number of layer R-trees kept between calls.
	IndexCacheSize = 64

	// MaxPrefetchTiles caps the tiles one prefetch call may name.
	MaxPrefetchTiles = 256
)

// Resource URIs
const (
	TileResourceTemplate = "vt://tile/{z}/{x}/{y}"
	TileResourceMIMEType = "application/json"
)
