package database

// Neighbor search parameters for 128-dim face embeddings.
const (
	// HNSWMaxNeighbors is M, the maximum number of links per graph node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the pgvector candidate pool size for audit queries.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier over-fetches graph candidates to cover samples deleted after the build.
	HNSWSearchMultiplier = 3
)
