// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Audit constants
const (
	// DefaultAuditNeighbors is the number of nearest samples inspected per embedding
	DefaultAuditNeighbors = 10

	// DefaultAuditWorkers is the default number of parallel neighbor searches
	DefaultAuditWorkers = 8
)

// Face service constants
const (
	// FaceServiceTimeout bounds a single call to the face service
	FaceServiceTimeout = 30 * time.Second

	// HealthCheckTimeout bounds the startup probe of the face service
	HealthCheckTimeout = 5 * time.Second
)

// Migration constants
const (
	// DefaultMigrationWorkers is the number of parallel store writes during migrate
	DefaultMigrationWorkers = 4
)
