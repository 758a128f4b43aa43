package tripstore

import "github.com/thepaulm/tripstore/internal/constants"

// Re-export constants for public API
const (
	DefaultIngestPort = constants.DefaultIngestPort
	DefaultQueryPort  = constants.DefaultQueryPort
)
