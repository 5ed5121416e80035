package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xhad/mindvault/internal/types"
)

const (
	DefaultTopK          = 10
	DefaultNumCandidates = 100
)

// Config selects and configures a storage backend.
type Config struct {
	Type          string // postgres or atlas
	URL           string
	Database      string // atlas only
	IndexName     string // atlas only
	VectorDim     int
	NumCandidates int // atlas only
}

// Open connects to the backend named by config.Type.
func Open(ctx context.Context, config Config) (types.Store, error) {
	switch config.Type {
	case "postgres", "":
		return NewPGStore(ctx, PGConfig{
			ConnString: config.URL,
			VectorDim:  config.VectorDim,
		})
	case "atlas":
		return NewAtlasStore(ctx, AtlasConfig{
			URI:           config.URL,
			Database:      config.Database,
			IndexName:     config.IndexName,
			NumCandidates: config.NumCandidates,
		})
	default:
		return nil, fmt.Errorf("unknown database type: %s", config.Type)
	}
}

func checkSearch(ownerID string, vector []float32) error {
	if ownerID == "" {
		return types.VectorIndexError(errors.New("owner id is required for vector search"))
	}
	if len(vector) == 0 {
		return types.VectorIndexError(errors.New("query vector is empty"))
	}
	return nil
}

// candidates never lets the candidate pool drop below the result limit.
func candidates(k, numCandidates int) int {
	if numCandidates < k {
		return k
	}
	return numCandidates
}
