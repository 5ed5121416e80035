package types

import (
	"context"

	"github.com/xhad/mindvault/internal/models"
)

// Core interfaces

// Embedder turns a batch of texts into vectors, positionally aligned with
// the input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex runs an owner-scoped nearest neighbour query.
type VectorIndex interface {
	Search(ctx context.Context, ownerID string, vector []float32, k int) ([]models.RankedHit, error)
}

// Generator produces an answer grounded on the supplied context.
type Generator interface {
	Generate(ctx context.Context, question, contextText string) (string, error)
}

// ContentReader resolves content ids to records. Ids that do not exist or
// belong to another owner are omitted from the result.
type ContentReader interface {
	FindContent(ctx context.Context, ownerID string, ids []string) ([]models.ContentItem, error)
}

type ContentStore interface {
	ContentReader
	EnsureTags(ctx context.Context, ownerID string, names []string) ([]models.Tag, error)
	ListTags(ctx context.Context, ownerID string) ([]models.Tag, error)
	CreateContent(ctx context.Context, item models.ContentItem) (models.ContentItem, error)
	ListContent(ctx context.Context, ownerID string, kind models.Kind) ([]models.ContentItem, error)
	DeleteContent(ctx context.Context, ownerID, id string) error
}

type EmbeddingStore interface {
	SaveEmbedding(ctx context.Context, e models.Embedding) error
	DeleteEmbedding(ctx context.Context, ownerID, contentID string) error
}

type ShareStore interface {
	GetShare(ctx context.Context, ownerID string) (models.ShareState, error)
	PutShare(ctx context.Context, state models.ShareState) error
	FindShareByToken(ctx context.Context, token string) (models.ShareState, error)
}

// Store is everything a backend has to provide.
type Store interface {
	ContentStore
	EmbeddingStore
	ShareStore
	VectorIndex
	Close()
}
