package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
	"github.com/xhad/mindvault/pkg/store"
)

// Runs against a real Postgres with the vector extension available.
func newTestStore(t *testing.T) *store.PGStore {
	t.Helper()
	conn := os.Getenv("MINDVAULT_TEST_DATABASE_URL")
	if conn == "" {
		t.Skip("MINDVAULT_TEST_DATABASE_URL not set")
	}
	s, err := store.NewPGStore(context.Background(), store.PGConfig{ConnString: conn, VectorDim: 3})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestPGStore_ContentAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := "owner-" + uuid.NewString()
	other := "owner-" + uuid.NewString()

	tags, err := s.EnsureTags(ctx, owner, []string{"rust", "go"})
	require.NoError(t, err)
	require.Len(t, tags, 2)

	again, err := s.EnsureTags(ctx, owner, []string{"rust"})
	require.NoError(t, err)
	assert.Equal(t, tags[0].ID, again[0].ID)

	rust, err := s.CreateContent(ctx, models.ContentItem{OwnerID: owner, Kind: models.KindDocument, Title: "Rust ownership notes", Tags: tags})
	require.NoError(t, err)
	require.NoError(t, s.SaveEmbedding(ctx, models.Embedding{OwnerID: owner, ContentID: rust.ID, Vector: []float32{1, 0, 0}}))

	foreign, err := s.CreateContent(ctx, models.ContentItem{OwnerID: other, Kind: models.KindDocument, Title: "Rust in production"})
	require.NoError(t, err)
	require.NoError(t, s.SaveEmbedding(ctx, models.Embedding{OwnerID: other, ContentID: foreign.ID, Vector: []float32{1, 0, 0}}))

	hits, err := s.Search(ctx, owner, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, rust.ID, hits[0].ContentID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	found, err := s.FindContent(ctx, owner, []string{rust.ID, foreign.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"rust", "go"}, found[0].TagNames())

	// Many closer rows from other owners must not crowd out the owner's hits.
	for i := 0; i < 300; i++ {
		noise := models.Embedding{OwnerID: other, ContentID: "noise-" + uuid.NewString(), Vector: []float32{1, 0.001 * float32(i), 0}}
		require.NoError(t, s.SaveEmbedding(ctx, noise))
	}
	far, err := s.CreateContent(ctx, models.ContentItem{OwnerID: owner, Kind: models.KindLink, Title: "Cooking pasta"})
	require.NoError(t, err)
	require.NoError(t, s.SaveEmbedding(ctx, models.Embedding{OwnerID: owner, ContentID: far.ID, Vector: []float32{0, 1, 0}}))

	hits, err = s.Search(ctx, owner, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, rust.ID, hits[0].ContentID)
	assert.Equal(t, far.ID, hits[1].ContentID)

	require.NoError(t, s.DeleteEmbedding(ctx, owner, far.ID))
	require.NoError(t, s.DeleteContent(ctx, owner, far.ID))
	require.NoError(t, s.DeleteEmbedding(ctx, owner, rust.ID))
	require.NoError(t, s.DeleteContent(ctx, owner, rust.ID))
	assert.ErrorIs(t, s.DeleteContent(ctx, owner, rust.ID), types.ErrContentNotFound)
	assert.ErrorIs(t, s.DeleteContent(ctx, owner, foreign.ID), types.ErrContentNotFound)
}

func TestPGStore_Shares(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()

	_, err := s.GetShare(ctx, owner)
	assert.ErrorIs(t, err, types.ErrShareNotFound)

	token := uuid.NewString()
	require.NoError(t, s.PutShare(ctx, models.ShareState{OwnerID: owner, Username: "ada", Shared: true, LinkToken: token}))

	state, err := s.FindShareByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, owner, state.OwnerID)

	require.NoError(t, s.PutShare(ctx, models.ShareState{OwnerID: owner, Username: "ada"}))
	_, err = s.FindShareByToken(ctx, token)
	assert.ErrorIs(t, err, types.ErrShareNotFound)
}
