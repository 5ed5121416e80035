package search_test

import (
	"context"

	"github.com/xhad/mindvault/internal/models"
)

type fakeEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
	texts   []string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.texts = texts
	return f.vectors, f.err
}

type fakeIndex struct {
	hits    []models.RankedHit
	err     error
	calls   int
	ownerID string
	k       int
}

func (f *fakeIndex) Search(_ context.Context, ownerID string, _ []float32, k int) ([]models.RankedHit, error) {
	f.calls++
	f.ownerID = ownerID
	f.k = k
	return f.hits, f.err
}

// fakeReader returns every known item whose id is requested. With
// ignoreOwner set it also leaks other owners' items, like a broken store.
type fakeReader struct {
	items       []models.ContentItem
	ignoreOwner bool
	block       bool // wait for the context to end
	err         error
	calls       int
}

func (f *fakeReader) FindContent(ctx context.Context, ownerID string, ids []string) ([]models.ContentItem, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.ContentItem
	// Reverse store order so callers cannot rely on it.
	for i := len(f.items) - 1; i >= 0; i-- {
		item := f.items[i]
		if want[item.ID] && (f.ignoreOwner || item.OwnerID == ownerID) {
			out = append(out, item)
		}
	}
	return out, nil
}

type fakeGenerator struct {
	answer      string
	err         error
	calls       int
	question    string
	contextText string
}

func (f *fakeGenerator) Generate(_ context.Context, question, contextText string) (string, error) {
	f.calls++
	f.question = question
	f.contextText = contextText
	return f.answer, f.err
}
