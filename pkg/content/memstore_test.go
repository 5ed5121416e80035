package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
)

// memStore is an in-memory ContentStore, EmbeddingStore and ShareStore.
type memStore struct {
	mu         sync.Mutex
	seq        int
	content    map[string]models.ContentItem
	tags       map[string]models.Tag // key owner/name
	embeddings map[string]models.Embedding
	shares     map[string]models.ShareState

	failCreate          error
	failDeleteContent   error
	failSaveEmbedding   error
	failDeleteEmbedding error
	deleteContentCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		content:    map[string]models.ContentItem{},
		tags:       map[string]models.Tag{},
		embeddings: map[string]models.Embedding{},
		shares:     map[string]models.ShareState{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

func (m *memStore) FindContent(_ context.Context, ownerID string, ids []string) ([]models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ContentItem
	for _, id := range ids {
		if c, ok := m.content[id]; ok && c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) EnsureTags(_ context.Context, ownerID string, names []string) ([]models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Tag, 0, len(names))
	for _, name := range names {
		key := ownerID + "/" + name
		tag, ok := m.tags[key]
		if !ok {
			tag = models.Tag{ID: m.nextID("t"), OwnerID: ownerID, Name: name}
			m.tags[key] = tag
		}
		out = append(out, tag)
	}
	return out, nil
}

func (m *memStore) ListTags(_ context.Context, ownerID string) ([]models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Tag
	for _, t := range m.tags {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateContent(_ context.Context, item models.ContentItem) (models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return models.ContentItem{}, m.failCreate
	}
	item.ID = m.nextID("c")
	m.content[item.ID] = item
	return item, nil
}

func (m *memStore) ListContent(_ context.Context, ownerID string, kind models.Kind) ([]models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ContentItem
	for _, c := range m.content {
		if c.OwnerID == ownerID && (kind == "" || c.Kind == kind) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteContent(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteContentCalls++
	if m.failDeleteContent != nil {
		return m.failDeleteContent
	}
	c, ok := m.content[id]
	if !ok || c.OwnerID != ownerID {
		return types.ErrContentNotFound
	}
	delete(m.content, id)
	return nil
}

func (m *memStore) SaveEmbedding(_ context.Context, e models.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaveEmbedding != nil {
		return m.failSaveEmbedding
	}
	m.embeddings[e.ContentID] = e
	return nil
}

func (m *memStore) DeleteEmbedding(_ context.Context, ownerID, contentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeleteEmbedding != nil {
		return m.failDeleteEmbedding
	}
	if e, ok := m.embeddings[contentID]; ok && e.OwnerID == ownerID {
		delete(m.embeddings, contentID)
	}
	return nil
}

func (m *memStore) GetShare(_ context.Context, ownerID string) (models.ShareState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shares[ownerID]
	if !ok {
		return models.ShareState{}, types.ErrShareNotFound
	}
	return s, nil
}

func (m *memStore) PutShare(_ context.Context, state models.ShareState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shares[state.OwnerID] = state
	return nil
}

func (m *memStore) FindShareByToken(_ context.Context, token string) (models.ShareState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shares {
		if s.Shared && s.LinkToken == token {
			return s, nil
		}
	}
	return models.ShareState{}, types.ErrShareNotFound
}

type stubEmbedder struct {
	err   error
	calls int
	texts []string
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	e.texts = append(e.texts, texts...)
	if e.err != nil {
		return nil, e.err
	}
	return [][]float32{{0.1, 0.2, 0.3}}, nil
}

type stubFetcher struct {
	title string
	err   error
	calls int
}

func (f *stubFetcher) FetchTitle(context.Context, string) (string, error) {
	f.calls++
	return f.title, f.err
}

var errBoom = errors.New("boom")
