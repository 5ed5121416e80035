package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xhad/mindvault/internal/logging"
	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
	"github.com/xhad/mindvault/pkg/processor"
)

const (
	minTitleLen = 3
	maxTitleLen = 500
	maxTags     = 20
)

// TitleFetcher looks up a title for a link saved without one.
type TitleFetcher interface {
	FetchTitle(ctx context.Context, rawURL string) (string, error)
}

type CreateRequest struct {
	Kind  string   `json:"type"`
	Link  string   `json:"link"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

type ServiceConfig struct {
	EmbedTimeout      time.Duration
	FetchTimeout      time.Duration
	CompensateTimeout time.Duration
}

// Service owns the content lifecycle. Creating an item always creates its
// embedding; if that fails the item is removed again.
type Service struct {
	store      types.ContentStore
	embeddings types.EmbeddingStore
	embedder   types.Embedder
	fetcher    TitleFetcher
	renderer   processor.Processor
	config     ServiceConfig
	logger     *slog.Logger
}

func NewService(store types.ContentStore, embeddings types.EmbeddingStore, embedder types.Embedder, fetcher TitleFetcher, renderer processor.Processor, config ServiceConfig, logger *slog.Logger) *Service {
	if config.EmbedTimeout == 0 {
		config.EmbedTimeout = 10 * time.Second
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = 5 * time.Second
	}
	if config.CompensateTimeout == 0 {
		config.CompensateTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		store:      store,
		embeddings: embeddings,
		embedder:   embedder,
		fetcher:    fetcher,
		renderer:   renderer,
		config:     config,
		logger:     logger,
	}
}

func (s *Service) Create(ctx context.Context, principal models.Principal, req CreateRequest) (models.ContentItem, error) {
	if principal.OwnerID == "" {
		return models.ContentItem{}, types.ErrUnauthenticated
	}

	item, tagNames, err := s.prepare(ctx, principal, req)
	if err != nil {
		return models.ContentItem{}, err
	}
	log := s.logger.With("owner", principal.OwnerID)

	tags, err := s.store.EnsureTags(ctx, principal.OwnerID, tagNames)
	if err != nil {
		return models.ContentItem{}, err
	}
	item.Tags = tags

	sg := newSaga(s.config.CompensateTimeout, log)

	created, err := s.store.CreateContent(ctx, item)
	if err != nil {
		return models.ContentItem{}, err
	}
	sg.onFailure("delete content", func(ctx context.Context) error {
		return s.store.DeleteContent(ctx, principal.OwnerID, created.ID)
	})

	vector, err := s.embed(ctx, created)
	if err != nil {
		log.Error("embedding new content failed", "content_id", created.ID, "error", err)
		return models.ContentItem{}, sg.abort(ctx, err)
	}

	err = s.embeddings.SaveEmbedding(ctx, models.Embedding{
		OwnerID:   principal.OwnerID,
		ContentID: created.ID,
		Vector:    vector,
	})
	if err != nil {
		log.Error("saving embedding failed", "content_id", created.ID, "error", err)
		return models.ContentItem{}, sg.abort(ctx, err)
	}

	log.Info("content created", "content_id", created.ID, "kind", created.Kind, "tags", len(created.Tags))
	return created, nil
}

// prepare validates req and fills in a missing title from the link.
func (s *Service) prepare(ctx context.Context, principal models.Principal, req CreateRequest) (models.ContentItem, []string, error) {
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		return models.ContentItem{}, nil, types.InvalidContent(err.Error())
	}

	link := strings.TrimSpace(req.Link)
	if link != "" {
		if u, err := url.Parse(link); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return models.ContentItem{}, nil, types.InvalidContent("link must be an http or https URL")
		}
	}

	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return models.ContentItem{}, nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" && link != "" && s.fetcher != nil {
		title = s.fetchTitle(ctx, link)
	}
	if n := utf8.RuneCountInString(title); n < minTitleLen || n > maxTitleLen {
		return models.ContentItem{}, nil, types.InvalidContent(
			fmt.Sprintf("title must be between %d and %d characters", minTitleLen, maxTitleLen))
	}

	return models.ContentItem{
		OwnerID:    principal.OwnerID,
		Kind:       kind,
		Title:      title,
		SourceLink: link,
	}, tags, nil
}

func (s *Service) fetchTitle(ctx context.Context, link string) string {
	ctx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()

	title, err := s.fetcher.FetchTitle(ctx, link)
	if err != nil {
		s.logger.Warn("could not fetch link title", "link", link, "error", err)
		return ""
	}
	return strings.TrimSpace(title)
}

func normalizeTags(raw []string) ([]string, error) {
	if len(raw) > maxTags {
		return nil, types.InvalidContent(fmt.Sprintf("at most %d tags are allowed", maxTags))
	}
	seen := make(map[string]bool, len(raw))
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.Join(strings.Fields(t), " ")
		if t == "" {
			return nil, types.InvalidContent("tags must be non-empty")
		}
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags, nil
}

func (s *Service) embed(ctx context.Context, item models.ContentItem) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.EmbedTimeout)
	defer cancel()

	vectors, err := s.embedder.Embed(ctx, []string{s.renderer.RenderItem(item)})
	if err != nil {
		return nil, types.EmbeddingError(err)
	}
	if len(vectors) != 1 {
		return nil, types.EmbeddingError(fmt.Errorf("expected one vector, got %d", len(vectors)))
	}
	return vectors[0], nil
}

// List returns the owner's items, newest first. An empty kind lists all.
func (s *Service) List(ctx context.Context, principal models.Principal, kind string) ([]models.ContentItem, error) {
	if principal.OwnerID == "" {
		return nil, types.ErrUnauthenticated
	}

	var k models.Kind
	if kind != "" {
		parsed, err := models.ParseKind(kind)
		if err != nil {
			return nil, types.InvalidContent(err.Error())
		}
		k = parsed
	}

	items, err := s.store.ListContent(ctx, principal.OwnerID, k)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.ContentItem{}
	}
	return items, nil
}

// Delete removes the content item, then its embedding. An embedding left
// behind by a failed second step only yields a stale search hit, which the
// assembler drops; an item without an embedding would never be found again.
func (s *Service) Delete(ctx context.Context, principal models.Principal, id string) error {
	if principal.OwnerID == "" {
		return types.ErrUnauthenticated
	}
	if strings.TrimSpace(id) == "" {
		return types.ErrContentNotFound
	}
	log := s.logger.With("owner", principal.OwnerID, "content_id", id)

	if err := s.store.DeleteContent(ctx, principal.OwnerID, id); err != nil {
		if !errors.Is(err, types.ErrContentNotFound) {
			log.Error("deleting content failed", "error", err)
		}
		return err
	}
	if err := s.embeddings.DeleteEmbedding(context.WithoutCancel(ctx), principal.OwnerID, id); err != nil {
		log.Warn("content deleted but its embedding was left behind", "error", err)
	}

	log.Info("content deleted")
	return nil
}

func (s *Service) Tags(ctx context.Context, principal models.Principal) ([]models.Tag, error) {
	if principal.OwnerID == "" {
		return nil, types.ErrUnauthenticated
	}
	tags, err := s.store.ListTags(ctx, principal.OwnerID)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	return tags, nil
}
