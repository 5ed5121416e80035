package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xhad/mindvault/internal/logging"
	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
	"github.com/xhad/mindvault/pkg/llm"
)

type Config struct {
	TopK             int
	MaxQueryChars    int
	SkipEmptyContext bool // answer with the refusal sentence locally instead of calling the model
	EmbedTimeout     time.Duration
	SearchTimeout    time.Duration
	GenerateTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.MaxQueryChars <= 0 {
		c.MaxQueryChars = 2000
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 10 * time.Second
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 5 * time.Second
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 60 * time.Second
	}
	return c
}

// Orchestrator runs embed, search, assemble and generate in sequence. The
// first failing step ends the request.
type Orchestrator struct {
	embedder  types.Embedder
	index     types.VectorIndex
	assembler *Assembler
	generator types.Generator
	config    Config
	logger    *slog.Logger
}

func NewOrchestrator(embedder types.Embedder, index types.VectorIndex, assembler *Assembler, generator types.Generator, config Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		embedder:  embedder,
		index:     index,
		assembler: assembler,
		generator: generator,
		config:    config.withDefaults(),
		logger:    logger,
	}
}

// Answer answers rawQuery from the principal's own saved content.
func (o *Orchestrator) Answer(ctx context.Context, principal models.Principal, rawQuery string) (models.AnswerResult, error) {
	start := time.Now()

	if principal.OwnerID == "" {
		return models.AnswerResult{}, types.ErrUnauthenticated
	}
	query, err := o.validate(rawQuery)
	if err != nil {
		return models.AnswerResult{}, err
	}
	log := o.logger.With("owner", principal.OwnerID)

	vector, err := o.embed(ctx, query)
	if err != nil {
		log.Error("embedding failed", "error", err)
		return models.AnswerResult{}, err
	}

	hits, err := o.search(ctx, principal.OwnerID, vector)
	if err != nil {
		log.Error("vector search failed", "error", err)
		return models.AnswerResult{}, err
	}
	log.Debug("vector search", "hits", len(hits))

	records, contextText, err := o.assembler.Assemble(ctx, principal.OwnerID, hits)
	if err != nil {
		log.Error("context assembly failed", "error", err)
		return models.AnswerResult{}, err
	}

	answer, err := o.generate(ctx, query, contextText)
	if err != nil {
		log.Error("answer generation failed", "error", err)
		return models.AnswerResult{}, err
	}

	log.Info("answered query",
		"hits", len(hits),
		"matched", len(records),
		"context_chars", len(contextText),
		"duration", time.Since(start))

	return models.AnswerResult{AnswerText: answer, MatchedContent: records}, nil
}

func (o *Orchestrator) validate(rawQuery string) (string, error) {
	query := strings.TrimSpace(rawQuery)
	if query == "" {
		return "", types.InvalidQuery("query is empty")
	}
	if n := utf8.RuneCountInString(query); n > o.config.MaxQueryChars {
		return "", types.InvalidQuery(fmt.Sprintf("query is %d characters, the limit is %d", n, o.config.MaxQueryChars))
	}
	return query, nil
}

func (o *Orchestrator) embed(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.EmbedTimeout)
	defer cancel()

	vectors, err := o.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, types.EmbeddingError(err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, types.EmbeddingError(fmt.Errorf("expected one vector, got %d", len(vectors)))
	}
	return vectors[0], nil
}

func (o *Orchestrator) search(ctx context.Context, ownerID string, vector []float32) ([]models.RankedHit, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.SearchTimeout)
	defer cancel()

	hits, err := o.index.Search(ctx, ownerID, vector, o.config.TopK)
	if err != nil {
		return nil, types.VectorIndexError(err)
	}
	return hits, nil
}

func (o *Orchestrator) generate(ctx context.Context, query, contextText string) (string, error) {
	if contextText == "" && o.config.SkipEmptyContext {
		return llm.RefusalSentence, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.GenerateTimeout)
	defer cancel()

	answer, err := o.generator.Generate(ctx, query, contextText)
	if err != nil {
		return "", types.AnswerError(err)
	}
	return answer, nil
}
