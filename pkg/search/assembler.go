package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/xhad/mindvault/internal/logging"
	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
	"github.com/xhad/mindvault/pkg/processor"
)

const (
	DefaultMaxContextChars = 8000
	DefaultLookupTimeout   = 5 * time.Second
)

// Assembler turns ranked hits into the records and text the answer is
// grounded on.
type Assembler struct {
	store         types.ContentReader
	renderer      processor.Processor
	maxChars      int
	lookupTimeout time.Duration
	logger        *slog.Logger
}

func NewAssembler(store types.ContentReader, renderer processor.Processor, maxChars int, logger *slog.Logger) *Assembler {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Assembler{
		store:         store,
		renderer:      renderer,
		maxChars:      maxChars,
		lookupTimeout: DefaultLookupTimeout,
		logger:        logger,
	}
}

// WithLookupTimeout bounds each content lookup. Non-positive values keep the
// default.
func (a *Assembler) WithLookupTimeout(d time.Duration) *Assembler {
	if d > 0 {
		a.lookupTimeout = d
	}
	return a
}

// Assemble resolves hits to the owner's records in hit order. Ids that no
// longer resolve, or resolve to another owner, are dropped. A record whose
// line does not fit the context budget is dropped from both results.
func (a *Assembler) Assemble(ctx context.Context, ownerID string, hits []models.RankedHit) ([]models.ContentItem, string, error) {
	records := []models.ContentItem{}
	if len(hits) == 0 {
		return records, "", nil
	}

	ids := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if !seen[h.ContentID] {
			seen[h.ContentID] = true
			ids = append(ids, h.ContentID)
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	items, err := a.store.FindContent(lookupCtx, ownerID, ids)
	cancel()
	if err != nil {
		return nil, "", types.ContentStoreError(err)
	}

	byID := make(map[string]models.ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	var sb strings.Builder
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			a.logger.Debug("dropping unresolved hit", "owner", ownerID, "content_id", id)
			continue
		}
		if item.OwnerID != ownerID {
			a.logger.Warn("dropping hit owned by another user", "owner", ownerID, "content_id", id)
			continue
		}

		line := a.renderer.RenderItem(item)
		size := len(line)
		if sb.Len() > 0 {
			size++ // newline
		}
		if sb.Len()+size > a.maxChars {
			a.logger.Debug("context budget exhausted", "owner", ownerID, "content_id", id)
			continue
		}

		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
		records = append(records, item)
	}

	return records, sb.String(), nil
}
