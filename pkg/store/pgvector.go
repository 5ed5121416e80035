package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
)

type PGConfig struct {
	ConnString string
	VectorDim  int
}

// PGStore keeps content, tags, shares and embeddings in Postgres. Vector
// search is an exact cosine scan over the owner's embeddings.
type PGStore struct {
	config PGConfig
	pool   *pgxpool.Pool
}

func NewPGStore(ctx context.Context, config PGConfig) (*PGStore, error) {
	config = pgDefaults(config)

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PGStore{
		config: config,
		pool:   pool,
	}

	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func pgDefaults(config PGConfig) PGConfig {
	if config.VectorDim == 0 {
		config.VectorDim = 384 // all-MiniLM-L6-v2
	}
	return config
}

func schemaStatements(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			UNIQUE (owner_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS content (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			link TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS content_owner_created_idx ON content (owner_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS content_tags (
			content_id TEXT NOT NULL,
			tag_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (content_id, tag_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			content_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, dim),
		`CREATE INDEX IF NOT EXISTS embeddings_owner_idx ON embeddings (owner_id)`,
		// An HNSW scan filters by owner only after picking its global
		// candidates, so a small vault could get no hits at all.
		`DROP INDEX IF EXISTS embeddings_embedding_idx`,
		`CREATE TABLE IF NOT EXISTS vault_shares (
			owner_id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			shared BOOLEAN NOT NULL DEFAULT false,
			link_token TEXT UNIQUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
}

func (s *PGStore) initialize(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.config.VectorDim) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

const selectContent = `
	SELECT c.id, c.owner_id, c.kind, c.title, c.link, c.created_at,
		COALESCE(array_agg(t.id ORDER BY ct.position) FILTER (WHERE t.id IS NOT NULL), '{}'),
		COALESCE(array_agg(t.name ORDER BY ct.position) FILTER (WHERE t.id IS NOT NULL), '{}')
	FROM content c
	LEFT JOIN content_tags ct ON ct.content_id = c.id
	LEFT JOIN tags t ON t.id = ct.tag_id AND t.owner_id = c.owner_id`

func (s *PGStore) FindContent(ctx context.Context, ownerID string, ids []string) ([]models.ContentItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := selectContent + `
	WHERE c.owner_id = $1 AND c.id = ANY($2)
	GROUP BY c.id`

	rows, err := s.pool.Query(ctx, query, ownerID, ids)
	if err != nil {
		return nil, types.ContentStoreError(fmt.Errorf("failed to query content: %w", err))
	}
	return scanContent(rows)
}

func (s *PGStore) ListContent(ctx context.Context, ownerID string, kind models.Kind) ([]models.ContentItem, error) {
	query := selectContent + `
	WHERE c.owner_id = $1 AND ($2::text = '' OR c.kind = $2::text)
	GROUP BY c.id
	ORDER BY c.created_at DESC`

	rows, err := s.pool.Query(ctx, query, ownerID, string(kind))
	if err != nil {
		return nil, types.ContentStoreError(fmt.Errorf("failed to list content: %w", err))
	}
	return scanContent(rows)
}

func scanContent(rows pgx.Rows) ([]models.ContentItem, error) {
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		var (
			item     models.ContentItem
			kind     string
			tagIDs   []string
			tagNames []string
		)
		err := rows.Scan(
			&item.ID,
			&item.OwnerID,
			&kind,
			&item.Title,
			&item.SourceLink,
			&item.CreatedAt,
			&tagIDs,
			&tagNames,
		)
		if err != nil {
			return nil, types.ContentStoreError(fmt.Errorf("failed to scan row: %w", err))
		}
		item.Kind = models.Kind(kind)
		item.Tags = zipTags(item.OwnerID, tagIDs, tagNames)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, types.ContentStoreError(err)
	}

	return items, nil
}

func zipTags(ownerID string, ids, names []string) []models.Tag {
	tags := make([]models.Tag, 0, len(ids))
	for i := range ids {
		if i >= len(names) {
			break
		}
		tags = append(tags, models.Tag{ID: ids[i], OwnerID: ownerID, Name: names[i]})
	}
	return tags
}

// EnsureTags finds or creates each named tag for the owner, in input order.
func (s *PGStore) EnsureTags(ctx context.Context, ownerID string, names []string) ([]models.Tag, error) {
	const stmt = `
		INSERT INTO tags (id, owner_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, owner_id, name`

	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		var tag models.Tag
		err := s.pool.QueryRow(ctx, stmt, uuid.NewString(), ownerID, name).
			Scan(&tag.ID, &tag.OwnerID, &tag.Name)
		if err != nil {
			return nil, types.ContentStoreError(fmt.Errorf("failed to upsert tag %q: %w", name, err))
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (s *PGStore) ListTags(ctx context.Context, ownerID string) ([]models.Tag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, name FROM tags WHERE owner_id = $1 ORDER BY name`, ownerID)
	if err != nil {
		return nil, types.ContentStoreError(fmt.Errorf("failed to list tags: %w", err))
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.OwnerID, &tag.Name); err != nil {
			return nil, types.ContentStoreError(fmt.Errorf("failed to scan tag: %w", err))
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, types.ContentStoreError(err)
	}
	return tags, nil
}

func (s *PGStore) CreateContent(ctx context.Context, item models.ContentItem) (models.ContentItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.ContentItem{}, types.ContentStoreError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO content (id, owner_id, kind, title, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.OwnerID, string(item.Kind), item.Title, item.SourceLink, item.CreatedAt)
	if err != nil {
		return models.ContentItem{}, types.ContentStoreError(fmt.Errorf("failed to insert content: %w", err))
	}

	for i, tag := range item.Tags {
		_, err = tx.Exec(ctx, `
			INSERT INTO content_tags (content_id, tag_id, position)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			item.ID, tag.ID, i)
		if err != nil {
			return models.ContentItem{}, types.ContentStoreError(fmt.Errorf("failed to link tag: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.ContentItem{}, types.ContentStoreError(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return item, nil
}

func (s *PGStore) DeleteContent(ctx context.Context, ownerID, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM content WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to delete content: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrContentNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM content_tags WHERE content_id = $1`, id); err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to unlink tags: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (s *PGStore) SaveEmbedding(ctx context.Context, e models.Embedding) error {
	if len(e.Vector) != s.config.VectorDim {
		return types.ContentStoreError(fmt.Errorf("embedding has %d dimensions, index expects %d",
			len(e.Vector), s.config.VectorDim))
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO embeddings (content_id, owner_id, embedding)
		VALUES ($1, $2, $3)`,
		e.ContentID, e.OwnerID, pgvector.NewVector(e.Vector))
	if err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to insert embedding: %w", err))
	}
	return nil
}

func (s *PGStore) DeleteEmbedding(ctx context.Context, ownerID, contentID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM embeddings WHERE content_id = $1 AND owner_id = $2`, contentID, ownerID)
	if err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to delete embedding: %w", err))
	}
	return nil
}

// searchQuery narrows to the owner's rows before ranking. The materialized
// CTE keeps the planner from ranking the whole table first.
const searchQuery = `
	WITH owned AS MATERIALIZED (
		SELECT content_id, embedding
		FROM embeddings
		WHERE owner_id = $2
	)
	SELECT content_id, 1 - (embedding <=> $1) AS score
	FROM owned
	ORDER BY embedding <=> $1
	LIMIT $3`

// Search returns the owner's k nearest embeddings by cosine similarity. The
// owner filter is applied before ranking; there is no unfiltered path.
func (s *PGStore) Search(ctx context.Context, ownerID string, vector []float32, k int) ([]models.RankedHit, error) {
	if err := checkSearch(ownerID, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultTopK
	}

	rows, err := s.pool.Query(ctx, searchQuery, pgvector.NewVector(vector), ownerID, k)
	if err != nil {
		return nil, types.VectorIndexError(fmt.Errorf("failed to query embeddings: %w", err))
	}
	defer rows.Close()

	var hits []models.RankedHit
	for rows.Next() {
		var hit models.RankedHit
		if err := rows.Scan(&hit.ContentID, &hit.Score); err != nil {
			return nil, types.VectorIndexError(fmt.Errorf("failed to scan row: %w", err))
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, types.VectorIndexError(err)
	}

	return hits, nil
}

func (s *PGStore) GetShare(ctx context.Context, ownerID string) (models.ShareState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT owner_id, username, shared, COALESCE(link_token, ''), updated_at
		FROM vault_shares WHERE owner_id = $1`, ownerID)
	return scanShare(row)
}

func (s *PGStore) FindShareByToken(ctx context.Context, token string) (models.ShareState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT owner_id, username, shared, COALESCE(link_token, ''), updated_at
		FROM vault_shares WHERE link_token = $1 AND shared`, token)
	return scanShare(row)
}

func scanShare(row pgx.Row) (models.ShareState, error) {
	var state models.ShareState
	err := row.Scan(&state.OwnerID, &state.Username, &state.Shared, &state.LinkToken, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ShareState{}, types.ErrShareNotFound
	}
	if err != nil {
		return models.ShareState{}, types.ContentStoreError(fmt.Errorf("failed to read share: %w", err))
	}
	return state, nil
}

func (s *PGStore) PutShare(ctx context.Context, state models.ShareState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vault_shares (owner_id, username, shared, link_token, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (owner_id) DO UPDATE SET
			username = EXCLUDED.username,
			shared = EXCLUDED.shared,
			link_token = EXCLUDED.link_token,
			updated_at = EXCLUDED.updated_at`,
		state.OwnerID, state.Username, state.Shared, state.LinkToken, state.UpdatedAt)
	if err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to save share: %w", err))
	}
	return nil
}

func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
