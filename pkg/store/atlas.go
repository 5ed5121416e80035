package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
)

type AtlasConfig struct {
	URI           string
	Database      string
	IndexName     string // Atlas vector search index on embeddings.embedding, filter field ownerId
	NumCandidates int
}

// AtlasStore is the MongoDB Atlas backend. The vector index itself is
// managed in Atlas; only the regular indexes are created here.
type AtlasStore struct {
	config     AtlasConfig
	client     *mongo.Client
	content    *mongo.Collection
	tags       *mongo.Collection
	embeddings *mongo.Collection
	shares     *mongo.Collection
}

type contentDoc struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"ownerId"`
	Kind      string    `bson:"kind"`
	Title     string    `bson:"title"`
	Link      string    `bson:"link,omitempty"`
	Tags      []tagDoc  `bson:"tags"`
	CreatedAt time.Time `bson:"createdAt"`
}

type tagDoc struct {
	ID      string `bson:"_id"`
	OwnerID string `bson:"ownerId,omitempty"`
	Name    string `bson:"name"`
}

type embeddingDoc struct {
	ContentID string    `bson:"_id"`
	OwnerID   string    `bson:"ownerId"`
	Ref       string    `bson:"contentId"`
	Embedding []float32 `bson:"embedding"`
}

type shareDoc struct {
	OwnerID   string    `bson:"_id"`
	Username  string    `bson:"username"`
	Shared    bool      `bson:"shared"`
	LinkToken string    `bson:"linkToken,omitempty"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func NewAtlasStore(ctx context.Context, config AtlasConfig) (*AtlasStore, error) {
	if config.Database == "" {
		config.Database = "mindvault"
	}
	if config.IndexName == "" {
		config.IndexName = "vector_index"
	}
	if config.NumCandidates == 0 {
		config.NumCandidates = DefaultNumCandidates
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	db := client.Database(config.Database)
	s := &AtlasStore{
		config:     config,
		client:     client,
		content:    db.Collection("contents"),
		tags:       db.Collection("tags"),
		embeddings: db.Collection("embeddings"),
		shares:     db.Collection("links"),
	}

	if err := s.initialize(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *AtlasStore) initialize(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.tags, mongo.IndexModel{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.content, mongo.IndexModel{
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
		}},
		{s.shares, mongo.IndexModel{
			Keys:    bson.D{{Key: "linkToken", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

// vectorSearchPipeline builds the owner-filtered $vectorSearch aggregation.
func vectorSearchPipeline(index, ownerID string, vector []float32, k, numCandidates int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: index},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: candidates(k, numCandidates)},
			{Key: "limit", Value: k},
			{Key: "filter", Value: bson.D{{Key: "ownerId", Value: ownerID}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "contentId", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

func (s *AtlasStore) Search(ctx context.Context, ownerID string, vector []float32, k int) ([]models.RankedHit, error) {
	if err := checkSearch(ownerID, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultTopK
	}

	cursor, err := s.embeddings.Aggregate(ctx, vectorSearchPipeline(s.config.IndexName, ownerID, vector, k, s.config.NumCandidates))
	if err != nil {
		return nil, types.VectorIndexError(fmt.Errorf("vector search failed: %w", err))
	}

	var rows []struct {
		ContentID string  `bson:"contentId"`
		Score     float64 `bson:"score"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, types.VectorIndexError(fmt.Errorf("failed to decode hits: %w", err))
	}

	hits := make([]models.RankedHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, models.RankedHit{ContentID: r.ContentID, Score: r.Score})
	}
	return hits, nil
}

func (s *AtlasStore) FindContent(ctx context.Context, ownerID string, ids []string) ([]models.ContentItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	filter := bson.D{
		{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}},
		{Key: "ownerId", Value: ownerID},
	}
	return s.findContent(ctx, filter, nil)
}

func (s *AtlasStore) ListContent(ctx context.Context, ownerID string, kind models.Kind) ([]models.ContentItem, error) {
	filter := bson.D{{Key: "ownerId", Value: ownerID}}
	if kind != "" {
		filter = append(filter, bson.E{Key: "kind", Value: string(kind)})
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return s.findContent(ctx, filter, opts)
}

func (s *AtlasStore) findContent(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]models.ContentItem, error) {
	cursor, err := s.content.Find(ctx, filter, opts)
	if err != nil {
		return nil, types.ContentStoreError(fmt.Errorf("failed to query content: %w", err))
	}

	var docs []contentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, types.ContentStoreError(fmt.Errorf("failed to decode content: %w", err))
	}

	items := make([]models.ContentItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toModel())
	}
	return items, nil
}

func (d contentDoc) toModel() models.ContentItem {
	item := models.ContentItem{
		ID:         d.ID,
		OwnerID:    d.OwnerID,
		Kind:       models.Kind(d.Kind),
		Title:      d.Title,
		SourceLink: d.Link,
		CreatedAt:  d.CreatedAt,
		Tags:       make([]models.Tag, 0, len(d.Tags)),
	}
	for _, t := range d.Tags {
		item.Tags = append(item.Tags, models.Tag{ID: t.ID, OwnerID: d.OwnerID, Name: t.Name})
	}
	return item
}

func contentFromModel(item models.ContentItem) contentDoc {
	doc := contentDoc{
		ID:        item.ID,
		OwnerID:   item.OwnerID,
		Kind:      string(item.Kind),
		Title:     item.Title,
		Link:      item.SourceLink,
		CreatedAt: item.CreatedAt,
		Tags:      make([]tagDoc, 0, len(item.Tags)),
	}
	for _, t := range item.Tags {
		doc.Tags = append(doc.Tags, tagDoc{ID: t.ID, Name: t.Name})
	}
	return doc
}

func (s *AtlasStore) EnsureTags(ctx context.Context, ownerID string, names []string) ([]models.Tag, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		filter := bson.D{{Key: "ownerId", Value: ownerID}, {Key: "name", Value: name}}
		update := bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "_id", Value: uuid.NewString()}}}}

		var doc tagDoc
		if err := s.tags.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
			return nil, types.ContentStoreError(fmt.Errorf("failed to upsert tag %q: %w", name, err))
		}
		tags = append(tags, models.Tag{ID: doc.ID, OwnerID: ownerID, Name: doc.Name})
	}
	return tags, nil
}

func (s *AtlasStore) ListTags(ctx context.Context, ownerID string) ([]models.Tag, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.tags.Find(ctx, bson.D{{Key: "ownerId", Value: ownerID}}, opts)
	if err != nil {
		return nil, types.ContentStoreError(fmt.Errorf("failed to list tags: %w", err))
	}

	var docs []tagDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, types.ContentStoreError(fmt.Errorf("failed to decode tags: %w", err))
	}

	tags := make([]models.Tag, 0, len(docs))
	for _, d := range docs {
		tags = append(tags, models.Tag{ID: d.ID, OwnerID: d.OwnerID, Name: d.Name})
	}
	return tags, nil
}

func (s *AtlasStore) CreateContent(ctx context.Context, item models.ContentItem) (models.ContentItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	if _, err := s.content.InsertOne(ctx, contentFromModel(item)); err != nil {
		return models.ContentItem{}, types.ContentStoreError(fmt.Errorf("failed to insert content: %w", err))
	}
	return item, nil
}

func (s *AtlasStore) DeleteContent(ctx context.Context, ownerID, id string) error {
	res, err := s.content.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "ownerId", Value: ownerID}})
	if err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to delete content: %w", err))
	}
	if res.DeletedCount == 0 {
		return types.ErrContentNotFound
	}
	return nil
}

func (s *AtlasStore) SaveEmbedding(ctx context.Context, e models.Embedding) error {
	doc := embeddingDoc{ContentID: e.ContentID, OwnerID: e.OwnerID, Ref: e.ContentID, Embedding: e.Vector}
	if _, err := s.embeddings.InsertOne(ctx, doc); err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to insert embedding: %w", err))
	}
	return nil
}

func (s *AtlasStore) DeleteEmbedding(ctx context.Context, ownerID, contentID string) error {
	_, err := s.embeddings.DeleteOne(ctx, bson.D{{Key: "_id", Value: contentID}, {Key: "ownerId", Value: ownerID}})
	if err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to delete embedding: %w", err))
	}
	return nil
}

func (s *AtlasStore) GetShare(ctx context.Context, ownerID string) (models.ShareState, error) {
	return s.findShare(ctx, bson.D{{Key: "_id", Value: ownerID}})
}

func (s *AtlasStore) FindShareByToken(ctx context.Context, token string) (models.ShareState, error) {
	return s.findShare(ctx, bson.D{{Key: "linkToken", Value: token}, {Key: "shared", Value: true}})
}

func (s *AtlasStore) findShare(ctx context.Context, filter bson.D) (models.ShareState, error) {
	var doc shareDoc
	err := s.shares.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ShareState{}, types.ErrShareNotFound
	}
	if err != nil {
		return models.ShareState{}, types.ContentStoreError(fmt.Errorf("failed to read share: %w", err))
	}
	return models.ShareState{
		OwnerID:   doc.OwnerID,
		Username:  doc.Username,
		Shared:    doc.Shared,
		LinkToken: doc.LinkToken,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *AtlasStore) PutShare(ctx context.Context, state models.ShareState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	doc := shareDoc{
		OwnerID:   state.OwnerID,
		Username:  state.Username,
		Shared:    state.Shared,
		LinkToken: state.LinkToken,
		UpdatedAt: state.UpdatedAt,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.shares.ReplaceOne(ctx, bson.D{{Key: "_id", Value: state.OwnerID}}, doc, opts); err != nil {
		return types.ContentStoreError(fmt.Errorf("failed to save share: %w", err))
	}
	return nil
}

func (s *AtlasStore) Close() {
	if s.client != nil {
		_ = s.client.Disconnect(context.Background())
	}
}
