package vectordb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hupe1980/chatmesh/core"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore implements Store on MongoDB Atlas vector search. The Atlas
// vector index (cosine similarity on "embedding") must exist.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	index      string
}

type mongoChunk struct {
	ID        string         `bson:"_id"`
	Content   string         `bson:"content"`
	Metadata  map[string]any `bson:"metadata"`
	Embedding []float64      `bson:"embedding"`
	Score     float64        `bson:"score,omitempty"`
}

// NewMongoStore connects and pings the cluster.
func NewMongoStore(ctx context.Context, uri, database, collection, index string) (*MongoStore, error) {
	if uri == "" {
		return nil, core.NewConfigurationError("mongo uri is required")
	}
	if database == "" || collection == "" {
		return nil, core.NewConfigurationError("mongo database and collection names are required")
	}
	if index == "" {
		index = "vector_index"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		index:      index,
	}, nil
}

// Upsert implements Store.
func (s *MongoStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		doc := mongoChunk{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  r.Metadata,
			Embedding: float64Embedding(r.Embedding),
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	_, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

// Query implements Store using $vectorSearch. Atlas reports cosine scores
// normalized to [0, 1]; they are mapped back to [-1, 1].
func (s *MongoStore) Query(ctx context.Context, vector []float32, k int) ([]core.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.index},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: float64Embedding(vector)},
			{Key: "numCandidates", Value: int64(k * 10)},
			{Key: "limit", Value: int64(k)},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []core.SearchResult
	for cursor.Next(ctx) {
		var doc mongoChunk
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		results = append(results, core.SearchResult{
			ID:       doc.ID,
			Content:  doc.Content,
			Score:    2*doc.Score - 1,
			Metadata: doc.Metadata,
		})
	}
	return results, cursor.Err()
}

// Count implements Store.
func (s *MongoStore) Count(ctx context.Context) (int, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	return int(n), err
}

// Reset implements Store.
func (s *MongoStore) Reset(ctx context.Context) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{})
	return err
}

// Close implements Store.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func float64Embedding(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}
