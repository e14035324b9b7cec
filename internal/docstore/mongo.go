package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Server error codes raised when a query cannot be planned without an index
// (notablescan) or a blocking sort exceeds its memory budget.
const (
	mongoNoQueryExecutionPlans = 291
	mongoSortExceededMemory    = 292
)

// MongoStore is a Store backed by MongoDB. Document ids are stored as string _id values.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
	logger *zap.Logger
}

var _ Store = (*MongoStore)(nil)

// ConnectMongo dials uri and pings the server before returning.
func ConnectMongo(ctx context.Context, uri, database string, log *zap.Logger) (*MongoStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	log.Info("connected_to_mongodb", zap.String("database", database))
	return &MongoStore{client: client, db: client.Database(database), now: time.Now, logger: log}, nil
}

func (s *MongoStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := primitive.NewObjectID().Hex()
	doc := bson.M(resolveTimestamps(data, s.now().UTC()))
	doc["_id"] = id
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to create document in %s: %w", collection, err)
	}
	return id, nil
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	resolved := bson.M(resolveTimestamps(data, s.now().UTC()))
	delete(resolved, "_id")
	col := s.db.Collection(collection)
	var err error
	if merge {
		_, err = col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": resolved}, options.Update().SetUpsert(true))
	} else {
		_, err = col.ReplaceOne(ctx, bson.M{"_id": id}, resolved, options.Replace().SetUpsert(true))
	}
	if err != nil {
		return fmt.Errorf("failed to set document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Read(ctx context.Context, collection, id string) (*Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s/%s: %w", collection, id, err)
	}
	doc := fromBSON(raw)
	return &doc, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	resolved := bson.M(resolveTimestamps(partial, s.now().UTC()))
	delete(resolved, "_id")
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": resolved})
	if err != nil {
		return fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, q Query) ([]Document, error) {
	filter := bson.D{}
	for _, f := range q.Filters {
		filter = append(filter, bson.E{Key: f.Field, Value: f.Value})
	}
	opts := options.Find()
	if len(q.OrderBy) > 0 {
		opts.SetSort(sortSpec(q.OrderBy))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, s.classify(q, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out []Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, fromBSON(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, s.classify(q, err)
	}
	return out, nil
}

func (s *MongoStore) classify(q Query, err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(mongoNoQueryExecutionPlans) || se.HasErrorCode(mongoSortExceededMemory)) {
		s.logger.Warn("mongodb_query_requires_index", zap.String("query", q.String()), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrIndexRequired, q, err)
	}
	return fmt.Errorf("failed to query %s: %w", q.Collection, err)
}

func sortSpec(orders []Order) bson.D {
	keys := bson.D{}
	for _, o := range orders {
		dir := 1
		if o.Direction == Desc {
			dir = -1
		}
		keys = append(keys, bson.E{Key: o.Field, Value: dir})
	}
	return keys
}

// EnsureIndexes creates the compound indexes if they do not exist.
func (s *MongoStore) EnsureIndexes(ctx context.Context, indexes []Index) error {
	for _, idx := range indexes {
		names := make([]string, 0, len(idx.Fields))
		for _, f := range idx.Fields {
			names = append(names, f.Field)
		}
		model := mongo.IndexModel{
			Keys:    sortSpec(idx.Fields),
			Options: options.Index().SetName("idx_" + strings.Join(names, "_")),
		}
		if _, err := s.db.Collection(idx.Collection).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to create index on %s(%s): %w", idx.Collection, strings.Join(names, ","), err)
		}
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func fromBSON(raw bson.M) Document {
	id := fmt.Sprint(raw["_id"])
	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		id = oid.Hex()
	}
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		data[k] = fromBSONValue(v)
	}
	return Document{ID: id, Data: data}
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = fromBSONValue(inner)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSONValue(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = fromBSONValue(inner)
		}
		return out
	case int32:
		return int64(t)
	}
	return v
}
