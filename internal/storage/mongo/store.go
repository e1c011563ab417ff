// Package mongo implements the DocumentStore capability on MongoDB. The
// declarative filter and pipeline shapes translate one-to-one onto match,
// facet and unionWith stages.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/earn-network/payout-engine/internal/storage"
)

// Store executes document queries against one MongoDB database.
type Store struct {
	db *mongo.Database
}

var _ storage.DocumentStore = (*Store)(nil)

// New creates a store over the given database handle.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect dials MongoDB and returns a store plus a disconnect function.
func Connect(ctx context.Context, uri, database string) (*Store, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return New(client.Database(database)), client.Disconnect, nil
}

func (s *Store) Count(ctx context.Context, collection string, filter storage.Filter) (int64, error) {
	return s.db.Collection(collection).CountDocuments(ctx, toBSONFilter(filter))
}

func (s *Store) Find(ctx context.Context, collection string, filter storage.Filter, opts storage.FindOptions) ([]storage.Document, error) {
	findOpts := options.Find()
	if opts.SortField != "" {
		findOpts.SetSort(bson.D{{Key: opts.SortField, Value: sortDirection(opts.Ascending)}})
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Lean {
		findOpts.SetProjection(bson.M{"_id": 0})
	}

	cursor, err := s.db.Collection(collection).Find(ctx, toBSONFilter(filter), findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, err
	}
	return normalizeAll(raw), nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter storage.Filter, lean bool) (storage.Document, error) {
	findOpts := options.FindOne()
	if lean {
		findOpts.SetProjection(bson.M{"_id": 0})
	}

	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, toBSONFilter(filter), findOpts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return normalize(raw), nil
}

func (s *Store) FindOneAndUpsert(ctx context.Context, collection string, filter storage.Filter, set storage.Document) (storage.Document, error) {
	now := time.Now().UTC()
	setDoc := bson.M{}
	for k, v := range set {
		setDoc[k] = v
	}
	if _, ok := setDoc["updatedAt"]; !ok {
		setDoc["updatedAt"] = now
	}

	update := bson.M{
		"$set":         setDoc,
		"$setOnInsert": bson.M{"createdAt": now},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var raw bson.M
	err := s.db.Collection(collection).FindOneAndUpdate(ctx, toBSONFilter(filter), update, opts).Decode(&raw)
	if err != nil {
		return nil, err
	}
	return normalize(raw), nil
}

func (s *Store) BulkUpsert(ctx context.Context, collection string, ops []storage.BulkOp) (int64, error) {
	if len(ops) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(ops))
	for _, op := range ops {
		setDoc := bson.M{}
		for k, v := range op.Set {
			setDoc[k] = v
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(toBSONFilter(op.Filter)).
			SetUpdate(bson.M{"$set": setDoc}).
			SetUpsert(true))
	}

	result, err := s.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, err
	}
	if result == nil {
		return 0, nil
	}
	return result.InsertedCount + result.ModifiedCount + result.UpsertedCount, nil
}

func (s *Store) Aggregate(ctx context.Context, collection string, pipeline storage.Pipeline) (storage.AggregateResult, error) {
	if pipeline.Raw != nil {
		stages := make(mongo.Pipeline, 0, len(pipeline.Raw))
		for _, stage := range pipeline.Raw {
			doc := bson.D{}
			for k, v := range stage {
				doc = append(doc, bson.E{Key: k, Value: v})
			}
			stages = append(stages, doc)
		}
		cursor, err := s.db.Collection(collection).Aggregate(ctx, stages)
		if err != nil {
			return storage.AggregateResult{}, err
		}
		defer cursor.Close(ctx)

		var raw []bson.M
		if err := cursor.All(ctx, &raw); err != nil {
			return storage.AggregateResult{}, err
		}
		return storage.AggregateResult{Data: normalizeAll(raw)}, nil
	}

	stages := buildPipeline(pipeline)
	cursor, err := s.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return storage.AggregateResult{}, err
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return storage.AggregateResult{}, err
	}

	if pipeline.Facet == nil {
		return storage.AggregateResult{Data: normalizeAll(raw)}, nil
	}
	if len(raw) == 0 {
		return storage.AggregateResult{HasTotal: pipeline.Facet.WithTotal}, nil
	}
	return decodeFacet(raw[0], pipeline.Facet.WithTotal)
}

// buildPipeline emits the declarative shape:
// match -> unionWith... -> facet{data, metadata}.
func buildPipeline(pipeline storage.Pipeline) mongo.Pipeline {
	var stages mongo.Pipeline

	stages = append(stages, bson.D{{Key: "$match", Value: toBSONFilter(pipeline.Match)}})

	for _, branch := range pipeline.Unions {
		sub := bson.A{
			bson.M{"$match": toBSONFilter(branch.Match)},
		}
		if branch.Page.SortField != "" {
			sub = append(sub, bson.M{"$sort": bson.M{branch.Page.SortField: sortDirection(branch.Page.Ascending)}})
		}
		if branch.Page.Skip > 0 {
			sub = append(sub, bson.M{"$skip": branch.Page.Skip})
		}
		if branch.Page.Limit > 0 {
			sub = append(sub, bson.M{"$limit": branch.Page.Limit})
		}
		sub = append(sub, bson.M{"$addFields": bson.M{"collectionName": branch.GroupKey}})

		stages = append(stages, bson.D{{Key: "$unionWith", Value: bson.M{
			"coll":     branch.Collection,
			"pipeline": sub,
		}}})
	}

	if pipeline.Facet != nil {
		data := bson.A{}
		if pipeline.Facet.Page.SortField != "" {
			data = append(data, bson.M{"$sort": bson.M{pipeline.Facet.Page.SortField: sortDirection(pipeline.Facet.Page.Ascending)}})
		}
		if pipeline.Facet.Page.Skip > 0 {
			data = append(data, bson.M{"$skip": pipeline.Facet.Page.Skip})
		}
		if pipeline.Facet.Page.Limit > 0 {
			data = append(data, bson.M{"$limit": pipeline.Facet.Page.Limit})
		}

		facet := bson.M{"data": data}
		if pipeline.Facet.WithTotal {
			facet["metadata"] = bson.A{bson.M{"$count": "total"}}
		}
		stages = append(stages, bson.D{{Key: "$facet", Value: facet}})
	}

	return stages
}

func decodeFacet(doc bson.M, withTotal bool) (storage.AggregateResult, error) {
	result := storage.AggregateResult{HasTotal: withTotal}

	if data, ok := doc["data"].(primitive.A); ok {
		for _, entry := range data {
			if m, ok := entry.(bson.M); ok {
				result.Data = append(result.Data, normalize(m))
			}
		}
	}

	if !withTotal {
		return result, nil
	}
	metadata, ok := doc["metadata"].(primitive.A)
	if !ok || len(metadata) == 0 {
		// No matches; $count emits nothing.
		return result, nil
	}
	entry, ok := metadata[0].(bson.M)
	if !ok {
		return result, fmt.Errorf("unexpected metadata facet shape %T", metadata[0])
	}
	switch n := entry["total"].(type) {
	case int32:
		result.Total = int64(n)
	case int64:
		result.Total = n
	case float64:
		result.Total = int64(n)
	}
	return result, nil
}

func toBSONFilter(filter storage.Filter) bson.M {
	out := bson.M{}
	for field, value := range filter {
		if d, ok := value.(storage.Disjunction); ok {
			out[field] = bson.M{"$in": bson.A(d.Alternatives)}
			continue
		}
		if r, ok := value.(storage.Range); ok {
			bounds := bson.M{}
			if r.GTE != nil {
				bounds["$gte"] = r.GTE
			}
			if r.LTE != nil {
				bounds["$lte"] = r.LTE
			}
			out[field] = bounds
			continue
		}
		out[field] = value
	}
	return out
}

func sortDirection(ascending bool) int {
	if ascending {
		return 1
	}
	return -1
}

func normalizeAll(raw []bson.M) []storage.Document {
	out := make([]storage.Document, len(raw))
	for i, doc := range raw {
		out[i] = normalize(doc)
	}
	return out
}

// normalize converts BSON decode artifacts into the plain Go values the rest
// of the engine works with.
func normalize(doc bson.M) storage.Document {
	out := make(storage.Document, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch value := v.(type) {
	case primitive.DateTime:
		return value.Time().UTC()
	case primitive.ObjectID:
		return value.Hex()
	case primitive.A:
		out := make([]interface{}, len(value))
		for i, entry := range value {
			out[i] = normalizeValue(entry)
		}
		return out
	case bson.M:
		return map[string]interface{}(normalize(value))
	case primitive.D:
		m := make(map[string]interface{}, len(value))
		for _, e := range value {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	default:
		return v
	}
}
