package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LCOGT/photonranch-userinfo/internal/domain"
	"github.com/LCOGT/photonranch-userinfo/internal/numeric"
)

type recordCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MongoTable stores user records as documents keyed by (user_id, last_updated).
// Numbers are persisted as Decimal128.
type MongoTable struct {
	records recordCollection
	pinger  Pinger
}

// NewMongoTable constructs a MongoTable over the records collection.
func NewMongoTable(records recordCollection, pinger Pinger) *MongoTable {
	return &MongoTable{records: records, pinger: pinger}
}

var withoutObjectID = bson.M{"_id": 0}

// Get performs a point lookup of key.
func (t *MongoTable) Get(ctx context.Context, key domain.Key) (domain.UserRecord, bool, error) {
	if err := t.ready(ctx); err != nil {
		return nil, false, err
	}

	result := t.records.FindOne(ctx, keyFilter(key), options.FindOne().SetProjection(withoutObjectID))
	return decodeSingle(result)
}

// Latest returns the document with the greatest last_updated for userID.
func (t *MongoTable) Latest(ctx context.Context, userID string) (domain.UserRecord, bool, error) {
	if err := t.ready(ctx); err != nil {
		return nil, false, err
	}

	result := t.records.FindOne(ctx,
		bson.M{domain.FieldUserID: userID},
		options.FindOne().
			SetSort(bson.D{{Key: domain.FieldLastUpdated, Value: -1}}).
			SetProjection(withoutObjectID),
	)
	return decodeSingle(result)
}

// Delete removes the document at key.
func (t *MongoTable) Delete(ctx context.Context, key domain.Key) (domain.WriteAck, error) {
	if err := t.ready(ctx); err != nil {
		return domain.WriteAck{}, err
	}

	if _, err := t.records.DeleteOne(ctx, keyFilter(key)); err != nil {
		return domain.WriteAck{}, fmt.Errorf("delete document: %w", err)
	}

	return domain.NewWriteAck(uuid.NewString()), nil
}

// Put upserts record under its own key.
func (t *MongoTable) Put(ctx context.Context, record domain.UserRecord) (domain.WriteAck, error) {
	if err := t.ready(ctx); err != nil {
		return domain.WriteAck{}, err
	}

	doc, err := toBSON(record)
	if err != nil {
		return domain.WriteAck{}, fmt.Errorf("encode document: %w", err)
	}

	if _, err := t.records.ReplaceOne(ctx, keyFilter(record.Key()), doc, options.Replace().SetUpsert(true)); err != nil {
		return domain.WriteAck{}, fmt.Errorf("replace document: %w", err)
	}

	return domain.NewWriteAck(uuid.NewString()), nil
}

// Ping verifies the deployment is reachable.
func (t *MongoTable) Ping(ctx context.Context) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	if t.pinger == nil {
		return errors.New("mongo pinger is not configured")
	}

	return t.pinger.Ping(ctx)
}

func (t *MongoTable) ready(ctx context.Context) error {
	if t == nil || t.records == nil {
		return errors.New("mongo table is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

func keyFilter(key domain.Key) bson.M {
	return bson.M{
		domain.FieldUserID:      key.UserID,
		domain.FieldLastUpdated: key.LastUpdated,
	}
}

func decodeSingle(result *mongo.SingleResult) (domain.UserRecord, bool, error) {
	if result == nil {
		return nil, false, errors.New("find document returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find document: %w", err)
	}

	var doc bson.M
	if err := result.Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("decode document: %w", err)
	}
	delete(doc, "_id")

	record, err := fromBSONMap(doc)
	if err != nil {
		return nil, false, fmt.Errorf("decode document: %w", err)
	}

	return domain.UserRecord(record), true, nil
}

func toBSON(m map[string]any) (bson.M, error) {
	out := make(bson.M, len(m))
	for k, v := range m {
		converted, err := toBSONValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = converted
	}
	return out, nil
}

func toBSONValue(v any) (any, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		d, err := primitive.ParseDecimal128(val.String())
		if err != nil {
			return nil, fmt.Errorf("decimal128 %s: %w", val, err)
		}
		return d, nil
	case []decimal.Decimal:
		out := make(bson.A, len(val))
		for i, item := range val {
			converted, err := toBSONValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case domain.UserRecord:
		return toBSON(val)
	case map[string]any:
		return toBSON(val)
	case []any:
		out := make(bson.A, len(val))
		for i, item := range val {
			converted, err := toBSONValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = converted
		}
		return out, nil
	default:
		return v, nil
	}
}

func fromBSONMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		converted, err := fromBSONValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = converted
	}
	return out, nil
}

func fromBSONValue(v any) (any, error) {
	switch val := v.(type) {
	case primitive.Decimal128:
		return numeric.Parse(val.String())
	case int32, int64, float64:
		if d, ok := numeric.ToDecimal(val); ok {
			return d, nil
		}
		return v, nil
	case primitive.M:
		return fromBSONMap(val)
	case primitive.D:
		return fromBSONMap(val.Map())
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			converted, err := fromBSONValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = converted
		}
		return out, nil
	default:
		return v, nil
	}
}
