package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LCOGT/photonranch-userinfo/internal/domain"
)

func TestMongoGetDecodesDecimal128(t *testing.T) {
	balance, err := primitive.ParseDecimal128("42.5")
	if err != nil {
		t.Fatalf("failed to build decimal128: %v", err)
	}

	records := &fakeRecords{findDoc: bson.M{
		"_id":            primitive.NewObjectID(),
		"user_id":        "user-1",
		"last_updated":   "2024-05-01T10:00:00Z",
		"available_time": balance,
		"sessions":       int32(3),
		"prefs":          bson.M{"slots": bson.A{int64(2), "night"}},
	}}
	table := NewMongoTable(records, nil)

	key := domain.Key{UserID: "user-1", LastUpdated: "2024-05-01T10:00:00Z"}
	record, found, err := table.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !found {
		t.Fatalf("expected document to be found")
	}

	if _, ok := record["_id"]; ok {
		t.Fatalf("expected _id to be stripped, got %v", record)
	}
	got, ok := record.AvailableTime()
	if !ok || !got.Equal(decimal.RequireFromString("42.5")) {
		t.Fatalf("expected available_time 42.5, got %v", record["available_time"])
	}
	if d, ok := record["sessions"].(decimal.Decimal); !ok || !d.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected sessions decimal 3, got %#v", record["sessions"])
	}

	prefs, ok := record["prefs"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %#v", record["prefs"])
	}
	slots, ok := prefs["slots"].([]any)
	if !ok || len(slots) != 2 {
		t.Fatalf("expected nested list, got %#v", prefs["slots"])
	}
	if d, ok := slots[0].(decimal.Decimal); !ok || !d.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected nested decimal 2, got %#v", slots[0])
	}

	filter, ok := records.findFilters[0].(bson.M)
	if !ok {
		t.Fatalf("expected bson.M filter, got %T", records.findFilters[0])
	}
	if filter["user_id"] != key.UserID || filter["last_updated"] != key.LastUpdated {
		t.Fatalf("unexpected filter %v", filter)
	}
}

func TestMongoGetReportsMissingDocument(t *testing.T) {
	table := NewMongoTable(&fakeRecords{findErr: mongo.ErrNoDocuments}, nil)

	record, found, err := table.Get(context.Background(), domain.Key{UserID: "u", LastUpdated: "t"})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if found || record != nil {
		t.Fatalf("expected missing document, got found=%v record=%v", found, record)
	}
}

func TestMongoGetPropagatesFindErrors(t *testing.T) {
	backendErr := errors.New("server selection timeout")
	table := NewMongoTable(&fakeRecords{findErr: backendErr}, nil)

	_, _, err := table.Get(context.Background(), domain.Key{UserID: "u", LastUpdated: "t"})
	if !errors.Is(err, backendErr) {
		t.Fatalf("expected find error to be wrapped, got %v", err)
	}
}

func TestMongoLatestSortsDescending(t *testing.T) {
	records := &fakeRecords{findDoc: bson.M{"user_id": "user-1", "last_updated": "2024-06-01T00:00:00Z"}}
	table := NewMongoTable(records, nil)

	record, found, err := table.Latest(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if !found || record.Key().LastUpdated != "2024-06-01T00:00:00Z" {
		t.Fatalf("expected latest record, got found=%v record=%v", found, record)
	}

	opts := records.findOptions[0]
	if len(opts) != 1 {
		t.Fatalf("expected one options value, got %d", len(opts))
	}
	sort, ok := opts[0].Sort.(bson.D)
	if !ok || len(sort) != 1 || sort[0].Key != "last_updated" || sort[0].Value != -1 {
		t.Fatalf("expected descending last_updated sort, got %#v", opts[0].Sort)
	}

	filter := records.findFilters[0].(bson.M)
	if filter["user_id"] != "user-1" {
		t.Fatalf("expected user filter, got %v", filter)
	}
	if _, ok := filter["last_updated"]; ok {
		t.Fatalf("expected latest lookup to ignore last_updated, got %v", filter)
	}
}

func TestMongoPutUpsertsWithDecimal128(t *testing.T) {
	records := &fakeRecords{}
	table := NewMongoTable(records, nil)

	record := domain.UserRecord{
		"user_id":        "user-1",
		"last_updated":   "2024-05-03T09:30:00Z",
		"available_time": decimal.NewFromInt(130),
		"tags":           []any{"a", decimal.RequireFromString("0.25")},
	}

	ack, err := table.Put(context.Background(), record)
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if ack.ResponseMetadata.HTTPStatusCode != 200 {
		t.Fatalf("expected ack status 200, got %d", ack.ResponseMetadata.HTTPStatusCode)
	}
	if _, err := uuid.Parse(ack.ResponseMetadata.RequestID); err != nil {
		t.Fatalf("expected uuid request id, got %q", ack.ResponseMetadata.RequestID)
	}

	if len(records.replacements) != 1 {
		t.Fatalf("expected one replace call, got %d", len(records.replacements))
	}
	doc := records.replacements[0].(bson.M)
	stored, ok := doc["available_time"].(primitive.Decimal128)
	if !ok || stored.String() != "130" {
		t.Fatalf("expected Decimal128 130, got %#v", doc["available_time"])
	}
	tags := doc["tags"].(bson.A)
	if _, ok := tags[1].(primitive.Decimal128); !ok {
		t.Fatalf("expected nested Decimal128, got %#v", tags[1])
	}

	filter := records.replaceFilters[0].(bson.M)
	if filter["last_updated"] != "2024-05-03T09:30:00Z" {
		t.Fatalf("expected replace to target the new key, got %v", filter)
	}

	upsert := records.replaceOptions[0][0].Upsert
	if upsert == nil || !*upsert {
		t.Fatalf("expected upsert to be enabled")
	}
}

func TestMongoDeleteTargetsKey(t *testing.T) {
	records := &fakeRecords{}
	table := NewMongoTable(records, nil)

	key := domain.Key{UserID: "user-1", LastUpdated: "2024-05-01T10:00:00Z"}
	if _, err := table.Delete(context.Background(), key); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	filter := records.deleteFilters[0].(bson.M)
	if filter["user_id"] != key.UserID || filter["last_updated"] != key.LastUpdated {
		t.Fatalf("unexpected delete filter %v", filter)
	}
}

func TestMongoWritesPropagateErrors(t *testing.T) {
	writeErr := errors.New("write conflict")
	table := NewMongoTable(&fakeRecords{writeErr: writeErr}, nil)
	ctx := context.Background()
	key := domain.Key{UserID: "u", LastUpdated: "t"}

	if _, err := table.Delete(ctx, key); !errors.Is(err, writeErr) {
		t.Fatalf("expected delete error to be wrapped, got %v", err)
	}
	if _, err := table.Put(ctx, domain.NewUserRecord(key)); !errors.Is(err, writeErr) {
		t.Fatalf("expected replace error to be wrapped, got %v", err)
	}
}

func TestMongoPingUsesPinger(t *testing.T) {
	pinger := &fakePinger{}
	table := NewMongoTable(&fakeRecords{}, pinger)

	if err := table.Ping(context.Background()); err != nil {
		t.Fatalf("expected ping to succeed, got %v", err)
	}
	if pinger.calls != 1 {
		t.Fatalf("expected pinger to be called once, got %d", pinger.calls)
	}

	if err := NewMongoTable(&fakeRecords{}, nil).Ping(context.Background()); err == nil {
		t.Fatalf("expected error without pinger")
	}

	var nilTable *MongoTable
	if err := nilTable.Ping(context.Background()); err == nil {
		t.Fatalf("expected error for nil table")
	}
}

type fakeRecords struct {
	findDoc bson.M
	findErr error

	writeErr error

	findFilters    []interface{}
	findOptions    [][]*options.FindOneOptions
	deleteFilters  []interface{}
	replaceFilters []interface{}
	replacements   []interface{}
	replaceOptions [][]*options.ReplaceOptions
}

func (f *fakeRecords) FindOne(_ context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	f.findFilters = append(f.findFilters, filter)
	f.findOptions = append(f.findOptions, opts)

	if f.findErr != nil {
		return mongo.NewSingleResultFromDocument(bson.M{}, f.findErr, nil)
	}
	return mongo.NewSingleResultFromDocument(f.findDoc, nil, nil)
}

func (f *fakeRecords) DeleteOne(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	f.deleteFilters = append(f.deleteFilters, filter)
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

func (f *fakeRecords) ReplaceOne(_ context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	f.replaceFilters = append(f.replaceFilters, filter)
	f.replacements = append(f.replacements, replacement)
	f.replaceOptions = append(f.replaceOptions, opts)
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return &mongo.UpdateResult{UpsertedCount: 1}, nil
}

type fakePinger struct {
	calls int
	err   error
}

func (p *fakePinger) Ping(context.Context) error {
	p.calls++
	return p.err
}
