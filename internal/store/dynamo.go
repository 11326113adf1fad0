package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/LCOGT/photonranch-userinfo/internal/config"
	"github.com/LCOGT/photonranch-userinfo/internal/domain"
	"github.com/LCOGT/photonranch-userinfo/internal/numeric"
)

// dynamoAPI captures the subset of the DynamoDB client the table relies on so
// tests can substitute a fake.
type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// loadAWSConfig is overridable for tests.
var loadAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

// NewDynamoClient builds a DynamoDB client for the configured region, pointing
// at DYNAMODB_ENDPOINT when set (DynamoDB Local).
func NewDynamoClient(ctx context.Context, cfg config.Config) (*dynamodb.Client, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	awsCfg, err := loadAWSConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	})

	return client, nil
}

// DynamoTable stores user records in a DynamoDB table with user_id as hash key
// and last_updated as range key.
type DynamoTable struct {
	client dynamoAPI
	name   string
}

// NewDynamoTable constructs a DynamoTable for the named table.
func NewDynamoTable(client dynamoAPI, name string) *DynamoTable {
	return &DynamoTable{client: client, name: name}
}

// Name returns the table name.
func (t *DynamoTable) Name() string {
	return t.name
}

// Get performs a point lookup of key.
func (t *DynamoTable) Get(ctx context.Context, key domain.Key) (domain.UserRecord, bool, error) {
	if err := t.ready(ctx); err != nil {
		return nil, false, err
	}

	keyAV, err := attributevalue.MarshalMap(key)
	if err != nil {
		return nil, false, fmt.Errorf("marshal key: %w", err)
	}

	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.name),
		Key:       keyAV,
	})
	if err != nil {
		return nil, false, fmt.Errorf("get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, false, nil
	}

	record, err := fromAttributeMap(out.Item)
	if err != nil {
		return nil, false, fmt.Errorf("decode item: %w", err)
	}

	return domain.UserRecord(record), true, nil
}

// Latest returns the item with the greatest last_updated for userID.
func (t *DynamoTable) Latest(ctx context.Context, userID string) (domain.UserRecord, bool, error) {
	if err := t.ready(ctx); err != nil {
		return nil, false, err
	}

	out, err := t.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(t.name),
		KeyConditionExpression: aws.String("#uid = :uid"),
		ExpressionAttributeNames: map[string]string{
			"#uid": domain.FieldUserID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, false, fmt.Errorf("query latest item: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return nil, false, nil
	}

	record, err := fromAttributeMap(out.Items[0])
	if err != nil {
		return nil, false, fmt.Errorf("decode item: %w", err)
	}

	return domain.UserRecord(record), true, nil
}

// Delete removes the item at key. Deleting a missing key is not an error.
func (t *DynamoTable) Delete(ctx context.Context, key domain.Key) (domain.WriteAck, error) {
	if err := t.ready(ctx); err != nil {
		return domain.WriteAck{}, err
	}

	keyAV, err := attributevalue.MarshalMap(key)
	if err != nil {
		return domain.WriteAck{}, fmt.Errorf("marshal key: %w", err)
	}

	out, err := t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(t.name),
		Key:       keyAV,
	})
	if err != nil {
		return domain.WriteAck{}, fmt.Errorf("delete item: %w", err)
	}

	if out == nil {
		return domain.NewWriteAck(""), nil
	}
	requestID, _ := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)
	return domain.NewWriteAck(requestID), nil
}

// Put writes record, replacing any item with the same key.
func (t *DynamoTable) Put(ctx context.Context, record domain.UserRecord) (domain.WriteAck, error) {
	if err := t.ready(ctx); err != nil {
		return domain.WriteAck{}, err
	}

	item, err := toAttributeMap(record)
	if err != nil {
		return domain.WriteAck{}, fmt.Errorf("encode item: %w", err)
	}

	out, err := t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.name),
		Item:      item,
	})
	if err != nil {
		return domain.WriteAck{}, fmt.Errorf("put item: %w", err)
	}

	if out == nil {
		return domain.NewWriteAck(""), nil
	}
	requestID, _ := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)
	return domain.NewWriteAck(requestID), nil
}

// Ping verifies the table is reachable.
func (t *DynamoTable) Ping(ctx context.Context) error {
	if err := t.ready(ctx); err != nil {
		return err
	}

	if _, err := t.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.name)}); err != nil {
		return fmt.Errorf("describe table: %w", err)
	}

	return nil
}

func (t *DynamoTable) ready(ctx context.Context) error {
	if t == nil || t.client == nil {
		return errors.New("dynamo table is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

func toAttributeMap(m map[string]any) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(m))
	for k, v := range m {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func toAttributeValue(v any) (types.AttributeValue, error) {
	switch val := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case decimal.Decimal:
		return &types.AttributeValueMemberN{Value: val.String()}, nil
	case []decimal.Decimal:
		values := make([]string, len(val))
		for i, d := range val {
			values[i] = d.String()
		}
		return &types.AttributeValueMemberNS{Value: values}, nil
	case domain.StringSet:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), val...)}, nil
	case domain.BinarySet:
		values := make([][]byte, len(val))
		for i, b := range val {
			values[i] = append([]byte(nil), b...)
		}
		return &types.AttributeValueMemberBS{Value: values}, nil
	case domain.UserRecord:
		m, err := toAttributeMap(val)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case map[string]any:
		m, err := toAttributeMap(val)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case []any:
		list := make([]types.AttributeValue, len(val))
		for i, item := range val {
			av, err := toAttributeValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			list[i] = av
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	default:
		return attributevalue.Marshal(val)
	}
}

func fromAttributeMap(item map[string]types.AttributeValue) (map[string]any, error) {
	out := make(map[string]any, len(item))
	for k, av := range item {
		v, err := fromAttributeValue(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func fromAttributeValue(av types.AttributeValue) (any, error) {
	switch val := av.(type) {
	case *types.AttributeValueMemberN:
		return numeric.Parse(val.Value)
	case *types.AttributeValueMemberNS:
		out := make([]decimal.Decimal, len(val.Value))
		for i, raw := range val.Value {
			d, err := numeric.Parse(raw)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	case *types.AttributeValueMemberSS:
		return domain.StringSet(append([]string(nil), val.Value...)), nil
	case *types.AttributeValueMemberBS:
		out := make(domain.BinarySet, len(val.Value))
		for i, b := range val.Value {
			out[i] = append([]byte(nil), b...)
		}
		return out, nil
	case *types.AttributeValueMemberM:
		return fromAttributeMap(val.Value)
	case *types.AttributeValueMemberL:
		out := make([]any, len(val.Value))
		for i, item := range val.Value {
			v, err := fromAttributeValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	default:
		var out any
		if err := attributevalue.Unmarshal(av, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
