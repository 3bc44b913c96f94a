package watermark

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// record is the DynamoDB item shape: a string key and a string-encoded timestamp.
type record struct {
	Key   string `dynamodbav:"Key"`
	Value string `dynamodbav:"Value"`
}

// DynamoStore implements Store using a DynamoDB table with a Key partition key.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// Get reads a watermark by key. Absent keys yield (Epoch, false, nil).
func (s *DynamoStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"Key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return Epoch, false, fmt.Errorf("GetItem %s: %w", key, err)
	}
	if result.Item == nil {
		return Epoch, false, nil
	}

	var rec record
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return Epoch, false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	t, err := ParseTime(rec.Value)
	if err != nil {
		return Epoch, false, fmt.Errorf("watermark %s holds invalid value %q: %w", key, rec.Value, err)
	}
	return t, true, nil
}

// Put writes a watermark, replacing any previous value.
func (s *DynamoStore) Put(ctx context.Context, key string, t time.Time) error {
	item, err := attributevalue.MarshalMap(record{Key: key, Value: FormatTime(t)})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem %s: %w", key, err)
	}
	return nil
}
