package suntimes

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoTable implements Table over the loader's DynamoDB table, keyed by
// Station (partition) and Date (sort).
type DynamoTable struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ Table = (*DynamoTable)(nil)

// NewDynamoTable creates a DynamoTable for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoTable(client *dynamodb.Client, tableName string) *DynamoTable {
	return &DynamoTable{client: client, tableName: tableName}
}

// GetRow performs a point read. Absent rows yield (nil, nil).
func (t *DynamoTable) GetRow(ctx context.Context, station, date string) (*Row, error) {
	result, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &t.tableName,
		Key: map[string]types.AttributeValue{
			"Station": &types.AttributeValueMemberS{Value: station},
			"Date":    &types.AttributeValueMemberS{Value: date},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem %s/%s: %w", station, date, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var row Row
	if err := attributevalue.UnmarshalMap(result.Item, &row); err != nil {
		return nil, fmt.Errorf("unmarshal %s/%s: %w", station, date, err)
	}
	return &row, nil
}
