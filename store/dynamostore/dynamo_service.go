package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"winkwink_server/store"
)

// DynamoAPI is the part of *dynamodb.Client the store uses
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// maxTransactItems is the DynamoDB limit for one TransactWriteItems call
const maxTransactItems = 100

type DynamoService struct {
	Client DynamoAPI
	Log    *zap.Logger
}

// GetItem retrieves an item with a strongly consistent read
func (ds *DynamoService) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from table '%s': %w", tableName, err)
	}
	if output.Item == nil {
		return nil, store.ErrNotFound
	}
	return output.Item, nil
}

// QueryItemsWithOptions queries a table or one of its GSIs. latestFirst sorts by
// the sort key descending. A limit of 0 follows LastEvaluatedKey until the end.
func (ds *DynamoService) QueryItemsWithOptions(
	ctx context.Context,
	tableName string,
	indexName string,
	keyConditionExpression string,
	expressionAttributeValues map[string]types.AttributeValue,
	expressionAttributeNames map[string]string,
	limit int32,
	latestFirst bool,
) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		KeyConditionExpression:    aws.String(keyConditionExpression),
		ExpressionAttributeValues: expressionAttributeValues,
		ExpressionAttributeNames:  expressionAttributeNames,
		ScanIndexForward:          aws.Bool(!latestFirst),
	}
	if indexName != "" {
		input.IndexName = aws.String(indexName)
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
		output, err := ds.Client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query table '%s': %w", tableName, err)
		}
		return output.Items, nil
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(ds.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query table '%s': %w", tableName, err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// ScanPages walks the whole table page by page until fn returns false
func (ds *DynamoService) ScanPages(ctx context.Context, tableName string, fn func([]map[string]types.AttributeValue) (bool, error)) error {
	paginator := dynamodb.NewScanPaginator(ds.Client, &dynamodb.ScanInput{
		TableName:      aws.String(tableName),
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to scan table '%s': %w", tableName, err)
		}
		more, err := fn(page.Items)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// TransactWriteItems commits all items atomically. Failed condition checks and
// transaction conflicts come back as store.ErrConflict.
func (ds *DynamoService) TransactWriteItems(ctx context.Context, items []types.TransactWriteItem) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > maxTransactItems {
		return fmt.Errorf("%d items: %w", len(items), store.ErrTooLarge)
	}

	_, err := ds.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}
	if isConflict(err) {
		return fmt.Errorf("transact write: %w", store.ErrConflict)
	}
	return fmt.Errorf("failed to transact write %d items: %w", len(items), err)
}

// BatchWriteItems writes multiple items to DynamoDB in batches of 25, resending
// unprocessed items a few times before giving up
func (ds *DynamoService) BatchWriteItems(ctx context.Context, tableName string, writeRequests []types.WriteRequest) error {
	const maxBatchSize = 25
	const maxResends = 5

	for i := 0; i < len(writeRequests); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(writeRequests) {
			end = len(writeRequests)
		}

		pending := map[string][]types.WriteRequest{tableName: writeRequests[i:end]}
		for attempt := 0; len(pending[tableName]) > 0; attempt++ {
			if attempt > maxResends {
				return fmt.Errorf("failed to batch write items to table '%s': %d unprocessed", tableName, len(pending[tableName]))
			}
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt*50) * time.Millisecond):
				}
			}
			output, err := ds.Client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("failed to batch write items to table '%s': %w", tableName, err)
			}
			pending = output.UnprocessedItems
			if pending == nil {
				break
			}
		}
	}
	return nil
}

func isConflict(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed", "TransactionConflict":
				return true
			}
		}
		return false
	}
	var conflict *types.TransactionConflictException
	if errors.As(err, &conflict) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "TransactionInProgressException"
	}
	return false
}
