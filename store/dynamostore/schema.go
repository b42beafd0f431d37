package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"winkwink_server/models"
)

// TableAPI is the part of *dynamodb.Client used to create tables
type TableAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// EnsureTables creates any missing table with its key schema and indexes.
// Existing tables are left untouched.
func EnsureTables(ctx context.Context, client TableAPI, tables Tables, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	for _, input := range tableDefinitions(tables) {
		name := aws.ToString(input.TableName)
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName})
		if err == nil {
			continue
		}
		var notFound *types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to describe table '%s': %w", name, err)
		}

		if _, err := client.CreateTable(ctx, input); err != nil {
			var inUse *types.ResourceInUseException
			if errors.As(err, &inUse) {
				continue
			}
			return fmt.Errorf("failed to create table '%s': %w", name, err)
		}
		log.Info("created dynamodb table", zap.String("table", name))

		w := dynamodb.NewTableExistsWaiter(client)
		if err := w.Wait(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}, 2*time.Minute); err != nil {
			return fmt.Errorf("failed waiting for table '%s': %w", name, err)
		}
	}
	return nil
}

func tableDefinitions(tables Tables) []*dynamodb.CreateTableInput {
	onDemand := types.BillingModePayPerRequest
	byUpdated := func(index, userAttr string) types.GlobalSecondaryIndex {
		return types.GlobalSecondaryIndex{
			IndexName: aws.String(index),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(userAttr), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(updatedAtKey), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}
	}

	return []*dynamodb.CreateTableInput{
		{
			TableName:   aws.String(tables.Users),
			BillingMode: onDemand,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(userKey), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(userKey), KeyType: types.KeyTypeHash},
			},
		},
		{
			TableName:   aws.String(tables.Conversations),
			BillingMode: onDemand,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(conversationKey), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("userA"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("userB"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(updatedAtKey), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(conversationKey), KeyType: types.KeyTypeHash},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				byUpdated(models.UserAUpdatedIndex, "userA"),
				byUpdated(models.UserBUpdatedIndex, "userB"),
			},
		},
		{
			TableName:   aws.String(tables.Messages),
			BillingMode: onDemand,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(messageKey), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(messageSortKey), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(messageKey), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(messageSortKey), KeyType: types.KeyTypeRange},
			},
		},
	}
}
