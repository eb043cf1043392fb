// Package dynamo stores seen deals and reads channel configuration from a
// single DynamoDB table.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pauljones0/hotukdeals-notifier/internal/models"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type dealItem struct {
	PK string `dynamodbav:"pk"`
	SK string `dynamodbav:"sk"`
	models.SeenDeal
	TTL int64 `dynamodbav:"ttl,omitempty"`
}

type channelItem struct {
	PK string `dynamodbav:"pk"`
	SK string `dynamodbav:"sk"`
	models.Channel
}

type configItem struct {
	PK string `dynamodbav:"pk"`
	SK string `dynamodbav:"sk"`
	models.SearchTermConfig
}

type Store struct {
	client    API
	tableName string
}

func NewStore(client API, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

func (s *Store) Close() error { return nil }

// DealExists reports whether a seen record exists for dealID.
func (s *Store) DealExists(ctx context.Context, dealID string) (bool, error) {
	key := dealKey(dealID)
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.tableName),
		Key:                  compositeKey(key, key),
		ProjectionExpression: aws.String("pk"),
	})
	if err != nil {
		return false, fmt.Errorf("failed to get deal %s: %w", dealID, err)
	}
	return len(out.Item) > 0, nil
}

// RecordDeal writes the seen record unless one exists, in which case it
// returns models.ErrDealExists.
func (s *Store) RecordDeal(ctx context.Context, seen models.SeenDeal) error {
	key := dealKey(seen.DealID)
	item := dealItem{PK: key, SK: key, SeenDeal: seen}
	if !seen.ExpireAt.IsZero() {
		item.TTL = seen.ExpireAt.Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal deal: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return models.ErrDealExists
		}
		return fmt.Errorf("failed to record deal %s: %w", seen.DealID, err)
	}
	return nil
}

func (s *Store) ListChannels(ctx context.Context) ([]models.Channel, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(channelsIndex),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": strValue(channelsPartition),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}

	channels := make([]models.Channel, 0, len(items))
	for _, raw := range items {
		var item channelItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			slog.Warn("Skipping unreadable channel item", "error", err)
			continue
		}
		channels = append(channels, item.Channel)
	}
	return channels, nil
}

func (s *Store) ListEnabledConfigs(ctx context.Context) ([]models.SearchTermConfig, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(configsIndex),
		KeyConditionExpression: aws.String("gsi3pk = :pk"),
		FilterExpression:       aws.String("enabled = :enabled"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":      strValue(configsPartition),
			":enabled": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query search term configs: %w", err)
	}

	configs := make([]models.SearchTermConfig, 0, len(items))
	for _, raw := range items {
		var item configItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			slog.Warn("Skipping unreadable search term config item", "error", err)
			continue
		}
		configs = append(configs, item.SearchTermConfig)
	}
	return configs, nil
}

// GetChannel returns models.ErrNotFound when the channel does not exist.
func (s *Store) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	key := channelKey(channelID)
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       compositeKey(key, key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", channelID, err)
	}
	if len(out.Item) == 0 {
		return nil, models.ErrNotFound
	}
	var item channelItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel data: %w", err)
	}
	return &item.Channel, nil
}

func (s *Store) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}
