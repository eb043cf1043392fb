package dynamo

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	channelsPartition = "CHANNELS"
	configsPartition  = "all#configs"
	channelsIndex     = "gsi1"
	configsIndex      = "gsi3"
)

func dealKey(dealID string) string       { return "DEAL#" + dealID }
func channelKey(channelID string) string { return "CHANNEL#" + channelID }

// compositeKey builds a DynamoDB primary key with two string attributes (PK + SK).
func compositeKey(pkValue, skValue string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pkValue},
		"sk": &types.AttributeValueMemberS{Value: skValue},
	}
}

func strValue(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}
