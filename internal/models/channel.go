package models

import "time"

// Channel is a tenant-owned delivery target.
type Channel struct {
	ChannelID  string    `firestore:"channelId" dynamodbav:"channelId" validate:"required"`
	UserID     string    `firestore:"userId" dynamodbav:"userId"`
	Name       string    `firestore:"name" dynamodbav:"name" validate:"required"`
	WebhookURL string    `firestore:"webhookUrl" dynamodbav:"webhookUrl" validate:"required,webhookurl"`
	CreatedAt  time.Time `firestore:"createdAt,omitempty" dynamodbav:"createdAt,omitempty"`
	UpdatedAt  time.Time `firestore:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty"`
}

// SearchTermConfig is a subscription of a channel to one search term.
// At most one exists per (ChannelID, SearchTerm).
type SearchTermConfig struct {
	ChannelID       string    `firestore:"channelId" dynamodbav:"channelId" validate:"required"`
	UserID          string    `firestore:"userId" dynamodbav:"userId"`
	SearchTerm      string    `firestore:"searchTerm" dynamodbav:"searchTerm" validate:"required"`
	Enabled         bool      `firestore:"enabled" dynamodbav:"enabled"`
	IncludeKeywords []string  `firestore:"includeKeywords" dynamodbav:"includeKeywords"`
	ExcludeKeywords []string  `firestore:"excludeKeywords" dynamodbav:"excludeKeywords"`
	CaseSensitive   bool      `firestore:"caseSensitive" dynamodbav:"caseSensitive"`
	CreatedAt       time.Time `firestore:"createdAt,omitempty" dynamodbav:"createdAt,omitempty"`
	UpdatedAt       time.Time `firestore:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty"`
}

// ChannelWithConfigs pairs a channel with its enabled search-term configs.
type ChannelWithConfigs struct {
	Channel Channel
	Configs []SearchTermConfig
}
