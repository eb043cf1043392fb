package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type SelectorConfig struct {
	SearchResults ResultSelectors `json:"search_results"`
}

type ResultSelectors struct {
	Container ResultContainer `json:"container"`
	Elements  ResultElements  `json:"elements"`
}

type ResultContainer struct {
	Item        string `json:"item"`         // e.g., "article.thread"
	IDAttribute string `json:"id_attribute"` // e.g., "id"
	IDPrefix    string `json:"id_prefix"`    // e.g., "thread_"
}

type ResultElements struct {
	TitleLink string `json:"title_link"`
	// MetadataAttributes are tried in order; the first element carrying one wins.
	MetadataAttributes []string `json:"metadata_attributes"`
	PriceText          string   `json:"price_text"`
	MerchantText       string   `json:"merchant_text"`
	CommentCount       string   `json:"comment_count"`
}

// Validate reports selector sets that could never yield a listing.
func (c SelectorConfig) Validate() error {
	if c.SearchResults.Container.Item == "" {
		return errors.New("search_results.container.item is empty")
	}
	if c.SearchResults.Elements.TitleLink == "" {
		return errors.New("search_results.elements.title_link is empty")
	}
	return nil
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	var config SelectorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}
	if err := config.Validate(); err != nil {
		return SelectorConfig{}, fmt.Errorf("invalid selector config: %w", err)
	}

	return config, nil
}

// DefaultSelectors mirrors the embedded selectors.json.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		SearchResults: ResultSelectors{
			Container: ResultContainer{
				Item:        "article.thread",
				IDAttribute: "id",
				IDPrefix:    "thread_",
			},
			Elements: ResultElements{
				TitleLink:          "a.thread-link",
				MetadataAttributes: []string{"data-vue3", "data-vue2"},
				PriceText:          `.thread-price, .price, [class*="price"]`,
				MerchantText:       `.thread-merchant, .merchant, [class*="merchant"]`,
				CommentCount:       `.thread-comments, [class*="comment-count"]`,
			},
		},
	}
}
