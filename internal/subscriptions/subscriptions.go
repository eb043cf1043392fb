// Package subscriptions resolves which channels watch which search terms.
package subscriptions

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pauljones0/hotukdeals-notifier/internal/models"
	"github.com/pauljones0/hotukdeals-notifier/internal/validator"
)

// Repository is the read side of the configuration store.
type Repository interface {
	ListChannels(ctx context.Context) ([]models.Channel, error)
	ListEnabledConfigs(ctx context.Context) ([]models.SearchTermConfig, error)
}

// Load groups enabled configs under their channel. Configs whose channel no
// longer exists and records that fail validation are skipped. Groups are
// ordered by channel id, configs by search term.
func Load(ctx context.Context, repo Repository, v *validator.Validator) ([]models.ChannelWithConfigs, error) {
	channels, err := repo.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	configs, err := repo.ListEnabledConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list search term configs: %w", err)
	}

	groups := make(map[string]*models.ChannelWithConfigs, len(channels))
	for _, ch := range channels {
		if err := v.ValidateStruct(ch); err != nil {
			slog.Warn("Skipping invalid channel", "channel", ch.ChannelID, "error", err)
			continue
		}
		groups[ch.ChannelID] = &models.ChannelWithConfigs{Channel: ch}
	}

	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if err := v.ValidateStruct(cfg); err != nil {
			slog.Warn("Skipping invalid search term config", "channel", cfg.ChannelID, "searchTerm", cfg.SearchTerm, "error", err)
			continue
		}
		group, ok := groups[cfg.ChannelID]
		if !ok {
			slog.Warn("Skipping search term config for unknown channel", "channel", cfg.ChannelID, "searchTerm", cfg.SearchTerm)
			continue
		}
		key := cfg.ChannelID + "#" + cfg.SearchTerm
		if seen[key] {
			slog.Warn("Skipping duplicate search term config", "channel", cfg.ChannelID, "searchTerm", cfg.SearchTerm)
			continue
		}
		seen[key] = true
		group.Configs = append(group.Configs, cfg)
	}

	result := make([]models.ChannelWithConfigs, 0, len(groups))
	for _, group := range groups {
		if len(group.Configs) == 0 {
			continue
		}
		slices.SortFunc(group.Configs, func(a, b models.SearchTermConfig) int {
			return cmp.Compare(a.SearchTerm, b.SearchTerm)
		})
		result = append(result, *group)
	}
	slices.SortFunc(result, func(a, b models.ChannelWithConfigs) int {
		return cmp.Compare(a.Channel.ChannelID, b.Channel.ChannelID)
	})
	return result, nil
}
