package processor

import (
	"context"

	"github.com/pauljones0/hotukdeals-notifier/internal/models"
)

// DealStore abstracts the dedup store.
type DealStore interface {
	DealExists(ctx context.Context, dealID string) (bool, error)
	RecordDeal(ctx context.Context, seen models.SeenDeal) error
}

// DealNotifier abstracts the notification layer.
type DealNotifier interface {
	Deliver(ctx context.Context, webhookURL string, deals []models.AcceptedDeal) error
}

// ConfigProvider returns the enabled search term configs grouped by channel.
type ConfigProvider interface {
	LoadGroupedByChannel(ctx context.Context) []models.ChannelWithConfigs
}
