package subscriptions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pauljones0/hotukdeals-notifier/internal/models"
	"github.com/pauljones0/hotukdeals-notifier/internal/validator"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "grouped-configs"

type snapshot struct {
	value     []models.ChannelWithConfigs
	fetchedAt time.Time
}

// Cache serves grouped configs from memory for ttl. At most one refresh is in
// flight; readers fall back to the previous snapshot when a refresh fails.
// A refresh outlives the caller that started it but never runs longer than
// refreshTimeout.
type Cache struct {
	repo           Repository
	validator      *validator.Validator
	ttl            time.Duration
	refreshTimeout time.Duration
	now            func() time.Time

	mu    sync.RWMutex
	snap  *snapshot
	group singleflight.Group
}

func NewCache(repo Repository, v *validator.Validator, ttl, refreshTimeout time.Duration) *Cache {
	return &Cache{
		repo:           repo,
		validator:      v,
		ttl:            ttl,
		refreshTimeout: refreshTimeout,
		now:            time.Now,
	}
}

// LoadGroupedByChannel returns the active channel groups. The result is shared
// between callers and must not be modified.
func (c *Cache) LoadGroupedByChannel(ctx context.Context) []models.ChannelWithConfigs {
	if snap, fresh := c.current(); fresh {
		return snap.value
	}

	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		if snap, fresh := c.current(); fresh {
			return snap.value, nil
		}
		refreshCtx := context.WithoutCancel(ctx)
		if c.refreshTimeout > 0 {
			var cancel context.CancelFunc
			refreshCtx, cancel = context.WithTimeout(refreshCtx, c.refreshTimeout)
			defer cancel()
		}
		value, err := Load(refreshCtx, c.repo, c.validator)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.snap = &snapshot{value: value, fetchedAt: c.now()}
		c.mu.Unlock()
		slog.Debug("Refreshed search term configs", "channels", len(value))
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.([]models.ChannelWithConfigs)
		}
		return c.stale("refresh failed", res.Err)
	case <-ctx.Done():
		return c.stale("refresh abandoned", ctx.Err())
	}
}

// Reset drops the cached snapshot.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

func (c *Cache) current() (*snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil, false
	}
	return c.snap, c.now().Sub(c.snap.fetchedAt) < c.ttl
}

func (c *Cache) stale(reason string, err error) []models.ChannelWithConfigs {
	snap, _ := c.current()
	if snap != nil {
		slog.Warn("Serving stale search term configs", "reason", reason, "age", c.now().Sub(snap.fetchedAt), "error", err)
		return snap.value
	}
	slog.Error("No search term configs available", "reason", reason, "error", err)
	return []models.ChannelWithConfigs{}
}
