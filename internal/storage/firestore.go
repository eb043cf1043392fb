package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/hotukdeals-notifier/internal/models"
)

const (
	dealsCollection    = "deals"
	channelsCollection = "channels"
	configsCollection  = "searchTermConfigs"
)

var (
	ErrDealExists = models.ErrDealExists
	ErrNotFound   = models.ErrNotFound
)

type Client struct {
	client *firestore.Client
}

func New(ctx context.Context, projectID string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

var safeDocIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// DealDocID maps a deal id to a valid document id. Ids that are not plain
// tokens (link fallbacks contain slashes) are hashed.
func DealDocID(dealID string) string {
	if safeDocIDRegex.MatchString(dealID) {
		return dealID
	}
	sum := sha256.Sum256([]byte(dealID))
	return "h_" + hex.EncodeToString(sum[:])
}

// DealExists reports whether a seen record exists for dealID.
func (c *Client) DealExists(ctx context.Context, dealID string) (bool, error) {
	doc, err := c.client.Collection(dealsCollection).Doc(DealDocID(dealID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to get deal %s: %w", dealID, err)
	}
	return doc.Exists(), nil
}

// RecordDeal creates the seen record. Returns ErrDealExists if it is already there.
func (c *Client) RecordDeal(ctx context.Context, seen models.SeenDeal) error {
	docRef := c.client.Collection(dealsCollection).Doc(DealDocID(seen.DealID))
	// Create fails if the document already exists.
	_, err := docRef.Create(ctx, seen)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrDealExists
		}
		return fmt.Errorf("failed to record deal %s: %w", seen.DealID, err)
	}
	return nil
}

func (c *Client) ListChannels(ctx context.Context) ([]models.Channel, error) {
	iter := c.client.Collection(channelsCollection).Documents(ctx)
	defer iter.Stop()

	var channels []models.Channel
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate channels: %w", err)
		}
		var ch models.Channel
		if err := doc.DataTo(&ch); err != nil {
			slog.Warn("Skipping unreadable channel document", "id", doc.Ref.ID, "error", err)
			continue
		}
		if ch.ChannelID == "" {
			ch.ChannelID = doc.Ref.ID
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func (c *Client) ListEnabledConfigs(ctx context.Context) ([]models.SearchTermConfig, error) {
	iter := c.client.Collection(configsCollection).Where("enabled", "==", true).Documents(ctx)
	defer iter.Stop()

	var configs []models.SearchTermConfig
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate search term configs: %w", err)
		}
		var cfg models.SearchTermConfig
		if err := doc.DataTo(&cfg); err != nil {
			slog.Warn("Skipping unreadable search term config document", "id", doc.Ref.ID, "error", err)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// GetChannel returns ErrNotFound when the channel does not exist.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	doc, err := c.client.Collection(channelsCollection).Doc(channelID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get channel %s: %w", channelID, err)
	}

	var ch models.Channel
	if err := doc.DataTo(&ch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel data: %w", err)
	}
	if ch.ChannelID == "" {
		ch.ChannelID = doc.Ref.ID
	}
	return &ch, nil
}

// PurgeExpiredDeals deletes seen records whose expireAt is before now, at most
// limit per call, and returns how many deletes the backend confirmed. Records
// without an expiry are kept forever.
func (c *Client) PurgeExpiredDeals(ctx context.Context, now time.Time, limit int) (int, error) {
	iter := c.client.Collection(dealsCollection).
		Where("expireAt", "<", now).
		OrderBy("expireAt", firestore.Asc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	bulkWriter := c.client.BulkWriter(ctx)
	defer bulkWriter.End()

	var jobs []writeResult
	var iterErr error
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			iterErr = fmt.Errorf("failed to iterate expired deals: %w", err)
			break
		}
		job, err := bulkWriter.Delete(doc.Ref)
		if err != nil {
			slog.Warn("Failed to queue expired deal delete", "id", doc.Ref.ID, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}

	if len(jobs) > 0 {
		bulkWriter.Flush()
	}
	deleted, writeErr := countWritten(jobs)
	if deleted > 0 {
		slog.Info("Purged expired seen deals", "count", deleted)
	}
	return deleted, errors.Join(iterErr, writeErr)
}

// writeResult is the part of *firestore.BulkWriterJob used to read the outcome
// of a queued write.
type writeResult interface {
	Results() (*firestore.WriteResult, error)
}

// countWritten waits for each job and returns how many succeeded. Failures are
// summarised in the returned error.
func countWritten(jobs []writeResult) (int, error) {
	written, failed := 0, 0
	var firstErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}
	if failed > 0 {
		return written, fmt.Errorf("%d of %d writes failed: %w", failed, len(jobs), firstErr)
	}
	return written, nil
}
