package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/hotukdeals-notifier/internal/config"
	"github.com/pauljones0/hotukdeals-notifier/internal/models"
)

const (
	maxContentLength = 2000
	maxTitleLength   = 256

	testNotificationColor = 0xff8510
)

// palette is purely cosmetic; embeds pick a color at random.
var palette = []int{
	0xff8510, // orange
	0x5865f2, // blurple
	0x57f287, // green
	0xfee75c, // yellow
	0xeb459e, // fuchsia
	0xed4245, // red
	0x3498db, // blue
}

type Client struct {
	client       *http.Client
	chunkSize    int
	messageDelay time.Duration
	randIntn     func(n int) int
	now          func() time.Time
}

func New(cfg *config.Config) *Client {
	chunkSize := cfg.EmbedsPerMessage
	if chunkSize < 1 || chunkSize > config.MaxEmbedsPerMessage {
		chunkSize = config.MaxEmbedsPerMessage
	}
	return &Client{
		client:       &http.Client{Timeout: cfg.RequestTimeout},
		chunkSize:    chunkSize,
		messageDelay: cfg.MessageDelay,
		randIntn:     rand.IntN,
		now:          time.Now,
	}
}

// ChunkFailure records one message that could not be delivered.
type ChunkFailure struct {
	Index int
	Deals int
	Err   error
}

// DeliveryError lists the messages of one delivery that failed. Messages not
// listed were accepted by the endpoint.
type DeliveryError struct {
	Endpoint string
	Chunks   int
	Failures []ChunkFailure
}

func (e *DeliveryError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("message %d: %v", f.Index+1, f.Err))
	}
	return fmt.Sprintf("failed to deliver %d of %d messages to %s: %s", len(e.Failures), e.Chunks, e.Endpoint, strings.Join(parts, "; "))
}

// Deliver sends deals to webhookURL in messages of at most chunkSize embeds.
// Only the first message carries the summary line. Messages are sent one at a
// time, spaced by the configured delay, and every message is attempted even
// after a failure. There are no retries.
func (c *Client) Deliver(ctx context.Context, webhookURL string, deals []models.AcceptedDeal) error {
	if len(deals) == 0 {
		return nil
	}

	chunks := chunkDeals(deals, c.chunkSize)
	limiter := c.newLimiter()
	endpoint := redactWebhook(webhookURL)
	var failures []ChunkFailure

	for i, chunk := range chunks {
		if err := limiter.Wait(ctx); err != nil {
			for j := i; j < len(chunks); j++ {
				failures = append(failures, ChunkFailure{Index: j, Deals: len(chunks[j]), Err: err})
			}
			break
		}

		payload := discordWebhookPayload{Embeds: make([]discordEmbed, 0, len(chunk))}
		if i == 0 {
			payload.Content = buildSummary(deals)
		}
		for _, deal := range chunk {
			payload.Embeds = append(payload.Embeds, c.formatDealToEmbed(deal))
		}

		messageID, err := c.postMessage(ctx, webhookURL, payload)
		if err != nil {
			slog.Error("Failed to deliver deal message", "endpoint", endpoint, "message", i+1, "messages", len(chunks), "deals", len(chunk), "error", err)
			failures = append(failures, ChunkFailure{Index: i, Deals: len(chunk), Err: err})
			continue
		}
		slog.Debug("Delivered deal message", "endpoint", endpoint, "message", i+1, "messages", len(chunks), "messageID", messageID)
	}

	if len(failures) > 0 {
		return &DeliveryError{Endpoint: endpoint, Chunks: len(chunks), Failures: failures}
	}
	return nil
}

// SendTest posts a single fixed embed so a dashboard user can check a webhook.
func (c *Client) SendTest(ctx context.Context, webhookURL string) error {
	payload := discordWebhookPayload{Embeds: []discordEmbed{{
		Title:       "Test Notification",
		Description: "This is a test notification from HotUKDeals Notifier. If you see this, your webhook is working correctly!",
		Color:       testNotificationColor,
		Timestamp:   c.now().UTC().Format(time.RFC3339),
	}}}
	if _, err := c.postMessage(ctx, webhookURL, payload); err != nil {
		return fmt.Errorf("test notification to %s: %w", redactWebhook(webhookURL), err)
	}
	return nil
}

func (c *Client) newLimiter() *rate.Limiter {
	if c.messageDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(c.messageDelay), 1)
}

func chunkDeals(deals []models.AcceptedDeal, size int) [][]models.AcceptedDeal {
	var chunks [][]models.AcceptedDeal
	for start := 0; start < len(deals); start += size {
		end := min(start+size, len(deals))
		chunks = append(chunks, deals[start:end])
	}
	return chunks
}

// Internal structures
type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
}

type discordMessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func (c *Client) postMessage(ctx context.Context, webhookURL string, payload discordWebhookPayload) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(webhookURL)
	if err != nil {
		return "", err
	}
	q := parsedURL.Query()
	q.Set("wait", "true")
	parsedURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedURL.String(), bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var msgResponse discordMessageResponse
		// Endpoints answering 204 or non-JSON still count as delivered.
		_ = json.Unmarshal(bodyBytes, &msgResponse)
		return msgResponse.ID, nil
	}
	return "", fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
}

// redactWebhook hides the token segment of a webhook URL for logging.
func redactWebhook(webhookURL string) string {
	u, err := url.Parse(webhookURL)
	if err != nil || u.Host == "" {
		return "<invalid webhook>"
	}
	path := u.Path
	if i := strings.LastIndex(path, "/"); i > 0 {
		path = path[:i] + "/***"
	}
	return u.Scheme + "://" + u.Host + path
}
