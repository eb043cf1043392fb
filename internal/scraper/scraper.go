package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pauljones0/hotukdeals-notifier/internal/config"
	"github.com/pauljones0/hotukdeals-notifier/internal/models"
	"github.com/pauljones0/hotukdeals-notifier/internal/util"
	"golang.org/x/net/html/charset"
)

const maxPageBytes = 8 << 20

// FetchError is returned when the search page answers with a non-2xx status.
type FetchError struct {
	SearchTerm string
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch URL %s: status code %d", e.URL, e.StatusCode)
}

type Scraper interface {
	Fetch(ctx context.Context, searchTerm string) ([]models.Deal, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	sourceHost string
	selectors  SelectorConfig
	maxRetries int
	now        func() time.Time
}

func New(cfg *config.Config, selectors SelectorConfig) *Client {
	host := ""
	if u, err := url.Parse(cfg.SourceBaseURL); err == nil {
		host = u.Hostname()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL:    strings.TrimSuffix(cfg.SourceBaseURL, "/"),
		sourceHost: host,
		selectors:  selectors,
		maxRetries: cfg.FetchRetries,
		now:        time.Now,
	}
}

// SearchURL builds the results page URL for a search term.
func (c *Client) SearchURL(searchTerm string) string {
	return c.baseURL + "/search?q=" + url.QueryEscape(searchTerm)
}

// Fetch downloads the results page for searchTerm and extracts its listings.
// A page without listings yields an empty slice and no error.
func (c *Client) Fetch(ctx context.Context, searchTerm string) ([]models.Deal, error) {
	searchURL := c.SearchURL(searchTerm)

	var doc *goquery.Document
	err := util.RetryWithBackoff(ctx, c.maxRetries, func(attempt int) error {
		d, err := c.fetchHTMLContent(ctx, searchURL)
		if err != nil {
			var fetchErr *FetchError
			if errors.As(err, &fetchErr) {
				fetchErr.SearchTerm = searchTerm
				if fetchErr.StatusCode < http.StatusInternalServerError {
					return util.Permanent(err)
				}
			}
			if attempt < c.maxRetries {
				slog.Warn("Search page fetch failed, retrying", "searchTerm", searchTerm, "attempt", attempt+1, "error", err)
			}
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search results for %q: %w", searchTerm, err)
	}

	deals := c.parseResults(doc)
	if len(deals) == 0 {
		slog.Info("No listings found on search page", "searchTerm", searchTerm, "url", searchURL)
	} else {
		slog.Debug("Parsed search page", "searchTerm", searchTerm, "listings", len(deals))
	}
	return deals, nil
}

func (c *Client) parseResults(doc *goquery.Document) []models.Deal {
	observed := c.now().UnixMilli()
	sel := c.selectors.SearchResults

	deals := []models.Deal{}
	doc.Find(sel.Container.Item).Each(func(_ int, s *goquery.Selection) {
		deal, ok := c.parseListing(s, observed)
		if ok {
			deals = append(deals, deal)
		}
	})
	return deals
}

// parseListing never drops a listing that has a title and link; metadata
// problems only degrade the optional fields.
func (c *Client) parseListing(s *goquery.Selection, observed int64) (deal models.Deal, ok bool) {
	sel := c.selectors.SearchResults

	linkSelection := s.Find(sel.Elements.TitleLink).First()
	href, _ := linkSelection.Attr("href")
	deal.Title = strings.TrimSpace(linkSelection.Text())
	if strings.TrimSpace(href) == "" || deal.Title == "" {
		return deal, false
	}
	deal.Link = c.absoluteLink(href)
	deal.Timestamp = observed

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Recovered while parsing listing, keeping basic fields", "title", deal.Title, "panic", r)
			if deal.ID == "" {
				deal.ID = deal.Link
			}
			ok = true
		}
	}()

	meta := c.listingMetadata(s)
	if meta.Status == MetadataOK {
		c.applyMetadata(&deal, meta.Data)
	} else {
		slog.Debug("Using text fallbacks for listing", "title", deal.Title, "reason", meta.Reason)
	}

	deal.ID = c.listingID(s, meta, deal.Link)
	c.applyFallbacks(&deal, s)
	return deal, true
}

func (c *Client) absoluteLink(href string) string {
	link, err := util.AbsoluteURL(c.baseURL, href)
	if err != nil {
		return strings.TrimSpace(href)
	}
	if normalized, err := util.NormalizeURL(link, c.sourceHost); err == nil {
		return normalized
	}
	return link
}

func (c *Client) listingID(s *goquery.Selection, meta MetadataResult, link string) string {
	container := c.selectors.SearchResults.Container
	if container.IDAttribute != "" {
		if raw, exists := s.Attr(container.IDAttribute); exists {
			if id := strings.TrimPrefix(strings.TrimSpace(raw), container.IDPrefix); id != "" {
				return id
			}
		}
	}
	if meta.Status == MetadataOK && meta.Data.ThreadID != "" {
		return string(meta.Data.ThreadID)
	}
	return link
}

func (c *Client) listingMetadata(s *goquery.Selection) MetadataResult {
	for _, attr := range c.selectors.SearchResults.Elements.MetadataAttributes {
		if raw, exists := s.Attr(attr); exists {
			return ParseMetadata(raw)
		}
		if raw, exists := s.Find("[" + attr + "]").First().Attr(attr); exists {
			return ParseMetadata(raw)
		}
	}
	return fallback("metadata attribute missing")
}

func (c *Client) applyMetadata(deal *models.Deal, meta *ThreadMetadata) {
	if meta.Price != nil && *meta.Price > 0 {
		deal.Price = formatPounds(*meta.Price)
		if meta.NextBestPrice != nil && *meta.NextBestPrice > *meta.Price {
			deal.OriginalPrice = formatPounds(*meta.NextBestPrice)
			if amount, pct, ok := ComputeSavings(deal.Price, deal.OriginalPrice); ok {
				deal.Savings = amount
				deal.SavingsPercentage = pct
			}
		}
	}
	if meta.Merchant != nil {
		deal.Merchant = strings.TrimSpace(meta.Merchant.Name)
		if urlName := strings.TrimSpace(meta.Merchant.URLName); urlName != "" {
			deal.MerchantURL = c.baseURL + "/vouchers/" + url.PathEscape(urlName)
		}
	}
	if meta.Temperature != nil {
		score := *meta.Temperature
		deal.Score = &score
		deal.Temperature = models.ClassifyScore(score)
	}
	if meta.CommentCount != nil {
		count := *meta.CommentCount
		deal.CommentCount = &count
	}
}

func (c *Client) applyFallbacks(deal *models.Deal, s *goquery.Selection) {
	elements := c.selectors.SearchResults.Elements

	if deal.Price == "" {
		if elements.PriceText != "" {
			deal.Price = strings.TrimSpace(s.Find(elements.PriceText).First().Text())
		}
		if deal.Price == "" {
			deal.Price = priceFromTitle(deal.Title)
		}
	}
	if deal.Merchant == "" && elements.MerchantText != "" {
		deal.Merchant = strings.TrimSpace(s.Find(elements.MerchantText).First().Text())
	}
	if deal.CommentCount == nil && elements.CommentCount != "" {
		if text := util.CleanNumericString(s.Find(elements.CommentCount).First().Text()); text != "" {
			count := util.SafeAtoi(text)
			deal.CommentCount = &count
		}
	}
}

func (c *Client) fetchHTMLContent(ctx context.Context, urlStr string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for URL %s: %w", urlStr, err)
	}
	setBrowserHeaders(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", urlStr, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &FetchError{URL: urlStr, StatusCode: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", urlStr, err)
	}

	var reader io.Reader = bytes.NewReader(body)
	if enc, name, _ := charset.DetermineEncoding(body, res.Header.Get("Content-Type")); !strings.EqualFold(name, "utf-8") {
		reader = enc.NewDecoder().Reader(reader)
	}

	return goquery.NewDocumentFromReader(reader)
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
