package models

import (
	"errors"
	"time"
)

// ErrDealExists is returned when a seen record for the deal id already exists.
var ErrDealExists = errors.New("deal already exists")

// ErrNotFound is returned when a requested channel does not exist.
var ErrNotFound = errors.New("not found")

// Temperature is the three-level popularity classification of a deal.
type Temperature string

const (
	TemperatureHot  Temperature = "hot"
	TemperatureWarm Temperature = "warm"
	TemperatureCold Temperature = "cold"

	HotScoreThreshold  = 100.0
	WarmScoreThreshold = 50.0
)

// ClassifyScore maps a popularity score to its temperature.
func ClassifyScore(score float64) Temperature {
	switch {
	case score >= HotScoreThreshold:
		return TemperatureHot
	case score >= WarmScoreThreshold:
		return TemperatureWarm
	default:
		return TemperatureCold
	}
}

// Deal is one listing observed on a search-results page. It is built fresh on
// every fetch and never mutated afterwards.
type Deal struct {
	ID                string      `json:"dealId" validate:"required"`
	Title             string      `json:"title" validate:"required"`
	Link              string      `json:"link" validate:"required,url"`
	Price             string      `json:"price,omitempty"`
	OriginalPrice     string      `json:"originalPrice,omitempty"`
	Merchant          string      `json:"merchant,omitempty"`
	MerchantURL       string      `json:"merchantUrl,omitempty" validate:"omitempty,url"`
	Score             *float64    `json:"score,omitempty"`
	Temperature       Temperature `json:"temperature,omitempty"`
	CommentCount      *int        `json:"commentCount,omitempty"`
	Savings           string      `json:"savings,omitempty"`
	SavingsPercentage int         `json:"savingsPercentage,omitempty"`
	Timestamp         int64       `json:"timestamp"` // epoch millis at observation
}

// EffectiveTemperature returns the explicit temperature tag, or one derived from
// the score when no tag is present. ok is false when neither is known.
func (d Deal) EffectiveTemperature() (t Temperature, ok bool) {
	if d.Temperature != "" {
		return d.Temperature, true
	}
	if d.Score != nil {
		return ClassifyScore(*d.Score), true
	}
	return "", false
}

// ObservedAt converts the observation timestamp to a time.Time.
func (d Deal) ObservedAt() time.Time {
	return time.UnixMilli(d.Timestamp)
}

// AcceptedDeal is a deal that passed dedup and filtering for a search term.
type AcceptedDeal struct {
	Deal
	SearchTerm string
}

// SeenDeal marks a deal id as already notified. Created once, never updated.
type SeenDeal struct {
	DealID     string    `firestore:"dealId" dynamodbav:"dealId" validate:"required"`
	SearchTerm string    `firestore:"searchTerm" dynamodbav:"searchTerm" validate:"required"`
	Title      string    `firestore:"title" dynamodbav:"title"`
	Link       string    `firestore:"link" dynamodbav:"link"`
	Price      string    `firestore:"price,omitempty" dynamodbav:"price,omitempty"`
	Merchant   string    `firestore:"merchant,omitempty" dynamodbav:"merchant,omitempty"`
	Timestamp  int64     `firestore:"timestamp" dynamodbav:"timestamp"` // first-seen, epoch millis
	CreatedAt  time.Time `firestore:"createdAt" dynamodbav:"createdAt"`
	// ExpireAt is zero unless a retention period is configured.
	ExpireAt time.Time `firestore:"expireAt,omitempty" dynamodbav:"-"`
}

// NewSeenDeal copies the audit fields of an accepted deal.
func NewSeenDeal(d Deal, searchTerm string, now time.Time, retention time.Duration) SeenDeal {
	seen := SeenDeal{
		DealID:     d.ID,
		SearchTerm: searchTerm,
		Title:      d.Title,
		Link:       d.Link,
		Price:      d.Price,
		Merchant:   d.Merchant,
		Timestamp:  now.UnixMilli(),
		CreatedAt:  now.UTC(),
	}
	if retention > 0 {
		seen.ExpireAt = now.Add(retention).UTC()
	}
	return seen
}
