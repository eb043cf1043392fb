package scraper

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// MetadataStatus tells whether the embedded listing payload could be used.
type MetadataStatus string

const (
	MetadataOK       MetadataStatus = "ok"
	MetadataFallback MetadataStatus = "fallback"
)

// MetadataResult is the outcome of decoding one listing's embedded payload.
// Data is set only when Status is MetadataOK; Reason only for MetadataFallback.
type MetadataResult struct {
	Status MetadataStatus
	Data   *ThreadMetadata
	Reason string
}

// ThreadMetadata is the subset of the listing payload the parser reads.
type ThreadMetadata struct {
	ThreadID      flexString `json:"threadId"`
	Price         *float64   `json:"price"`
	NextBestPrice *float64   `json:"nextBestPrice"`
	Temperature   *float64   `json:"temperature"`
	CommentCount  *int       `json:"commentCount"`
	Merchant      *struct {
		Name    string `json:"merchantName"`
		URLName string `json:"merchantUrlName"`
	} `json:"merchant"`
}

type metadataEnvelope struct {
	Props struct {
		Thread *ThreadMetadata `json:"thread"`
	} `json:"props"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func fallback(reason string) MetadataResult {
	return MetadataResult{Status: MetadataFallback, Reason: reason}
}

// ParseMetadata decodes a raw data attribute. The attribute is tried as JSON
// first and again after HTML entity decoding.
func ParseMetadata(raw string) MetadataResult {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback("metadata attribute missing")
	}

	var env metadataEnvelope
	err := json.Unmarshal([]byte(raw), &env)
	if err != nil {
		unescaped := html.UnescapeString(raw)
		if unescaped == raw {
			return fallback("metadata is not valid JSON: " + err.Error())
		}
		env = metadataEnvelope{}
		if err := json.Unmarshal([]byte(unescaped), &env); err != nil {
			return fallback("metadata is not valid JSON after entity decoding: " + err.Error())
		}
	}

	if env.Props.Thread == nil {
		return fallback("metadata has no props.thread")
	}
	return MetadataResult{Status: MetadataOK, Data: env.Props.Thread}
}
