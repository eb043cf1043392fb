package util

import (
	"fmt"
	"net/url"
	"strings"
)

// trackingParams are stripped from listing links so the same listing always
// normalizes to the same URL.
var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid"}

// AbsoluteURL resolves ref against base. Absolute refs are returned as-is.
func AbsoluteURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref, fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref, fmt.Errorf("invalid link %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// NormalizeURL drops a trailing slash on the given source host and removes
// tracking query parameters. Links on other hosts only lose their tracking
// parameters.
func NormalizeURL(rawURL, sourceHost string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}

	if sourceHost != "" && strings.TrimPrefix(parsedURL.Hostname(), "www.") == strings.TrimPrefix(sourceHost, "www.") {
		if len(parsedURL.Path) > 1 && strings.HasSuffix(parsedURL.Path, "/") {
			parsedURL.Path = parsedURL.Path[:len(parsedURL.Path)-1]
			// Clear RawPath to ensure String() regenerates the URL path without the trailing slash
			parsedURL.RawPath = ""
		}
	}

	if parsedURL.RawQuery != "" {
		queryParams := parsedURL.Query()
		for _, param := range trackingParams {
			queryParams.Del(param)
		}
		parsedURL.RawQuery = queryParams.Encode()
	}
	return parsedURL.String(), nil
}
