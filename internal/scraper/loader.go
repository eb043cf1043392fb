package scraper

import (
	"embed"
	"errors"
	"io/fs"
	"log/slog"
)

//go:embed selectors.json
var embeddedSelectors embed.FS

// LoadConfig resolves the selector set. An external file at overridePath wins
// when it parses, then the embedded selectors.json, then DefaultSelectors.
func LoadConfig(overridePath string) SelectorConfig {
	if overridePath != "" {
		sel, err := LoadSelectors(overridePath)
		if err == nil {
			slog.Info("Loaded selectors from external file", "path", overridePath)
			return sel
		}
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No external selectors file", "path", overridePath)
		} else {
			slog.Warn("Failed to load external selectors, trying embedded config", "path", overridePath, "error", err)
		}
	}

	data, err := embeddedSelectors.ReadFile("selectors.json")
	if err == nil {
		sel, parseErr := LoadSelectorsFromBytes(data)
		if parseErr == nil {
			slog.Debug("Loaded selectors from embedded config")
			return sel
		}
		err = parseErr
	}
	slog.Warn("Embedded selectors unusable, falling back to defaults", "error", err)
	return DefaultSelectors()
}
