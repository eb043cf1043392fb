package scraper

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestComputeSavings(t *testing.T) {
	tests := []struct {
		name       string
		price      string
		original   string
		wantAmount string
		wantPct    int
		wantOK     bool
	}{
		{name: "Whole pounds", price: "£40", original: "£50", wantAmount: "£10.00", wantPct: 20, wantOK: true},
		{name: "Pence rounding", price: "£19.99", original: "£29.99", wantAmount: "£10.00", wantPct: 33, wantOK: true},
		{name: "No saving", price: "£50", original: "£50", wantOK: false},
		{name: "Price went up", price: "£60", original: "£50", wantOK: false},
		{name: "Unparsable price", price: "Free", original: "£5", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, pct, ok := ComputeSavings(tt.price, tt.original)
			if ok != tt.wantOK {
				t.Fatalf("ComputeSavings() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (amount != tt.wantAmount || pct != tt.wantPct) {
				t.Errorf("ComputeSavings() = (%q, %d), want (%q, %d)", amount, pct, tt.wantAmount, tt.wantPct)
			}
		})
	}
}

func TestPriceFromTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{title: "AirPods Pro 2 £179 at Amazon", want: "£179"},
		{title: "Big telly 1,299.99 GBP delivered", want: "299.99 GBP"},
		{title: "Lego set 45 pounds", want: "45 pounds"},
		{title: "Hoover - save €30 today", want: "€30"},
		{title: "Half price sofa", want: ""},
	}

	for _, tt := range tests {
		if got := priceFromTitle(tt.title); got != tt.want {
			t.Errorf("priceFromTitle(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestLoadConfig_EmbeddedMatchesDefaults(t *testing.T) {
	if got := LoadConfig(""); !reflect.DeepEqual(got, DefaultSelectors()) {
		t.Errorf("Embedded selectors differ from defaults:\n got %+v\nwant %+v", got, DefaultSelectors())
	}
}

func TestLoadConfig_ExternalOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.json")
	data := `{"search_results":{"container":{"item":"div.deal"},"elements":{"title_link":"a.title"}}}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	got := LoadConfig(path)
	if got.SearchResults.Container.Item != "div.deal" || got.SearchResults.Elements.TitleLink != "a.title" {
		t.Errorf("Override not applied: %+v", got)
	}

	if got := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); !reflect.DeepEqual(got, DefaultSelectors()) {
		t.Error("Missing override should fall back to embedded selectors")
	}
}

func TestLoadSelectorsFromBytes_RejectsEmptyContainer(t *testing.T) {
	if _, err := LoadSelectorsFromBytes([]byte(`{"search_results":{"elements":{"title_link":"a"}}}`)); err == nil {
		t.Error("Expected error for empty container selector")
	}
}
