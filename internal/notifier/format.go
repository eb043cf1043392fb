package notifier

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pauljones0/hotukdeals-notifier/internal/models"
)

func (c *Client) formatDealToEmbed(deal models.AcceptedDeal) discordEmbed {
	embed := discordEmbed{
		Title:  truncate(deal.Title, maxTitleLength),
		URL:    deal.Link,
		Color:  palette[c.randIntn(len(palette))],
		Footer: &discordEmbedFooter{Text: "Search term: " + deal.SearchTerm},
	}
	if deal.Timestamp > 0 {
		embed.Timestamp = deal.ObservedAt().UTC().Format(time.RFC3339)
	}

	if price := formatPrice(deal.Deal); price != "" {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Price", Value: price, Inline: true})
	}
	if deal.Merchant != "" {
		merchant := deal.Merchant
		if deal.MerchantURL != "" {
			merchant = fmt.Sprintf("[%s](%s)", deal.Merchant, deal.MerchantURL)
		}
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Merchant", Value: merchant, Inline: true})
	}
	if deal.CommentCount != nil {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Comments", Value: strconv.Itoa(*deal.CommentCount), Inline: true})
	}
	if temp, ok := deal.EffectiveTemperature(); ok {
		value := string(temp)
		if deal.Score != nil {
			value = fmt.Sprintf("%s (%s°)", temp, strconv.FormatFloat(*deal.Score, 'f', -1, 64))
		}
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Temperature", Value: value, Inline: true})
	}
	return embed
}

// formatPrice bolds the current price and, when a saving is known, appends the
// struck-through original price.
func formatPrice(deal models.Deal) string {
	if deal.Price == "" {
		return ""
	}
	price := "**" + deal.Price + "**"
	if deal.OriginalPrice != "" && deal.Savings != "" {
		price += fmt.Sprintf(" ~~%s~~ (Save %s - %d%% off)", deal.OriginalPrice, deal.Savings, deal.SavingsPercentage)
	}
	return price
}

// buildSummary describes the whole delivery: deal count, search terms in
// first-seen order, and hot/warm counts.
func buildSummary(deals []models.AcceptedDeal) string {
	var terms []string
	seenTerms := make(map[string]bool)
	hot, warm := 0, 0
	for _, deal := range deals {
		if !seenTerms[deal.SearchTerm] {
			seenTerms[deal.SearchTerm] = true
			terms = append(terms, deal.SearchTerm)
		}
		switch temp, _ := deal.EffectiveTemperature(); temp {
		case models.TemperatureHot:
			hot++
		case models.TemperatureWarm:
			warm++
		}
	}

	noun := "deals"
	if len(deals) == 1 {
		noun = "deal"
	}
	summary := fmt.Sprintf("**%d new %s** for %s", len(deals), noun, strings.Join(quoteAll(terms), ", "))
	if hot > 0 || warm > 0 {
		summary += fmt.Sprintf("\n🔥 %d hot | ♨️ %d warm", hot, warm)
	}
	return truncate(summary, maxContentLength)
}

func quoteAll(terms []string) []string {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + term + `"`
	}
	return quoted
}

// truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
