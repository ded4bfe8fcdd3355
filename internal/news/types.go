package news

import (
	"strings"
	"time"
)

// Impact grades a calendar event
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Article is a single headline from the news feed
type Article struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// CalendarEvent is a scheduled economic release
type CalendarEvent struct {
	Time     time.Time `json:"time"`
	Currency string    `json:"currency"`
	Impact   Impact    `json:"impact"`
	Title    string    `json:"title"`
	Forecast string    `json:"forecast,omitempty"`
	Previous string    `json:"previous,omitempty"`
}

// Sentiment is the aggregated read for one symbol
type Sentiment struct {
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`
	Articles  int       `json:"articles"`
	Positive  int       `json:"positive"`
	Negative  int       `json:"negative"`
	Stale     bool      `json:"stale"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agreement is the fraction of scored articles leaning the dominant way
func (s Sentiment) Agreement() float64 {
	if s.Positive+s.Negative == 0 {
		return 0
	}
	major := s.Positive
	if s.Negative > major {
		major = s.Negative
	}
	return float64(major) / float64(s.Positive+s.Negative)
}

// SymbolCurrencies splits a symbol into its base and quote currencies.
// Six-letter pairs split in the middle; metals keep their XAU/XAG code.
func SymbolCurrencies(symbol string) []string {
	s := strings.ToUpper(symbol)
	// strip broker suffixes like EURUSD.m or EURUSD_i
	if i := strings.IndexAny(s, "._-"); i > 0 {
		s = s[:i]
	}
	if len(s) == 6 {
		return []string{s[:3], s[3:]}
	}
	return []string{s}
}

func mentionsAny(text string, currencies []string) bool {
	upper := strings.ToUpper(text)
	for _, c := range currencies {
		if strings.Contains(upper, c) {
			return true
		}
		if name, ok := currencyNames[c]; ok && strings.Contains(upper, name) {
			return true
		}
	}
	return false
}

// matchesKeyword reports whether the text contains any of the
// configured relevance keywords
func matchesKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

var currencyNames = map[string]string{
	"USD": "DOLLAR",
	"EUR": "EURO",
	"GBP": "POUND",
	"JPY": "YEN",
	"CHF": "FRANC",
	"AUD": "AUSSIE",
	"CAD": "LOONIE",
	"NZD": "KIWI",
	"XAU": "GOLD",
	"XAG": "SILVER",
}
