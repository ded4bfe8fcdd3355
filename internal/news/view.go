package news

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FeedSource supplies headlines
type FeedSource interface {
	Fetch(ctx context.Context) ([]Article, error)
}

// CalendarSource supplies scheduled events
type CalendarSource interface {
	Fetch(ctx context.Context) ([]CalendarEvent, error)
}

// ViewConfig tunes the aggregated news view
type ViewConfig struct {
	// BlockBuffer is the half-width of the no-trade window around a
	// high impact event. Zero disables event blocking entirely.
	BlockBuffer time.Duration
	// StaleAfter marks data stale once the last successful refresh is
	// older than this
	StaleAfter time.Duration
	// ArticleMaxAge drops headlines older than this from scoring
	ArticleMaxAge time.Duration
	// Keywords extend headline relevance beyond the currency lexicon;
	// a matching article counts for every symbol
	Keywords []string
}

// DefaultViewConfig returns the standard windows
func DefaultViewConfig() ViewConfig {
	return ViewConfig{
		BlockBuffer:   30 * time.Minute,
		StaleAfter:    2 * time.Hour,
		ArticleMaxAge: 24 * time.Hour,
	}
}

// View aggregates headlines and calendar events into per-symbol
// sentiment and blocking windows. Fetch failures degrade gracefully:
// the last good data stays in place and is flagged stale once too old.
type View struct {
	feed     FeedSource
	calendar CalendarSource
	cfg      ViewConfig
	log      zerolog.Logger

	mu          sync.RWMutex
	articles    []Article
	events      []CalendarEvent
	lastRefresh time.Time

	now func() time.Time
}

// NewView creates the aggregated view. Either source may be nil when
// the corresponding endpoint is not configured. A zero BlockBuffer is
// honored as "blocking off", not replaced with a default.
func NewView(feed FeedSource, calendar CalendarSource, cfg ViewConfig, log zerolog.Logger) *View {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Hour
	}
	if cfg.ArticleMaxAge <= 0 {
		cfg.ArticleMaxAge = 24 * time.Hour
	}
	return &View{
		feed:     feed,
		calendar: calendar,
		cfg:      cfg,
		log:      log.With().Str("component", "news").Logger(),
		now:      time.Now,
	}
}

// Refresh pulls both sources. A failing source keeps its previous data;
// the view only reports an error when nothing could be fetched at all.
func (v *View) Refresh(ctx context.Context) error {
	var feedErr, calErr error
	var articles []Article
	var events []CalendarEvent

	if v.feed != nil {
		articles, feedErr = v.feed.Fetch(ctx)
		if feedErr != nil {
			v.log.Warn().Err(feedErr).Msg("news feed fetch failed, keeping previous headlines")
		}
	}
	if v.calendar != nil {
		events, calErr = v.calendar.Fetch(ctx)
		if calErr != nil {
			v.log.Warn().Err(calErr).Msg("calendar fetch failed, keeping previous events")
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if feedErr == nil && v.feed != nil {
		v.articles = articles
	}
	if calErr == nil && v.calendar != nil {
		v.events = events
	}
	if feedErr == nil || calErr == nil {
		v.lastRefresh = v.now()
		return nil
	}
	if feedErr != nil {
		return feedErr
	}
	return calErr
}

// Stale reports whether the data is older than the configured horizon
func (v *View) Stale() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastRefresh.IsZero() || v.now().Sub(v.lastRefresh) > v.cfg.StaleAfter
}

// SentimentFor scores the headlines relevant to a symbol into [-1, 1]
func (v *View) SentimentFor(symbol string) Sentiment {
	v.mu.RLock()
	defer v.mu.RUnlock()

	currencies := SymbolCurrencies(symbol)
	cutoff := v.now().Add(-v.cfg.ArticleMaxAge)
	s := Sentiment{Symbol: symbol, Stale: v.staleLocked(), UpdatedAt: v.lastRefresh}

	var total float64
	for _, a := range v.articles {
		if a.PublishedAt.Before(cutoff) {
			continue
		}
		text := a.Title + " " + a.Summary
		if !mentionsAny(text, currencies) && !matchesKeyword(text, v.cfg.Keywords) {
			continue
		}
		score, ok := scoreText(text)
		if !ok {
			continue
		}
		total += score
		s.Articles++
		if score > 0 {
			s.Positive++
		} else if score < 0 {
			s.Negative++
		}
	}
	if s.Articles > 0 {
		s.Score = total / float64(s.Articles)
	}
	return s
}

// IsBlocked reports whether trading the symbol falls inside the buffer
// window around a high impact event for either of its currencies. The
// blocking event is returned for reporting.
func (v *View) IsBlocked(symbol string, at time.Time) (bool, *CalendarEvent) {
	if v.cfg.BlockBuffer <= 0 {
		return false, nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	currencies := SymbolCurrencies(symbol)
	for i := range v.events {
		ev := &v.events[i]
		if ev.Impact != ImpactHigh {
			continue
		}
		if !matchesCurrency(ev.Currency, currencies) {
			continue
		}
		start := ev.Time.Add(-v.cfg.BlockBuffer)
		end := ev.Time.Add(v.cfg.BlockBuffer)
		if !at.Before(start) && !at.After(end) {
			return true, ev
		}
	}
	return false, nil
}

// UpcomingHighImpact lists high impact events for the symbol within the
// window, soonest first
func (v *View) UpcomingHighImpact(symbol string, within time.Duration) []CalendarEvent {
	v.mu.RLock()
	defer v.mu.RUnlock()

	currencies := SymbolCurrencies(symbol)
	now := v.now()
	var out []CalendarEvent
	for _, ev := range v.events {
		if ev.Impact != ImpactHigh {
			continue
		}
		if !matchesCurrency(ev.Currency, currencies) {
			continue
		}
		if ev.Time.Before(now) || ev.Time.After(now.Add(within)) {
			continue
		}
		out = append(out, ev)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Time.Before(out[j-1].Time); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (v *View) staleLocked() bool {
	return v.lastRefresh.IsZero() || v.now().Sub(v.lastRefresh) > v.cfg.StaleAfter
}

func matchesCurrency(eventCurrency string, currencies []string) bool {
	ec := strings.ToUpper(eventCurrency)
	for _, c := range currencies {
		if ec == c {
			return true
		}
	}
	return false
}

var positiveWords = []string{
	"rally", "surge", "gain", "beat", "beats", "growth", "strong",
	"rise", "rises", "soar", "bullish", "optimism", "recovery",
	"upbeat", "hawkish", "improve",
}

var negativeWords = []string{
	"fall", "falls", "drop", "drops", "decline", "miss", "misses",
	"weak", "slump", "bearish", "fear", "fears", "recession", "crash",
	"plunge", "dovish", "cut", "worsen",
}

// scoreText counts lexicon hits; returns false when no sentiment word
// appears at all
func scoreText(text string) (float64, bool) {
	lower := strings.ToLower(text)
	var pos, neg int
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0, false
	}
	return float64(pos-neg) / float64(pos+neg), true
}
