package news

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubFeed struct {
	articles []Article
	err      error
}

func (s *stubFeed) Fetch(ctx context.Context) ([]Article, error) {
	return s.articles, s.err
}

type stubCalendar struct {
	events []CalendarEvent
	err    error
}

func (s *stubCalendar) Fetch(ctx context.Context) ([]CalendarEvent, error) {
	return s.events, s.err
}

func TestSymbolCurrencies(t *testing.T) {
	cases := map[string][]string{
		"EURUSD":   {"EUR", "USD"},
		"usdjpy":   {"USD", "JPY"},
		"XAUUSD":   {"XAU", "USD"},
		"EURUSD.m": {"EUR", "USD"},
	}
	for symbol, want := range cases {
		got := SymbolCurrencies(symbol)
		if len(got) != len(want) {
			t.Errorf("%s: got %v, want %v", symbol, got, want)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s: got %v, want %v", symbol, got, want)
			}
		}
	}
}

func TestSentimentScoresRelevantHeadlines(t *testing.T) {
	now := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)
	feed := &stubFeed{articles: []Article{
		{Title: "Euro rallies on strong growth data", PublishedAt: now.Add(-time.Hour)},
		{Title: "EUR falls as recession fears mount", PublishedAt: now.Add(-time.Hour)},
		{Title: "Yen surges against the dollar", PublishedAt: now.Add(-time.Hour)},
		{Title: "Euro slump deepens", PublishedAt: now.Add(-48 * time.Hour)},
	}}
	v := NewView(feed, nil, DefaultViewConfig(), zerolog.Nop())
	v.now = func() time.Time { return now }

	if err := v.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	s := v.SentimentFor("EURUSD")
	// stale euro headline is dropped; the yen piece matches via USD
	if s.Articles != 3 {
		t.Errorf("expected 3 scored articles, got %d", s.Articles)
	}
	if s.Stale {
		t.Error("fresh data should not be stale")
	}

	jpy := v.SentimentFor("CHFJPY")
	if jpy.Articles != 1 {
		t.Fatalf("expected 1 yen article, got %d", jpy.Articles)
	}
	if jpy.Score <= 0 {
		t.Errorf("yen surge headline should score positive, got %v", jpy.Score)
	}
}

func TestBlockingWindowAroundHighImpactEvent(t *testing.T) {
	eventTime := time.Date(2025, 6, 5, 14, 30, 0, 0, time.UTC)
	cal := &stubCalendar{events: []CalendarEvent{
		{Time: eventTime, Currency: "USD", Impact: ImpactHigh, Title: "Non-Farm Payrolls"},
		{Time: eventTime, Currency: "EUR", Impact: ImpactMedium, Title: "German PMI"},
	}}
	v := NewView(nil, cal, DefaultViewConfig(), zerolog.Nop())
	if err := v.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	cases := []struct {
		at      time.Time
		blocked bool
	}{
		{eventTime.Add(-31 * time.Minute), false},
		{eventTime.Add(-30 * time.Minute), true},
		{eventTime, true},
		{eventTime.Add(30 * time.Minute), true},
		{eventTime.Add(31 * time.Minute), false},
	}
	for _, tc := range cases {
		blocked, ev := v.IsBlocked("EURUSD", tc.at)
		if blocked != tc.blocked {
			t.Errorf("at %s: blocked=%v, want %v", tc.at, blocked, tc.blocked)
		}
		if blocked && ev.Title != "Non-Farm Payrolls" {
			t.Errorf("expected the NFP event, got %+v", ev)
		}
	}

	// medium impact never blocks
	if blocked, _ := v.IsBlocked("EURCHF", eventTime); blocked {
		t.Error("medium impact event should not block")
	}
	// unrelated pair is untouched
	if blocked, _ := v.IsBlocked("AUDNZD", eventTime); blocked {
		t.Error("unrelated pair should not be blocked")
	}
}

func TestZeroBufferDisablesBlocking(t *testing.T) {
	eventTime := time.Date(2025, 6, 5, 14, 30, 0, 0, time.UTC)
	cal := &stubCalendar{events: []CalendarEvent{
		{Time: eventTime, Currency: "USD", Impact: ImpactHigh, Title: "FOMC"},
	}}
	cfg := DefaultViewConfig()
	cfg.BlockBuffer = 0
	v := NewView(nil, cal, cfg, zerolog.Nop())
	if err := v.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// even at the exact event instant nothing blocks
	if blocked, ev := v.IsBlocked("EURUSD", eventTime); blocked {
		t.Errorf("a zero buffer must disable event blocking, got blocked by %+v", ev)
	}
	if blocked, _ := v.IsBlocked("EURUSD", eventTime.Add(-time.Minute)); blocked {
		t.Error("a zero buffer must disable event blocking around the event too")
	}
}

func TestSentimentMatchesConfiguredKeywords(t *testing.T) {
	now := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)
	feed := &stubFeed{articles: []Article{
		// mentions neither currency code nor lexicon name
		{Title: "Fed strikes hawkish tone at June meeting", PublishedAt: now.Add(-time.Hour)},
	}}

	plain := NewView(feed, nil, DefaultViewConfig(), zerolog.Nop())
	plain.now = func() time.Time { return now }
	if err := plain.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if s := plain.SentimentFor("EURUSD"); s.Articles != 0 {
		t.Fatalf("without keywords the Fed headline is irrelevant, got %d articles", s.Articles)
	}

	cfg := DefaultViewConfig()
	cfg.Keywords = []string{"fed", "ecb"}
	v := NewView(feed, nil, cfg, zerolog.Nop())
	v.now = func() time.Time { return now }
	if err := v.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	s := v.SentimentFor("EURUSD")
	if s.Articles != 1 {
		t.Fatalf("keyword match should make the headline relevant, got %d articles", s.Articles)
	}
	if s.Score <= 0 {
		t.Errorf("hawkish headline should score positive, got %v", s.Score)
	}
}

func TestRefreshKeepsDataOnPartialFailure(t *testing.T) {
	now := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)
	feed := &stubFeed{articles: []Article{
		{Title: "Euro rallies", PublishedAt: now.Add(-time.Hour)},
	}}
	cal := &stubCalendar{events: []CalendarEvent{
		{Time: now.Add(time.Hour), Currency: "EUR", Impact: ImpactHigh, Title: "ECB Rate Decision"},
	}}
	v := NewView(feed, cal, DefaultViewConfig(), zerolog.Nop())
	v.now = func() time.Time { return now }

	if err := v.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	feed.err = errors.New("feed down")
	feed.articles = nil
	if err := v.Refresh(context.Background()); err != nil {
		t.Fatalf("partial refresh should not error: %v", err)
	}

	if s := v.SentimentFor("EURUSD"); s.Articles != 1 {
		t.Errorf("previous headlines should survive a failed fetch, got %d articles", s.Articles)
	}
	if blocked, _ := v.IsBlocked("EURUSD", now.Add(time.Hour)); !blocked {
		t.Error("calendar data should still block")
	}
}

func TestRefreshErrorsWhenAllSourcesFail(t *testing.T) {
	feed := &stubFeed{err: errors.New("feed down")}
	cal := &stubCalendar{err: errors.New("calendar down")}
	v := NewView(feed, cal, DefaultViewConfig(), zerolog.Nop())

	if err := v.Refresh(context.Background()); err == nil {
		t.Fatal("expected an error when every source fails")
	}
	if !v.Stale() {
		t.Error("never-refreshed view must be stale")
	}
}

func TestUpcomingHighImpactSorted(t *testing.T) {
	now := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)
	cal := &stubCalendar{events: []CalendarEvent{
		{Time: now.Add(3 * time.Hour), Currency: "USD", Impact: ImpactHigh, Title: "FOMC"},
		{Time: now.Add(time.Hour), Currency: "EUR", Impact: ImpactHigh, Title: "ECB"},
		{Time: now.Add(-time.Hour), Currency: "USD", Impact: ImpactHigh, Title: "past"},
		{Time: now.Add(2 * time.Hour), Currency: "GBP", Impact: ImpactHigh, Title: "BoE"},
	}}
	v := NewView(nil, cal, DefaultViewConfig(), zerolog.Nop())
	v.now = func() time.Time { return now }
	if err := v.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	events := v.UpcomingHighImpact("EURUSD", 6*time.Hour)
	if len(events) != 2 {
		t.Fatalf("expected ECB and FOMC, got %d events", len(events))
	}
	if events[0].Title != "ECB" || events[1].Title != "FOMC" {
		t.Errorf("events not sorted soonest first: %v, %v", events[0].Title, events[1].Title)
	}
}
