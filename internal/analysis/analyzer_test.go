package analysis

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-bot/internal/broker"
)

// countingClient wraps the mock broker and counts Rates calls
type countingClient struct {
	*broker.MockClient
	mu    sync.Mutex
	calls int
}

func (c *countingClient) Rates(ctx context.Context, symbol string, tf broker.Timeframe, count int) ([]broker.Bar, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.MockClient.Rates(ctx, symbol, tf, count)
}

func (c *countingClient) rateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func trendingBars(n int, start, step float64) []broker.Bar {
	bars := make([]broker.Bar, n)
	t := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	price := start
	for i := range bars {
		open := price
		price += step
		hi, lo := open, price
		if step < 0 {
			hi, lo = price, open
		}
		bars[i] = broker.Bar{
			Time:   t.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   hi + math.Abs(step)*0.2,
			Low:    lo - math.Abs(step)*0.2,
			Close:  price,
			Volume: 1000,
		}
	}
	return bars
}

func newTestAnalyzer(t *testing.T, bars []broker.Bar) (*Analyzer, *countingClient) {
	t.Helper()
	mock := broker.NewMockClient()
	mock.SetSymbol(broker.SymbolInfo{Name: "EURUSD", Digits: 5, Point: 0.00001, ContractSize: 100000})
	mock.SetBars("EURUSD", broker.TimeframeH1, bars)
	if err := mock.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	client := &countingClient{MockClient: mock}
	return NewAnalyzer(client, DefaultConfig(), zerolog.Nop()), client
}

func TestAnalyzeReturnsNilBelowMinimumHistory(t *testing.T) {
	a, _ := newTestAnalyzer(t, trendingBars(30, 1.1000, 0.0005))

	frame, err := a.Analyze(context.Background(), "EURUSD", broker.TimeframeH1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame != nil {
		t.Fatalf("expected nil frame for 30 bars, got %+v", frame)
	}
}

func TestAnalyzeCachesWithinTTL(t *testing.T) {
	a, client := newTestAnalyzer(t, trendingBars(300, 1.1000, 0.0005))

	ctx := context.Background()
	first, err := a.Analyze(ctx, "EURUSD", broker.TimeframeH1)
	if err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	second, err := a.Analyze(ctx, "EURUSD", broker.TimeframeH1)
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if first != second {
		t.Error("expected the cached frame pointer on the second call")
	}
	if got := client.rateCalls(); got != 1 {
		t.Errorf("expected 1 rates fetch, got %d", got)
	}
}

func TestAnalyzeRefetchesAfterTTLExpiry(t *testing.T) {
	a, client := newTestAnalyzer(t, trendingBars(300, 1.1000, 0.0005))

	base := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	current := base
	a.now = func() time.Time { return current }

	ctx := context.Background()
	if _, err := a.Analyze(ctx, "EURUSD", broker.TimeframeH1); err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	current = base.Add(defaultCacheTTL + time.Second)
	if _, err := a.Analyze(ctx, "EURUSD", broker.TimeframeH1); err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if got := client.rateCalls(); got != 2 {
		t.Errorf("expected a refetch after TTL expiry, got %d fetches", got)
	}
}

func TestAnalyzeBuildsSanitizedFrame(t *testing.T) {
	a, _ := newTestAnalyzer(t, trendingBars(300, 1.1000, 0.0005))

	frame, err := a.Analyze(context.Background(), "EURUSD", broker.TimeframeH1)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if frame == nil {
		t.Fatal("expected a frame for 300 bars")
	}
	if frame.LowConfidence {
		t.Error("300 bars should not be flagged low confidence")
	}
	for name, v := range map[string]float64{
		"rsi":    frame.RSI,
		"atr":    frame.ATR,
		"adx":    frame.ADX.ADX,
		"ema200": frame.EMA200,
		"stochK": frame.Stochastic.K,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s is not finite: %v", name, v)
		}
	}
	if frame.RSI <= 50 {
		t.Errorf("steady uptrend should push RSI above 50, got %.2f", frame.RSI)
	}
	if frame.Trend.Direction != TrendBullish {
		t.Errorf("steady uptrend should vote bullish, got %s", frame.Trend.Direction)
	}
	if frame.ATR <= 0 {
		t.Errorf("ATR should be positive, got %v", frame.ATR)
	}
}

func TestTrendVerdictNeutralOnMixedSignals(t *testing.T) {
	f := &Frame{
		CurrentPrice: 1.1,
		EMA9:         1.1,
		EMA21:        1.1,
		EMA50:        1.1,
		RSI:          50,
		ADX:          ADXValues{ADX: 15},
		Bollinger:    BandValues{Middle: 1.1},
	}
	v := ComputeTrendVerdict(f)
	if v.Direction != TrendNeutral {
		t.Errorf("flat frame should be neutral, got %s", v.Direction)
	}
	if v.Strength != 0 {
		t.Errorf("flat frame should have zero strength, got %v", v.Strength)
	}
}

func TestTrendVerdictUsesADXStrength(t *testing.T) {
	f := &Frame{
		CurrentPrice: 1.12,
		EMA9:         1.118,
		EMA21:        1.115,
		EMA50:        1.110,
		RSI:          60,
		MACD:         MACDValues{Line: 0.002, Signal: 0.001},
		ADX:          ADXValues{ADX: 40, DIPlus: 30, DIMinus: 10},
		Bollinger:    BandValues{Middle: 1.115},
	}
	v := ComputeTrendVerdict(f)
	if v.Direction != TrendBullish {
		t.Fatalf("expected bullish, got %s", v.Direction)
	}
	if v.Strength != 0.4 {
		t.Errorf("ADX 40 should give strength 0.40, got %v", v.Strength)
	}
}

func TestConsensusMajority(t *testing.T) {
	frames := map[broker.Timeframe]*Frame{
		broker.TimeframeD1: {Trend: TrendVerdict{Direction: TrendBullish, Strength: 0.5}},
		broker.TimeframeH4: {Trend: TrendVerdict{Direction: TrendBullish, Strength: 0.3}},
		broker.TimeframeH1: {Trend: TrendVerdict{Direction: TrendBearish, Strength: 0.4}},
	}
	c := ComputeConsensus(frames)
	if c.Direction != TrendBullish {
		t.Errorf("expected bullish consensus, got %s", c.Direction)
	}
	if c.BullishCount != 2 || c.BearishCount != 1 {
		t.Errorf("unexpected counts: %+v", c)
	}
	if math.Abs(c.Agreement-2.0/3.0) > 1e-9 {
		t.Errorf("expected agreement 2/3, got %v", c.Agreement)
	}
	if math.Abs(c.Strength-0.4) > 1e-9 {
		t.Errorf("expected mean strength 0.4, got %v", c.Strength)
	}
}

func TestConsensusNeutralWhenTied(t *testing.T) {
	frames := map[broker.Timeframe]*Frame{
		broker.TimeframeD1: {Trend: TrendVerdict{Direction: TrendBullish}},
		broker.TimeframeH4: {Trend: TrendVerdict{Direction: TrendNeutral}},
		broker.TimeframeH1: {Trend: TrendVerdict{Direction: TrendNeutral}},
	}
	c := ComputeConsensus(frames)
	if c.Direction != TrendNeutral {
		t.Errorf("neutral majority should stay neutral, got %s", c.Direction)
	}
}
