package strategy

import (
	"testing"
	"time"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
	"forex-trading-bot/internal/indicators"
	"forex-trading-bot/internal/news"
)

// london is an hour inside the best scalping session
var london = time.Date(2025, 6, 5, 13, 0, 0, 0, time.UTC)

func flatH1() *analysis.Frame {
	return &analysis.Frame{
		Symbol: "EURUSD", Timeframe: broker.TimeframeH1,
		CurrentPrice: 1.1000, EMA9: 1.1000, EMA21: 1.1000, EMA50: 1.1001,
		EMA200: 1.0990, RSI: 50,
		ADX:       analysis.ADXValues{ADX: 18, DIPlus: 15, DIMinus: 15},
		Bollinger: analysis.BandValues{Upper: 1.1020, Middle: 1.1000, Lower: 1.0980},
		ATR:       0.0008, ATRPips: 8,
		Trend: analysis.TrendVerdict{Direction: analysis.TrendNeutral, Strength: 0.3},
	}
}

func oversoldM5() *analysis.Frame {
	return &analysis.Frame{
		Symbol: "EURUSD", Timeframe: broker.TimeframeM5,
		CurrentPrice: 1.0938, RSI: 26,
		EMA9: 1.0950, EMA21: 1.0960, EMA50: 1.0970,
		ADX:        analysis.ADXValues{ADX: 16, DIPlus: 12, DIMinus: 20},
		Bollinger:  analysis.BandValues{Upper: 1.1010, Middle: 1.0975, Lower: 1.0940},
		Stochastic: analysis.StochValues{K: 15, D: 22},
		Patterns:   indicators.PatternFlags{EngulfingBullish: true},
		ATR:        0.0006, ATRPips: 6,
		LastBar: broker.Bar{Open: 1.0936, High: 1.0942, Low: 1.0933, Close: 1.0938},
		Trend:   analysis.TrendVerdict{Direction: analysis.TrendNeutral},
	}
}

func bearishH1() *analysis.Frame {
	return &analysis.Frame{
		Symbol: "EURUSD", Timeframe: broker.TimeframeH1,
		CurrentPrice: 1.0800,
		EMA9:         1.0820, EMA21: 1.0840, EMA50: 1.0860, EMA200: 1.0950,
		RSI:  42,
		MACD: analysis.MACDValues{Line: -0.0012, Signal: -0.0006, Histogram: -0.0006},
		ADX:  analysis.ADXValues{ADX: 38, DIPlus: 10, DIMinus: 30},
		Bollinger:   analysis.BandValues{Upper: 1.0880, Middle: 1.0840, Lower: 1.0800},
		VolumeRatio: 1.2,
		ATR:         0.0010, ATRPips: 10,
		Trend: analysis.TrendVerdict{Direction: analysis.TrendBearish, Strength: 0.38},
	}
}

func baseInput(frames map[broker.Timeframe]*analysis.Frame) *Input {
	return &Input{
		Symbol:     "EURUSD",
		Frames:     frames,
		PipSize:    0.0001,
		Digits:     5,
		SpreadPips: 1.0,
		Now:        london,
	}
}

// Scenario: ranging market. Trend following holds; mean reversion buys.
func TestRangingMarketMeanReversionBuys(t *testing.T) {
	in := baseInput(map[broker.Timeframe]*analysis.Frame{
		broker.TimeframeH1: flatH1(),
		broker.TimeframeM5: oversoldM5(),
	})

	tf := NewTrendFollowingStrategy(DefaultTrendFollowingConfig("EURUSD"), nil)
	sig := tf.Analyze(in)
	if sig.Action != ActionHold {
		t.Fatalf("trend following in a flat market should hold, got %s", sig.Action)
	}
	if len(sig.Reasons) == 0 || sig.Reasons[0] != ReasonNoClearTrend {
		t.Errorf("expected reason %q, got %v", ReasonNoClearTrend, sig.Reasons)
	}

	mr := NewMeanReversionStrategy(DefaultMeanReversionConfig("EURUSD"), nil)
	sig = mr.Analyze(in)
	if sig.Action != ActionBuy {
		t.Fatalf("oversold M5 at the lower band should buy, got %s (%v)", sig.Action, sig.Reasons)
	}
	if sig.Confidence < 0.70 {
		t.Errorf("expected confidence >= 0.70, got %.2f", sig.Confidence)
	}
	if sig.StopLoss >= sig.Price || sig.TakeProfit <= sig.Price {
		t.Errorf("BUY stops must bracket price: sl=%v price=%v tp=%v", sig.StopLoss, sig.Price, sig.TakeProfit)
	}
}

// Scenario: strong downtrend. Trend following sells with conviction.
func TestStrongDowntrendTrendFollowingSells(t *testing.T) {
	in := baseInput(map[broker.Timeframe]*analysis.Frame{
		broker.TimeframeH1: bearishH1(),
		broker.TimeframeD1: {Trend: analysis.TrendVerdict{Direction: analysis.TrendBearish, Strength: 0.9}},
	})

	tf := NewTrendFollowingStrategy(DefaultTrendFollowingConfig("EURUSD"), nil)
	sig := tf.Analyze(in)
	if sig.Action != ActionSell {
		t.Fatalf("aligned downtrend should sell, got %s (%v)", sig.Action, sig.Reasons)
	}
	if sig.Confidence < 0.75 {
		t.Errorf("expected confidence >= 0.75, got %.2f", sig.Confidence)
	}
	if sig.StopLoss <= sig.Price || sig.TakeProfit >= sig.Price {
		t.Errorf("SELL stops must bracket price: tp=%v price=%v sl=%v", sig.TakeProfit, sig.Price, sig.StopLoss)
	}
}

// Scenario: blocking window. News trading must hold regardless of
// sentiment strength.
func TestNewsTradingHoldsInsideBlockingWindow(t *testing.T) {
	in := baseInput(map[broker.Timeframe]*analysis.Frame{
		broker.TimeframeM5: oversoldM5(),
	})
	in.News = &NewsSnapshot{
		Sentiment: news.Sentiment{Symbol: "EURUSD", Score: 0.9, Articles: 10, Positive: 9, Negative: 1},
		Blocking:  true,
		BlockingEvent: &news.CalendarEvent{
			Title: "FOMC", Currency: "USD", Impact: news.ImpactHigh,
		},
	}

	nt := NewNewsTradingStrategy(DefaultNewsTradingConfig("EURUSD"), nil)
	sig := nt.Analyze(in)
	if sig.Action != ActionHold {
		t.Fatalf("blocking window must hold, got %s", sig.Action)
	}
	if len(sig.Reasons) == 0 || sig.Reasons[0] != ReasonNewsBlockingWindow {
		t.Errorf("expected reason %q, got %v", ReasonNewsBlockingWindow, sig.Reasons)
	}
}

func TestNewsTradingFollowsClearSentiment(t *testing.T) {
	m5 := oversoldM5()
	m5.Trend = analysis.TrendVerdict{Direction: analysis.TrendBullish, Strength: 0.5}
	in := baseInput(map[broker.Timeframe]*analysis.Frame{broker.TimeframeM5: m5})
	in.News = &NewsSnapshot{
		Sentiment: news.Sentiment{Symbol: "EURUSD", Score: 0.6, Articles: 5, Positive: 4, Negative: 1},
	}

	nt := NewNewsTradingStrategy(DefaultNewsTradingConfig("EURUSD"), nil)
	sig := nt.Analyze(in)
	if sig.Action != ActionBuy {
		t.Fatalf("strong positive sentiment with aligned technicals should buy, got %s (%v)", sig.Action, sig.Reasons)
	}
}

func TestNewsTradingHoldsWithoutNews(t *testing.T) {
	in := baseInput(map[broker.Timeframe]*analysis.Frame{broker.TimeframeM5: oversoldM5()})
	nt := NewNewsTradingStrategy(DefaultNewsTradingConfig("EURUSD"), nil)
	sig := nt.Analyze(in)
	if sig.Action != ActionHold || sig.Reasons[0] != ReasonNewsUnavailable {
		t.Errorf("missing news view should hold with %q, got %s %v", ReasonNewsUnavailable, sig.Action, sig.Reasons)
	}
}

func TestRangeTradingBlockedByStrongH1(t *testing.T) {
	h1 := flatH1()
	h1.Trend.Strength = 0.75
	in := baseInput(map[broker.Timeframe]*analysis.Frame{
		broker.TimeframeH1: h1,
		broker.TimeframeM5: oversoldM5(),
	})

	rt := NewRangeTradingStrategy(DefaultRangeTradingConfig("EURUSD"), nil)
	sig := rt.Analyze(in)
	if sig.Action != ActionHold {
		t.Fatalf("range trading must never trade against a firm H1 trend, got %s", sig.Action)
	}
	if sig.Reasons[0] != ReasonH1StrongTrend {
		t.Errorf("expected reason %q, got %v", ReasonH1StrongTrend, sig.Reasons)
	}
}

func TestRangeTradingBuysAtBottom(t *testing.T) {
	m5 := &analysis.Frame{
		Symbol: "EURUSD", Timeframe: broker.TimeframeM5,
		CurrentPrice: 1.0941, RSI: 40,
		ADX:        analysis.ADXValues{ADX: 17},
		Bollinger:  analysis.BandValues{Upper: 1.1000, Middle: 1.0970, Lower: 1.0940},
		Stochastic: analysis.StochValues{K: 22, D: 18},
	}
	m15 := &analysis.Frame{ADX: analysis.ADXValues{ADX: 15}}
	in := baseInput(map[broker.Timeframe]*analysis.Frame{
		broker.TimeframeH1:  flatH1(),
		broker.TimeframeM5:  m5,
		broker.TimeframeM15: m15,
	})

	rt := NewRangeTradingStrategy(DefaultRangeTradingConfig("EURUSD"), nil)
	sig := rt.Analyze(in)
	if sig.Action != ActionBuy {
		t.Fatalf("bottom of a quiet range should buy, got %s (%v)", sig.Action, sig.Reasons)
	}
}

func TestScalpingNeverTradesAgainstH1(t *testing.T) {
	m5 := &analysis.Frame{
		Symbol: "EURUSD", Timeframe: broker.TimeframeM5,
		CurrentPrice: 1.0960,
		EMA9:         1.0955, EMA21: 1.0962,
		MACD:        analysis.MACDValues{Line: 0.0003, Signal: 0.0001},
		Bollinger:   analysis.BandValues{Upper: 1.0990, Middle: 1.0970, Lower: 1.0950},
		Stochastic:  analysis.StochValues{K: 35, D: 25},
		VolumeRatio: 1.3,
		ATRPips:     6,
	}
	in := baseInput(map[broker.Timeframe]*analysis.Frame{
		broker.TimeframeM5: m5,
		broker.TimeframeH1: bearishH1(),
	})

	sc := NewScalpingStrategy(DefaultScalpingConfig("EURUSD"))
	sig := sc.Analyze(in)
	if sig.Action == ActionBuy {
		t.Fatal("scalping emitted a BUY against a bearish H1")
	}
}

func TestScalpingHoldsWithoutH1Direction(t *testing.T) {
	in := baseInput(map[broker.Timeframe]*analysis.Frame{
		broker.TimeframeM5: oversoldM5(),
		broker.TimeframeH1: flatH1(),
	})
	sc := NewScalpingStrategy(DefaultScalpingConfig("EURUSD"))
	sig := sc.Analyze(in)
	if sig.Action != ActionHold || sig.Reasons[0] != ReasonH1NoDirection {
		t.Errorf("strict scalping with neutral H1 should hold with %q, got %s %v", ReasonH1NoDirection, sig.Action, sig.Reasons)
	}
}

func TestScalpingHoldsOnWideSpread(t *testing.T) {
	in := baseInput(map[broker.Timeframe]*analysis.Frame{
		broker.TimeframeM5: oversoldM5(),
		broker.TimeframeH1: bearishH1(),
	})
	in.SpreadPips = 5

	sc := NewScalpingStrategy(DefaultScalpingConfig("EURUSD"))
	sig := sc.Analyze(in)
	if sig.Action != ActionHold || sig.Reasons[0] != ReasonSpreadHigh {
		t.Errorf("wide spread should hold with %q, got %s %v", ReasonSpreadHigh, sig.Action, sig.Reasons)
	}
}

func TestScalpingHoldsOutsideSession(t *testing.T) {
	in := baseInput(map[broker.Timeframe]*analysis.Frame{
		broker.TimeframeM5: oversoldM5(),
		broker.TimeframeH1: bearishH1(),
	})
	in.Now = time.Date(2025, 6, 5, 22, 0, 0, 0, time.UTC)

	sc := NewScalpingStrategy(DefaultScalpingConfig("EURUSD"))
	sig := sc.Analyze(in)
	if sig.Action != ActionHold || sig.Reasons[0] != ReasonSessionQualityLow {
		t.Errorf("dead session should hold with %q, got %s %v", ReasonSessionQualityLow, sig.Action, sig.Reasons)
	}
}

func TestSessionQualityTable(t *testing.T) {
	cases := map[int]int{13: 100, 9: 80, 18: 70, 3: 50, 22: 30}
	for hour, want := range cases {
		if got := SessionQuality(hour); got != want {
			t.Errorf("hour %d: got %d, want %d", hour, got, want)
		}
	}
}

func TestSignalConfidenceAlwaysInRange(t *testing.T) {
	in := baseInput(map[broker.Timeframe]*analysis.Frame{
		broker.TimeframeH1:  bearishH1(),
		broker.TimeframeH4:  bearishH1(),
		broker.TimeframeD1:  {Trend: analysis.TrendVerdict{Direction: analysis.TrendBearish}},
		broker.TimeframeM5:  oversoldM5(),
		broker.TimeframeM15: oversoldM5(),
	})
	strategies := []Strategy{
		NewTrendFollowingStrategy(DefaultTrendFollowingConfig("EURUSD"), nil),
		NewMeanReversionStrategy(DefaultMeanReversionConfig("EURUSD"), nil),
		NewBreakoutStrategy(DefaultBreakoutConfig("EURUSD"), nil),
		NewRangeTradingStrategy(DefaultRangeTradingConfig("EURUSD"), nil),
		NewScalpingStrategy(DefaultScalpingConfig("EURUSD")),
	}
	for _, st := range strategies {
		sig := st.Analyze(in)
		if sig == nil {
			t.Fatalf("%s returned nil; the contract requires a signal", st.Name())
		}
		if sig.Confidence < 0 || sig.Confidence > 1 {
			t.Errorf("%s confidence out of range: %v", st.Name(), sig.Confidence)
		}
	}
}
