package market

import (
	"testing"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
)

func bullishFrame() *analysis.Frame {
	return &analysis.Frame{
		CurrentPrice: 1.1200,
		EMA9:         1.1190,
		EMA21:        1.1170,
		EMA50:        1.1150,
		EMA200:       1.1000,
		RSI:          62,
		MACD:         analysis.MACDValues{Histogram: 0.0008},
		ADX:          analysis.ADXValues{ADX: 32, DIPlus: 28, DIMinus: 12},
	}
}

func bearishFrame() *analysis.Frame {
	return &analysis.Frame{
		CurrentPrice: 1.0800,
		EMA9:         1.0810,
		EMA21:        1.0830,
		EMA50:        1.0850,
		EMA200:       1.1000,
		RSI:          38,
		MACD:         analysis.MACDValues{Histogram: -0.0008},
		ADX:          analysis.ADXValues{ADX: 32, DIPlus: 12, DIMinus: 28},
	}
}

func TestScoreFrameFullyAligned(t *testing.T) {
	if got := ScoreFrame(bullishFrame()); got != 10 {
		t.Errorf("fully aligned bullish frame should score 10, got %v", got)
	}
	if got := ScoreFrame(bearishFrame()); got != -10 {
		t.Errorf("fully aligned bearish frame should score -10, got %v", got)
	}
	if got := ScoreFrame(nil); got != 0 {
		t.Errorf("nil frame should score 0, got %v", got)
	}
}

func TestDirectionFromScoreThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  Direction
	}{
		{10, StrongBullish},
		{8, StrongBullish},
		{6, Bullish},
		{3, WeakBullish},
		{1.5, Neutral},
		{0, Neutral},
		{-1.5, Neutral},
		{-3, WeakBearish},
		{-6, Bearish},
		{-8, StrongBearish},
	}
	for _, tc := range cases {
		if got := DirectionFromScore(tc.score); got != tc.want {
			t.Errorf("score %v: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestMacroScoreAgreementBoost(t *testing.T) {
	// 0.6*5 + 0.4*5 = 5, boosted by 1.2 to 6
	if got := MacroScore(5, 5); got != 6 {
		t.Errorf("agreeing scores should be boosted, got %v", got)
	}
	// 0.6*5 + 0.4*(-5) = 1, no boost on disagreement
	if got := MacroScore(5, -5); got != 1 {
		t.Errorf("disagreeing scores should not be boosted, got %v", got)
	}
	if got := MacroScore(10, 10); got != 10 {
		t.Errorf("boost must cap at 10, got %v", got)
	}
}

func TestClassifyRegimeVolatilityDominates(t *testing.T) {
	f := bullishFrame()
	f.ATR = 0.0030
	f.AvgATR = 0.0010
	if got := ClassifyRegime(f, nil, DefaultThresholds()); got != RegimeHighVolatility {
		t.Errorf("ATR 3x average should be high volatility, got %s", got)
	}

	f.ATR = 0.0004
	if got := ClassifyRegime(f, nil, DefaultThresholds()); got != RegimeLowVolatility {
		t.Errorf("ATR 0.4x average should be low volatility, got %s", got)
	}
}

func TestClassifyRegimeSqueezeBeforeTrend(t *testing.T) {
	f := bullishFrame()
	f.ATR = 0.0010
	f.AvgATR = 0.0010
	f.SqueezeOn = true
	f.BollWidth = 0.001
	f.BollWidthP20 = 0.002
	if got := ClassifyRegime(f, nil, DefaultThresholds()); got != RegimeBreakout {
		t.Errorf("squeeze below the width floor should read breakout, got %s", got)
	}
}

func TestClassifyRegimeADXSplit(t *testing.T) {
	f := bullishFrame()
	f.ATR = 0.0010
	f.AvgATR = 0.0010

	f.ADX.ADX = 40
	if got := ClassifyRegime(f, nil, DefaultThresholds()); got != RegimeStrongTrend {
		t.Errorf("ADX 40 should be strong trend, got %s", got)
	}
	f.ADX.ADX = 28
	if got := ClassifyRegime(f, nil, DefaultThresholds()); got != RegimeTrending {
		t.Errorf("ADX 28 should be trending, got %s", got)
	}
	f.ADX.ADX = 18
	if got := ClassifyRegime(f, nil, DefaultThresholds()); got != RegimeRanging {
		t.Errorf("ADX 18 should be ranging, got %s", got)
	}
	if got := ClassifyRegime(nil, nil, DefaultThresholds()); got != RegimeRanging {
		t.Errorf("missing frames default to ranging, got %s", got)
	}
}

func TestClassifyRegimeHonorsConfiguredThresholds(t *testing.T) {
	f := bullishFrame()
	f.ATR = 0.0010
	f.AvgATR = 0.0010
	f.ADX.ADX = 42

	strict := Thresholds{ADXStrong: 45, ADXTrend: 40, ATRHigh: 2.0, ATRLow: 0.5}
	if got := ClassifyRegime(f, nil, strict); got != RegimeTrending {
		t.Errorf("ADX 42 under a 45 strong threshold should read trending, got %s", got)
	}
	f.ADX.ADX = 30
	if got := ClassifyRegime(f, nil, strict); got != RegimeRanging {
		t.Errorf("ADX 30 under a 40 trend threshold should read ranging, got %s", got)
	}

	// a lowered high-volatility ratio flips the same frame to volatile
	f.ATR = 0.0016
	loose := Thresholds{ADXStrong: 35, ADXTrend: 25, ATRHigh: 1.5, ATRLow: 0.5}
	if got := ClassifyRegime(f, nil, loose); got != RegimeHighVolatility {
		t.Errorf("ATR 1.6x average above a 1.5 ratio should read high volatility, got %s", got)
	}
	if got := ClassifyRegime(f, nil, DefaultThresholds()); got == RegimeHighVolatility {
		t.Error("the default 2.0 ratio must not classify 1.6x as high volatility")
	}

	// zero-value thresholds normalize to the defaults inside the engine
	if norm := (Thresholds{}).withDefaults(); norm != DefaultThresholds() {
		t.Errorf("zero thresholds should normalize to defaults, got %+v", norm)
	}
}

func TestClassifyRegimeFallsBackToHourly(t *testing.T) {
	h1 := bullishFrame()
	h1.ATR = 0.0030
	h1.AvgATR = 0.0010
	if got := ClassifyRegime(nil, h1, DefaultThresholds()); got != RegimeHighVolatility {
		t.Errorf("missing H4 should fall back to H1, got %s", got)
	}
}

func TestPolicyTables(t *testing.T) {
	strategies, mult, maxPos := PolicyFor(RegimeStrongTrend)
	if mult != 1.2 || maxPos != 4 {
		t.Errorf("strong trend policy: got mult %v maxPos %d", mult, maxPos)
	}
	if len(strategies) == 0 {
		t.Error("strong trend should recommend strategies")
	}

	_, mult, maxPos = PolicyFor(RegimeLowVolatility)
	if mult != 0.3 || maxPos != 0 {
		t.Errorf("low volatility policy: got mult %v maxPos %d", mult, maxPos)
	}

	_, mult, maxPos = PolicyFor(Regime("unknown"))
	if mult != 0.8 || maxPos != 2 {
		t.Errorf("unknown regime should fall back to ranging policy, got mult %v maxPos %d", mult, maxPos)
	}
}

func TestAllowedSides(t *testing.T) {
	if sides := AllowedSidesFor(RegimeRanging, Neutral, Neutral); len(sides) != 2 {
		t.Errorf("ranging should allow both sides, got %v", sides)
	}
	if sides := AllowedSidesFor(RegimeTrending, StrongBullish, Neutral); len(sides) != 1 || sides[0] != broker.SideBuy {
		t.Errorf("bullish macro should allow buy only, got %v", sides)
	}
	if sides := AllowedSidesFor(RegimeStrongTrend, Bearish, Neutral); len(sides) != 1 || sides[0] != broker.SideSell {
		t.Errorf("bearish macro should allow sell only, got %v", sides)
	}
	if sides := AllowedSidesFor(RegimeTrending, Neutral, WeakBullish); len(sides) != 1 || sides[0] != broker.SideBuy {
		t.Errorf("neutral macro with bullish hourly lean should allow buy, got %v", sides)
	}
	if sides := AllowedSidesFor(RegimeTrending, Neutral, WeakBearish); len(sides) != 0 {
		t.Errorf("neutral macro without a bullish lean allows nothing, got %v", sides)
	}
}

func TestContextHelpers(t *testing.T) {
	c := &Context{
		AllowedSides:          []broker.Side{broker.SideBuy},
		RecommendedStrategies: []string{"trend_following"},
	}
	if !c.Allows(broker.SideBuy) || c.Allows(broker.SideSell) {
		t.Error("Allows should follow the allowed sides list")
	}
	if !c.Recommends("trend_following") || c.Recommends("scalping") {
		t.Error("Recommends should follow the recommended list")
	}
	var nilCtx *Context
	if nilCtx.Allows(broker.SideBuy) || nilCtx.Recommends("x") {
		t.Error("nil context should deny everything")
	}
}
