package market

import (
	"time"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
)

// Direction is the seven-level macro direction scale
type Direction string

const (
	StrongBullish Direction = "strong_bullish"
	Bullish       Direction = "bullish"
	WeakBullish   Direction = "weak_bullish"
	Neutral       Direction = "neutral"
	WeakBearish   Direction = "weak_bearish"
	Bearish       Direction = "bearish"
	StrongBearish Direction = "strong_bearish"
)

// IsBullish reports whether the direction leans long
func (d Direction) IsBullish() bool {
	return d == StrongBullish || d == Bullish || d == WeakBullish
}

// IsBearish reports whether the direction leans short
func (d Direction) IsBearish() bool {
	return d == StrongBearish || d == Bearish || d == WeakBearish
}

// Regime classifies the current market condition
type Regime string

const (
	RegimeStrongTrend    Regime = "strong_trend"
	RegimeTrending       Regime = "trending"
	RegimeRanging        Regime = "ranging"
	RegimeHighVolatility Regime = "high_volatility"
	RegimeLowVolatility  Regime = "low_volatility"
	RegimeBreakout       Regime = "breakout"
)

// Context is the per-symbol market assessment strategies and the risk
// layer consult before trading
type Context struct {
	Symbol                string                                 `json:"symbol"`
	MacroDirection        Direction                              `json:"macro_direction"`
	MacroScore            float64                                `json:"macro_score"`
	Regime                Regime                                 `json:"regime"`
	TimeframeDirections   map[broker.Timeframe]Direction         `json:"timeframe_directions"`
	TimeframeScores       map[broker.Timeframe]float64           `json:"timeframe_scores"`
	Frames                map[broker.Timeframe]*analysis.Frame   `json:"-"`
	RecommendedStrategies []string                               `json:"recommended_strategies"`
	AllowedSides          []broker.Side                          `json:"allowed_sides"`
	RiskMultiplier        float64                                `json:"risk_multiplier"`
	MaxPositions          int                                    `json:"max_positions"`
	LowConfidence         bool                                   `json:"low_confidence"`
	ComputedAt            time.Time                              `json:"computed_at"`
}

// Frame returns the frame for a timeframe, or nil
func (c *Context) Frame(tf broker.Timeframe) *analysis.Frame {
	if c == nil {
		return nil
	}
	return c.Frames[tf]
}

// Allows reports whether a side is permitted by the macro direction
func (c *Context) Allows(side broker.Side) bool {
	if c == nil {
		return false
	}
	for _, s := range c.AllowedSides {
		if s == side {
			return true
		}
	}
	return false
}

// Recommends reports whether a strategy name is in the recommended set
func (c *Context) Recommends(name string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.RecommendedStrategies {
		if s == name {
			return true
		}
	}
	return false
}

// ScoreFrame turns a timeframe frame into a signed score in [-10, 10].
// ADX direction weighs 3, EMA alignment, MACD histogram and the EMA200
// side weigh 2 each, the RSI lean weighs 1.
func ScoreFrame(f *analysis.Frame) float64 {
	if f == nil {
		return 0
	}
	score := 0.0
	if f.ADX.ADX > 25 {
		if f.ADX.DIPlus > f.ADX.DIMinus {
			score += 3
		} else if f.ADX.DIMinus > f.ADX.DIPlus {
			score -= 3
		}
	}
	if f.EMA9 > f.EMA21 && f.EMA21 > f.EMA50 {
		score += 2
	} else if f.EMA9 < f.EMA21 && f.EMA21 < f.EMA50 {
		score -= 2
	}
	if f.RSI > 55 {
		score++
	} else if f.RSI < 45 {
		score--
	}
	if f.MACD.Histogram > 0 {
		score += 2
	} else if f.MACD.Histogram < 0 {
		score -= 2
	}
	if f.EMA200 > 0 {
		if f.CurrentPrice > f.EMA200 {
			score += 2
		} else if f.CurrentPrice < f.EMA200 {
			score -= 2
		}
	}
	return score
}

// DirectionFromScore maps a signed score onto the seven-level scale
func DirectionFromScore(score float64) Direction {
	switch {
	case score >= 8:
		return StrongBullish
	case score >= 5:
		return Bullish
	case score >= 2:
		return WeakBullish
	case score <= -8:
		return StrongBearish
	case score <= -5:
		return Bearish
	case score <= -2:
		return WeakBearish
	default:
		return Neutral
	}
}

// MacroScore blends the daily and four-hour scores. Agreement between
// the two gets a 1.2x boost, capped at the scale limits.
func MacroScore(d1, h4 float64) float64 {
	score := 0.6*d1 + 0.4*h4
	if d1*h4 > 0 {
		score *= 1.2
	}
	if score > 10 {
		score = 10
	}
	if score < -10 {
		score = -10
	}
	return score
}

// Thresholds tune the regime classifier. ADX levels split strong
// trends from trends from ranges; the ATR ratios against the rolling
// average mark the volatility extremes.
type Thresholds struct {
	ADXStrong float64
	ADXTrend  float64
	ATRHigh   float64
	ATRLow    float64
}

// DefaultThresholds returns the standard regime boundaries
func DefaultThresholds() Thresholds {
	return Thresholds{ADXStrong: 35, ADXTrend: 25, ATRHigh: 2.0, ATRLow: 0.5}
}

func (t Thresholds) withDefaults() Thresholds {
	def := DefaultThresholds()
	if t.ADXStrong <= 0 {
		t.ADXStrong = def.ADXStrong
	}
	if t.ADXTrend <= 0 {
		t.ADXTrend = def.ADXTrend
	}
	if t.ATRHigh <= 0 {
		t.ATRHigh = def.ATRHigh
	}
	if t.ATRLow <= 0 {
		t.ATRLow = def.ATRLow
	}
	return t
}

// ClassifyRegime derives the regime from the four-hour frame, falling
// back to the hourly one. Volatility extremes dominate, then a squeeze
// reads as pre-breakout, then ADX splits trending from ranging.
func ClassifyRegime(h4, h1 *analysis.Frame, th Thresholds) Regime {
	f := h4
	if f == nil {
		f = h1
	}
	if f == nil {
		return RegimeRanging
	}
	if f.AvgATR > 0 {
		if f.ATR > f.AvgATR*th.ATRHigh {
			return RegimeHighVolatility
		}
		if f.ATR < f.AvgATR*th.ATRLow {
			return RegimeLowVolatility
		}
	}
	if f.SqueezeOn && f.BollWidthP20 > 0 && f.BollWidth <= f.BollWidthP20 {
		return RegimeBreakout
	}
	switch {
	case f.ADX.ADX >= th.ADXStrong:
		return RegimeStrongTrend
	case f.ADX.ADX >= th.ADXTrend:
		return RegimeTrending
	default:
		return RegimeRanging
	}
}

type regimePolicy struct {
	strategies     []string
	riskMultiplier float64
	maxPositions   int
}

var regimePolicies = map[Regime]regimePolicy{
	RegimeStrongTrend:    {[]string{"trend_following", "breakout"}, 1.2, 4},
	RegimeTrending:       {[]string{"trend_following", "scalping"}, 1.0, 3},
	RegimeRanging:        {[]string{"mean_reversion", "range_trading"}, 0.8, 2},
	RegimeHighVolatility: {[]string{"news_trading"}, 0.5, 1},
	RegimeLowVolatility:  {nil, 0.3, 0},
	RegimeBreakout:       {[]string{"breakout", "trend_following"}, 0.9, 2},
}

// PolicyFor returns the strategy set, risk multiplier and position cap
// for a regime
func PolicyFor(regime Regime) (strategies []string, riskMultiplier float64, maxPositions int) {
	p, ok := regimePolicies[regime]
	if !ok {
		p = regimePolicies[RegimeRanging]
	}
	return p.strategies, p.riskMultiplier, p.maxPositions
}

// AllowedSidesFor derives the permitted trade sides. Ranging markets
// allow both sides; otherwise the macro direction decides, with a
// neutral macro deferring to the short-term hourly lean for longs.
func AllowedSidesFor(regime Regime, macro, hourly Direction) []broker.Side {
	if regime == RegimeRanging {
		return []broker.Side{broker.SideBuy, broker.SideSell}
	}
	if macro.IsBullish() {
		return []broker.Side{broker.SideBuy}
	}
	if macro.IsBearish() {
		return []broker.Side{broker.SideSell}
	}
	if hourly.IsBullish() {
		return []broker.Side{broker.SideBuy}
	}
	return nil
}
