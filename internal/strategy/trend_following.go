package strategy

import (
	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
)

// TrendFollowingConfig configures the H1 trend follower
type TrendFollowingConfig struct {
	Symbol        string
	Enabled       bool
	MinConfidence float64
	ADXThreshold  float64
	// EMASeparation is the minimum EMA9/EMA21 gap as a fraction of price
	EMASeparation float64
	MinAtrPips    float64
	MaxAtrPips    float64
	StopLossPips  float64
	TakeProfitRR  float64
}

// DefaultTrendFollowingConfig returns the standard settings
func DefaultTrendFollowingConfig(symbol string) TrendFollowingConfig {
	return TrendFollowingConfig{
		Symbol:        symbol,
		Enabled:       true,
		MinConfidence: 0.65,
		ADXThreshold:  25,
		EMASeparation: 0.0002,
		MinAtrPips:    5,
		MaxAtrPips:    80,
		StopLossPips:  30,
		TakeProfitRR:  2.0,
	}
}

// TrendFollowingStrategy rides established H1 trends, confirmed by the
// higher timeframes
type TrendFollowingStrategy struct {
	cfg   TrendFollowingConfig
	stops StopCalculator
}

// NewTrendFollowingStrategy creates the strategy
func NewTrendFollowingStrategy(cfg TrendFollowingConfig, stops StopCalculator) *TrendFollowingStrategy {
	return &TrendFollowingStrategy{cfg: cfg, stops: stops}
}

func (s *TrendFollowingStrategy) Name() string           { return "trend_following" }
func (s *TrendFollowingStrategy) Symbol() string         { return s.cfg.Symbol }
func (s *TrendFollowingStrategy) IsEnabled() bool        { return s.cfg.Enabled }
func (s *TrendFollowingStrategy) MinConfidence() float64 { return s.cfg.MinConfidence }

// Analyze scores the bullish and bearish condition sets on H1 and emits
// the stronger side when it clears the confidence floor
func (s *TrendFollowingStrategy) Analyze(in *Input) *Signal {
	h1 := in.Frame(broker.TimeframeH1)
	if h1 == nil {
		return Hold(s.Name(), in.Symbol, ReasonInsufficientData)
	}
	if h1.ATRPips > 0 && (h1.ATRPips < s.cfg.MinAtrPips || h1.ATRPips > s.cfg.MaxAtrPips) {
		return Hold(s.Name(), in.Symbol, ReasonAtrOutOfBounds)
	}

	bullConf, bullReasons := score(s.conditions(h1, true))
	bearConf, bearReasons := score(s.conditions(h1, false))

	action, conf, reasons := ActionBuy, bullConf, bullReasons
	if bearConf > bullConf {
		action, conf, reasons = ActionSell, bearConf, bearReasons
	}

	conf = s.higherTFAdjust(in, action, conf)
	if conf < s.cfg.MinConfidence {
		return Hold(s.Name(), in.Symbol, ReasonNoClearTrend)
	}

	sig := NewSignal(s.Name(), in.Symbol, action, broker.TimeframeH1, clampConfidence(conf), h1.CurrentPrice, reasons)
	applyStops(sig, s.stops, in, h1.ATR, s.cfg.StopLossPips, s.cfg.TakeProfitRR)
	return sig
}

func (s *TrendFollowingStrategy) conditions(f *analysis.Frame, bull bool) []condition {
	sep := f.CurrentPrice * s.cfg.EMASeparation

	emaAligned := f.EMA9 > f.EMA21+sep && f.EMA21 > f.EMA50
	priceAbove := f.CurrentPrice > f.EMA9 && f.CurrentPrice > f.EMA50
	diDominant := f.ADX.DIPlus > f.ADX.DIMinus
	macdUp := f.MACD.Line > f.MACD.Signal && f.MACD.Histogram > 0
	rsiOK := f.RSI > 40 && f.RSI < 70
	aboveEMA200 := f.EMA200 > 0 && f.CurrentPrice > f.EMA200
	if !bull {
		emaAligned = f.EMA9 < f.EMA21-sep && f.EMA21 < f.EMA50
		priceAbove = f.CurrentPrice < f.EMA9 && f.CurrentPrice < f.EMA50
		diDominant = f.ADX.DIMinus > f.ADX.DIPlus
		macdUp = f.MACD.Line < f.MACD.Signal && f.MACD.Histogram < 0
		rsiOK = f.RSI > 30 && f.RSI < 60
		aboveEMA200 = f.EMA200 > 0 && f.CurrentPrice < f.EMA200
	}

	prefix := "bull_"
	if !bull {
		prefix = "bear_"
	}
	return []condition{
		{prefix + "adx_trending", 1.5, f.ADX.ADX > s.cfg.ADXThreshold},
		{prefix + "di_dominant", 1.5, diDominant},
		{prefix + "ema_aligned", 2.0, emaAligned},
		{prefix + "price_vs_emas", 1.0, priceAbove},
		{prefix + "macd_momentum", 1.5, macdUp},
		{prefix + "rsi_healthy", 1.0, rsiOK},
		{prefix + "volume_support", 0.5, f.VolumeRatio >= 1},
		{prefix + "ema200_side", 1.0, aboveEMA200},
	}
}

// higherTFAdjust adds small bonuses for H4/D1 agreement and penalizes
// divergence against the proposed direction
func (s *TrendFollowingStrategy) higherTFAdjust(in *Input, action Action, conf float64) float64 {
	wantBull := action == ActionBuy

	if h4 := in.Frame(broker.TimeframeH4); h4 != nil {
		h4Bull := h4.EMA9 > h4.EMA21 && h4.EMA21 > h4.EMA50
		h4Bear := h4.EMA9 < h4.EMA21 && h4.EMA21 < h4.EMA50
		if (wantBull && h4Bull) || (!wantBull && h4Bear) {
			conf += 0.05
		} else if (wantBull && h4Bear) || (!wantBull && h4Bull) {
			conf *= 0.7
		}
	}
	if d1 := in.Frame(broker.TimeframeD1); d1 != nil {
		switch d1.Trend.Direction {
		case analysis.TrendBullish:
			if wantBull {
				conf += 0.05
			} else {
				conf *= 0.7
			}
		case analysis.TrendBearish:
			if wantBull {
				conf *= 0.7
			} else {
				conf += 0.05
			}
		}
	}
	return conf
}
