package strategy

import (
	"math"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
)

// MeanReversionConfig configures the M5 mean reverter
type MeanReversionConfig struct {
	Symbol        string
	Enabled       bool
	MinConfidence float64
	RSIOversold   float64
	RSIOverbought float64
	StochOversold float64
	StochOverbought float64
	// MidDistance is the minimum distance from the BB middle as a
	// fraction of price
	MidDistance  float64
	StopLossPips float64
	TakeProfitRR float64
}

// DefaultMeanReversionConfig returns the standard settings
func DefaultMeanReversionConfig(symbol string) MeanReversionConfig {
	return MeanReversionConfig{
		Symbol:          symbol,
		Enabled:         true,
		MinConfidence:   0.65,
		RSIOversold:     30,
		RSIOverbought:   70,
		StochOversold:   20,
		StochOverbought: 80,
		MidDistance:     0.005,
		StopLossPips:    15,
		TakeProfitRR:    1.5,
	}
}

// MeanReversionStrategy fades M5 extremes back toward the Bollinger
// middle in quiet markets
type MeanReversionStrategy struct {
	cfg   MeanReversionConfig
	stops StopCalculator
}

// NewMeanReversionStrategy creates the strategy
func NewMeanReversionStrategy(cfg MeanReversionConfig, stops StopCalculator) *MeanReversionStrategy {
	return &MeanReversionStrategy{cfg: cfg, stops: stops}
}

func (s *MeanReversionStrategy) Name() string           { return "mean_reversion" }
func (s *MeanReversionStrategy) Symbol() string         { return s.cfg.Symbol }
func (s *MeanReversionStrategy) IsEnabled() bool        { return s.cfg.Enabled }
func (s *MeanReversionStrategy) MinConfidence() float64 { return s.cfg.MinConfidence }

// Analyze looks for an exhausted M5 move outside the bands with a
// confirming reversal candle. An M15 RSI extreme in the same direction
// scales confidence up, its absence scales it down.
func (s *MeanReversionStrategy) Analyze(in *Input) *Signal {
	m5 := in.Frame(broker.TimeframeM5)
	if m5 == nil {
		return Hold(s.Name(), in.Symbol, ReasonInsufficientData)
	}

	bullConf, bullReasons := score(s.conditions(m5, true))
	bearConf, bearReasons := score(s.conditions(m5, false))

	action, conf, reasons := ActionBuy, bullConf, bullReasons
	if bearConf > bullConf {
		action, conf, reasons = ActionSell, bearConf, bearReasons
	}

	conf *= s.m15Multiplier(in.Frame(broker.TimeframeM15), action)
	if conf < s.cfg.MinConfidence {
		return Hold(s.Name(), in.Symbol, ReasonNoClearTrend)
	}

	sig := NewSignal(s.Name(), in.Symbol, action, broker.TimeframeM5, clampConfidence(conf), m5.CurrentPrice, reasons)
	applyStops(sig, s.stops, in, m5.ATR, s.cfg.StopLossPips, s.cfg.TakeProfitRR)
	return sig
}

func (s *MeanReversionStrategy) conditions(f *analysis.Frame, bull bool) []condition {
	var midDist float64
	if f.Bollinger.Middle > 0 {
		midDist = math.Abs(f.CurrentPrice-f.Bollinger.Middle) / f.Bollinger.Middle
	}

	rsiExtreme := f.RSI <= s.cfg.RSIOversold
	outsideBand := f.CurrentPrice < f.Bollinger.Lower
	stochExtreme := f.Stochastic.K <= s.cfg.StochOversold
	pattern := f.Patterns.AnyBullish()
	belowMid := f.CurrentPrice < f.Bollinger.Middle
	if !bull {
		rsiExtreme = f.RSI >= s.cfg.RSIOverbought
		outsideBand = f.CurrentPrice > f.Bollinger.Upper
		stochExtreme = f.Stochastic.K >= s.cfg.StochOverbought
		pattern = f.Patterns.AnyBearish()
		belowMid = f.CurrentPrice > f.Bollinger.Middle
	}

	prefix := "bull_"
	if !bull {
		prefix = "bear_"
	}
	return []condition{
		{prefix + "rsi_extreme", 2.0, rsiExtreme},
		{prefix + "outside_band", 2.0, outsideBand},
		{"no_strong_trend", 1.5, f.ADX.ADX < 25},
		{prefix + "stoch_extreme", 1.5, stochExtreme},
		{prefix + "reversal_pattern", 1.5, pattern},
		{prefix + "stretched_from_mid", 1.0, belowMid && midDist > s.cfg.MidDistance},
	}
}

func (s *MeanReversionStrategy) m15Multiplier(m15 *analysis.Frame, action Action) float64 {
	if m15 == nil {
		return 1
	}
	confirms := m15.RSI <= s.cfg.RSIOversold+5
	if action == ActionSell {
		confirms = m15.RSI >= s.cfg.RSIOverbought-5
	}
	if confirms {
		return 1.15
	}
	return 0.9
}
