package strategy

import (
	"math"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
)

// RangeTradingConfig configures the M5 range fader
type RangeTradingConfig struct {
	Symbol        string
	Enabled       bool
	MinConfidence float64
	ADXMax        float64
	// BandProximity is the maximum distance from the band edge as a
	// fraction of the band width
	BandProximity float64
	// H1StrengthMax blocks range entries against a firm hourly trend
	H1StrengthMax float64
	StopLossPips  float64
	TakeProfitRR  float64
}

// DefaultRangeTradingConfig returns the standard settings
func DefaultRangeTradingConfig(symbol string) RangeTradingConfig {
	return RangeTradingConfig{
		Symbol:        symbol,
		Enabled:       true,
		MinConfidence: 0.65,
		ADXMax:        25,
		BandProximity: 0.03,
		H1StrengthMax: 0.6,
		StopLossPips:  12,
		TakeProfitRR:  1.5,
	}
}

// RangeTradingStrategy buys the bottom and sells the top of a quiet M5
// range, standing aside whenever H1 is trending
type RangeTradingStrategy struct {
	cfg   RangeTradingConfig
	stops StopCalculator
}

// NewRangeTradingStrategy creates the strategy
func NewRangeTradingStrategy(cfg RangeTradingConfig, stops StopCalculator) *RangeTradingStrategy {
	return &RangeTradingStrategy{cfg: cfg, stops: stops}
}

func (s *RangeTradingStrategy) Name() string           { return "range_trading" }
func (s *RangeTradingStrategy) Symbol() string         { return s.cfg.Symbol }
func (s *RangeTradingStrategy) IsEnabled() bool        { return s.cfg.Enabled }
func (s *RangeTradingStrategy) MinConfidence() float64 { return s.cfg.MinConfidence }

// Analyze fades the band edges only while both M5 and H1 agree the
// market is going nowhere
func (s *RangeTradingStrategy) Analyze(in *Input) *Signal {
	m5 := in.Frame(broker.TimeframeM5)
	if m5 == nil {
		return Hold(s.Name(), in.Symbol, ReasonInsufficientData)
	}
	if m5.ADX.ADX >= s.cfg.ADXMax {
		return Hold(s.Name(), in.Symbol, ReasonNoClearTrend)
	}
	if h1 := in.Frame(broker.TimeframeH1); h1 != nil && h1.Trend.Strength > s.cfg.H1StrengthMax {
		return Hold(s.Name(), in.Symbol, ReasonH1StrongTrend)
	}

	bullConf, bullReasons := score(s.conditions(m5, true))
	bearConf, bearReasons := score(s.conditions(m5, false))

	action, conf, reasons := ActionBuy, bullConf, bullReasons
	if bearConf > bullConf {
		action, conf, reasons = ActionSell, bearConf, bearReasons
	}

	if m15 := in.Frame(broker.TimeframeM15); m15 != nil {
		if m15.ADX.ADX < s.cfg.ADXMax {
			conf *= 1.1
		} else {
			conf *= 0.85
		}
	}
	if conf < s.cfg.MinConfidence {
		return Hold(s.Name(), in.Symbol, ReasonNoClearTrend)
	}

	sig := NewSignal(s.Name(), in.Symbol, action, broker.TimeframeM5, clampConfidence(conf), m5.CurrentPrice, reasons)
	applyStops(sig, s.stops, in, m5.ATR, s.cfg.StopLossPips, s.cfg.TakeProfitRR)
	return sig
}

func (s *RangeTradingStrategy) conditions(f *analysis.Frame, bull bool) []condition {
	width := f.Bollinger.Upper - f.Bollinger.Lower

	nearEdge := width > 0 && math.Abs(f.CurrentPrice-f.Bollinger.Lower) < width*s.cfg.BandProximity
	rsiZone := f.RSI > 35 && f.RSI < 45
	stochSetup := f.Stochastic.K < 30 && f.Stochastic.K > f.Stochastic.D
	rightHalf := f.CurrentPrice < f.Bollinger.Middle
	if !bull {
		nearEdge = width > 0 && math.Abs(f.Bollinger.Upper-f.CurrentPrice) < width*s.cfg.BandProximity
		rsiZone = f.RSI > 55 && f.RSI < 65
		stochSetup = f.Stochastic.K > 70 && f.Stochastic.K < f.Stochastic.D
		rightHalf = f.CurrentPrice > f.Bollinger.Middle
	}

	prefix := "bull_"
	if !bull {
		prefix = "bear_"
	}
	return []condition{
		{prefix + "near_band_edge", 2.5, nearEdge},
		{prefix + "rsi_zone", 2.0, rsiZone},
		{prefix + "stoch_turning", 2.0, stochSetup},
		{prefix + "band_half", 1.5, rightHalf},
	}
}
