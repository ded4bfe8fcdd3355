package strategy

import (
	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
)

// ScalpingConfig configures the M5 scalper
type ScalpingConfig struct {
	Symbol         string
	Enabled        bool
	MinConfidence  float64
	MaxSpreadPips  float64
	MinAtrPips     float64
	MaxAtrPips     float64
	StopLossPips   float64
	TakeProfitPips float64
	// Strict requires a non-neutral H1 direction and a viable session
	Strict bool
}

// DefaultScalpingConfig returns the standard settings
func DefaultScalpingConfig(symbol string) ScalpingConfig {
	return ScalpingConfig{
		Symbol:         symbol,
		Enabled:        true,
		MinConfidence:  0.7,
		MaxSpreadPips:  2,
		MinAtrPips:     3,
		MaxAtrPips:     25,
		StopLossPips:   8,
		TakeProfitPips: 12,
		Strict:         true,
	}
}

// ScalpingStrategy takes quick M5 entries strictly in the direction of
// the hourly trend
type ScalpingStrategy struct {
	cfg ScalpingConfig
}

// NewScalpingStrategy creates the strategy
func NewScalpingStrategy(cfg ScalpingConfig) *ScalpingStrategy {
	return &ScalpingStrategy{cfg: cfg}
}

func (s *ScalpingStrategy) Name() string           { return "scalping" }
func (s *ScalpingStrategy) Symbol() string         { return s.cfg.Symbol }
func (s *ScalpingStrategy) IsEnabled() bool        { return s.cfg.Enabled }
func (s *ScalpingStrategy) MinConfidence() float64 { return s.cfg.MinConfidence }

// SessionQuality rates the UTC hour for scalping viability in [0, 100].
// The London/New York overlap scores highest; dead hours score lowest.
func SessionQuality(hour int) int {
	switch {
	case hour >= 12 && hour < 16:
		return 100
	case hour >= 7 && hour < 12:
		return 80
	case hour >= 16 && hour < 21:
		return 70
	case hour < 7:
		return 50
	default:
		return 30
	}
}

// Analyze applies the hard prerequisites, then scores a quick entry in
// the hourly direction only
func (s *ScalpingStrategy) Analyze(in *Input) *Signal {
	m5 := in.Frame(broker.TimeframeM5)
	if m5 == nil {
		return Hold(s.Name(), in.Symbol, ReasonInsufficientData)
	}
	if in.SpreadPips > s.cfg.MaxSpreadPips {
		return Hold(s.Name(), in.Symbol, ReasonSpreadHigh)
	}
	if m5.ATRPips > 0 && (m5.ATRPips <= s.cfg.MinAtrPips || m5.ATRPips >= s.cfg.MaxAtrPips) {
		return Hold(s.Name(), in.Symbol, ReasonAtrOutOfBounds)
	}
	if s.cfg.Strict && SessionQuality(in.Now.UTC().Hour()) < 60 {
		return Hold(s.Name(), in.Symbol, ReasonSessionQualityLow)
	}

	h1 := in.Frame(broker.TimeframeH1)
	var h1Dir analysis.TrendDirection
	if h1 != nil {
		h1Dir = h1.Trend.Direction
	}
	if s.cfg.Strict && h1Dir != analysis.TrendBullish && h1Dir != analysis.TrendBearish {
		return Hold(s.Name(), in.Symbol, ReasonH1NoDirection)
	}

	// the entry direction always follows H1
	action := ActionBuy
	if h1Dir == analysis.TrendBearish {
		action = ActionSell
	}

	conf, reasons := score(s.conditions(m5, action == ActionBuy))
	conf += s.m15Adjust(in.Frame(broker.TimeframeM15), action)
	if conf < s.cfg.MinConfidence {
		return Hold(s.Name(), in.Symbol, ReasonNoClearTrend)
	}

	sig := NewSignal(s.Name(), in.Symbol, action, broker.TimeframeM5, clampConfidence(conf), m5.CurrentPrice, reasons)
	s.applyDynamicStops(sig, in, m5.ATRPips)
	return sig
}

func (s *ScalpingStrategy) conditions(f *analysis.Frame, bull bool) []condition {
	macdUp := f.MACD.Line > f.MACD.Signal
	nearLower := f.Bollinger.Middle > 0 && f.CurrentPrice < f.Bollinger.Middle
	stochAligned := f.Stochastic.K > f.Stochastic.D && f.Stochastic.K < 80
	emaAligned := f.EMA9 > f.EMA21
	if !bull {
		macdUp = f.MACD.Line < f.MACD.Signal
		nearLower = f.Bollinger.Middle > 0 && f.CurrentPrice > f.Bollinger.Middle
		stochAligned = f.Stochastic.K < f.Stochastic.D && f.Stochastic.K > 20
		emaAligned = f.EMA9 < f.EMA21
	}

	prefix := "bull_"
	if !bull {
		prefix = "bear_"
	}
	return []condition{
		{prefix + "macd_bb_position", 2.0, macdUp && nearLower},
		{prefix + "stoch_aligned", 1.5, stochAligned},
		{"volume_active", 1.0, f.VolumeRatio >= 1},
		{prefix + "ema_fast_aligned", 1.5, emaAligned},
	}
}

func (s *ScalpingStrategy) m15Adjust(m15 *analysis.Frame, action Action) float64 {
	if m15 == nil {
		return 0
	}
	confirms := m15.MACD.Histogram > 0
	if action == ActionSell {
		confirms = m15.MACD.Histogram < 0
	}
	if confirms {
		return 0.10
	}
	return -0.10
}

// applyDynamicStops widens the fixed pip distances with ATR so stops
// stay outside the noise
func (s *ScalpingStrategy) applyDynamicStops(sig *Signal, in *Input, atrPips float64) {
	slPips := s.cfg.StopLossPips
	if atrPips > slPips {
		slPips = atrPips
	}
	tpPips := s.cfg.TakeProfitPips
	if atrPips*1.5 > tpPips {
		tpPips = atrPips * 1.5
	}
	if in.PipSize <= 0 {
		return
	}
	if sig.Action == ActionBuy {
		sig.StopLoss = sig.Price - slPips*in.PipSize
		sig.TakeProfit = sig.Price + tpPips*in.PipSize
	} else {
		sig.StopLoss = sig.Price + slPips*in.PipSize
		sig.TakeProfit = sig.Price - tpPips*in.PipSize
	}
}
