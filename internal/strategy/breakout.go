package strategy

import (
	"math"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
)

// BreakoutConfig configures the M30 breakout strategy
type BreakoutConfig struct {
	Symbol           string
	Enabled          bool
	MinConfidence    float64
	ADXMin           float64
	VolumeMultiplier float64
	// RejectionATR is the retracement from the broken band, in ATR
	// units, past which a breakout is treated as suspect
	RejectionATR float64
	StopLossPips float64
	TakeProfitRR float64
}

// DefaultBreakoutConfig returns the standard settings
func DefaultBreakoutConfig(symbol string) BreakoutConfig {
	return BreakoutConfig{
		Symbol:           symbol,
		Enabled:          true,
		MinConfidence:    0.65,
		ADXMin:           20,
		VolumeMultiplier: 1.5,
		RejectionATR:     0.5,
		StopLossPips:     25,
		TakeProfitRR:     2.0,
	}
}

// BreakoutStrategy trades band breaks on M30, falling back to M15 when
// the half-hour frame is unavailable
type BreakoutStrategy struct {
	cfg   BreakoutConfig
	stops StopCalculator
}

// NewBreakoutStrategy creates the strategy
func NewBreakoutStrategy(cfg BreakoutConfig, stops StopCalculator) *BreakoutStrategy {
	return &BreakoutStrategy{cfg: cfg, stops: stops}
}

func (s *BreakoutStrategy) Name() string           { return "breakout" }
func (s *BreakoutStrategy) Symbol() string         { return s.cfg.Symbol }
func (s *BreakoutStrategy) IsEnabled() bool        { return s.cfg.Enabled }
func (s *BreakoutStrategy) MinConfidence() float64 { return s.cfg.MinConfidence }

// Analyze scores both break directions and applies the false-breakout
// retracement penalty before the confidence floor
func (s *BreakoutStrategy) Analyze(in *Input) *Signal {
	f := in.Frame(broker.TimeframeM30)
	tf := broker.TimeframeM30
	if f == nil {
		f = in.Frame(broker.TimeframeM15)
		tf = broker.TimeframeM15
	}
	if f == nil {
		return Hold(s.Name(), in.Symbol, ReasonInsufficientData)
	}

	bullConf, bullReasons := score(s.conditions(f, true))
	bearConf, bearReasons := score(s.conditions(f, false))

	action, conf, reasons := ActionBuy, bullConf, bullReasons
	if bearConf > bullConf {
		action, conf, reasons = ActionSell, bearConf, bearReasons
	}

	if s.rejected(f, action) {
		conf *= 0.7
	}
	if conf < s.cfg.MinConfidence {
		return Hold(s.Name(), in.Symbol, ReasonNoClearTrend)
	}

	sig := NewSignal(s.Name(), in.Symbol, action, tf, clampConfidence(conf), f.CurrentPrice, reasons)
	applyStops(sig, s.stops, in, f.ATR, s.cfg.StopLossPips, s.cfg.TakeProfitRR)
	return sig
}

func (s *BreakoutStrategy) conditions(f *analysis.Frame, bull bool) []condition {
	beyondBB := f.CurrentPrice > f.Bollinger.Upper
	beyondKeltner := f.CurrentPrice > f.Keltner.Upper
	diDominant := f.ADX.DIPlus > f.ADX.DIMinus
	macdAligned := f.MACD.Line > f.MACD.Signal
	rsiMomentum := f.RSI > 55 && f.RSI < 75
	if !bull {
		beyondBB = f.CurrentPrice < f.Bollinger.Lower
		beyondKeltner = f.CurrentPrice < f.Keltner.Lower
		diDominant = f.ADX.DIMinus > f.ADX.DIPlus
		macdAligned = f.MACD.Line < f.MACD.Signal
		rsiMomentum = f.RSI < 45 && f.RSI > 25
	}

	body := math.Abs(f.LastBar.Close - f.LastBar.Open)
	candleMomentum := f.ATR > 0 && body/f.ATR > 0.5

	prefix := "bull_"
	if !bull {
		prefix = "bear_"
	}
	return []condition{
		{prefix + "beyond_bollinger", 2.0, beyondBB},
		{prefix + "beyond_keltner", 2.5, beyondKeltner},
		{"volume_spike", 1.5, f.VolumeRatio >= s.cfg.VolumeMultiplier},
		{"adx_rising", 1.0, f.ADX.ADX > s.cfg.ADXMin},
		{prefix + "di_dominant", 1.0, diDominant},
		{prefix + "macd_aligned", 1.0, macdAligned},
		{prefix + "rsi_momentum", 1.0, rsiMomentum},
		{"candle_momentum", 1.0, candleMomentum},
		{"squeeze_release", 1.5, f.SqueezePrev && !f.SqueezeOn},
	}
}

// rejected reports a retracement from the broken band deeper than the
// configured ATR fraction
func (s *BreakoutStrategy) rejected(f *analysis.Frame, action Action) bool {
	if f.ATR <= 0 {
		return false
	}
	if action == ActionBuy {
		return f.LastBar.High-f.CurrentPrice > s.cfg.RejectionATR*f.ATR
	}
	return f.CurrentPrice-f.LastBar.Low > s.cfg.RejectionATR*f.ATR
}
