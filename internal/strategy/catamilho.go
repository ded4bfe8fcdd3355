package strategy

import (
	"math"
	"sync"
	"time"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
)

// CatamilhoState is the scalper's position in its trade cycle
type CatamilhoState string

const (
	CatamilhoIdle     CatamilhoState = "IDLE"
	CatamilhoArmed    CatamilhoState = "ARMED"
	CatamilhoInTrade  CatamilhoState = "IN_TRADE"
	CatamilhoCooldown CatamilhoState = "COOLDOWN"
)

// CatamilhoConfig configures the M1 scalper
type CatamilhoConfig struct {
	Symbol        string
	Enabled       bool
	MinConfidence float64
	// M5 context filter
	ADXMax     float64
	MinAtrPips float64
	MaxAtrPips float64
	// EMA50Proximity is the maximum distance from the M5 EMA50 as a
	// fraction of price
	EMA50Proximity float64
	// M1 setup thresholds
	RSIOversold   float64
	RSIOverbought float64
	// MaxBodyATR caps the setup candle body in ATR units
	MaxBodyATR float64
	VolumeMin  float64

	StopLossPips   float64
	TakeProfitPips float64

	CooldownBase time.Duration
	MaxLossesRow int
	// CooldownExtended applies after MaxLossesRow consecutive losses
	CooldownExtended time.Duration
	MaxTradesPerDay  int
	MinSessionScore  int
}

// DefaultCatamilhoConfig returns the standard settings
func DefaultCatamilhoConfig(symbol string) CatamilhoConfig {
	return CatamilhoConfig{
		Symbol:           symbol,
		Enabled:          false,
		MinConfidence:    0.7,
		ADXMax:           28,
		MinAtrPips:       1,
		MaxAtrPips:       10,
		EMA50Proximity:   0.002,
		RSIOversold:      25,
		RSIOverbought:    75,
		MaxBodyATR:       0.6,
		VolumeMin:        1.1,
		StopLossPips:     5,
		TakeProfitPips:   7,
		CooldownBase:     time.Minute,
		MaxLossesRow:     3,
		CooldownExtended: 5 * time.Minute,
		MaxTradesPerDay:  30,
		MinSessionScore:  60,
	}
}

// CatamilhoStrategy is an ultra-active M1 reversal scalper gated by a
// quiet M5 context. It is the only stateful strategy: the supervisor
// reports trade lifecycle back through RecordOpen and RecordResult.
type CatamilhoStrategy struct {
	cfg CatamilhoConfig

	mu            sync.Mutex
	state         CatamilhoState
	cooldownUntil time.Time
	lossesRow     int
	tradesToday   int
	day           time.Time
}

// NewCatamilhoStrategy creates the strategy in the idle state
func NewCatamilhoStrategy(cfg CatamilhoConfig) *CatamilhoStrategy {
	return &CatamilhoStrategy{cfg: cfg, state: CatamilhoIdle}
}

func (s *CatamilhoStrategy) Name() string           { return "catamilho" }
func (s *CatamilhoStrategy) Symbol() string         { return s.cfg.Symbol }
func (s *CatamilhoStrategy) IsEnabled() bool        { return s.cfg.Enabled }
func (s *CatamilhoStrategy) MinConfidence() float64 { return s.cfg.MinConfidence }

// State returns the current lifecycle state
func (s *CatamilhoStrategy) State() CatamilhoState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RecordOpen moves the strategy into the in-trade state after the
// supervisor fills its signal
func (s *CatamilhoStrategy) RecordOpen(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(now)
	s.state = CatamilhoInTrade
	s.tradesToday++
}

// RecordResult closes the trade cycle. A loss starts a progressive
// cooldown; a win returns straight to idle.
func (s *CatamilhoStrategy) RecordResult(pnl float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(now)
	if pnl >= 0 {
		s.lossesRow = 0
		s.state = CatamilhoIdle
		return
	}
	s.lossesRow++
	wait := time.Duration(s.lossesRow) * s.cfg.CooldownBase
	if s.lossesRow >= s.cfg.MaxLossesRow {
		wait += s.cfg.CooldownExtended
	}
	s.cooldownUntil = now.Add(wait)
	s.state = CatamilhoCooldown
}

func (s *CatamilhoStrategy) rolloverLocked(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(s.day) {
		s.day = day
		s.tradesToday = 0
		s.lossesRow = 0
	}
}

// Analyze walks the state machine: leave cooldown when it expires, arm
// on a quiet M5 context, fire on an M1 reversal setup
func (s *CatamilhoStrategy) Analyze(in *Input) *Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	s.rolloverLocked(now)

	switch s.state {
	case CatamilhoInTrade:
		return Hold(s.Name(), in.Symbol, "in_trade")
	case CatamilhoCooldown:
		if now.Before(s.cooldownUntil) {
			return Hold(s.Name(), in.Symbol, "cooldown")
		}
		s.state = CatamilhoIdle
	}

	if s.tradesToday >= s.cfg.MaxTradesPerDay {
		return Hold(s.Name(), in.Symbol, "daily_trade_cap")
	}
	if SessionQuality(now.UTC().Hour()) < s.cfg.MinSessionScore {
		return Hold(s.Name(), in.Symbol, ReasonSessionQualityLow)
	}

	m5 := in.Frame(broker.TimeframeM5)
	if m5 == nil || !s.contextOK(m5) {
		s.state = CatamilhoIdle
		return Hold(s.Name(), in.Symbol, "context_filter")
	}
	s.state = CatamilhoArmed

	m1 := in.Frame(broker.TimeframeM1)
	if m1 == nil {
		return Hold(s.Name(), in.Symbol, ReasonInsufficientData)
	}

	bullConf, bullReasons := score(s.setup(m1, true))
	bearConf, bearReasons := score(s.setup(m1, false))

	action, conf, reasons := ActionBuy, bullConf, bullReasons
	if bearConf > bullConf {
		action, conf, reasons = ActionSell, bearConf, bearReasons
	}
	if conf < s.cfg.MinConfidence {
		return Hold(s.Name(), in.Symbol, ReasonNoClearTrend)
	}

	sig := NewSignal(s.Name(), in.Symbol, action, broker.TimeframeM1, clampConfidence(conf), m1.CurrentPrice, reasons)
	if in.PipSize > 0 {
		if action == ActionBuy {
			sig.StopLoss = sig.Price - s.cfg.StopLossPips*in.PipSize
			sig.TakeProfit = sig.Price + s.cfg.TakeProfitPips*in.PipSize
		} else {
			sig.StopLoss = sig.Price + s.cfg.StopLossPips*in.PipSize
			sig.TakeProfit = sig.Price - s.cfg.TakeProfitPips*in.PipSize
		}
	}
	return sig
}

// contextOK is the M5 filter: no trend, tame volatility, price hugging
// the EMA50
func (s *CatamilhoStrategy) contextOK(m5 *analysis.Frame) bool {
	if m5.ADX.ADX >= s.cfg.ADXMax {
		return false
	}
	if m5.ATRPips > 0 && (m5.ATRPips < s.cfg.MinAtrPips || m5.ATRPips > s.cfg.MaxAtrPips) {
		return false
	}
	if m5.EMA50 <= 0 {
		return false
	}
	return math.Abs(m5.CurrentPrice-m5.EMA50)/m5.EMA50 <= s.cfg.EMA50Proximity
}

func (s *CatamilhoStrategy) setup(m1 *analysis.Frame, bull bool) []condition {
	bandTouch := m1.LastBar.Low <= m1.Bollinger.Lower
	rsiExtreme := m1.RSI <= s.cfg.RSIOversold
	pattern := m1.Patterns.AnyBullish()
	if !bull {
		bandTouch = m1.LastBar.High >= m1.Bollinger.Upper
		rsiExtreme = m1.RSI >= s.cfg.RSIOverbought
		pattern = m1.Patterns.AnyBearish()
	}

	body := math.Abs(m1.LastBar.Close - m1.LastBar.Open)
	smallBody := m1.ATR > 0 && body/m1.ATR <= s.cfg.MaxBodyATR

	prefix := "bull_"
	if !bull {
		prefix = "bear_"
	}
	return []condition{
		{prefix + "band_touch", 2.0, bandTouch},
		{prefix + "rsi_extreme", 2.0, rsiExtreme},
		{prefix + "reversal_candle", 2.0, pattern},
		{"small_body", 1.0, smallBody},
		{"volume_above_avg", 1.0, m1.VolumeRatio >= s.cfg.VolumeMin},
	}
}
