package strategy

import (
	"time"

	"github.com/google/uuid"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
	"forex-trading-bot/internal/market"
	"forex-trading-bot/internal/news"
)

// Action is the trade decision carried on a signal
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Side converts a trade action to a broker side; HOLD has none
func (a Action) Side() (broker.Side, bool) {
	switch a {
	case ActionBuy:
		return broker.SideBuy, true
	case ActionSell:
		return broker.SideSell, true
	default:
		return "", false
	}
}

// Hold reason codes shared across strategies
const (
	ReasonNoData             = "no_data"
	ReasonInsufficientData   = "insufficient_data"
	ReasonNoClearTrend       = "no_clear_trend"
	ReasonBelowMinConfidence = "below_min_confidence"
	ReasonSpreadHigh         = "spread_high"
	ReasonAtrOutOfBounds     = "atr_out_of_bounds"
	ReasonH1NoDirection      = "h1_no_direction"
	ReasonH1StrongTrend      = "h1_strong_trend"
	ReasonSessionQualityLow  = "session_quality_low"
	ReasonNewsBlockingWindow = "news_blocking_window"
	ReasonNewsUnavailable    = "news_unavailable"
	ReasonDirectionNotAllowed = "direction_not_allowed"
)

// Signal is the uniform strategy output. Strategies always return one;
// HOLD is the default when no setup is present.
type Signal struct {
	ID             string           `json:"id"`
	Strategy       string           `json:"strategy"`
	Symbol         string           `json:"symbol"`
	Action         Action           `json:"action"`
	Confidence     float64          `json:"confidence"`
	Price          float64          `json:"price"`
	StopLoss       float64          `json:"stop_loss,omitempty"`
	TakeProfit     float64          `json:"take_profit,omitempty"`
	Timeframe      broker.Timeframe `json:"timeframe"`
	Reasons        []string         `json:"reasons,omitempty"`
	RiskMultiplier float64          `json:"risk_multiplier,omitempty"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// IsActionable reports whether the signal asks for a trade
func (s *Signal) IsActionable() bool {
	return s != nil && (s.Action == ActionBuy || s.Action == ActionSell)
}

// NewSignal creates an actionable signal
func NewSignal(strategyName, symbol string, action Action, tf broker.Timeframe, confidence, price float64, reasons []string) *Signal {
	return &Signal{
		ID:          uuid.NewString(),
		Strategy:    strategyName,
		Symbol:      symbol,
		Action:      action,
		Confidence:  confidence,
		Price:       price,
		Timeframe:   tf,
		Reasons:     reasons,
		GeneratedAt: time.Now().UTC(),
	}
}

// Hold creates a HOLD signal with a reason code
func Hold(strategyName, symbol, reason string) *Signal {
	return &Signal{
		ID:          uuid.NewString(),
		Strategy:    strategyName,
		Symbol:      symbol,
		Action:      ActionHold,
		Reasons:     []string{reason},
		GeneratedAt: time.Now().UTC(),
	}
}

// NewsSnapshot is the news state a strategy sees for one evaluation
type NewsSnapshot struct {
	Sentiment     news.Sentiment
	Blocking      bool
	BlockingEvent *news.CalendarEvent
}

// Input is the immutable snapshot one strategy evaluation consumes.
// Strategies never call back into the engines that produced it.
type Input struct {
	Symbol    string
	Frames    map[broker.Timeframe]*analysis.Frame
	Consensus *analysis.Consensus
	Market    *market.Context
	News      *NewsSnapshot

	SpreadPips float64
	PipSize    float64
	Digits     int
	Now        time.Time
}

// Frame returns the frame for a timeframe, or nil
func (in *Input) Frame(tf broker.Timeframe) *analysis.Frame {
	if in == nil {
		return nil
	}
	return in.Frames[tf]
}

// Strategy is the uniform contract every trading strategy implements
type Strategy interface {
	Name() string
	Symbol() string
	IsEnabled() bool
	MinConfidence() float64
	Analyze(in *Input) *Signal
}

// StopCalculator derives protective stops for a proposed entry. The
// risk manager implements it; strategies fall back to their fixed pip
// distances when none is attached.
type StopCalculator interface {
	StopLoss(symbol string, side broker.Side, entry, atr float64) float64
	TakeProfit(symbol string, entry, sl float64) float64
}

// condition is one weighted boolean in a strategy's scoring set
type condition struct {
	name   string
	weight float64
	met    bool
}

// score folds weighted conditions into a confidence in [0, 1] and the
// list of met condition names
func score(conds []condition) (float64, []string) {
	var total, hit float64
	var reasons []string
	for _, c := range conds {
		total += c.weight
		if c.met {
			hit += c.weight
			reasons = append(reasons, c.name)
		}
	}
	if total == 0 {
		return 0, nil
	}
	return hit / total, reasons
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// applyStops fills SL/TP on an actionable signal, preferring the
// attached calculator over the fixed pip distances
func applyStops(sig *Signal, calc StopCalculator, in *Input, atr, slPips, tpMult float64) {
	side, ok := sig.Action.Side()
	if !ok {
		return
	}
	if calc != nil {
		sig.StopLoss = calc.StopLoss(sig.Symbol, side, sig.Price, atr)
		sig.TakeProfit = calc.TakeProfit(sig.Symbol, sig.Price, sig.StopLoss)
		return
	}
	dist := slPips * in.PipSize
	if dist <= 0 {
		return
	}
	if side == broker.SideBuy {
		sig.StopLoss = sig.Price - dist
		sig.TakeProfit = sig.Price + dist*tpMult
	} else {
		sig.StopLoss = sig.Price + dist
		sig.TakeProfit = sig.Price - dist*tpMult
	}
}
