package strategy

import (
	"math"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
)

// NewsTradingConfig configures the news-driven strategy
type NewsTradingConfig struct {
	Symbol        string
	Enabled       bool
	MinConfidence float64
	// MinPolarity is the minimum absolute sentiment score
	MinPolarity float64
	// MinAgreement is the minimum fraction of aligned headlines
	MinAgreement float64
	// MinArticles is the minimum number of supporting items
	MinArticles  int
	StopLossPips float64
	TakeProfitRR float64
}

// DefaultNewsTradingConfig returns the standard settings
func DefaultNewsTradingConfig(symbol string) NewsTradingConfig {
	return NewsTradingConfig{
		Symbol:        symbol,
		Enabled:       true,
		MinConfidence: 0.6,
		MinPolarity:   0.3,
		MinAgreement:  0.6,
		MinArticles:   3,
		StopLossPips:  20,
		TakeProfitRR:  1.5,
	}
}

// NewsTradingStrategy trades headline sentiment, standing down inside
// the blocking window around high impact releases
type NewsTradingStrategy struct {
	cfg   NewsTradingConfig
	stops StopCalculator
}

// NewNewsTradingStrategy creates the strategy
func NewNewsTradingStrategy(cfg NewsTradingConfig, stops StopCalculator) *NewsTradingStrategy {
	return &NewsTradingStrategy{cfg: cfg, stops: stops}
}

func (s *NewsTradingStrategy) Name() string           { return "news_trading" }
func (s *NewsTradingStrategy) Symbol() string         { return s.cfg.Symbol }
func (s *NewsTradingStrategy) IsEnabled() bool        { return s.cfg.Enabled }
func (s *NewsTradingStrategy) MinConfidence() float64 { return s.cfg.MinConfidence }

// Analyze turns a clear sentiment lean into a trade, scaled by whether
// the M5 technicals agree
func (s *NewsTradingStrategy) Analyze(in *Input) *Signal {
	if in.News == nil {
		return Hold(s.Name(), in.Symbol, ReasonNewsUnavailable)
	}
	if in.News.Blocking {
		return Hold(s.Name(), in.Symbol, ReasonNewsBlockingWindow)
	}

	sent := in.News.Sentiment
	action := ActionBuy
	if sent.Score < 0 {
		action = ActionSell
	}

	conds := []condition{
		{"polarity_clear", 2.5, math.Abs(sent.Score) > s.cfg.MinPolarity},
		{"headline_agreement", 2.0, sent.Agreement() >= s.cfg.MinAgreement},
		{"enough_coverage", 1.5, sent.Articles >= s.cfg.MinArticles},
		{"data_fresh", 1.0, !sent.Stale},
	}
	conf, reasons := score(conds)

	m5 := in.Frame(broker.TimeframeM5)
	if m5 != nil {
		switch {
		case aligned(m5.Trend.Direction, action):
			conf *= 1.25
		case opposed(m5.Trend.Direction, action):
			conf *= 0.7
		}
	}
	if conf < s.cfg.MinConfidence {
		return Hold(s.Name(), in.Symbol, ReasonNoClearTrend)
	}

	price := 0.0
	if m5 != nil {
		price = m5.CurrentPrice
	}
	sig := NewSignal(s.Name(), in.Symbol, action, broker.TimeframeM5, clampConfidence(conf), price, reasons)
	if m5 != nil {
		applyStops(sig, s.stops, in, m5.ATR, s.cfg.StopLossPips, s.cfg.TakeProfitRR)
	}
	return sig
}

func aligned(dir analysis.TrendDirection, action Action) bool {
	return (dir == analysis.TrendBullish && action == ActionBuy) ||
		(dir == analysis.TrendBearish && action == ActionSell)
}

func opposed(dir analysis.TrendDirection, action Action) bool {
	return (dir == analysis.TrendBullish && action == ActionSell) ||
		(dir == analysis.TrendBearish && action == ActionBuy)
}
