package market

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
)

const defaultContextTTL = 5 * time.Minute

// ContextTimeframes are the frames the macro assessment is built from
var ContextTimeframes = []broker.Timeframe{
	broker.TimeframeD1,
	broker.TimeframeH4,
	broker.TimeframeH1,
}

type contextEntry struct {
	ctx     *Context
	expires time.Time
}

// Config tunes the context engine. Zero fields fall back to the
// package defaults.
type Config struct {
	TTL        time.Duration
	Thresholds Thresholds
}

// Engine assembles per-symbol market contexts from multi-timeframe
// indicator frames and caches them for a few minutes
type Engine struct {
	analyzer   *analysis.Analyzer
	ttl        time.Duration
	thresholds Thresholds
	log        zerolog.Logger

	mu    sync.Mutex
	cache map[string]contextEntry

	now func() time.Time
}

// NewEngine creates a context engine over an analyzer
func NewEngine(analyzer *analysis.Analyzer, cfg Config, log zerolog.Logger) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultContextTTL
	}
	return &Engine{
		analyzer:   analyzer,
		ttl:        cfg.TTL,
		thresholds: cfg.Thresholds.withDefaults(),
		log:        log.With().Str("component", "market").Logger(),
		cache:      make(map[string]contextEntry),
		now:        time.Now,
	}
}

// Context returns the cached assessment for a symbol, rebuilding it
// when the TTL has lapsed
func (e *Engine) Context(ctx context.Context, symbol string) (*Context, error) {
	return e.context(ctx, symbol, false)
}

// Refresh rebuilds the assessment immediately, bypassing the cache
func (e *Engine) Refresh(ctx context.Context, symbol string) (*Context, error) {
	return e.context(ctx, symbol, true)
}

func (e *Engine) context(ctx context.Context, symbol string, force bool) (*Context, error) {
	e.mu.Lock()
	entry, ok := e.cache[symbol]
	e.mu.Unlock()
	if ok && !force && e.now().Before(entry.expires) {
		return entry.ctx, nil
	}

	multi, err := e.analyzer.AnalyzeMulti(ctx, symbol, ContextTimeframes)
	if err != nil {
		return nil, err
	}
	mc := e.build(symbol, multi)

	e.mu.Lock()
	e.cache[symbol] = contextEntry{ctx: mc, expires: e.now().Add(e.ttl)}
	e.mu.Unlock()

	e.log.Debug().Str("symbol", symbol).
		Str("direction", string(mc.MacroDirection)).
		Str("regime", string(mc.Regime)).
		Float64("score", mc.MacroScore).
		Msg("market context rebuilt")
	return mc, nil
}

func (e *Engine) build(symbol string, multi *analysis.MultiFrame) *Context {
	mc := &Context{
		Symbol:              symbol,
		TimeframeDirections: make(map[broker.Timeframe]Direction),
		TimeframeScores:     make(map[broker.Timeframe]float64),
		Frames:              multi.Frames,
		ComputedAt:          e.now(),
	}

	for _, tf := range ContextTimeframes {
		f := multi.Frames[tf]
		score := ScoreFrame(f)
		mc.TimeframeScores[tf] = score
		mc.TimeframeDirections[tf] = DirectionFromScore(score)
		if f == nil || f.LowConfidence {
			mc.LowConfidence = true
		}
	}

	mc.MacroScore = MacroScore(
		mc.TimeframeScores[broker.TimeframeD1],
		mc.TimeframeScores[broker.TimeframeH4],
	)
	mc.MacroDirection = DirectionFromScore(mc.MacroScore)
	mc.Regime = ClassifyRegime(multi.Frames[broker.TimeframeH4], multi.Frames[broker.TimeframeH1], e.thresholds)
	mc.RecommendedStrategies, mc.RiskMultiplier, mc.MaxPositions = PolicyFor(mc.Regime)
	mc.AllowedSides = AllowedSidesFor(mc.Regime, mc.MacroDirection, mc.TimeframeDirections[broker.TimeframeH1])

	// A thin or missing frame halves the risk budget on top of the
	// regime multiplier
	if mc.LowConfidence {
		mc.RiskMultiplier *= 0.5
	}
	return mc
}

// Invalidate drops the cached context for a symbol
func (e *Engine) Invalidate(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, symbol)
}
