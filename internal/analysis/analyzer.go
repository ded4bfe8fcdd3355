package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"forex-trading-bot/internal/broker"
	"forex-trading-bot/internal/indicators"
)

const (
	// minBars is the history floor below which no frame is produced
	minBars = 50
	// fullBars is the history needed for every indicator including EMA200
	fullBars = 250

	defaultCacheTTL = 30 * time.Second

	squeezeLookback = 120
)

// Config tunes the analyzer's indicator periods
type Config struct {
	RSIPeriod     int
	ATRPeriod     int
	ADXPeriod     int
	MACDFast      int
	MACDSlow      int
	MACDSignal    int
	BollPeriod    int
	BollMult      float64
	KeltnerPeriod int
	KeltnerMult   float64
	StochK        int
	StochD        int
	CacheTTL      time.Duration
	BarCount      int
}

// DefaultConfig returns the standard indicator settings
func DefaultConfig() Config {
	return Config{
		RSIPeriod:     14,
		ATRPeriod:     14,
		ADXPeriod:     14,
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		BollPeriod:    20,
		BollMult:      2.0,
		KeltnerPeriod: 20,
		KeltnerMult:   1.5,
		StochK:        14,
		StochD:        3,
		CacheTTL:      defaultCacheTTL,
		BarCount:      fullBars,
	}
}

type cacheEntry struct {
	frame   *Frame
	expires time.Time
}

// Analyzer computes indicator frames over broker rate history. Frames
// are cached per (symbol, timeframe, count) for a short TTL and cold
// misses are deduplicated so concurrent workers trigger one fetch.
type Analyzer struct {
	client broker.Client
	cfg    Config
	log    zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group

	now func() time.Time
}

// NewAnalyzer creates an analyzer over a broker client
func NewAnalyzer(client broker.Client, cfg Config, log zerolog.Logger) *Analyzer {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.BarCount <= 0 {
		cfg.BarCount = fullBars
	}
	return &Analyzer{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("component", "analyzer").Logger(),
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
}

func cacheKey(symbol string, tf broker.Timeframe, count int) string {
	return fmt.Sprintf("%s/%s/%d", symbol, tf, count)
}

// Analyze returns the indicator frame for a symbol and timeframe. A nil
// frame with a nil error means there is not enough history to analyze.
func (a *Analyzer) Analyze(ctx context.Context, symbol string, tf broker.Timeframe) (*Frame, error) {
	return a.analyze(ctx, symbol, tf, a.cfg.BarCount)
}

func (a *Analyzer) analyze(ctx context.Context, symbol string, tf broker.Timeframe, count int) (*Frame, error) {
	key := cacheKey(symbol, tf, count)

	a.mu.RLock()
	entry, ok := a.cache[key]
	a.mu.RUnlock()
	if ok && a.now().Before(entry.expires) {
		return entry.frame, nil
	}

	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		bars, err := a.client.Rates(ctx, symbol, tf, count)
		if err != nil {
			return nil, fmt.Errorf("fetch rates %s %s: %w", symbol, tf, err)
		}
		if len(bars) < minBars {
			a.log.Debug().Str("symbol", symbol).Str("timeframe", string(tf)).
				Int("bars", len(bars)).Msg("insufficient history, skipping frame")
			return (*Frame)(nil), nil
		}
		pip := 0.0
		if si, err := a.client.SymbolInfo(ctx, symbol); err == nil {
			pip = si.PipSize
		}
		frame := a.buildFrame(symbol, tf, bars, pip)
		a.mu.Lock()
		a.cache[key] = cacheEntry{frame: frame, expires: a.now().Add(a.cfg.CacheTTL)}
		a.mu.Unlock()
		return frame, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Frame), nil
}

// AnalyzeMulti builds frames for several timeframes and attaches their
// consensus. Timeframes without enough history are omitted from the map.
func (a *Analyzer) AnalyzeMulti(ctx context.Context, symbol string, tfs []broker.Timeframe) (*MultiFrame, error) {
	frames := make(map[broker.Timeframe]*Frame, len(tfs))
	for _, tf := range tfs {
		frame, err := a.Analyze(ctx, symbol, tf)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			frames[tf] = frame
		}
	}
	return &MultiFrame{
		Symbol:    symbol,
		Frames:    frames,
		Consensus: ComputeConsensus(frames),
	}, nil
}

// Invalidate drops all cached frames for a symbol
func (a *Analyzer) Invalidate(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, entry := range a.cache {
		if entry.frame != nil && entry.frame.Symbol == symbol {
			delete(a.cache, key)
		}
	}
}

func (a *Analyzer) buildFrame(symbol string, tf broker.Timeframe, bars []broker.Bar, pip float64) *Frame {
	closes := indicators.Closes(bars)
	last := bars[len(bars)-1]

	f := &Frame{
		Symbol:       symbol,
		Timeframe:    tf,
		BarCount:     len(bars),
		CurrentPrice: last.Close,
		LastBar:      last,
		ComputedAt:   a.now(),
	}
	if len(bars) >= 2 {
		f.PreviousClose = bars[len(bars)-2].Close
	}

	// Short history degrades gracefully: every indicator falls back to
	// its neutral value and the frame is flagged low confidence.
	f.LowConfidence = len(bars) < fullBars

	atr := indicators.ATR(bars, a.cfg.ATRPeriod)
	f.ATR = indicators.Last(atr, 0)
	f.AvgATR = avgTail(atr, a.cfg.ATRPeriod*4)
	if pip > 0 {
		f.ATRPips = f.ATR / pip
	}

	adx := indicators.ADX(bars, a.cfg.ADXPeriod)
	f.ADX = ADXValues{
		ADX:     indicators.Last(adx.ADX, 20),
		DIPlus:  indicators.Last(adx.DIPlus, 0),
		DIMinus: indicators.Last(adx.DIMinus, 0),
	}
	if f.ADX.ADX == 0 {
		f.ADX.ADX = 20
	}

	macd := indicators.MACD(closes, a.cfg.MACDFast, a.cfg.MACDSlow, a.cfg.MACDSignal)
	f.MACD = MACDValues{
		Line:      indicators.Last(macd.Line, 0),
		Signal:    indicators.Last(macd.Signal, 0),
		Histogram: indicators.Last(macd.Histogram, 0),
	}

	f.EMA9 = indicators.Last(indicators.EMA(closes, 9), last.Close)
	f.EMA21 = indicators.Last(indicators.EMA(closes, 21), last.Close)
	f.EMA50 = indicators.Last(indicators.EMA(closes, 50), last.Close)
	f.EMA200 = indicators.Last(indicators.EMA(closes, 200), last.Close)
	f.RSI = indicators.Last(indicators.RSI(bars, a.cfg.RSIPeriod), 50)
	if f.RSI == 0 {
		f.RSI = 50
	}

	boll := indicators.Bollinger(closes, a.cfg.BollPeriod, a.cfg.BollMult)
	f.Bollinger = BandValues{
		Upper:  indicators.Last(boll.Upper, last.Close),
		Middle: indicators.Last(boll.Middle, last.Close),
		Lower:  indicators.Last(boll.Lower, last.Close),
	}
	f.BollWidth = indicators.Last(boll.Width, 0)
	f.BollWidthP20 = indicators.WidthPercentile(boll.Width, squeezeLookback, 0.20)

	kelt := indicators.Keltner(bars, a.cfg.KeltnerPeriod, a.cfg.KeltnerMult)
	f.Keltner = BandValues{
		Upper:  indicators.Last(kelt.Upper, last.Close),
		Middle: indicators.Last(kelt.Middle, last.Close),
		Lower:  indicators.Last(kelt.Lower, last.Close),
	}
	f.SqueezeOn = f.Bollinger.Upper < f.Keltner.Upper && f.Bollinger.Lower > f.Keltner.Lower
	if prevU, prevKU := indicators.At(boll.Upper, 1, 0), indicators.At(kelt.Upper, 1, 0); prevU > 0 && prevKU > 0 {
		f.SqueezePrev = prevU < prevKU && indicators.At(boll.Lower, 1, 0) > indicators.At(kelt.Lower, 1, 0)
	}

	stoch := indicators.Stochastic(bars, a.cfg.StochK, a.cfg.StochD)
	f.Stochastic = StochValues{
		K: indicators.Last(stoch.K, 50),
		D: indicators.Last(stoch.D, 50),
	}

	f.VolumeRatio = indicators.VolumeRatio(bars, 20)
	f.Patterns = indicators.DetectPatterns(bars)
	f.Trend = ComputeTrendVerdict(f)
	return f
}

func avgTail(series []float64, n int) float64 {
	var sum float64
	count := 0
	start := len(series) - n
	if start < 0 {
		start = 0
	}
	for _, v := range series[start:] {
		if v > 0 {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
