package risk

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-bot/internal/broker"
)

// Config holds the risk limits and stop parameters
type Config struct {
	// MaxRiskPerTrade is the fraction of balance risked per trade
	MaxRiskPerTrade float64
	// MaxDrawdown is the peak-to-equity fraction that halts trading
	MaxDrawdown float64
	// MaxDailyLoss is the fraction of balance allowed as daily loss
	MaxDailyLoss float64

	StopLossPips         float64
	TakeProfitMultiplier float64
	ATRMultiplier        float64

	TrailingStopPips float64
	BreakEvenEnabled bool
	BreakEvenTrigger float64

	MaxOpenPositions int
	MaxLotSize       float64
	DefaultLotSize   float64
	SpreadThreshold  float64
}

// DefaultConfig returns conservative limits
func DefaultConfig() Config {
	return Config{
		MaxRiskPerTrade:      0.01,
		MaxDrawdown:          0.10,
		MaxDailyLoss:         0.03,
		StopLossPips:         30,
		TakeProfitMultiplier: 2.0,
		ATRMultiplier:        1.5,
		TrailingStopPips:     20,
		BreakEvenEnabled:     true,
		BreakEvenTrigger:     15,
		MaxOpenPositions:     3,
		MaxLotSize:           1.0,
		DefaultLotSize:       0.01,
		SpreadThreshold:      3.0,
	}
}

// Admission reason codes, returned on denial in check order
const (
	DenyMaxPositions       = "max_positions_reached"
	DenyDailyLoss          = "daily_loss_limit"
	DenyDrawdown           = "max_drawdown"
	DenyInsufficientMargin = "insufficient_margin"
	DenySpread             = "spread_too_high"
)

// AdmissionRequest is the snapshot CanOpenPosition evaluates
type AdmissionRequest struct {
	Symbol        string
	Side          broker.Side
	Lots          float64
	OpenPositions int
	Account       *broker.AccountInfo
	SymbolInfo    *broker.SymbolInfo
}

// Manager owns sizing, stop derivation, admission control and the
// daily loss ledger. All mutable state is internally synchronized; the
// supervisor is the only writer of trade results.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu         sync.Mutex
	symbols    map[string]*broker.SymbolInfo
	dailyPnL   float64
	day        time.Time
	peakEquity float64

	now func() time.Time
}

// NewManager creates a risk manager
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		log:     log.With().Str("component", "risk").Logger(),
		symbols: make(map[string]*broker.SymbolInfo),
		now:     time.Now,
	}
}

// UpdateSymbol caches instrument metadata for stop derivation
func (m *Manager) UpdateSymbol(si *broker.SymbolInfo) {
	if si == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *si
	m.symbols[si.Name] = &cp
}

func (m *Manager) symbol(name string) *broker.SymbolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.symbols[name]
}

// PositionSize converts the configured risk fraction into lots for a
// stop at the given distance. Returns 0 when symbol or account data is
// missing.
func (m *Manager) PositionSize(symbol string, account *broker.AccountInfo, entry, sl, riskPct float64) float64 {
	si := m.symbol(symbol)
	if si == nil || account == nil || account.Balance <= 0 || si.Point <= 0 || entry == sl {
		return 0
	}
	if riskPct <= 0 {
		riskPct = m.cfg.MaxRiskPerTrade
	}

	riskAmount := account.Balance * riskPct
	tickValue := si.ContractSize * si.Point
	slPoints := math.Abs(entry-sl) / si.Point
	if tickValue <= 0 || slPoints <= 0 {
		return 0
	}

	lots := riskAmount / (slPoints * tickValue)
	if si.VolumeStep > 0 {
		lots = math.Floor(lots/si.VolumeStep+1e-9) * si.VolumeStep
	}

	maxLot := m.cfg.MaxLotSize
	if si.MaxVolume > 0 && si.MaxVolume < maxLot {
		maxLot = si.MaxVolume
	}
	if lots > maxLot {
		lots = maxLot
	}
	if lots < m.cfg.DefaultLotSize {
		lots = m.cfg.DefaultLotSize
	}
	if si.MinVolume > 0 && lots < si.MinVolume {
		lots = si.MinVolume
	}
	return lots
}

// StopLoss derives the protective stop, ATR-based when an ATR is
// supplied, fixed pips otherwise, rounded to the symbol's digits
func (m *Manager) StopLoss(symbol string, side broker.Side, entry, atr float64) float64 {
	si := m.symbol(symbol)
	if si == nil {
		return 0
	}
	dist := m.cfg.StopLossPips * si.PipSize
	if atr > 0 && m.cfg.ATRMultiplier > 0 {
		dist = atr * m.cfg.ATRMultiplier
	}
	sl := entry - dist
	if side == broker.SideSell {
		sl = entry + dist
	}
	return roundTo(sl, si.Digits)
}

// TakeProfit places the target at the configured reward multiple of the
// stop distance
func (m *Manager) TakeProfit(symbol string, entry, sl float64) float64 {
	si := m.symbol(symbol)
	dist := math.Abs(entry-sl) * m.cfg.TakeProfitMultiplier
	tp := entry + dist
	if sl > entry {
		tp = entry - dist
	}
	if si != nil {
		return roundTo(tp, si.Digits)
	}
	return tp
}

// CanOpenPosition runs the admission checks in a fixed order and
// returns the first failing reason
func (m *Manager) CanOpenPosition(req AdmissionRequest) (bool, string) {
	if req.OpenPositions >= m.cfg.MaxOpenPositions {
		return false, DenyMaxPositions
	}

	acc := req.Account
	if acc != nil {
		m.mu.Lock()
		m.rolloverLocked()
		daily := m.dailyPnL
		if acc.Equity > m.peakEquity {
			m.peakEquity = acc.Equity
		}
		peak := m.peakEquity
		m.mu.Unlock()

		if daily <= -m.cfg.MaxDailyLoss*acc.Balance {
			return false, DenyDailyLoss
		}
		if peak > 0 && (peak-acc.Equity)/peak >= m.cfg.MaxDrawdown {
			return false, DenyDrawdown
		}
	}

	if req.SymbolInfo != nil && acc != nil {
		leverage := acc.Leverage
		if leverage <= 0 {
			leverage = 1
		}
		price := req.SymbolInfo.Ask
		if req.Side == broker.SideSell {
			price = req.SymbolInfo.Bid
		}
		margin := req.Lots * req.SymbolInfo.ContractSize * price / float64(leverage)
		if margin > 0.8*acc.FreeMargin {
			return false, DenyInsufficientMargin
		}
	}

	if req.SymbolInfo != nil && req.SymbolInfo.SpreadPips() > m.cfg.SpreadThreshold {
		return false, DenySpread
	}
	return true, ""
}

// RegisterTradeResult adds a broker-confirmed closure to the daily
// ledger, resetting it at UTC midnight
func (m *Manager) RegisterTradeResult(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	m.dailyPnL += pnl
	m.log.Info().Float64("pnl", pnl).Float64("daily_pnl", m.dailyPnL).Msg("trade result registered")
}

// DailyPnL returns the loss ledger for the current UTC day
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	return m.dailyPnL
}

func (m *Manager) rolloverLocked() {
	day := m.now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(m.day) {
		m.day = day
		m.dailyPnL = 0
	}
}

func roundTo(v float64, digits int) float64 {
	if digits <= 0 {
		return v
	}
	pow := math.Pow(10, float64(digits))
	return math.Round(v*pow) / pow
}
