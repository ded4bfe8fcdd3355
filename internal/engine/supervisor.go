// Package engine runs the trading main loop: one worker per symbol,
// strictly sequential ticks per symbol, a shared broker serialized
// behind a mutex, and a command surface consumed between ticks.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-bot/internal/analysis"
	"forex-trading-bot/internal/broker"
	"forex-trading-bot/internal/events"
	"forex-trading-bot/internal/market"
	"forex-trading-bot/internal/news"
	"forex-trading-bot/internal/risk"
	"forex-trading-bot/internal/statestore"
	"forex-trading-bot/internal/strategy"
)

// Command is an operator instruction consumed between ticks. Commands
// never interrupt an in-flight broker call.
type Command string

const (
	CommandPause    Command = "pause"
	CommandResume   Command = "resume"
	CommandCloseAll Command = "close_all"
	CommandStop     Command = "stop"
)

// Config holds the supervisor settings
type Config struct {
	Symbols []string

	// TickInterval is the default gap between ticks; TickIntervals
	// overrides it per symbol
	TickInterval  time.Duration
	TickIntervals map[string]time.Duration

	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	// PauseCooldown parks a symbol after reconnection is exhausted
	PauseCooldown time.Duration

	// BaseRisk is the balance fraction risked per trade before the
	// market context multiplier is applied
	BaseRisk float64
	Magic    int
	// Slippage is the max price deviation in points passed on each
	// order; zero defers to the terminal
	Slippage float64

	// BlockAllOnHighImpact skips admission for every strategy while a
	// high impact news window is active, not just the news strategy
	BlockAllOnHighImpact bool
	// CloseAllOnStop liquidates open positions during shutdown
	CloseAllOnStop bool
}

// DefaultEngineConfig returns the standard loop settings
func DefaultEngineConfig() Config {
	return Config{
		TickInterval:      30 * time.Second,
		ReconnectAttempts: 5,
		ReconnectBackoff:  2 * time.Second,
		PauseCooldown:     5 * time.Minute,
		BaseRisk:          0.01,
		Magic:             770042,
	}
}

// PositionStore persists tracked positions across restarts
type PositionStore interface {
	Save(ctx context.Context, rec statestore.PositionRecord) error
	Delete(ctx context.Context, symbol string, ticket int64) error
	Load(ctx context.Context, symbol string) ([]statestore.PositionRecord, error)
}

// tradeLifecycle is implemented by stateful strategies that track their
// own open trades and cooldowns
type tradeLifecycle interface {
	RecordOpen(now time.Time)
	RecordResult(pnl float64, now time.Time)
}

// trackedPosition is the supervisor's view of one open trade
type trackedPosition struct {
	broker.Position
	Strategy string
	Orphaned bool
}

// Deps bundles the engines the supervisor drives
type Deps struct {
	Client   broker.Client
	Analyzer *analysis.Analyzer
	Market   *market.Engine
	News     *news.View
	Managers map[string]*strategy.Manager
	Risk     *risk.Manager
	Bus      *events.Bus
	Store    PositionStore
}

// Supervisor owns the position map and the risk ledger writes. It is
// the single writer for both; every other component gets read-only
// snapshots.
type Supervisor struct {
	cfg      Config
	client   broker.Client
	analyzer *analysis.Analyzer
	market   *market.Engine
	news     *news.View
	managers map[string]*strategy.Manager
	risk     *risk.Manager
	bus      *events.Bus
	store    PositionStore
	log      zerolog.Logger

	mu          sync.Mutex
	positions   map[int64]*trackedPosition
	pausedUntil map[string]time.Time
	paused      bool

	commands chan Command
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	now func() time.Time
}

// NewSupervisor creates the supervisor. The broker client is wrapped so
// at most one request is in flight at a time.
func NewSupervisor(cfg Config, deps Deps, log zerolog.Logger) *Supervisor {
	def := DefaultEngineConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = def.ReconnectAttempts
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = def.ReconnectBackoff
	}
	if cfg.PauseCooldown <= 0 {
		cfg.PauseCooldown = def.PauseCooldown
	}
	if cfg.BaseRisk <= 0 {
		cfg.BaseRisk = def.BaseRisk
	}
	if cfg.Magic == 0 {
		cfg.Magic = def.Magic
	}
	return &Supervisor{
		cfg:         cfg,
		client:      NewSerialClient(deps.Client),
		analyzer:    deps.Analyzer,
		market:      deps.Market,
		news:        deps.News,
		managers:    deps.Managers,
		risk:        deps.Risk,
		bus:         deps.Bus,
		store:       deps.Store,
		log:         log.With().Str("component", "supervisor").Logger(),
		positions:   make(map[int64]*trackedPosition),
		pausedUntil: make(map[string]time.Time),
		commands:    make(chan Command, 16),
		quit:        make(chan struct{}),
		now:         time.Now,
	}
}

// Start connects, reconciles broker state and launches the workers
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	for _, symbol := range s.cfg.Symbols {
		if err := s.client.SelectSymbol(ctx, symbol); err != nil {
			return err
		}
		si, err := s.client.SymbolInfo(ctx, symbol)
		if err != nil {
			return err
		}
		s.risk.UpdateSymbol(si)
		if err := s.reconcile(ctx, symbol); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("startup reconciliation incomplete")
		}
	}

	s.wg.Add(1)
	go s.commandLoop(ctx)
	for _, symbol := range s.cfg.Symbols {
		s.wg.Add(1)
		go s.worker(ctx, symbol)
	}
	s.bus.PublishSystemMessage("supervisor started")
	s.log.Info().Strs("symbols", s.cfg.Symbols).Msg("supervisor started")
	return nil
}

// Send enqueues an operator command; it is consumed between ticks
func (s *Supervisor) Send(cmd Command) {
	select {
	case s.commands <- cmd:
	default:
		s.log.Warn().Str("command", string(cmd)).Msg("command queue full, dropped")
	}
}

// Stop requests a graceful shutdown, finishing any in-flight tick
func (s *Supervisor) Stop() {
	s.Send(CommandStop)
}

// Wait blocks until all workers have exited
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Paused reports whether new entries are suspended
func (s *Supervisor) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// OpenPositions snapshots the tracked positions for status reporting
func (s *Supervisor) OpenPositions() []broker.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]broker.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos.Position)
	}
	return out
}

func (s *Supervisor) commandLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.shutdown(context.Background())
			return
		case <-s.quit:
			return
		case cmd := <-s.commands:
			s.handleCommand(ctx, cmd)
			if cmd == CommandStop {
				return
			}
		}
	}
}

func (s *Supervisor) handleCommand(ctx context.Context, cmd Command) {
	s.log.Info().Str("command", string(cmd)).Msg("command received")
	switch cmd {
	case CommandPause:
		s.mu.Lock()
		s.paused = true
		s.mu.Unlock()
		s.bus.PublishSystemMessage("trading paused")
	case CommandResume:
		s.mu.Lock()
		s.paused = false
		s.pausedUntil = make(map[string]time.Time)
		s.mu.Unlock()
		s.bus.PublishSystemMessage("trading resumed")
	case CommandCloseAll:
		s.closeAll(ctx)
	case CommandStop:
		s.shutdown(ctx)
	default:
		s.log.Warn().Str("command", string(cmd)).Msg("unknown command ignored")
	}
}

func (s *Supervisor) shutdown(ctx context.Context) {
	s.stopOnce.Do(func() {
		if s.cfg.CloseAllOnStop {
			s.closeAll(ctx)
		}
		s.bus.PublishSystemMessage("supervisor stopping")
		close(s.quit)
	})
}

func (s *Supervisor) worker(ctx context.Context, symbol string) {
	defer s.wg.Done()
	interval := s.cfg.TickInterval
	if iv, ok := s.cfg.TickIntervals[symbol]; ok && iv > 0 {
		interval = iv
	}
	log := s.log.With().Str("symbol", symbol).Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tickIfActive(ctx, symbol, log)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case <-ticker.C:
			s.tickIfActive(ctx, symbol, log)
		}
	}
}

func (s *Supervisor) tickIfActive(ctx context.Context, symbol string, log zerolog.Logger) {
	s.mu.Lock()
	paused := s.paused
	until := s.pausedUntil[symbol]
	s.mu.Unlock()
	if paused {
		return
	}
	if !until.IsZero() && s.now().Before(until) {
		log.Debug().Time("until", until).Msg("symbol parked, skipping tick")
		return
	}
	s.tick(ctx, symbol)
}

// reconcile lines up the broker's open positions with the persisted
// records. Positions without a record are adopted as orphans and given
// default stops when they carry none.
func (s *Supervisor) reconcile(ctx context.Context, symbol string) error {
	live, err := s.client.Positions(ctx, symbol)
	if err != nil {
		return err
	}
	records := map[int64]statestore.PositionRecord{}
	if s.store != nil {
		recs, err := s.store.Load(ctx, symbol)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			records[rec.Ticket] = rec
		}
	}

	liveTickets := map[int64]bool{}
	for _, pos := range live {
		liveTickets[pos.Ticket] = true
		rec, known := records[pos.Ticket]

		tracked := &trackedPosition{Position: pos}
		if known {
			tracked.Strategy = rec.Strategy
			tracked.Orphaned = rec.Orphaned
		} else {
			tracked.Orphaned = true
			s.log.Warn().Int64("ticket", pos.Ticket).Str("symbol", symbol).
				Msg("adopting unknown broker position as orphan")
		}

		if tracked.StopLoss == 0 {
			sl := s.risk.StopLoss(symbol, pos.Side, pos.EntryPrice, 0)
			tp := tracked.TakeProfit
			if tp == 0 {
				tp = s.risk.TakeProfit(symbol, pos.EntryPrice, sl)
			}
			if err := s.client.ModifyStops(ctx, pos.Ticket, &sl, &tp); err != nil {
				s.log.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("could not attach default stops to orphan")
			} else {
				tracked.StopLoss = sl
				tracked.TakeProfit = tp
			}
		}

		s.mu.Lock()
		s.positions[pos.Ticket] = tracked
		s.mu.Unlock()
		s.persist(ctx, tracked)
	}

	// records without a live position closed while we were down; the
	// realized pnl is unknown, so report without touching the ledger
	for ticket, rec := range records {
		if liveTickets[ticket] {
			continue
		}
		s.log.Info().Int64("ticket", ticket).Str("symbol", symbol).
			Msg("persisted position no longer open, dropping record")
		s.bus.PublishTradeExit(symbol, ticket, 0, s.now().UTC().Sub(rec.OpenTime), "Unknown")
		if s.store != nil {
			_ = s.store.Delete(ctx, symbol, ticket)
		}
	}
	return nil
}

func (s *Supervisor) persist(ctx context.Context, pos *trackedPosition) {
	if s.store == nil {
		return
	}
	err := s.store.Save(ctx, statestore.PositionRecord{
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		Side:       string(pos.Side),
		Strategy:   pos.Strategy,
		Lots:       pos.Volume,
		EntryPrice: pos.EntryPrice,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		OpenTime:   pos.OpenTime,
		Orphaned:   pos.Orphaned,
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("position state not persisted")
	}
}

func (s *Supervisor) lifecycleFor(symbol, strategyName string) tradeLifecycle {
	mgr := s.managers[symbol]
	if mgr == nil {
		return nil
	}
	for _, st := range mgr.Strategies() {
		if st.Name() != strategyName {
			continue
		}
		if lc, ok := st.(tradeLifecycle); ok {
			return lc
		}
	}
	return nil
}
