package engine

import (
	"context"
	"time"

	"forex-trading-bot/internal/broker"
	"forex-trading-bot/internal/market"
	"forex-trading-bot/internal/risk"
	"forex-trading-bot/internal/strategy"
)

// tickTimeframes are fetched every tick; strategies pick the frames
// they care about
var tickTimeframes = []broker.Timeframe{
	broker.TimeframeM1,
	broker.TimeframeM5,
	broker.TimeframeM15,
	broker.TimeframeM30,
	broker.TimeframeH1,
	broker.TimeframeH4,
	broker.TimeframeD1,
}

// tick runs the full pipeline for one symbol: connection, news,
// analysis, context, signal, admission, position management. Errors
// never propagate past here; they become events.
func (s *Supervisor) tick(ctx context.Context, symbol string) {
	if !s.ensureConnected(ctx, symbol) {
		return
	}

	if s.news != nil && s.news.Stale() {
		if err := s.news.Refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("news refresh failed, keeping previous data")
		}
	}

	si, err := s.client.SymbolInfo(ctx, symbol)
	if err != nil {
		s.bus.PublishError(symbol, "supervisor", "symbol info fetch failed", err)
		return
	}
	s.risk.UpdateSymbol(si)

	multi, err := s.analyzer.AnalyzeMulti(ctx, symbol, tickTimeframes)
	if err != nil {
		s.bus.PublishError(symbol, "analyzer", "multi-timeframe analysis failed", err)
		return
	}
	mc, err := s.market.Context(ctx, symbol)
	if err != nil {
		s.bus.PublishError(symbol, "market", "market context unavailable", err)
		return
	}

	in := &strategy.Input{
		Symbol:     symbol,
		Frames:     multi.Frames,
		Consensus:  multi.Consensus,
		Market:     mc,
		SpreadPips: si.SpreadPips(),
		PipSize:    si.PipSize,
		Digits:     si.Digits,
		Now:        s.now().UTC(),
	}
	if s.news != nil {
		snap := &strategy.NewsSnapshot{Sentiment: s.news.SentimentFor(symbol)}
		snap.Blocking, snap.BlockingEvent = s.news.IsBlocked(symbol, in.Now)
		in.News = snap
	}

	if mgr := s.managers[symbol]; mgr != nil {
		ev := mgr.Evaluate(in)
		for _, rej := range ev.Rejected {
			s.bus.PublishSignalRejected(symbol, rej.Strategy, string(rej.Action), lastReason(rej))
		}
		if ev.Signal != nil && ev.Signal.IsActionable() {
			s.bus.PublishSignal(symbol, ev.Signal.Strategy, string(ev.Signal.Action), ev.Signal.Confidence, ev.Signal.Price)
			s.tryEnter(ctx, si, mc, ev.Signal)
		}
	}

	s.managePositions(ctx, symbol, si)
}

// ensureConnected reconnects with exponential backoff. Exhaustion parks
// the symbol for the cooldown period.
func (s *Supervisor) ensureConnected(ctx context.Context, symbol string) bool {
	if s.client.IsConnected() {
		return true
	}

	backoff := s.cfg.ReconnectBackoff
	var lastErr error
	for attempt := 1; attempt <= s.cfg.ReconnectAttempts; attempt++ {
		if lastErr = s.client.Connect(ctx); lastErr == nil {
			s.bus.PublishSystemMessage("broker connection restored")
			s.log.Info().Int("attempt", attempt).Msg("reconnected to broker")
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	s.mu.Lock()
	s.pausedUntil[symbol] = s.now().Add(s.cfg.PauseCooldown)
	s.mu.Unlock()
	s.bus.PublishError(symbol, "supervisor", "broker reconnection exhausted, symbol parked", lastErr)
	return false
}

// tryEnter runs the admission path for an actionable signal and places
// the order on success
func (s *Supervisor) tryEnter(ctx context.Context, si *broker.SymbolInfo, mc *market.Context, sig *strategy.Signal) {
	symbol := si.Name
	side, ok := sig.Action.Side()
	if !ok {
		return
	}

	if s.cfg.BlockAllOnHighImpact && s.news != nil {
		if blocked, _ := s.news.IsBlocked(symbol, s.now().UTC()); blocked {
			s.bus.PublishSignalRejected(symbol, sig.Strategy, string(sig.Action), strategy.ReasonNewsBlockingWindow)
			return
		}
	}

	price := si.Ask
	if side == broker.SideSell {
		price = si.Bid
	}
	sl, tp := sig.StopLoss, sig.TakeProfit
	if sl == 0 {
		sl = s.risk.StopLoss(symbol, side, price, 0)
	}
	if tp == 0 {
		tp = s.risk.TakeProfit(symbol, price, sl)
	}

	account, err := s.client.Account(ctx)
	if err != nil {
		s.bus.PublishError(symbol, "supervisor", "account fetch failed", err)
		return
	}

	riskPct := s.cfg.BaseRisk
	if sig.RiskMultiplier > 0 {
		riskPct *= sig.RiskMultiplier
	}
	lots := s.risk.PositionSize(symbol, account, price, sl, riskPct)
	if lots <= 0 {
		s.bus.PublishSignalRejected(symbol, sig.Strategy, string(sig.Action), "position_size_zero")
		return
	}

	total, onSymbol := s.positionCounts(symbol)
	if mc != nil && onSymbol >= mc.MaxPositions {
		s.bus.PublishSignalRejected(symbol, sig.Strategy, string(sig.Action), "max_positions_reached")
		return
	}
	admitted, reason := s.risk.CanOpenPosition(risk.AdmissionRequest{
		Symbol:        symbol,
		Side:          side,
		Lots:          lots,
		OpenPositions: total,
		Account:       account,
		SymbolInfo:    si,
	})
	if !admitted {
		s.bus.PublishSignalRejected(symbol, sig.Strategy, string(sig.Action), reason)
		return
	}

	ticket, err := s.client.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Volume:     lots,
		StopLoss:   sl,
		TakeProfit: tp,
		Slippage:   s.cfg.Slippage,
		Comment:    sig.Strategy,
		Magic:      s.cfg.Magic,
	})
	if err != nil {
		s.bus.PublishError(symbol, "supervisor", "order submission failed", err)
		return
	}

	now := s.now().UTC()
	tracked := &trackedPosition{
		Position: broker.Position{
			Ticket:       ticket,
			Symbol:       symbol,
			Side:         side,
			Volume:       lots,
			EntryPrice:   price,
			CurrentPrice: price,
			StopLoss:     sl,
			TakeProfit:   tp,
			OpenTime:     now,
			Comment:      sig.Strategy,
			Magic:        s.cfg.Magic,
		},
		Strategy: sig.Strategy,
	}
	s.mu.Lock()
	s.positions[ticket] = tracked
	s.mu.Unlock()
	s.persist(ctx, tracked)

	if lc := s.lifecycleFor(symbol, sig.Strategy); lc != nil {
		lc.RecordOpen(now)
	}
	s.bus.PublishTradeEntry(symbol, sig.Strategy, string(side), ticket, price, lots, sl, tp)
	s.log.Info().Str("symbol", symbol).Str("strategy", sig.Strategy).
		Str("side", string(side)).Int64("ticket", ticket).
		Float64("lots", lots).Float64("sl", sl).Float64("tp", tp).
		Msg("position opened")
}

// managePositions walks the tracked positions for one symbol, moving
// stops and detecting broker-side closures. Live positions the map does
// not know are adopted as orphans.
func (s *Supervisor) managePositions(ctx context.Context, symbol string, si *broker.SymbolInfo) {
	live, err := s.client.Positions(ctx, symbol)
	if err != nil {
		s.bus.PublishError(symbol, "supervisor", "position fetch failed", err)
		return
	}
	byTicket := make(map[int64]broker.Position, len(live))
	for _, pos := range live {
		byTicket[pos.Ticket] = pos
	}

	s.mu.Lock()
	var tracked []*trackedPosition
	for _, pos := range s.positions {
		if pos.Symbol == symbol {
			tracked = append(tracked, pos)
		}
	}
	knownTickets := make(map[int64]bool, len(tracked))
	for _, pos := range tracked {
		knownTickets[pos.Ticket] = true
	}
	s.mu.Unlock()

	for _, pos := range tracked {
		lp, open := byTicket[pos.Ticket]
		if !open {
			s.finalizeClosure(ctx, pos, si)
			continue
		}
		pos.CurrentPrice = lp.CurrentPrice
		pos.UnrealizedPnL = lp.UnrealizedPnL
		pos.StopLoss = lp.StopLoss
		pos.TakeProfit = lp.TakeProfit
		s.manageStops(ctx, pos, si)
	}

	for ticket, lp := range byTicket {
		if knownTickets[ticket] {
			continue
		}
		s.adoptOrphan(ctx, lp)
	}
}

func (s *Supervisor) adoptOrphan(ctx context.Context, pos broker.Position) {
	tracked := &trackedPosition{Position: pos, Orphaned: true}
	if tracked.StopLoss == 0 {
		sl := s.risk.StopLoss(pos.Symbol, pos.Side, pos.EntryPrice, 0)
		tp := tracked.TakeProfit
		if tp == 0 {
			tp = s.risk.TakeProfit(pos.Symbol, pos.EntryPrice, sl)
		}
		if err := s.client.ModifyStops(ctx, pos.Ticket, &sl, &tp); err == nil {
			tracked.StopLoss = sl
			tracked.TakeProfit = tp
		}
	}
	s.mu.Lock()
	s.positions[pos.Ticket] = tracked
	s.mu.Unlock()
	s.persist(ctx, tracked)
	s.log.Warn().Int64("ticket", pos.Ticket).Str("symbol", pos.Symbol).
		Msg("adopted orphaned position")
}

// manageStops applies break-even first, trailing second; at most one
// stop modification per position per tick
func (s *Supervisor) manageStops(ctx context.Context, pos *trackedPosition, si *broker.SymbolInfo) {
	price := si.Bid
	if pos.Side == broker.SideSell {
		price = si.Ask
	}

	if s.risk.ShouldMoveToBreakeven(&pos.Position, price) {
		be := pos.EntryPrice
		if err := s.modifyWithRetry(ctx, pos.Ticket, &be, nil); err != nil {
			s.bus.PublishError(pos.Symbol, "supervisor", "break-even modification failed", err)
			return
		}
		pos.StopLoss = be
		s.persist(ctx, pos)
		s.bus.PublishTradeUpdate(pos.Symbol, pos.Ticket, "breakeven", be)
		return
	}

	if newSL := s.risk.TrailingStop(&pos.Position, price); newSL != nil {
		if err := s.modifyWithRetry(ctx, pos.Ticket, newSL, nil); err != nil {
			s.bus.PublishError(pos.Symbol, "supervisor", "trailing stop modification failed", err)
			return
		}
		pos.StopLoss = *newSL
		s.persist(ctx, pos)
		s.bus.PublishTradeUpdate(pos.Symbol, pos.Ticket, "trailing", *newSL)
	}
}

// modifyWithRetry retries a stop modification once when the failure is
// classified retryable
func (s *Supervisor) modifyWithRetry(ctx context.Context, ticket int64, sl, tp *float64) error {
	err := s.client.ModifyStops(ctx, ticket, sl, tp)
	if err == nil || !broker.ShouldRetry(err) {
		return err
	}
	return s.client.ModifyStops(ctx, ticket, sl, tp)
}

// finalizeClosure handles a ticket that vanished from the broker: infer
// the exit, settle the ledgers and emit the exit event
func (s *Supervisor) finalizeClosure(ctx context.Context, pos *trackedPosition, si *broker.SymbolInfo) {
	exitPrice, reason := inferExit(pos, si)
	pnl := realizedPnL(pos, si, exitPrice)
	now := s.now().UTC()
	duration := now.Sub(pos.OpenTime)

	s.mu.Lock()
	delete(s.positions, pos.Ticket)
	s.mu.Unlock()

	s.risk.RegisterTradeResult(pnl)
	if lc := s.lifecycleFor(pos.Symbol, pos.Strategy); lc != nil {
		lc.RecordResult(pnl, now)
	}
	if s.store != nil {
		_ = s.store.Delete(ctx, pos.Symbol, pos.Ticket)
	}
	s.bus.PublishTradeExit(pos.Symbol, pos.Ticket, pnl, duration, reason)
	s.log.Info().Str("symbol", pos.Symbol).Int64("ticket", pos.Ticket).
		Float64("pnl", pnl).Str("exit_reason", reason).Dur("duration", duration).
		Msg("position closed")
}

// closeAll liquidates every tracked position at market
func (s *Supervisor) closeAll(ctx context.Context) {
	s.mu.Lock()
	var tracked []*trackedPosition
	for _, pos := range s.positions {
		tracked = append(tracked, pos)
	}
	s.mu.Unlock()
	if len(tracked) == 0 {
		return
	}
	s.bus.PublishSystemMessage("closing all open positions")

	for _, pos := range tracked {
		if err := s.client.ClosePosition(ctx, pos.Ticket); err != nil {
			s.bus.PublishError(pos.Symbol, "supervisor", "close failed", err)
			continue
		}
		si, err := s.client.SymbolInfo(ctx, pos.Symbol)
		if err != nil {
			si = &broker.SymbolInfo{Name: pos.Symbol, Bid: pos.CurrentPrice, Ask: pos.CurrentPrice}
		}
		exitPrice := si.Bid
		if pos.Side == broker.SideSell {
			exitPrice = si.Ask
		}
		pnl := realizedPnL(pos, si, exitPrice)
		now := s.now().UTC()

		s.mu.Lock()
		delete(s.positions, pos.Ticket)
		s.mu.Unlock()

		s.risk.RegisterTradeResult(pnl)
		if lc := s.lifecycleFor(pos.Symbol, pos.Strategy); lc != nil {
			lc.RecordResult(pnl, now)
		}
		if s.store != nil {
			_ = s.store.Delete(ctx, pos.Symbol, pos.Ticket)
		}
		s.bus.PublishTradeExit(pos.Symbol, pos.Ticket, pnl, now.Sub(pos.OpenTime), "Manual")
	}
}

func (s *Supervisor) positionCounts(symbol string) (total, onSymbol int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pos := range s.positions {
		total++
		if pos.Symbol == symbol {
			onSymbol++
		}
	}
	return total, onSymbol
}

// inferExit guesses how a vanished position was closed from the current
// market price against its stops. A terminal fills stops at the stop
// price.
func inferExit(pos *trackedPosition, si *broker.SymbolInfo) (float64, string) {
	price := si.Bid
	if pos.Side == broker.SideSell {
		price = si.Ask
	}
	if pos.Side == broker.SideBuy {
		if pos.StopLoss > 0 && price <= pos.StopLoss {
			return pos.StopLoss, "SL"
		}
		if pos.TakeProfit > 0 && price >= pos.TakeProfit {
			return pos.TakeProfit, "TP"
		}
		return price, "Manual"
	}
	if pos.StopLoss > 0 && price >= pos.StopLoss {
		return pos.StopLoss, "SL"
	}
	if pos.TakeProfit > 0 && price <= pos.TakeProfit {
		return pos.TakeProfit, "TP"
	}
	return price, "Manual"
}

func realizedPnL(pos *trackedPosition, si *broker.SymbolInfo, exitPrice float64) float64 {
	contract := 1.0
	if si != nil && si.ContractSize > 0 {
		contract = si.ContractSize
	}
	if pos.Side == broker.SideBuy {
		return (exitPrice - pos.EntryPrice) * pos.Volume * contract
	}
	return (pos.EntryPrice - exitPrice) * pos.Volume * contract
}

func lastReason(sig *strategy.Signal) string {
	if len(sig.Reasons) == 0 {
		return ""
	}
	return sig.Reasons[len(sig.Reasons)-1]
}
