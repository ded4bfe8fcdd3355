package risk

import "forex-trading-bot/internal/broker"

// TrailingStop proposes a new stop that trails price by the configured
// distance. The trail activates only once the position is in profit by
// more than the distance, and a proposal must strictly improve the
// current stop; nil means no update. The supervisor is the single
// writer of stop modifications, which keeps acknowledged stops
// monotonic per position.
func (m *Manager) TrailingStop(pos *broker.Position, price float64) *float64 {
	si := m.symbol(pos.Symbol)
	if si == nil || si.PipSize <= 0 {
		return nil
	}
	dist := m.cfg.TrailingStopPips * si.PipSize
	if dist <= 0 {
		return nil
	}

	if pos.Side == broker.SideBuy {
		if price-pos.EntryPrice <= dist {
			return nil
		}
		newSL := roundTo(price-dist, si.Digits)
		if newSL > pos.StopLoss {
			return &newSL
		}
		return nil
	}

	if pos.EntryPrice-price <= dist {
		return nil
	}
	newSL := roundTo(price+dist, si.Digits)
	if pos.StopLoss == 0 || newSL < pos.StopLoss {
		return &newSL
	}
	return nil
}

// ShouldMoveToBreakeven reports whether profit has reached the trigger
// while the stop still sits on the losing side of entry
func (m *Manager) ShouldMoveToBreakeven(pos *broker.Position, price float64) bool {
	if !m.cfg.BreakEvenEnabled {
		return false
	}
	si := m.symbol(pos.Symbol)
	if si == nil || si.PipSize <= 0 {
		return false
	}

	if pos.Side == broker.SideBuy {
		profitPips := (price - pos.EntryPrice) / si.PipSize
		return profitPips >= m.cfg.BreakEvenTrigger && pos.StopLoss < pos.EntryPrice
	}
	profitPips := (pos.EntryPrice - price) / si.PipSize
	return profitPips >= m.cfg.BreakEvenTrigger && (pos.StopLoss == 0 || pos.StopLoss > pos.EntryPrice)
}
