package database

import (
	"context"
	"time"

	"forex-trading-bot/internal/events"
)

// Trade is one row of the trade history
type Trade struct {
	ID              int64      `json:"id"`
	Ticket          int64      `json:"ticket"`
	Symbol          string     `json:"symbol"`
	Side            string     `json:"side"`
	Lots            float64    `json:"lots"`
	EntryPrice      float64    `json:"entry_price"`
	StopLoss        float64    `json:"stop_loss"`
	TakeProfit      float64    `json:"take_profit"`
	Strategy        string     `json:"strategy"`
	PnL             *float64   `json:"pnl,omitempty"`
	ExitReason      string     `json:"exit_reason,omitempty"`
	OpenedAt        *time.Time `json:"opened_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
}

// TradeRepository records trade lifecycle events
type TradeRepository struct {
	db *DB
}

// NewTradeRepository creates the repository
func NewTradeRepository(db *DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// HealthCheck pings the pool
func (r *TradeRepository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// Attach subscribes the repository to the trade events. Writes happen
// on bus goroutines; failures are logged and dropped.
func (r *TradeRepository) Attach(bus *events.Bus) {
	bus.Subscribe(events.EventTradeEntry, func(e events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.recordEntry(ctx, e); err != nil {
			r.db.log.Warn().Err(err).Msg("trade entry not recorded")
		}
	})
	bus.Subscribe(events.EventTradeExit, func(e events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.recordExit(ctx, e); err != nil {
			r.db.log.Warn().Err(err).Msg("trade exit not recorded")
		}
	})
}

func (r *TradeRepository) recordEntry(ctx context.Context, e events.Event) error {
	query := `
		INSERT INTO trades (ticket, symbol, side, lots, entry_price, stop_loss, take_profit, strategy, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ticket) DO NOTHING
	`
	_, err := r.db.Pool.Exec(ctx, query,
		e.Data["ticket"], e.Symbol, e.Data["side"], e.Data["lots"],
		e.Data["entry_price"], e.Data["stop_loss"], e.Data["take_profit"],
		e.Data["strategy"], e.Timestamp,
	)
	return err
}

func (r *TradeRepository) recordExit(ctx context.Context, e events.Event) error {
	duration, _ := time.ParseDuration(str(e.Data["duration"]))
	query := `
		UPDATE trades
		SET pnl = $2, exit_reason = $3, closed_at = $4, duration_seconds = $5
		WHERE ticket = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		e.Data["ticket"], e.Data["pnl"], e.Data["exit_reason"],
		e.Timestamp, int64(duration.Seconds()),
	)
	if err != nil {
		return err
	}
	// exits for positions opened before this process (orphans) get a
	// standalone row
	if tag.RowsAffected() == 0 {
		insert := `
			INSERT INTO trades (ticket, symbol, side, lots, entry_price, strategy, pnl, exit_reason, closed_at, duration_seconds)
			VALUES ($1, $2, '', 0, 0, 'orphaned', $3, $4, $5, $6)
			ON CONFLICT (ticket) DO NOTHING
		`
		_, err = r.db.Pool.Exec(ctx, insert,
			e.Data["ticket"], e.Symbol, e.Data["pnl"], e.Data["exit_reason"],
			e.Timestamp, int64(duration.Seconds()),
		)
	}
	return err
}

// RecentTrades returns the latest closed trades for status reporting
func (r *TradeRepository) RecentTrades(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, ticket, symbol, side, lots, entry_price,
		       COALESCE(stop_loss, 0), COALESCE(take_profit, 0),
		       COALESCE(strategy, ''), pnl, COALESCE(exit_reason, ''),
		       opened_at, closed_at, COALESCE(duration_seconds, 0)
		FROM trades
		WHERE closed_at IS NOT NULL
		ORDER BY closed_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(
			&t.ID, &t.Ticket, &t.Symbol, &t.Side, &t.Lots, &t.EntryPrice,
			&t.StopLoss, &t.TakeProfit, &t.Strategy, &t.PnL, &t.ExitReason,
			&t.OpenedAt, &t.ClosedAt, &t.DurationSeconds,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
