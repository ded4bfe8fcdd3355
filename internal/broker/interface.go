package broker

import "context"

// Client defines the interface to an external broker terminal.
// Implementations must preserve the terminal retcodes and surface them
// as *Error values so the supervisor can decide on retries.
type Client interface {
	// Connect establishes the terminal session
	Connect(ctx context.Context) error

	// Disconnect releases the terminal session
	Disconnect(ctx context.Context) error

	// IsConnected reports the current session state
	IsConnected() bool

	// Account retrieves balance, equity, margin and leverage
	Account(ctx context.Context) (*AccountInfo, error)

	// SymbolInfo retrieves instrument metadata with current bid/ask
	SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)

	// SelectSymbol makes a symbol visible in the terminal before first use
	SelectSymbol(ctx context.Context, symbol string) error

	// Rates returns the most recent count bars, ordered oldest-first
	Rates(ctx context.Context, symbol string, tf Timeframe, count int) ([]Bar, error)

	// Positions returns open positions, filtered by symbol when non-empty
	Positions(ctx context.Context, symbol string) ([]Position, error)

	// PlaceOrder submits a market order and returns the position ticket
	PlaceOrder(ctx context.Context, req OrderRequest) (int64, error)

	// ClosePosition closes an open position by ticket
	ClosePosition(ctx context.Context, ticket int64) error

	// ModifyStops updates stop loss and/or take profit on a position.
	// A nil pointer leaves the corresponding stop unchanged.
	ModifyStops(ctx context.Context, ticket int64, sl, tp *float64) error
}
