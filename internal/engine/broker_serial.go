package engine

import (
	"context"
	"sync"

	"forex-trading-bot/internal/broker"
)

// serialClient guards a broker client with a mutex so at most one
// request is in flight at a time, regardless of how many symbol workers
// are running.
type serialClient struct {
	mu    sync.Mutex
	inner broker.Client
}

// NewSerialClient wraps a client so every call holds a shared mutex.
// Wire the analyzer and the supervisor over the same wrapper to get the
// at-most-one-request guarantee process wide.
func NewSerialClient(inner broker.Client) broker.Client {
	if _, ok := inner.(*serialClient); ok {
		return inner
	}
	return &serialClient{inner: inner}
}

func (c *serialClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Connect(ctx)
}

func (c *serialClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Disconnect(ctx)
}

func (c *serialClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.IsConnected()
}

func (c *serialClient) Account(ctx context.Context) (*broker.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Account(ctx)
}

func (c *serialClient) SymbolInfo(ctx context.Context, symbol string) (*broker.SymbolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.SymbolInfo(ctx, symbol)
}

func (c *serialClient) SelectSymbol(ctx context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.SelectSymbol(ctx, symbol)
}

func (c *serialClient) Rates(ctx context.Context, symbol string, tf broker.Timeframe, count int) ([]broker.Bar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Rates(ctx, symbol, tf, count)
}

func (c *serialClient) Positions(ctx context.Context, symbol string) ([]broker.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Positions(ctx, symbol)
}

func (c *serialClient) PlaceOrder(ctx context.Context, req broker.OrderRequest) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.PlaceOrder(ctx, req)
}

func (c *serialClient) ClosePosition(ctx context.Context, ticket int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.ClosePosition(ctx, ticket)
}

func (c *serialClient) ModifyStops(ctx context.Context, ticket int64, sl, tp *float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.ModifyStops(ctx, ticket, sl, tp)
}
