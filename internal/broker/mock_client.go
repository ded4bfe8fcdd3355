package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is a deterministic in-memory broker used by tests and dry
// runs. It serves scripted bars, opens positions at the current ask/bid
// and honors stop loss / take profit when the tick price crosses them.
type MockClient struct {
	mu sync.Mutex

	connected bool
	account   AccountInfo
	symbols   map[string]*SymbolInfo
	bars      map[string][]Bar
	selected  map[string]bool

	positions  map[int64]*Position
	closed     []Position
	nextTicket int64
	lastOrder  OrderRequest

	// failNext injects a single error on the next fallible call
	failNext error
}

// NewMockClient creates a mock broker with a funded account
func NewMockClient() *MockClient {
	return &MockClient{
		account: AccountInfo{
			Balance:    10000,
			Equity:     10000,
			FreeMargin: 10000,
			Leverage:   100,
			Currency:   "USD",
		},
		symbols:    make(map[string]*SymbolInfo),
		bars:       make(map[string][]Bar),
		selected:   make(map[string]bool),
		positions:  make(map[int64]*Position),
		nextTicket: 1000,
	}
}

// SetAccount overrides the account snapshot
func (m *MockClient) SetAccount(info AccountInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = info
}

// SetSymbol registers an instrument
func (m *MockClient) SetSymbol(info SymbolInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info.PipSize == 0 {
		info.PipSize = PipSizeFor(info.Name, info.Point)
	}
	m.symbols[info.Name] = &info
}

// SetBars scripts the rate history for a (symbol, timeframe) pair
func (m *MockClient) SetBars(symbol string, tf Timeframe, bars []Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol+"/"+string(tf)] = bars
}

// FailNext injects an error on the next fallible call
func (m *MockClient) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// SetTick moves the market to a new bid/ask, marking open positions and
// closing any whose stops are crossed. Stop fills use the stop price,
// the way a terminal reports them.
func (m *MockClient) SetTick(symbol string, bid, ask float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if si, ok := m.symbols[symbol]; ok {
		si.Bid = bid
		si.Ask = ask
		if si.Point > 0 {
			si.SpreadPoints = (ask - bid) / si.Point
		}
	}

	for ticket, pos := range m.positions {
		if pos.Symbol != symbol {
			continue
		}
		if pos.Side == SideBuy {
			pos.CurrentPrice = bid
			if pos.StopLoss > 0 && bid <= pos.StopLoss {
				m.closeLocked(ticket, pos.StopLoss)
				continue
			}
			if pos.TakeProfit > 0 && bid >= pos.TakeProfit {
				m.closeLocked(ticket, pos.TakeProfit)
				continue
			}
		} else {
			pos.CurrentPrice = ask
			if pos.StopLoss > 0 && ask >= pos.StopLoss {
				m.closeLocked(ticket, pos.StopLoss)
				continue
			}
			if pos.TakeProfit > 0 && ask <= pos.TakeProfit {
				m.closeLocked(ticket, pos.TakeProfit)
				continue
			}
		}
		pos.UnrealizedPnL = m.pnlLocked(pos, pos.CurrentPrice)
	}
	m.refreshEquityLocked()
}

// LastOrder returns the most recent accepted order request
func (m *MockClient) LastOrder() OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOrder
}

// ClosedPositions returns positions closed by stops or ClosePosition
func (m *MockClient) ClosedPositions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, len(m.closed))
	copy(out, m.closed)
	return out
}

func (m *MockClient) takeFailure() error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	return nil
}

// Connect establishes the in-memory session
func (m *MockClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.connected = true
	return nil
}

// Disconnect drops the session
func (m *MockClient) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected reports the session state
func (m *MockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Account returns the account snapshot
func (m *MockClient) Account(ctx context.Context) (*AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	acc := m.account
	return &acc, nil
}

// SymbolInfo returns instrument metadata
func (m *MockClient) SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	si, ok := m.symbols[symbol]
	if !ok {
		return nil, NewError(KindSymbolInvalid, retcodeInvalidSymbol, "unknown symbol "+symbol)
	}
	cp := *si
	return &cp, nil
}

// SelectSymbol marks a symbol as selected
func (m *MockClient) SelectSymbol(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.symbols[symbol]; !ok {
		return NewError(KindSymbolInvalid, retcodeInvalidSymbol, "unknown symbol "+symbol)
	}
	m.selected[symbol] = true
	return nil
}

// Rates returns the scripted bars, truncated to the most recent count
func (m *MockClient) Rates(ctx context.Context, symbol string, tf Timeframe, count int) ([]Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	bars := m.bars[symbol+"/"+string(tf)]
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// Positions returns open positions, optionally filtered by symbol
func (m *MockClient) Positions(ctx context.Context, symbol string) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var out []Position
	for _, pos := range m.positions {
		if symbol == "" || pos.Symbol == symbol {
			out = append(out, *pos)
		}
	}
	return out, nil
}

// PlaceOrder fills a market order at the current ask (buy) or bid (sell)
func (m *MockClient) PlaceOrder(ctx context.Context, req OrderRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	if !m.connected {
		return 0, NewError(KindDisconnected, retcodeConnectionProblems, "not connected")
	}
	si, ok := m.symbols[req.Symbol]
	if !ok {
		return 0, NewError(KindSymbolInvalid, retcodeInvalidSymbol, "unknown symbol "+req.Symbol)
	}
	if req.Volume <= 0 {
		return 0, NewError(KindRejected, retcodeRejected, "invalid volume")
	}

	entry := si.Ask
	if req.Side == SideSell {
		entry = si.Bid
	}

	margin := req.Volume * si.ContractSize * entry / float64(max(m.account.Leverage, 1))
	if margin > m.account.FreeMargin {
		return 0, NewError(KindInsufficientMargin, retcodeNoMoney, fmt.Sprintf("margin %.2f exceeds free margin %.2f", margin, m.account.FreeMargin))
	}

	m.lastOrder = req
	m.nextTicket++
	ticket := m.nextTicket
	m.positions[ticket] = &Position{
		Ticket:       ticket,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Volume:       req.Volume,
		EntryPrice:   entry,
		CurrentPrice: entry,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		OpenTime:     time.Now().UTC(),
		Comment:      req.Comment,
		Magic:        req.Magic,
	}
	m.account.Margin += margin
	m.account.FreeMargin -= margin
	return ticket, nil
}

// ClosePosition closes a position at the current market price
func (m *MockClient) ClosePosition(ctx context.Context, ticket int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	pos, ok := m.positions[ticket]
	if !ok {
		return NewError(KindRejected, retcodeRejected, fmt.Sprintf("unknown ticket %d", ticket))
	}
	si := m.symbols[pos.Symbol]
	price := si.Bid
	if pos.Side == SideSell {
		price = si.Ask
	}
	m.closeLocked(ticket, price)
	m.refreshEquityLocked()
	return nil
}

// ModifyStops updates SL/TP on an open position
func (m *MockClient) ModifyStops(ctx context.Context, ticket int64, sl, tp *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	pos, ok := m.positions[ticket]
	if !ok {
		return NewError(KindRejected, retcodeRejected, fmt.Sprintf("unknown ticket %d", ticket))
	}
	if sl != nil {
		pos.StopLoss = *sl
	}
	if tp != nil {
		pos.TakeProfit = *tp
	}
	return nil
}

func (m *MockClient) pnlLocked(pos *Position, price float64) float64 {
	si := m.symbols[pos.Symbol]
	contract := 1.0
	if si != nil && si.ContractSize > 0 {
		contract = si.ContractSize
	}
	if pos.Side == SideBuy {
		return (price - pos.EntryPrice) * pos.Volume * contract
	}
	return (pos.EntryPrice - price) * pos.Volume * contract
}

func (m *MockClient) closeLocked(ticket int64, price float64) {
	pos := m.positions[ticket]
	pnl := m.pnlLocked(pos, price)
	pos.CurrentPrice = price
	pos.UnrealizedPnL = pnl
	m.closed = append(m.closed, *pos)
	delete(m.positions, ticket)

	si := m.symbols[pos.Symbol]
	margin := 0.0
	if si != nil {
		margin = pos.Volume * si.ContractSize * pos.EntryPrice / float64(max(m.account.Leverage, 1))
	}
	m.account.Balance += pnl
	m.account.Margin -= margin
	m.account.FreeMargin += margin + pnl
}

func (m *MockClient) refreshEquityLocked() {
	unrealized := 0.0
	for _, pos := range m.positions {
		unrealized += pos.UnrealizedPnL
	}
	m.account.Equity = m.account.Balance + unrealized
}
