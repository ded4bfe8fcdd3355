package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Terminal retcodes mirrored from the bridge protocol
const (
	retcodeDone               = 10009
	retcodeRequote            = 10004
	retcodeRejected           = 10006
	retcodePriceOff           = 10021
	retcodeInvalidStops       = 10016
	retcodeNoMoney            = 10019
	retcodeMarketClosed       = 10018
	retcodeInvalidSymbol      = 10014
	retcodeTradeContextBusy   = 10026
	retcodeConnectionProblems = 10031
)

// TerminalConfig configures the HTTP bridge client
type TerminalConfig struct {
	BaseURL           string
	Timeout           time.Duration
	ReconnectAttempts int
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
}

// TerminalClient talks to the broker terminal over an HTTP/JSON bridge.
// One request at a time is expected; callers serialize access (the
// supervisor wraps the client in a mutex).
type TerminalClient struct {
	cfg       TerminalConfig
	http      *http.Client
	connected atomic.Bool
	log       zerolog.Logger
}

// NewTerminalClient creates a bridge client with defaults applied
func NewTerminalClient(cfg TerminalConfig, log zerolog.Logger) *TerminalClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = 500 * time.Millisecond
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = 30 * time.Second
	}
	return &TerminalClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With().Str("component", "terminal").Logger(),
	}
}

// Connect establishes the session with exponential backoff. Exhausted
// attempts surface as KindDisconnected.
func (c *TerminalClient) Connect(ctx context.Context) error {
	wait := c.cfg.ReconnectBaseWait
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		err := c.do(ctx, http.MethodPost, "/session/connect", nil, nil)
		if err == nil {
			c.connected.Store(true)
			c.log.Info().Int("attempt", attempt).Msg("terminal session established")
			return nil
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("connect failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > c.cfg.ReconnectMaxWait {
			wait = c.cfg.ReconnectMaxWait
		}
	}
	c.connected.Store(false)
	return NewError(KindDisconnected, 0, fmt.Sprintf("connect exhausted after %d attempts: %v", c.cfg.ReconnectAttempts, lastErr))
}

// Disconnect releases the session
func (c *TerminalClient) Disconnect(ctx context.Context) error {
	c.connected.Store(false)
	return c.do(ctx, http.MethodPost, "/session/disconnect", nil, nil)
}

// IsConnected reports whether the session is established
func (c *TerminalClient) IsConnected() bool {
	return c.connected.Load()
}

// Account retrieves the account snapshot
func (c *TerminalClient) Account(ctx context.Context) (*AccountInfo, error) {
	var out AccountInfo
	if err := c.do(ctx, http.MethodGet, "/account", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SymbolInfo retrieves instrument metadata. The pip size is derived
// locally when the bridge does not provide one.
func (c *TerminalClient) SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	var out SymbolInfo
	if err := c.do(ctx, http.MethodGet, "/symbols/"+symbol, nil, &out); err != nil {
		return nil, err
	}
	if out.PipSize == 0 {
		out.PipSize = PipSizeFor(out.Name, out.Point)
	}
	return &out, nil
}

// SelectSymbol makes a symbol visible in the terminal
func (c *TerminalClient) SelectSymbol(ctx context.Context, symbol string) error {
	return c.do(ctx, http.MethodPost, "/symbols/"+symbol+"/select", nil, nil)
}

// Rates returns the most recent count bars, oldest-first
func (c *TerminalClient) Rates(ctx context.Context, symbol string, tf Timeframe, count int) ([]Bar, error) {
	var out []Bar
	path := fmt.Sprintf("/rates/%s/%s?count=%d", symbol, tf, count)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Positions returns open positions, optionally filtered by symbol
func (c *TerminalClient) Positions(ctx context.Context, symbol string) ([]Position, error) {
	path := "/positions"
	if symbol != "" {
		path += "?symbol=" + symbol
	}
	var out []Position
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlaceOrder submits a market order
func (c *TerminalClient) PlaceOrder(ctx context.Context, req OrderRequest) (int64, error) {
	var out struct {
		Ticket int64 `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders", req, &out); err != nil {
		return 0, err
	}
	return out.Ticket, nil
}

// ClosePosition closes a position by ticket
func (c *TerminalClient) ClosePosition(ctx context.Context, ticket int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/positions/%d/close", ticket), nil, nil)
}

// ModifyStops updates SL/TP on a position
func (c *TerminalClient) ModifyStops(ctx context.Context, ticket int64, sl, tp *float64) error {
	body := map[string]interface{}{}
	if sl != nil {
		body["stop_loss"] = *sl
	}
	if tp != nil {
		body["take_profit"] = *tp
	}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/positions/%d/stops", ticket), body, nil)
}

// bridgeError is the error envelope returned by the terminal bridge
type bridgeError struct {
	Retcode int    `json:"retcode"`
	Message string `json:"message"`
}

func (c *TerminalClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.connected.Store(false)
		if ctx.Err() != nil {
			return NewError(KindRetryable, 0, "request cancelled: "+ctx.Err().Error())
		}
		// Timeouts and transport failures are worth a retry
		return NewError(KindRetryable, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var be bridgeError
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &be) == nil && be.Retcode != 0 {
			return mapRetcode(be.Retcode, be.Message)
		}
		if resp.StatusCode >= 500 {
			return NewError(KindRetryable, 0, fmt.Sprintf("bridge returned status %d", resp.StatusCode))
		}
		return NewError(KindRejected, 0, fmt.Sprintf("bridge returned status %d", resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// mapRetcode translates terminal retcodes into error kinds
func mapRetcode(retcode int, msg string) error {
	switch retcode {
	case retcodeDone:
		return nil
	case retcodeRequote, retcodePriceOff, retcodeTradeContextBusy:
		return NewError(KindRetryable, retcode, msg)
	case retcodeConnectionProblems:
		return NewError(KindDisconnected, retcode, msg)
	case retcodeNoMoney:
		return NewError(KindInsufficientMargin, retcode, msg)
	case retcodeInvalidSymbol:
		return NewError(KindSymbolInvalid, retcode, msg)
	case retcodeInvalidStops, retcodeRejected, retcodeMarketClosed:
		return NewError(KindRejected, retcode, msg)
	default:
		return NewError(KindRejected, retcode, msg)
	}
}
