package broker

import (
	"strings"
	"time"
)

// Timeframe represents a candle interval
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// Duration returns the bar length for the timeframe
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TimeframeM1:
		return time.Minute
	case TimeframeM5:
		return 5 * time.Minute
	case TimeframeM15:
		return 15 * time.Minute
	case TimeframeM30:
		return 30 * time.Minute
	case TimeframeH1:
		return time.Hour
	case TimeframeH4:
		return 4 * time.Hour
	case TimeframeD1:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Side represents the direction of an order or position
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Bar is an immutable OHLCV candle. Bars are produced by the broker
// gateway ordered oldest-first and are never mutated.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// SymbolInfo describes a tradable instrument
type SymbolInfo struct {
	Name         string  `json:"name"`
	Digits       int     `json:"digits"`
	Point        float64 `json:"point"`
	PipSize      float64 `json:"pip_size"`
	MinVolume    float64 `json:"min_volume"`
	MaxVolume    float64 `json:"max_volume"`
	VolumeStep   float64 `json:"volume_step"`
	ContractSize float64 `json:"contract_size"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	SpreadPoints float64 `json:"spread_points"`
}

// PipSizeFor derives the pip size from the point value. JPY-quoted
// symbols use point*100, gold uses a fixed 0.1 pip, everything else
// point*10.
func PipSizeFor(symbol string, point float64) float64 {
	if symbol == "XAUUSD" {
		return 0.1
	}
	if strings.HasSuffix(strings.ToUpper(symbol), "JPY") {
		return point * 100
	}
	return point * 10
}

// SpreadPips converts the current spread in points to pips
func (si *SymbolInfo) SpreadPips() float64 {
	if si.PipSize <= 0 || si.Point <= 0 {
		return 0
	}
	return si.SpreadPoints * si.Point / si.PipSize
}

// AccountInfo holds the trading account snapshot
type AccountInfo struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Leverage   int     `json:"leverage"`
	Currency   string  `json:"currency"`
}

// Position is an open trade as reported by the broker
type Position struct {
	Ticket        int64     `json:"ticket"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Volume        float64   `json:"volume"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	OpenTime      time.Time `json:"open_time"`
	Comment       string    `json:"comment"`
	Magic         int       `json:"magic"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
}

// OrderRequest describes a market order to be placed. Slippage is the
// maximum accepted price deviation in points; zero leaves it to the
// terminal default.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Slippage   float64 `json:"slippage,omitempty"`
	Comment    string  `json:"comment"`
	Magic      int     `json:"magic"`
}
