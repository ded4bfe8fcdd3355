package analysis

import (
	"time"

	"forex-trading-bot/internal/broker"
	"forex-trading-bot/internal/indicators"
)

// TrendDirection represents the per-timeframe trend vote outcome
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

// ADXValues holds the directional movement snapshot at the last bar
type ADXValues struct {
	ADX     float64 `json:"adx"`
	DIPlus  float64 `json:"di_plus"`
	DIMinus float64 `json:"di_minus"`
}

// MACDValues holds the MACD snapshot at the last bar
type MACDValues struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BandValues holds a three-line band snapshot
type BandValues struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// StochValues holds the stochastic oscillator snapshot
type StochValues struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// TrendVerdict is the weighted-vote outcome attached to each frame
type TrendVerdict struct {
	Direction TrendDirection `json:"direction"`
	Strength  float64        `json:"strength"`
	Agreement float64        `json:"agreement"`
	Signals   []string       `json:"signals"`
}

// Frame is the per (symbol, timeframe) indicator snapshot taken at the
// last closed bar. All values are sanitized: insufficient history maps
// to the indicator's neutral value, never NaN.
type Frame struct {
	Symbol        string                  `json:"symbol"`
	Timeframe     broker.Timeframe        `json:"timeframe"`
	BarCount      int                     `json:"bar_count"`
	CurrentPrice  float64                 `json:"current_price"`
	PreviousClose float64                 `json:"previous_close"`
	ATR           float64                 `json:"atr"`
	ATRPips       float64                 `json:"atr_pips"`
	AvgATR        float64                 `json:"avg_atr"`
	ADX           ADXValues               `json:"adx"`
	MACD          MACDValues              `json:"macd"`
	EMA9          float64                 `json:"ema9"`
	EMA21         float64                 `json:"ema21"`
	EMA50         float64                 `json:"ema50"`
	EMA200        float64                 `json:"ema200"`
	RSI           float64                 `json:"rsi"`
	Bollinger     BandValues              `json:"bollinger"`
	BollWidth     float64                 `json:"boll_width"`
	BollWidthP20  float64                 `json:"boll_width_p20"`
	Keltner       BandValues              `json:"keltner"`
	Stochastic    StochValues             `json:"stochastic"`
	VolumeRatio   float64                 `json:"volume_ratio"`
	Patterns      indicators.PatternFlags `json:"patterns"`
	SqueezeOn     bool                    `json:"squeeze_on"`
	SqueezePrev   bool                    `json:"squeeze_prev"`
	LastBar       broker.Bar              `json:"last_bar"`
	Trend         TrendVerdict            `json:"trend"`
	LowConfidence bool                    `json:"low_confidence"`
	ComputedAt    time.Time               `json:"computed_at"`
}

// Consensus is the equal-weight majority vote across timeframes
type Consensus struct {
	Direction    TrendDirection `json:"direction"`
	Strength     float64        `json:"strength"`
	Agreement    float64        `json:"agreement"`
	BullishCount int            `json:"bullish_count"`
	BearishCount int            `json:"bearish_count"`
	NeutralCount int            `json:"neutral_count"`
}

// MultiFrame bundles the per-timeframe frames with their consensus; it
// is the unit strategies consume.
type MultiFrame struct {
	Symbol    string
	Frames    map[broker.Timeframe]*Frame
	Consensus *Consensus
}

// Frame returns the frame for a timeframe, or nil
func (m *MultiFrame) Frame(tf broker.Timeframe) *Frame {
	if m == nil {
		return nil
	}
	return m.Frames[tf]
}

type trendVote struct {
	name    string
	weight  float64
	bullish bool
}

// ComputeTrendVerdict runs the weighted vote over a frame's indicators.
// Direction requires at least 60% of the voted weight on one side;
// strength is ADX/100 when the ADX vote fired, otherwise the winning
// ratio.
func ComputeTrendVerdict(f *Frame) TrendVerdict {
	var votes []trendVote

	if f.EMA9 > f.EMA21 {
		votes = append(votes, trendVote{"ema9_above_ema21", 1, true})
	} else if f.EMA9 < f.EMA21 {
		votes = append(votes, trendVote{"ema9_below_ema21", 1, false})
	}
	if f.EMA21 > f.EMA50 {
		votes = append(votes, trendVote{"ema21_above_ema50", 1, true})
	} else if f.EMA21 < f.EMA50 {
		votes = append(votes, trendVote{"ema21_below_ema50", 1, false})
	}
	if f.RSI < 30 {
		votes = append(votes, trendVote{"rsi_oversold", 1, true})
	} else if f.RSI > 70 {
		votes = append(votes, trendVote{"rsi_overbought", 1, false})
	}
	if f.MACD.Line > f.MACD.Signal {
		votes = append(votes, trendVote{"macd_above_signal", 1, true})
	} else if f.MACD.Line < f.MACD.Signal {
		votes = append(votes, trendVote{"macd_below_signal", 1, false})
	}
	adxFired := false
	if f.ADX.ADX > 25 {
		adxFired = true
		if f.ADX.DIPlus > f.ADX.DIMinus {
			votes = append(votes, trendVote{"adx_trend_up", 2, true})
		} else {
			votes = append(votes, trendVote{"adx_trend_down", 2, false})
		}
	}
	if f.Bollinger.Middle > 0 {
		if f.CurrentPrice > f.Bollinger.Middle {
			votes = append(votes, trendVote{"price_above_bb_mid", 1, true})
		} else if f.CurrentPrice < f.Bollinger.Middle {
			votes = append(votes, trendVote{"price_below_bb_mid", 1, false})
		}
	}

	v := TrendVerdict{Direction: TrendNeutral}
	var bullWeight, bearWeight float64
	for _, vote := range votes {
		v.Signals = append(v.Signals, vote.name)
		if vote.bullish {
			bullWeight += vote.weight
		} else {
			bearWeight += vote.weight
		}
	}
	total := bullWeight + bearWeight
	if total == 0 {
		return v
	}

	winning := bullWeight
	dir := TrendBullish
	if bearWeight > bullWeight {
		winning = bearWeight
		dir = TrendBearish
	}
	ratio := winning / total
	v.Agreement = ratio
	if ratio >= 0.6 {
		v.Direction = dir
	}
	if adxFired {
		v.Strength = clamp01(f.ADX.ADX / 100)
	} else {
		v.Strength = ratio
	}
	return v
}

// ComputeConsensus takes the majority across timeframe verdicts with
// equal weights
func ComputeConsensus(frames map[broker.Timeframe]*Frame) *Consensus {
	c := &Consensus{Direction: TrendNeutral}
	var strengthSum float64
	voted := 0
	for _, f := range frames {
		if f == nil {
			continue
		}
		voted++
		strengthSum += f.Trend.Strength
		switch f.Trend.Direction {
		case TrendBullish:
			c.BullishCount++
		case TrendBearish:
			c.BearishCount++
		default:
			c.NeutralCount++
		}
	}
	if voted == 0 {
		return c
	}
	c.Strength = strengthSum / float64(voted)
	winner := c.NeutralCount
	if c.BullishCount > winner && c.BullishCount >= c.BearishCount {
		c.Direction = TrendBullish
		winner = c.BullishCount
	}
	if c.BearishCount > winner && c.BearishCount > c.BullishCount {
		c.Direction = TrendBearish
		winner = c.BearishCount
	}
	c.Agreement = float64(winner) / float64(voted)
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
