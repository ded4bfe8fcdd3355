package indicators

import "forex-trading-bot/internal/broker"

// PatternFlags marks candle patterns detected on the last bar
type PatternFlags struct {
	Doji             bool `json:"doji"`
	Hammer           bool `json:"hammer"`
	InvertedHammer   bool `json:"inverted_hammer"`
	ShootingStar     bool `json:"shooting_star"`
	EngulfingBullish bool `json:"engulfing_bullish"`
	EngulfingBearish bool `json:"engulfing_bearish"`
	MorningStar      bool `json:"morning_star"`
	EveningStar      bool `json:"evening_star"`
	PinBarBullish    bool `json:"pin_bar_bullish"`
	PinBarBearish    bool `json:"pin_bar_bearish"`
}

// AnyBullish reports whether any bullish reversal pattern is present
func (p PatternFlags) AnyBullish() bool {
	return p.Hammer || p.InvertedHammer || p.EngulfingBullish || p.MorningStar || p.PinBarBullish
}

// AnyBearish reports whether any bearish reversal pattern is present
func (p PatternFlags) AnyBearish() bool {
	return p.ShootingStar || p.EngulfingBearish || p.EveningStar || p.PinBarBearish
}

type candleAnatomy struct {
	body       float64
	upperWick  float64
	lowerWick  float64
	totalRange float64
	bullish    bool
}

func anatomy(b broker.Bar) candleAnatomy {
	body := b.Close - b.Open
	a := candleAnatomy{bullish: body >= 0}
	if body < 0 {
		body = -body
	}
	a.body = body
	hi, lo := b.Open, b.Close
	if b.Close > b.Open {
		hi, lo = b.Close, b.Open
	}
	a.upperWick = b.High - hi
	a.lowerWick = lo - b.Low
	a.totalRange = b.High - b.Low
	return a
}

// DetectPatterns evaluates all candle patterns on the last bar
func DetectPatterns(bars []broker.Bar) PatternFlags {
	var f PatternFlags
	if len(bars) == 0 {
		return f
	}
	last := bars[len(bars)-1]
	f.Doji = IsDoji(last)
	f.Hammer = IsHammer(last)
	f.InvertedHammer = IsInvertedHammer(last)
	f.ShootingStar = IsShootingStar(last)
	f.PinBarBullish = IsBullishPinBar(last)
	f.PinBarBearish = IsBearishPinBar(last)
	if len(bars) >= 2 {
		f.EngulfingBullish = IsBullishEngulfing(bars[len(bars)-2], last)
		f.EngulfingBearish = IsBearishEngulfing(bars[len(bars)-2], last)
	}
	if len(bars) >= 3 {
		f.MorningStar = IsMorningStar(bars[len(bars)-3], bars[len(bars)-2], last)
		f.EveningStar = IsEveningStar(bars[len(bars)-3], bars[len(bars)-2], last)
	}
	return f
}

// IsDoji reports a candle whose body is at most 10% of its range
func IsDoji(b broker.Bar) bool {
	a := anatomy(b)
	return a.totalRange > 0 && a.body <= a.totalRange*0.1
}

// IsHammer reports a lower wick at least twice the body with a small
// upper wick
func IsHammer(b broker.Bar) bool {
	a := anatomy(b)
	if a.totalRange == 0 || a.body == 0 {
		return false
	}
	return a.lowerWick >= a.body*2 && a.upperWick <= a.body*0.5
}

// IsInvertedHammer mirrors the hammer: long upper wick, small lower wick
func IsInvertedHammer(b broker.Bar) bool {
	a := anatomy(b)
	if a.totalRange == 0 || a.body == 0 {
		return false
	}
	return a.upperWick >= a.body*2 && a.lowerWick <= a.body*0.5
}

// IsShootingStar is an inverted hammer closing bearish
func IsShootingStar(b broker.Bar) bool {
	a := anatomy(b)
	return IsInvertedHammer(b) && !a.bullish
}

// IsBullishEngulfing reports a bullish body fully engulfing the
// previous bearish body
func IsBullishEngulfing(prev, cur broker.Bar) bool {
	return prev.Close < prev.Open &&
		cur.Close > cur.Open &&
		cur.Open <= prev.Close &&
		cur.Close >= prev.Open
}

// IsBearishEngulfing mirrors the bullish case
func IsBearishEngulfing(prev, cur broker.Bar) bool {
	return prev.Close > prev.Open &&
		cur.Close < cur.Open &&
		cur.Open >= prev.Close &&
		cur.Close <= prev.Open
}

// IsMorningStar reports a bearish candle, a small-bodied middle candle
// and a bullish close above the midpoint of the first body
func IsMorningStar(first, mid, last broker.Bar) bool {
	fa, ma := anatomy(first), anatomy(mid)
	if fa.bullish || fa.body == 0 {
		return false
	}
	if ma.body > fa.body*0.5 {
		return false
	}
	la := anatomy(last)
	midpoint := (first.Open + first.Close) / 2
	return la.bullish && last.Close > midpoint
}

// IsEveningStar mirrors the morning star
func IsEveningStar(first, mid, last broker.Bar) bool {
	fa, ma := anatomy(first), anatomy(mid)
	if !fa.bullish || fa.body == 0 {
		return false
	}
	if ma.body > fa.body*0.5 {
		return false
	}
	la := anatomy(last)
	midpoint := (first.Open + first.Close) / 2
	return !la.bullish && last.Close < midpoint
}

// IsBullishPinBar reports a lower wick of at least two thirds of the
// range with the body in the upper third
func IsBullishPinBar(b broker.Bar) bool {
	a := anatomy(b)
	if a.totalRange == 0 {
		return false
	}
	bodyTop := b.Open
	if b.Close > b.Open {
		bodyTop = b.Close
	}
	return a.lowerWick >= a.totalRange*2/3 && bodyTop >= b.High-a.totalRange/3
}

// IsBearishPinBar mirrors the bullish pin bar
func IsBearishPinBar(b broker.Bar) bool {
	a := anatomy(b)
	if a.totalRange == 0 {
		return false
	}
	bodyBottom := b.Open
	if b.Close < b.Open {
		bodyBottom = b.Close
	}
	return a.upperWick >= a.totalRange*2/3 && bodyBottom <= b.Low+a.totalRange/3
}
