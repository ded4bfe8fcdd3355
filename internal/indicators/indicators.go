package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"forex-trading-bot/internal/broker"
)

// Series functions return a slice the same length as the input. Entries
// before the warmup period carry the running approximation and must not
// be consumed by callers; only the tail past period-1 is meaningful.

// Closes extracts the close series from bars
func Closes(bars []broker.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the volume series from bars
func Volumes(bars []broker.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// SMA computes a simple moving average series
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
			out[i] = sum / float64(period)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

// EMA computes an exponential moving average series seeded with the SMA
// of the first period values, smoothing 2/(period+1)
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}
	mult := 2.0 / float64(period+1)
	sum := 0.0
	for i, v := range values {
		if i < period {
			sum += v
			out[i] = sum / float64(i+1)
			continue
		}
		out[i] = v*mult + out[i-1]*(1-mult)
	}
	return out
}

// RSI computes the relative strength index with Wilder smoothing.
// Undefined (zero) for indices below period.
func RSI(bars []broker.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	if len(bars) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the three MACD series
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the MACD line as the fast/slow EMA difference and the
// signal line as a true EMA of the MACD series
func MACD(values []float64, fast, slow, signal int) *MACDResult {
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)
	line := make([]float64, len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMA(line, signal)
	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - signalLine[i]
	}
	return &MACDResult{Line: line, Signal: signalLine, Histogram: hist}
}

// BollingerResult holds the band series
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
	Width  []float64
}

// Bollinger computes an SMA midline with a population standard
// deviation envelope. Width is (upper-lower)/middle.
func Bollinger(values []float64, period int, mult float64) *BollingerResult {
	n := len(values)
	res := &BollingerResult{
		Upper:  make([]float64, n),
		Middle: SMA(values, period),
		Lower:  make([]float64, n),
		Width:  make([]float64, n),
	}
	for i := period - 1; i < n; i++ {
		window := values[i-period+1 : i+1]
		sd := stat.PopStdDev(window, nil)
		res.Upper[i] = res.Middle[i] + sd*mult
		res.Lower[i] = res.Middle[i] - sd*mult
		if res.Middle[i] != 0 {
			res.Width[i] = (res.Upper[i] - res.Lower[i]) / res.Middle[i]
		}
	}
	return res
}

// TrueRange computes the true range series
func TrueRange(bars []broker.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			out[i] = b.High - b.Low
			continue
		}
		prevClose := bars[i-1].Close
		out[i] = math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
	}
	return out
}

// ATR computes the average true range with Wilder smoothing
func ATR(bars []broker.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	if len(bars) < period+1 {
		return out
	}
	tr := TrueRange(bars)
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < len(bars); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// ADXResult holds the directional movement series
type ADXResult struct {
	ADX    []float64
	DIPlus []float64
	DIMinus []float64
}

// ADX computes the average directional index with Wilder smoothing,
// exposing DI+ and DI- alongside
func ADX(bars []broker.Bar, period int) *ADXResult {
	n := len(bars)
	res := &ADXResult{
		ADX:     make([]float64, n),
		DIPlus:  make([]float64, n),
		DIMinus: make([]float64, n),
	}
	if n < period*2 {
		return res
	}

	tr := TrueRange(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := make([]float64, n)
	setDI := func(i int) {
		if smTR == 0 {
			return
		}
		res.DIPlus[i] = 100 * smPlus / smTR
		res.DIMinus[i] = 100 * smMinus / smTR
		diSum := res.DIPlus[i] + res.DIMinus[i]
		if diSum > 0 {
			dx[i] = 100 * math.Abs(res.DIPlus[i]-res.DIMinus[i]) / diSum
		}
	}
	setDI(period)

	for i := period + 1; i < n; i++ {
		smTR = smTR - smTR/float64(period) + tr[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		setDI(i)
	}

	var adxSum float64
	for i := period; i < period*2; i++ {
		adxSum += dx[i]
	}
	res.ADX[period*2-1] = adxSum / float64(period)
	for i := period * 2; i < n; i++ {
		res.ADX[i] = (res.ADX[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return res
}

// StochasticResult holds the oscillator series
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic computes %K over kPeriod and %D as an SMA of %K.
// Values are always within [0, 100]; a flat window yields 50.
func Stochastic(bars []broker.Bar, kPeriod, dPeriod int) *StochasticResult {
	n := len(bars)
	res := &StochasticResult{K: make([]float64, n)}
	for i := range bars {
		start := i - kPeriod + 1
		if start < 0 {
			start = 0
		}
		hi, lo := bars[start].High, bars[start].Low
		for j := start + 1; j <= i; j++ {
			if bars[j].High > hi {
				hi = bars[j].High
			}
			if bars[j].Low < lo {
				lo = bars[j].Low
			}
		}
		if hi == lo {
			res.K[i] = 50
		} else {
			res.K[i] = (bars[i].Close - lo) / (hi - lo) * 100
		}
	}
	res.D = SMA(res.K, dPeriod)
	return res
}

// KeltnerResult holds the channel series
type KeltnerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Keltner computes an EMA midline with an ATR envelope
func Keltner(bars []broker.Bar, period int, atrMult float64) *KeltnerResult {
	closes := Closes(bars)
	mid := EMA(closes, period)
	atr := ATR(bars, period)
	n := len(bars)
	res := &KeltnerResult{Upper: make([]float64, n), Middle: mid, Lower: make([]float64, n)}
	for i := 0; i < n; i++ {
		res.Upper[i] = mid[i] + atr[i]*atrMult
		res.Lower[i] = mid[i] - atr[i]*atrMult
	}
	return res
}

// DonchianResult holds the rolling channel series
type DonchianResult struct {
	Upper []float64
	Lower []float64
}

// Donchian computes rolling max high / min low channels
func Donchian(bars []broker.Bar, period int) *DonchianResult {
	n := len(bars)
	res := &DonchianResult{Upper: make([]float64, n), Lower: make([]float64, n)}
	for i := range bars {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		hi, lo := bars[start].High, bars[start].Low
		for j := start + 1; j <= i; j++ {
			if bars[j].High > hi {
				hi = bars[j].High
			}
			if bars[j].Low < lo {
				lo = bars[j].Low
			}
		}
		res.Upper[i] = hi
		res.Lower[i] = lo
	}
	return res
}

// VolumeRatio returns the last bar's volume relative to the average of
// the preceding period bars
func VolumeRatio(bars []broker.Bar, period int) float64 {
	if len(bars) < 2 {
		return 1
	}
	hist := bars[:len(bars)-1]
	if len(hist) > period {
		hist = hist[len(hist)-period:]
	}
	sum := 0.0
	for _, b := range hist {
		sum += b.Volume
	}
	avg := sum / float64(len(hist))
	if avg == 0 {
		return 1
	}
	return bars[len(bars)-1].Volume / avg
}

// WidthPercentile returns the q quantile (0..1) of the tail of a band
// width series, skipping warmup zeros
func WidthPercentile(width []float64, lookback int, q float64) float64 {
	var tail []float64
	start := len(width) - lookback
	if start < 0 {
		start = 0
	}
	for _, w := range width[start:] {
		if w > 0 {
			tail = append(tail, w)
		}
	}
	if len(tail) == 0 {
		return 0
	}
	sorted := make([]float64, len(tail))
	copy(sorted, tail)
	sortFloats(sorted)
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}

func sortFloats(v []float64) {
	// insertion sort keeps this dependency-free for small windows
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// Sanitize replaces NaN/Inf with a fallback value
func Sanitize(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// Last returns the final element of a series, or fallback when empty
func Last(series []float64, fallback float64) float64 {
	if len(series) == 0 {
		return fallback
	}
	return Sanitize(series[len(series)-1], fallback)
}

// At returns series[len-1-offset], or fallback when out of range
func At(series []float64, offset int, fallback float64) float64 {
	idx := len(series) - 1 - offset
	if idx < 0 {
		return fallback
	}
	return Sanitize(series[idx], fallback)
}
