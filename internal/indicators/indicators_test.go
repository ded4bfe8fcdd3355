package indicators

import (
	"math"
	"testing"

	"forex-trading-bot/internal/broker"
)

func barsFromCloses(closes ...float64) []broker.Bar {
	out := make([]broker.Bar, len(closes))
	for i, c := range closes {
		out[i] = broker.Bar{Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 100}
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMASlidingWindow(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if !almostEqual(out[2], 2) {
		t.Errorf("SMA[2] = %v, want 2", out[2])
	}
	if !almostEqual(out[3], 3) {
		t.Errorf("SMA[3] = %v, want 3", out[3])
	}
	if !almostEqual(out[4], 4) {
		t.Errorf("SMA[4] = %v, want 4", out[4])
	}
}

func TestEMAConstantSeries(t *testing.T) {
	out := EMA([]float64{2, 2, 2, 2, 2, 2}, 3)
	for i, v := range out {
		if !almostEqual(v, 2) {
			t.Fatalf("EMA of a constant series must stay constant, got %v at %d", v, i)
		}
	}
}

func TestEMATracksTrend(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	out := EMA(values, 4)
	last := Last(out, 0)
	if last <= out[len(out)-2] {
		t.Errorf("EMA must rise with a rising series: %v then %v", out[len(out)-2], last)
	}
	if last >= 10 {
		t.Errorf("EMA must lag the raw series, got %v", last)
	}
}

func TestRSIExtremes(t *testing.T) {
	rising := barsFromCloses(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16)
	out := RSI(rising, 14)
	if got := Last(out, 50); !almostEqual(got, 100) {
		t.Errorf("RSI of a pure uptrend = %v, want 100", got)
	}

	flat := barsFromCloses(5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5)
	out = RSI(flat, 14)
	if got := Last(out, 0); !almostEqual(got, 50) {
		t.Errorf("RSI of a flat series = %v, want 50", got)
	}
}

func TestRSIShortSeriesIsZeroValued(t *testing.T) {
	out := RSI(barsFromCloses(1, 2, 3), 14)
	for _, v := range out {
		if v != 0 {
			t.Fatalf("RSI below warmup must stay zero, got %v", v)
		}
	}
}

func TestATRConstantRange(t *testing.T) {
	bars := barsFromCloses(5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5)
	out := ATR(bars, 14)
	if got := Last(out, 0); !almostEqual(got, 1) {
		t.Errorf("ATR with a fixed 1.0 bar range = %v, want 1", got)
	}
}

func TestBollingerConstantSeries(t *testing.T) {
	values := make([]float64, 25)
	for i := range values {
		values[i] = 4
	}
	res := Bollinger(values, 20, 2)
	last := len(values) - 1
	if !almostEqual(res.Upper[last], 4) || !almostEqual(res.Lower[last], 4) {
		t.Errorf("bands around a constant series must collapse, got [%v, %v]", res.Lower[last], res.Upper[last])
	}
	if !almostEqual(res.Width[last], 0) {
		t.Errorf("width of a constant series = %v, want 0", res.Width[last])
	}
}

func TestStochasticCloseAtHigh(t *testing.T) {
	bars := barsFromCloses(1, 2, 3, 4, 5)
	// close sits 0.5 below the bar high, so %K cannot reach 100 exactly;
	// pin the last close to its high instead
	bars[len(bars)-1].Close = bars[len(bars)-1].High
	res := Stochastic(bars, 5, 3)
	if got := Last(res.K, 0); !almostEqual(got, 100) {
		t.Errorf("close at the window high gives %%K = %v, want 100", got)
	}
}

func TestStochasticFlatWindow(t *testing.T) {
	bars := []broker.Bar{
		{High: 5, Low: 5, Close: 5},
		{High: 5, Low: 5, Close: 5},
		{High: 5, Low: 5, Close: 5},
	}
	res := Stochastic(bars, 3, 3)
	if got := Last(res.K, 0); !almostEqual(got, 50) {
		t.Errorf("flat window %%K = %v, want 50", got)
	}
}

func TestADXRisesInATrend(t *testing.T) {
	bars := make([]broker.Bar, 60)
	price := 100.0
	for i := range bars {
		price += 1.0
		bars[i] = broker.Bar{Open: price - 1, High: price + 0.2, Low: price - 1.2, Close: price, Volume: 100}
	}
	res := ADX(bars, 14)
	adx := Last(res.ADX, 0)
	if adx < 25 {
		t.Errorf("ADX in a persistent trend = %v, want >= 25", adx)
	}
	if Last(res.DIPlus, 0) <= Last(res.DIMinus, 0) {
		t.Errorf("uptrend must show DI+ > DI-: %v vs %v", Last(res.DIPlus, 0), Last(res.DIMinus, 0))
	}
}

func TestDonchianChannels(t *testing.T) {
	bars := barsFromCloses(1, 5, 3, 2, 4)
	res := Donchian(bars, 5)
	last := len(bars) - 1
	if !almostEqual(res.Upper[last], 5.5) {
		t.Errorf("upper channel = %v, want 5.5", res.Upper[last])
	}
	if !almostEqual(res.Lower[last], 0.5) {
		t.Errorf("lower channel = %v, want 0.5", res.Lower[last])
	}
}

func TestVolumeRatio(t *testing.T) {
	bars := barsFromCloses(1, 1, 1, 1)
	bars[len(bars)-1].Volume = 200
	if got := VolumeRatio(bars, 3); !almostEqual(got, 2) {
		t.Errorf("VolumeRatio = %v, want 2", got)
	}
	if got := VolumeRatio(bars[:1], 3); got != 1 {
		t.Errorf("single bar VolumeRatio = %v, want 1", got)
	}
}

func TestSeriesHelpers(t *testing.T) {
	if got := Last(nil, 42); got != 42 {
		t.Errorf("Last on empty = %v, want fallback", got)
	}
	if got := At([]float64{1, 2, 3}, 1, 0); got != 2 {
		t.Errorf("At offset 1 = %v, want 2", got)
	}
	if got := At([]float64{1}, 5, 7); got != 7 {
		t.Errorf("At out of range = %v, want fallback", got)
	}
	if got := Sanitize(math.NaN(), 9); got != 9 {
		t.Errorf("Sanitize(NaN) = %v, want fallback", got)
	}
}
