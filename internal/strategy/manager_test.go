package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-bot/internal/broker"
	"forex-trading-bot/internal/market"
)

// stubStrategy emits a fixed signal for manager tests
type stubStrategy struct {
	name    string
	enabled bool
	minConf float64
	signal  *Signal
}

func (s *stubStrategy) Name() string           { return s.name }
func (s *stubStrategy) Symbol() string         { return "EURUSD" }
func (s *stubStrategy) IsEnabled() bool        { return s.enabled }
func (s *stubStrategy) MinConfidence() float64 { return s.minConf }
func (s *stubStrategy) Analyze(in *Input) *Signal {
	if s.signal == nil {
		return Hold(s.name, "EURUSD", ReasonNoClearTrend)
	}
	cp := *s.signal
	cp.Strategy = s.name
	return &cp
}

func actionable(action Action, conf float64) *Signal {
	return &Signal{
		ID: "t", Symbol: "EURUSD", Action: action, Confidence: conf,
		Price: 1.1, Timeframe: broker.TimeframeM5, GeneratedAt: time.Now().UTC(),
	}
}

func sellOnlyContext() *market.Context {
	return &market.Context{
		Symbol:         "EURUSD",
		MacroDirection: market.StrongBearish,
		Regime:         market.RegimeStrongTrend,
		AllowedSides:   []broker.Side{broker.SideSell},
		RiskMultiplier: 1.2,
	}
}

func TestManagerDropsDisallowedDirection(t *testing.T) {
	m := NewManager(ManagerConfig{Mode: ModeBest}, []Strategy{
		&stubStrategy{name: "mean_reversion", enabled: true, minConf: 0.6, signal: actionable(ActionBuy, 0.8)},
		&stubStrategy{name: "trend_following", enabled: true, minConf: 0.6, signal: actionable(ActionSell, 0.78)},
	}, zerolog.Nop())

	ev := m.Evaluate(&Input{Symbol: "EURUSD", Market: sellOnlyContext()})
	if ev.Signal == nil || ev.Signal.Action != ActionSell {
		t.Fatalf("expected the SELL signal to win, got %+v", ev.Signal)
	}
	if len(ev.Rejected) != 1 {
		t.Fatalf("expected 1 rejected signal, got %d", len(ev.Rejected))
	}
	rej := ev.Rejected[0]
	if rej.Strategy != "mean_reversion" {
		t.Errorf("rejected the wrong strategy: %s", rej.Strategy)
	}
	found := false
	for _, r := range rej.Reasons {
		if r == ReasonDirectionNotAllowed {
			found = true
		}
	}
	if !found {
		t.Errorf("rejected signal should carry %q, got %v", ReasonDirectionNotAllowed, rej.Reasons)
	}
}

func TestManagerNoSignalWhenNoSidesAllowed(t *testing.T) {
	ctx := sellOnlyContext()
	ctx.AllowedSides = nil
	m := NewManager(DefaultManagerConfig(), []Strategy{
		&stubStrategy{name: "trend_following", enabled: true, minConf: 0.6, signal: actionable(ActionSell, 0.9)},
	}, zerolog.Nop())

	ev := m.Evaluate(&Input{Symbol: "EURUSD", Market: ctx})
	if ev.Signal != nil || len(ev.Emitted) != 0 {
		t.Fatalf("empty allowed sides must produce no signal, got %+v", ev.Signal)
	}
}

func TestManagerSkipsNonRecommendedStrategies(t *testing.T) {
	ctx := sellOnlyContext()
	ctx.RecommendedStrategies = []string{"trend_following"}
	ran := &stubStrategy{name: "trend_following", enabled: true, minConf: 0.6, signal: actionable(ActionSell, 0.7)}
	skipped := &stubStrategy{name: "scalping", enabled: true, minConf: 0.6, signal: actionable(ActionSell, 0.95)}

	m := NewManager(ManagerConfig{Mode: ModeBest}, []Strategy{ran, skipped}, zerolog.Nop())
	ev := m.Evaluate(&Input{Symbol: "EURUSD", Market: ctx})
	if ev.Signal == nil || ev.Signal.Strategy != "trend_following" {
		t.Fatalf("only the recommended strategy should run, got %+v", ev.Signal)
	}
}

func TestManagerBoostsRecommendedStrategy(t *testing.T) {
	ctx := sellOnlyContext()
	ctx.RecommendedStrategies = []string{"trend_following"}
	m := NewManager(ManagerConfig{Mode: ModeBest, RecommendedBoost: 1.1}, []Strategy{
		&stubStrategy{name: "trend_following", enabled: true, minConf: 0.6, signal: actionable(ActionSell, 0.7)},
	}, zerolog.Nop())

	ev := m.Evaluate(&Input{Symbol: "EURUSD", Market: ctx})
	if ev.Signal == nil {
		t.Fatal("expected a signal")
	}
	want := 0.7 * 1.1
	if diff := ev.Signal.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected boosted confidence %.3f, got %.3f", want, ev.Signal.Confidence)
	}
	if ev.Signal.RiskMultiplier != 1.2 {
		t.Errorf("context risk multiplier not attached: %v", ev.Signal.RiskMultiplier)
	}
}

func TestManagerConsensus(t *testing.T) {
	m := NewManager(DefaultManagerConfig(), []Strategy{
		&stubStrategy{name: "a", enabled: true, minConf: 0.5, signal: actionable(ActionSell, 0.8)},
		&stubStrategy{name: "b", enabled: true, minConf: 0.5, signal: actionable(ActionSell, 0.6)},
		&stubStrategy{name: "c", enabled: true, minConf: 0.5, signal: actionable(ActionBuy, 0.9)},
	}, zerolog.Nop())

	// sells are 2/3 >= 60%: consensus wins over the higher-confidence buy
	ev := m.Evaluate(&Input{Symbol: "EURUSD", Market: &market.Context{
		AllowedSides: []broker.Side{broker.SideBuy, broker.SideSell},
	}})
	if ev.Signal == nil || ev.Signal.Strategy != "consensus" {
		t.Fatalf("expected a consensus signal, got %+v", ev.Signal)
	}
	if ev.Signal.Action != ActionSell {
		t.Errorf("consensus should follow the majority, got %s", ev.Signal.Action)
	}
	want := (0.8 + 0.6) / 2
	if diff := ev.Signal.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("consensus confidence should average aligned votes: got %.3f want %.3f", ev.Signal.Confidence, want)
	}
}

func TestManagerConsensusFallsBackToBest(t *testing.T) {
	m := NewManager(DefaultManagerConfig(), []Strategy{
		&stubStrategy{name: "a", enabled: true, minConf: 0.5, signal: actionable(ActionSell, 0.7)},
		&stubStrategy{name: "b", enabled: true, minConf: 0.5, signal: actionable(ActionBuy, 0.9)},
	}, zerolog.Nop())

	ev := m.Evaluate(&Input{Symbol: "EURUSD", Market: &market.Context{
		AllowedSides: []broker.Side{broker.SideBuy, broker.SideSell},
	}})
	if ev.Signal == nil || ev.Signal.Action != ActionBuy || ev.Signal.Confidence != 0.9 {
		t.Fatalf("50/50 split should fall back to the best signal, got %+v", ev.Signal)
	}
}

func TestManagerHoldsBelowStrategyThreshold(t *testing.T) {
	m := NewManager(ManagerConfig{Mode: ModeBest}, []Strategy{
		&stubStrategy{name: "a", enabled: true, minConf: 0.8, signal: actionable(ActionSell, 0.7)},
	}, zerolog.Nop())

	ev := m.Evaluate(&Input{Symbol: "EURUSD", Market: sellOnlyContext()})
	if ev.Signal != nil {
		t.Fatalf("sub-threshold signal must not be selected, got %+v", ev.Signal)
	}
	if len(ev.Holds) != 1 {
		t.Errorf("expected the signal demoted to a hold, got %d holds", len(ev.Holds))
	}
}

func TestManagerSkipsDisabledStrategies(t *testing.T) {
	m := NewManager(ManagerConfig{Mode: ModeBest}, []Strategy{
		&stubStrategy{name: "a", enabled: false, minConf: 0.5, signal: actionable(ActionSell, 0.9)},
	}, zerolog.Nop())

	ev := m.Evaluate(&Input{Symbol: "EURUSD", Market: sellOnlyContext()})
	if ev.Signal != nil || len(ev.Emitted) != 0 {
		t.Fatal("disabled strategies must not run")
	}
}
