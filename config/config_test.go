package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
trading:
  symbols: [XAUUSD, EURUSD]
  tickInterval: 15s
risk:
  maxRiskPerTrade: 0.02
strategies:
  scalping:
    enabled: false
  trend_following:
    minConfidence: 0.7
    adxThreshold: 28
symbols:
  XAUUSD:
    tickInterval: 10s
    spreadThreshold: 4.0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Trading.Symbols) != 2 || cfg.Trading.Symbols[0] != "XAUUSD" {
		t.Errorf("symbols not parsed: %v", cfg.Trading.Symbols)
	}
	if cfg.Trading.TickInterval != 15*time.Second {
		t.Errorf("tick interval override lost: %v", cfg.Trading.TickInterval)
	}
	if cfg.Risk.MaxRiskPerTrade != 0.02 {
		t.Errorf("risk override lost: %v", cfg.Risk.MaxRiskPerTrade)
	}
	// untouched defaults survive
	if cfg.Risk.StopLossPips != 30 || cfg.Risk.BreakEvenTrigger != 15 {
		t.Errorf("defaults clobbered: %+v", cfg.Risk)
	}
	if cfg.StrategyEnabled("scalping") {
		t.Error("scalping should be disabled")
	}
	if !cfg.StrategyEnabled("trend_following") {
		t.Error("strategies default to enabled")
	}
	if cfg.StrategyEnabled("catamilho") {
		t.Error("catamilho is opt-in")
	}
	if got := cfg.StrategyParam("trend_following", "adxThreshold", 25); got != 28 {
		t.Errorf("inline strategy param lost: %v", got)
	}
	if got := cfg.StrategyParam("trend_following", "missing", 5); got != 5 {
		t.Errorf("param fallback broken: %v", got)
	}
	if ov := cfg.Symbols["XAUUSD"]; ov.TickInterval != 10*time.Second || ov.SpreadThreshold != 4.0 {
		t.Errorf("symbol overrides lost: %+v", ov)
	}
}

func TestLoadSubstitutesEnvironment(t *testing.T) {
	t.Setenv("FX_DB_PASSWORD", "hunter2")
	path := writeConfig(t, `
trading:
  symbols: [EURUSD]
database:
  enabled: true
  host: localhost
  user: fxbot
  password: ${FX_DB_PASSWORD}
  database: fxbot
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Password != "hunter2" {
		t.Errorf("env substitution failed: %q", cfg.Database.Password)
	}
}

func TestLoadRejectsInvalidRisk(t *testing.T) {
	path := writeConfig(t, `
trading:
  symbols: [EURUSD]
risk:
  maxRiskPerTrade: 0.5
`)
	if _, err := Load(path); err == nil {
		t.Fatal("a 50% per-trade risk must fail validation")
	}
}

func TestLoadRejectsEmptySymbols(t *testing.T) {
	path := writeConfig(t, `
trading:
  symbols: []
`)
	if _, err := Load(path); err == nil {
		t.Fatal("empty symbol list must fail validation")
	}
}
