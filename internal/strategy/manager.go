package strategy

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"forex-trading-bot/internal/market"
)

// SelectionMode picks how the manager resolves competing signals
type SelectionMode string

const (
	// ModeBest returns the highest-confidence signal
	ModeBest SelectionMode = "best"
	// ModeConsensus emits a synthetic signal when enough strategies
	// agree, falling back to best
	ModeConsensus SelectionMode = "consensus"
)

// consensusThreshold is the fraction of emitted signals that must share
// a direction for a consensus signal
const consensusThreshold = 0.6

// ManagerConfig configures the strategy manager
type ManagerConfig struct {
	Mode SelectionMode
	// RecommendedBoost is the confidence multiplier for strategies the
	// market context recommends
	RecommendedBoost float64
}

// DefaultManagerConfig returns the standard settings
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{Mode: ModeConsensus, RecommendedBoost: 1.1}
}

// Evaluation is the full outcome of one manager pass, kept for event
// reporting alongside the chosen signal
type Evaluation struct {
	Signal   *Signal
	Emitted  []*Signal
	Rejected []*Signal
	Holds    []*Signal
}

// Manager owns the strategy set for one symbol and resolves their
// signals against the market context in three pure steps: select,
// evaluate, choose.
type Manager struct {
	cfg        ManagerConfig
	strategies []Strategy
	log        zerolog.Logger
}

// NewManager creates a manager over a strategy set
func NewManager(cfg ManagerConfig, strategies []Strategy, log zerolog.Logger) *Manager {
	if cfg.RecommendedBoost <= 0 {
		cfg.RecommendedBoost = 1.1
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeConsensus
	}
	return &Manager{
		cfg:        cfg,
		strategies: strategies,
		log:        log.With().Str("component", "strategy_manager").Logger(),
	}
}

// Strategies returns the managed set
func (m *Manager) Strategies() []Strategy {
	return m.strategies
}

// Evaluate runs the applicable strategies over the input and resolves a
// single signal. A nil Signal on the evaluation means no trade.
func (m *Manager) Evaluate(in *Input) *Evaluation {
	ev := &Evaluation{}
	if in.Market != nil && len(in.Market.AllowedSides) == 0 {
		return ev
	}

	for _, st := range m.selectStrategies(in.Market) {
		sig := st.Analyze(in)
		if sig == nil {
			continue
		}
		if !sig.IsActionable() {
			ev.Holds = append(ev.Holds, sig)
			continue
		}
		if sig.Confidence < st.MinConfidence() {
			sig.Action = ActionHold
			sig.Reasons = append(sig.Reasons, ReasonBelowMinConfidence)
			ev.Holds = append(ev.Holds, sig)
			continue
		}
		side, _ := sig.Action.Side()
		if in.Market != nil && !in.Market.Allows(side) {
			sig.Reasons = append(sig.Reasons, ReasonDirectionNotAllowed)
			ev.Rejected = append(ev.Rejected, sig)
			continue
		}
		m.attachContext(sig, in.Market)
		ev.Emitted = append(ev.Emitted, sig)
	}

	ev.Signal = m.choose(ev.Emitted)
	if ev.Signal != nil {
		m.log.Debug().Str("symbol", in.Symbol).
			Str("strategy", ev.Signal.Strategy).
			Str("action", string(ev.Signal.Action)).
			Float64("confidence", ev.Signal.Confidence).
			Msg("signal selected")
	}
	return ev
}

// selectStrategies filters to enabled strategies, honoring the market
// context's recommended set when it names one
func (m *Manager) selectStrategies(ctx *market.Context) []Strategy {
	var out []Strategy
	for _, st := range m.strategies {
		if !st.IsEnabled() {
			continue
		}
		if ctx != nil && len(ctx.RecommendedStrategies) > 0 && !ctx.Recommends(st.Name()) {
			continue
		}
		out = append(out, st)
	}
	return out
}

func (m *Manager) attachContext(sig *Signal, ctx *market.Context) {
	if ctx == nil {
		return
	}
	sig.RiskMultiplier = ctx.RiskMultiplier
	if ctx.Recommends(sig.Strategy) {
		sig.Confidence = clampConfidence(sig.Confidence * m.cfg.RecommendedBoost)
	}
}

// choose resolves the emitted signals per the configured mode
func (m *Manager) choose(emitted []*Signal) *Signal {
	if len(emitted) == 0 {
		return nil
	}
	best := emitted[0]
	for _, sig := range emitted[1:] {
		if sig.Confidence > best.Confidence {
			best = sig
		}
	}
	if m.cfg.Mode != ModeConsensus || len(emitted) < 2 {
		return best
	}

	buys, sells := 0, 0
	for _, sig := range emitted {
		if sig.Action == ActionBuy {
			buys++
		} else {
			sells++
		}
	}
	action, aligned := ActionBuy, buys
	if sells > buys {
		action, aligned = ActionSell, sells
	}
	if float64(aligned)/float64(len(emitted)) < consensusThreshold {
		return best
	}

	var sum float64
	template := best
	for _, sig := range emitted {
		if sig.Action != action {
			continue
		}
		sum += sig.Confidence
		if sig.Action == action && template.Action != action {
			template = sig
		}
	}
	out := *template
	out.ID = uuid.NewString()
	out.Strategy = "consensus"
	out.Action = action
	out.Confidence = clampConfidence(sum / float64(aligned))
	out.Reasons = []string{"consensus_vote"}
	return &out
}
