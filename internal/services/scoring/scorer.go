package scoring

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"WhalePulse/internal/domain/models"
)

// Config holds the rule thresholds and price-derivation knobs for the
// scorer. Zero values are replaced by defaults in New.
type Config struct {
	// Decision table thresholds.
	LowSentiment    float64 // below this, social is "quiet" (early accumulation)
	HighSentiment   float64 // above this, social is "hot" (fomo territory)
	VelocityRising  float64 // minimum velocity counted as "rising"
	AccumulationUSD float64 // net flow needed for a contrarian play

	// Confidence shaping.
	FlowScaleUSD        float64 // net flow mapped through tanh(flow/scale)
	MinConfidence       float64 // emission filter, below it no signal
	MaxConfidence       float64 // hard ceiling
	DisagreementCeiling float64 // cap when whale and sentiment disagree

	// Target/stop derivation.
	TargetMultiplier float64 // target distance in expected moves
	StopMultiplier   float64 // stop distance in expected moves
	MinExpectedMove  float64 // floor on the fractional expected move
}

func (c Config) withDefaults() Config {
	if c.LowSentiment == 0 {
		c.LowSentiment = 0.2
	}
	if c.HighSentiment == 0 {
		c.HighSentiment = 0.5
	}
	if c.VelocityRising == 0 {
		c.VelocityRising = 0.05
	}
	if c.AccumulationUSD == 0 {
		c.AccumulationUSD = 250_000
	}
	if c.FlowScaleUSD == 0 {
		c.FlowScaleUSD = 500_000
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.55
	}
	if c.MaxConfidence == 0 {
		c.MaxConfidence = 0.95
	}
	if c.DisagreementCeiling == 0 {
		c.DisagreementCeiling = 0.7
	}
	if c.TargetMultiplier == 0 {
		c.TargetMultiplier = 2.0
	}
	if c.StopMultiplier == 0 {
		c.StopMultiplier = 1.0
	}
	if c.MinExpectedMove == 0 {
		c.MinExpectedMove = 0.005
	}
	return c
}

// Scorer applies the fusion decision table to feature vectors. Signal IDs
// are assigned from an atomic counter so ordering is global across assets.
type Scorer struct {
	cfg    Config
	lastID atomic.Uint64
	now    func() time.Time
}

func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg.withDefaults(), now: time.Now}
}

// Seed moves the ID counter past previously persisted signals.
func (s *Scorer) Seed(lastID uint64) {
	for {
		cur := s.lastID.Load()
		if cur >= lastID || s.lastID.CompareAndSwap(cur, lastID) {
			return
		}
	}
}

// Score classifies a feature vector into at most one signal. A nil result
// means no rule matched or confidence fell under the emission threshold;
// that is the noise filter, not an error. volatility is the expected
// fractional move per window supplied by the price history.
func (s *Scorer) Score(v models.FeatureVector, entryPrice, volatility float64) *models.Signal {
	if entryPrice <= 0 {
		return nil
	}

	kind, action, reasoning := s.classify(v)
	if action == models.ActionHold {
		return nil
	}

	confidence := s.confidence(v)
	if confidence < s.cfg.MinConfidence {
		return nil
	}

	sig := &models.Signal{
		ID:         s.lastID.Add(1),
		Asset:      v.Asset,
		Kind:       kind,
		Action:     action,
		Confidence: confidence,
		RiskScore:  s.riskScore(v, kind, volatility),
		EntryPrice: entryPrice,
		Reasoning:  reasoning,
		CreatedAt:  s.now(),
	}
	sig.TargetPrice, sig.StopPrice = s.targetStop(action, entryPrice, volatility)
	return sig
}

// classify walks the decision table; the most specific matching rule wins.
// Contrarian is checked first: its condition is a subset of early
// accumulation's, and a negative crowd against heavy buying is the stronger
// read.
func (s *Scorer) classify(v models.FeatureVector) (models.SignalKind, models.SignalAction, string) {
	switch {
	case v.SentimentScore < 0 && v.WhaleNetFlowUSD > s.cfg.AccumulationUSD:
		return models.KindContrarianPlay, models.ActionBuy, fmt.Sprintf(
			"crowd negative on %s (%.2f) against %.0f USD whale accumulation",
			v.Asset, v.SentimentScore, v.WhaleNetFlowUSD)
	case v.WhaleNetFlowUSD > 0 && v.SentimentScore < s.cfg.LowSentiment:
		return models.KindEarlyAccumulation, models.ActionBuy, fmt.Sprintf(
			"whales accumulated %.0f USD into %s while social noise stayed low (%.2f)",
			v.WhaleNetFlowUSD, v.Asset, v.SentimentScore)
	case v.SentimentVelocity > s.cfg.VelocityRising && v.WhaleNetFlowUSD > 0:
		return models.KindMomentumBuild, models.ActionBuy, fmt.Sprintf(
			"sentiment on %s rising (%.2f/window) with %.0f USD whale backing",
			v.Asset, v.SentimentVelocity, v.WhaleNetFlowUSD)
	case v.SentimentScore > s.cfg.HighSentiment && v.WhaleNetFlowUSD < 0:
		return models.KindFOMOWarning, models.ActionSell, fmt.Sprintf(
			"social buzz on %s peaking (%.2f) while whales distributed %.0f USD",
			v.Asset, v.SentimentScore, -v.WhaleNetFlowUSD)
	}
	return "", models.ActionHold, ""
}

// confidence is a bounded composite of the two sub-scores' magnitude and
// agreement. When the sources point in opposite directions the result is
// capped below the configured ceiling.
func (s *Scorer) confidence(v models.FeatureVector) float64 {
	whale := math.Tanh(v.WhaleNetFlowUSD / s.cfg.FlowScaleUSD) // [-1, 1]
	sent := v.SentimentScore                                   // [-1, 1]

	conf := 0.45 + 0.3*math.Abs(whale) + 0.15*math.Abs(sent) + 0.1*v.WhaleUrgency

	if whale*sent < 0 && conf > s.cfg.DisagreementCeiling {
		conf = s.cfg.DisagreementCeiling
	}
	return math.Min(conf, s.cfg.MaxConfidence)
}

func (s *Scorer) riskScore(v models.FeatureVector, kind models.SignalKind, volatility float64) float64 {
	switch kind {
	case models.KindFOMOWarning:
		return 0.8
	case models.KindContrarianPlay:
		return 0.7
	}
	risk := 0.3 + 0.3*v.WhaleImpact + math.Min(0.3, volatility*10)
	return math.Min(risk, 1)
}

// targetStop derives exit prices from the expected move per window.
func (s *Scorer) targetStop(action models.SignalAction, entry, volatility float64) (target, stop float64) {
	move := entry * math.Max(volatility, s.cfg.MinExpectedMove)
	if action == models.ActionSell {
		return entry - s.cfg.TargetMultiplier*move, entry + s.cfg.StopMultiplier*move
	}
	return entry + s.cfg.TargetMultiplier*move, entry - s.cfg.StopMultiplier*move
}
