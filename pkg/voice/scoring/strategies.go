package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/envelope"
)

// Strategy names
const (
	StrategyProminence     = "prominence"
	StrategyLegacyMidpoint = "legacy_midpoint"
	StrategyHNRWeighted    = "hnr_weighted"
)

// DefaultStrategy is the production formula
const DefaultStrategy = StrategyProminence

type factory func(windowHz float64) Strategy

var strategies = map[string]factory{
	StrategyProminence: func(w float64) Strategy {
		return &weighted{name: StrategyProminence, windowHz: w, bandwidth: BandwidthScore}
	},
	StrategyLegacyMidpoint: func(w float64) Strategy {
		return &weighted{name: StrategyLegacyMidpoint, windowHz: w, bandwidth: MidpointBandwidthScore}
	},
	StrategyHNRWeighted: func(w float64) Strategy {
		return &hnrWeighted{windowHz: w}
	},
}

// NewStrategy looks up a strategy by name. windowHz is the prominence search half-width.
func NewStrategy(name string, windowHz float64) (Strategy, error) {
	f, ok := strategies[name]
	if !ok {
		return nil, voice.NewConfigurationError(
			fmt.Sprintf("unknown scoring strategy %q (available: %v)", name, StrategyNames()), nil)
	}
	return f(windowHz), nil
}

// StrategyNames lists the registered strategies
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for n := range strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// weighted is 0.6·prominence + 0.4·bandwidth − harmonic penalty
type weighted struct {
	name      string
	windowHz  float64
	bandwidth func(float64) float64
}

func (w *weighted) Name() string { return w.name }

func (w *weighted) Score(c Candidate, env *envelope.Envelope) Scored {
	promDB, promScore := measureProminence(c, env, w.windowHz)
	bw := w.bandwidth(c.BandwidthHz)
	penalty := HarmonicProximityPenalty(c.FrequencyHz, c.F0Hz, promDB)

	return Scored{
		Candidate:       c,
		Confidence:      clamp01(ProminenceWeight*promScore + BandwidthWeight*bw - penalty),
		ProminenceDB:    promDB,
		BandwidthScore:  bw,
		ProminenceScore: promScore,
		Penalty:         penalty,
	}
}

// hnrWeighted folds voicing quality in: 0.4·prominence + 0.3·bandwidth + 0.3·hnr
type hnrWeighted struct {
	windowHz float64
}

func (h *hnrWeighted) Name() string { return StrategyHNRWeighted }

// HNRScore ramps from 0 at 8 dB to 1 at 20 dB; unknown HNR is neutral
func HNRScore(hnrDB float64) float64 {
	if math.IsNaN(hnrDB) || math.IsInf(hnrDB, 0) {
		return NeutralProminence
	}
	return clamp01((hnrDB - 8) / 12)
}

func (h *hnrWeighted) Score(c Candidate, env *envelope.Envelope) Scored {
	promDB, promScore := measureProminence(c, env, h.windowHz)
	bw := BandwidthScore(c.BandwidthHz)
	penalty := HarmonicProximityPenalty(c.FrequencyHz, c.F0Hz, promDB)

	return Scored{
		Candidate:       c,
		Confidence:      clamp01(0.4*promScore + 0.3*bw + 0.3*HNRScore(c.HNRDB) - penalty),
		ProminenceDB:    promDB,
		BandwidthScore:  bw,
		ProminenceScore: promScore,
		Penalty:         penalty,
	}
}
