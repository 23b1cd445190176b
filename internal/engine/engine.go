// Package engine runs the per-recording analysis pipeline: QC gating,
// spectral envelopes per voiced segment, confidence scoring, ordering
// penalties and window selection.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/RyanBlaney/voice-metrics/internal/observe"
	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/envelope"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/qc"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/scoring"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/stats"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/window"
)

// Engine analyzes recordings. It holds no per-recording state and is safe
// for concurrent use; each Analyze call builds its own QC gate.
type Engine struct {
	logger  logging.Logger
	metrics *observe.Metrics

	qcConfig  qc.Config
	estimator *envelope.Estimator
	scorer    *scoring.Scorer
	validator *scoring.Validator
	selector  *window.Selector
	pregated  bool
}

// EngineConfig contains the constants and collaborators for the engine
type EngineConfig struct {
	QC       qc.Config
	Envelope envelope.Config
	Ordering scoring.OrderingRules
	Window   window.Config

	// Strategy scores formant candidates; nil selects the default strategy
	Strategy scoring.Strategy

	// Pregated skips the QC gate for frames that were gated when archived
	Pregated bool

	Logger  logging.Logger
	Metrics *observe.Metrics
}

// NewEngine creates an engine
func NewEngine(config *EngineConfig) (*Engine, error) {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = observe.NewNopMetrics()
	}

	strategy := config.Strategy
	if strategy == nil {
		var err error
		strategy, err = scoring.NewStrategy(scoring.DefaultStrategy, config.Envelope.ProminenceWindowHz)
		if err != nil {
			return nil, fmt.Errorf("failed to create default scoring strategy: %w", err)
		}
	}

	return &Engine{
		logger:    logger,
		metrics:   metrics,
		qcConfig:  config.QC,
		estimator: envelope.NewEstimator(config.Envelope, logger),
		scorer:    scoring.NewScorer(strategy, logger),
		validator: scoring.NewValidator(config.Ordering, logger),
		selector:  window.NewSelector(config.Window, logger),
		pregated:  config.Pregated,
	}, nil
}

// Strategy returns the name of the active scoring strategy
func (e *Engine) Strategy() string {
	return e.scorer.Strategy().Name()
}

// Gate runs the QC gate over rec, or copies the frames when the engine is pregated
func (e *Engine) Gate(rec *voice.Recording) []voice.Frame {
	if e.pregated {
		out := voice.SortedByTime(rec.Frames)
		for i, f := range out {
			out[i] = f.Clone()
		}
		return out
	}
	return qc.Run(e.qcConfig, rec.Frames, e.logger)
}

// Analyze runs the full pipeline over one recording. A recording without
// voiced frames yields an unavailable summary, never an error.
func (e *Engine) Analyze(ctx context.Context, rec *voice.Recording) *RecordingResult {
	task := rec.ResolvedTask()
	logger := e.logger.WithFields(logging.Fields{
		"function": "Analyze",
		"file":     rec.File(),
		"task":     task,
	})

	done := e.metrics.StartRecording(ctx, string(task))
	defer done()
	start := time.Now()

	result := &RecordingResult{
		File:       rec.File(),
		Task:       task,
		FrameCount: len(rec.Frames),
	}

	result.Gated = e.Gate(rec)
	result.FlagCounts = qc.CountFlags(result.Gated)
	e.metrics.RecordFrames(ctx, string(task), len(result.Gated))

	var f0 []float64
	for _, f := range result.Gated {
		if f.Voiced() {
			f0 = append(f0, f.F0)
		}
	}
	result.VoicedCount = len(f0)
	result.Params = envelope.PickParams(stats.Median(f0), e.estimator.Config())

	if result.VoicedCount == 0 {
		result.Summary = voice.Unavailable[window.Summary](voice.ReasonNoVoicedFrames)
		result.ProcessingTime = time.Since(start)
		e.metrics.RecordFlags(ctx, result.FlagCounts)
		e.metrics.RecordUnavailable(ctx, "window", voice.ReasonNoVoicedFrames)
		logger.Warn("Recording has no voiced frames", logging.Fields{
			"frames": len(rec.Frames),
		})
		return result
	}

	result.Scored, result.EnvelopeSegments = e.score(rec, result.Gated, result.Params.LifterMS)
	for _, sf := range result.Scored {
		for _, fl := range sf.Scores.Flags {
			result.FlagCounts[fl]++
		}
	}
	e.metrics.RecordFlags(ctx, result.FlagCounts)

	stable, ok := e.selector.Stable(result.Scored)
	summary := e.selector.Select(stable)
	if sum, available := summary.Get(); available {
		sum.Unstable = !ok
		summary = voice.Available(sum)
		if sum.Fallback {
			e.metrics.RecordFallback(ctx, string(task))
		}
	} else {
		e.metrics.RecordUnavailable(ctx, "window", summary.Reason())
	}
	result.Summary = summary
	result.ProcessingTime = time.Since(start)

	logger.Debug("Recording analyzed", logging.Fields{
		"frames":            result.FrameCount,
		"voiced":            result.VoicedCount,
		"stable":            len(stable),
		"envelope_segments": result.EnvelopeSegments,
		"status":            summary.Status(),
		"processing_ms":     result.ProcessingTime.Milliseconds(),
	})
	return result
}

// score computes one envelope per voiced segment and scores every frame of
// the segment against it. The measured prominence is stored on the gated
// frame so the ledger can archive it. Segments without audio score with the
// recorded prominence, or a neutral one.
func (e *Engine) score(rec *voice.Recording, gated []voice.Frame, lifterMS float64) ([]window.ScoredFrame, int) {
	var scored []window.ScoredFrame
	envelopes := 0

	for _, seg := range voice.VoicedSegments(gated) {
		env := e.segmentEnvelope(rec, gated, seg, lifterMS)
		if env != nil {
			envelopes++
		}
		for i := seg.Start; i < seg.End; i++ {
			fs := e.scorer.ScoreFrame(gated[i], env)
			if env != nil {
				gated[i].ProminenceDB = fs.ProminenceDB()
			}
			e.validator.Apply(&fs)
			scored = append(scored, window.ScoredFrame{Frame: gated[i], Scores: fs})
		}
	}
	return scored, envelopes
}

func (e *Engine) segmentEnvelope(rec *voice.Recording, gated []voice.Frame, seg voice.Segment, lifterMS float64) *envelope.Envelope {
	if len(rec.Samples) == 0 || rec.SampleRate <= 0 {
		return nil
	}

	startS := gated[seg.Start].Time
	endS := gated[seg.End-1].Time + rec.TimeStep
	if endS-startS < e.estimator.Config().MinSegmentS {
		return nil
	}

	from := int(math.Floor(startS * rec.SampleRate))
	to := int(math.Ceil(endS * rec.SampleRate))
	from = max(from, 0)
	to = min(to, len(rec.Samples))
	if to <= from {
		return nil
	}
	return e.estimator.Estimate(rec.Samples[from:to], rec.SampleRate, lifterMS)
}
