// Package session coordinates the analysis of one recording session:
// calibration, concurrent per-recording analysis and the session-level
// aggregates (VRP, phonation anchors, sustained vowel, speech flow).
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/voice-metrics/configs"
	"github.com/RyanBlaney/voice-metrics/internal/engine"
	"github.com/RyanBlaney/voice-metrics/internal/observe"
	"github.com/RyanBlaney/voice-metrics/pkg/logging"
	"github.com/RyanBlaney/voice-metrics/pkg/voice"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/anchor"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/ledger"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/scoring"
	"github.com/RyanBlaney/voice-metrics/pkg/voice/vrp"
)

// Orchestrator coordinates the analysis of a session
type Orchestrator struct {
	config  *configs.Config
	logger  logging.Logger
	metrics *observe.Metrics

	binner    *vrp.Binner
	extractor *anchor.Extractor
	phonation anchor.Selection
	sustained anchor.Selection

	// now is replaceable for deterministic run configs in tests
	now func() time.Time
}

// NewOrchestrator validates cfg and creates an orchestrator
func NewOrchestrator(cfg *configs.Config, logger logging.Logger, metrics *observe.Metrics) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if metrics == nil {
		metrics = observe.NewNopMetrics()
	}
	if err := configs.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	phonation, err := anchor.ParseSelection(cfg.Anchor.PhonationSelection)
	if err != nil {
		return nil, err
	}
	sustained, err := anchor.ParseSelection(cfg.Anchor.SustainedSelection)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		config:    cfg,
		logger:    logger,
		metrics:   metrics,
		binner:    vrp.NewBinner(cfg.EffectiveVRP(), logger),
		extractor: anchor.NewExtractor(cfg.Anchor.Config, logger),
		phonation: phonation,
		sustained: sustained,
		now:       time.Now,
	}, nil
}

// newEngine builds the per-recording engine; replayed frames skip the QC gate
func (o *Orchestrator) newEngine(logger logging.Logger, pregated bool) (*engine.Engine, error) {
	strategy, err := scoring.NewStrategy(o.config.EffectiveStrategy(), o.config.Envelope.ProminenceWindowHz)
	if err != nil {
		return nil, err
	}
	return engine.NewEngine(&engine.EngineConfig{
		QC:       o.config.QC,
		Envelope: o.config.Envelope,
		Ordering: o.config.Scoring.Ordering,
		Window:   o.config.Window,
		Strategy: strategy,
		Pregated: pregated,
		Logger:   logger,
		Metrics:  o.metrics,
	})
}

// Run analyzes one session. Unavailable aggregates are reported in the
// Report; only cancellation, a bad calibration or an unusable archived run
// config returns an error. A replayed ledger is analyzed with the constants
// archived in its run config, not the current configuration.
func (o *Orchestrator) Run(ctx context.Context, in *ledger.Input) (*Report, error) {
	if in.RunConfig == nil {
		return o.run(ctx, in)
	}
	replay, err := o.withRunConfig(in.RunConfig)
	if err != nil {
		return nil, err
	}
	return replay.run(ctx, in)
}

// withRunConfig returns an orchestrator using the constants archived in rc.
// Constants missing from rc keep their current values.
func (o *Orchestrator) withRunConfig(rc *ledger.RunConfig) (*Orchestrator, error) {
	params := o.config.RunParams()
	if err := rc.DecodeParams(&params); err != nil {
		return nil, voice.NewConfigurationError("archived run config is unusable", err)
	}
	replay, err := NewOrchestrator(o.config.WithRunParams(params), o.logger, o.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to apply archived run config: %w", err)
	}
	replay.now = o.now
	return replay, nil
}

func (o *Orchestrator) run(ctx context.Context, in *ledger.Input) (*Report, error) {
	startTime := time.Now()
	replay := in.RunConfig != nil

	logger := o.logger.WithFields(logging.Fields{
		"session_id": in.SessionID,
	})
	logger.Debug("Starting session analysis", logging.Fields{
		"recordings": len(in.Recordings),
		"replay":     replay,
		"pipeline":   o.config.Pipeline.Version,
	})

	if timeout := o.config.Session.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	recs := LimitPerStep(in.Recordings, o.config.Session.MaxRecordingsPerStep)
	if dropped := len(in.Recordings) - len(recs); dropped > 0 {
		logger.Warn("Recordings over the per-step limit were skipped", logging.Fields{
			"dropped": dropped,
			"limit":   o.config.Session.MaxRecordingsPerStep,
		})
	}

	calib, recs, err := o.calibrate(in, recs, logger)
	if err != nil {
		return nil, err
	}

	eng, err := o.newEngine(logger, replay)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	results, err := o.analyzeAll(ctx, eng, recs)
	if err != nil {
		return nil, err
	}

	gated := make([]*voice.Recording, len(recs))
	for i, res := range results {
		gated[i] = res.Recording(recs[i])
	}

	pipeline, _ := configs.ResolvePipeline(o.config.Pipeline.Version)
	report := &Report{
		SessionID:   in.SessionID,
		Pipeline:    pipeline,
		Strategy:    eng.Strategy(),
		Replayed:    replay,
		Calibration: calib,
		Recordings:  results,
		gated:       gated,
	}

	o.aggregate(ctx, report, gated)

	report.Questionnaires, err = ParseQuestionnaires(in.Questionnaires)
	if err != nil {
		logger.Warn("Questionnaires ignored", logging.Fields{"error": err.Error()})
	}

	if replay {
		report.RunConfig = in.RunConfig
	} else {
		report.RunConfig, err = ledger.NewRunConfig(o.now(), o.config.RunParams(), calib)
		if err != nil {
			return nil, err
		}
	}

	report.StartTime = startTime
	report.EndTime = time.Now()
	report.ProcessingTime = report.EndTime.Sub(startTime)

	logger.Info("Session analysis completed", logging.Fields{
		"recordings":    len(results),
		"vrp":           report.VRP.Status(),
		"soft_a":        report.Anchors.SoftA.Status(),
		"loud_a":        report.Anchors.LoudA.Status(),
		"processing_ms": report.ProcessingTime.Milliseconds(),
	})
	return report, nil
}

// calibrate returns the session calibration and copies of recs with SPL
// filled in. Replayed ledgers keep the calibration they were written with.
func (o *Orchestrator) calibrate(in *ledger.Input, recs []*voice.Recording, logger logging.Logger) (voice.Calibration, []*voice.Recording, error) {
	out := make([]*voice.Recording, len(recs))
	for i, r := range recs {
		c := *r
		c.Frames = make([]voice.Frame, len(r.Frames))
		for j, f := range r.Frames {
			c.Frames[j] = f.Clone()
		}
		out[i] = &c
	}

	if in.RunConfig != nil {
		return in.RunConfig.Calibration, out, nil
	}

	calib := o.config.BaseCalibration()
	if noise := firstOfTask(out, voice.TaskNoise); noise != nil {
		intensity := NoiseIntensity(noise)
		applied, err := calib.Apply(intensity)
		if err != nil {
			return calib, nil, err
		}
		calib = applied
		logger.Debug("Calibrated from noise recording", logging.Fields{
			"file":         noise.File(),
			"intensity_db": intensity,
			"offset_db":    calib.OffsetDB,
			"spl_kind":     calib.SPLKind,
		})
	} else {
		logger.Warn("No noise recording, SPL is uncalibrated")
	}

	for _, r := range out {
		r.ApplyCalibration(calib)
	}
	return calib, out, nil
}

// analyzeAll fans the recordings out over a bounded errgroup. Results are
// stored by index so their order never depends on scheduling.
func (o *Orchestrator) analyzeAll(ctx context.Context, eng *engine.Engine, recs []*voice.Recording) ([]*engine.RecordingResult, error) {
	results := make([]*engine.RecordingResult, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.config.Session.MaxConcurrency, 1))
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = eng.Analyze(gctx, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("session analysis aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("session analysis aborted: %w", err)
	}
	return results, nil
}

// aggregate fills the session-level summaries from the gated recordings
func (o *Orchestrator) aggregate(ctx context.Context, report *Report, gated []*voice.Recording) {
	var glide []voice.Frame
	for _, r := range gated {
		if r.ResolvedTask().IsGlide() {
			glide = append(glide, r.Frames...)
		}
	}
	report.VRP = o.binner.Result(glide)
	o.recordUnavailable(ctx, "vrp", report.VRP.Reason(), report.VRP.IsAvailable())

	report.Anchors.SoftA = o.extractor.Result(voice.TaskSoftA, gated, o.phonation)
	report.Anchors.LoudA = o.extractor.Result(voice.TaskLoudA, gated, o.phonation)
	o.recordUnavailable(ctx, "anchor_soft_a", report.Anchors.SoftA.Reason(), report.Anchors.SoftA.IsAvailable())
	o.recordUnavailable(ctx, "anchor_loud_a", report.Anchors.LoudA.Reason(), report.Anchors.LoudA.IsAvailable())
	report.FormantsLow = anchor.LegacyBlock(report.Anchors.SoftA)
	report.FormantsHigh = anchor.LegacyBlock(report.Anchors.LoudA)

	sustainedAnchor := o.extractor.Result(voice.TaskVowelMPT, gated, o.sustained)
	chosen := o.extractor.Choose(voice.TaskVowelMPT, gated, o.sustained)
	voiced := 0
	step := o.config.Params.TimeStep
	if chosen != nil {
		voiced = o.extractor.VoicedFrames(chosen)
		if chosen.TimeStep > 0 {
			step = chosen.TimeStep
		}
	}
	report.Sustained = sustainedOf(chosen, voiced, step, anchor.LegacyBlock(sustainedAnchor))
	report.Sustained.attachLegacy(report.FormantsLow, report.FormantsHigh)

	report.Reading = SpeechFlowOf(firstOfTask(gated, voice.TaskRead), o.config.Params.TimeStep)
	report.Spontaneous = SpeechFlowOf(firstOfTask(gated, voice.TaskFree), o.config.Params.TimeStep)
}

func (o *Orchestrator) recordUnavailable(ctx context.Context, component, reason string, available bool) {
	if !available {
		o.metrics.RecordUnavailable(ctx, component, reason)
	}
}

// LimitPerStep keeps at most limit recordings per step directory, in input
// order. Recordings whose key has no step directory are grouped by task.
func LimitPerStep(recs []*voice.Recording, limit int) []*voice.Recording {
	if limit <= 0 {
		return recs
	}
	counts := make(map[string]int)
	out := make([]*voice.Recording, 0, len(recs))
	for _, r := range recs {
		step := voice.StepOf(r.Key)
		if step == "" {
			step = "task:" + string(r.ResolvedTask())
		}
		if counts[step] >= limit {
			continue
		}
		counts[step]++
		out = append(out, r)
	}
	return out
}

// WriteLedger archives the gated frames and run configuration of report
// under dir/<session_id>/ and returns that directory
func WriteLedger(dir string, report *Report) (string, error) {
	sessionDir := dir
	if report.SessionID != "" {
		sessionDir = filepath.Join(dir, report.SessionID)
	}
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create ledger directory: %w", err)
	}

	if err := ledger.WriteFile(filepath.Join(sessionDir, ledger.FileName), report.gated, report.Calibration, report.RunConfig); err != nil {
		return "", fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := ledger.SaveRunConfig(filepath.Join(sessionDir, ledger.RunConfigFileName), report.RunConfig); err != nil {
		return "", fmt.Errorf("failed to write run config: %w", err)
	}
	return sessionDir, nil
}
