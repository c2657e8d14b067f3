// Package resolver is the pipeline facade: it fetches a tree snapshot,
// collects and scores candidates for a fingerprint, normalizes them
// into tap targets and hands them to the executor under a selection
// policy.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/tapresolver/pkg/collector"
	"github.com/devicelab-dev/tapresolver/pkg/config"
	"github.com/devicelab-dev/tapresolver/pkg/core"
	"github.com/devicelab-dev/tapresolver/pkg/device"
	"github.com/devicelab-dev/tapresolver/pkg/executor"
	"github.com/devicelab-dev/tapresolver/pkg/fingerprint"
	"github.com/devicelab-dev/tapresolver/pkg/normalizer"
	"github.com/devicelab-dev/tapresolver/pkg/pathgen"
	"github.com/devicelab-dev/tapresolver/pkg/scorer"
	"github.com/devicelab-dev/tapresolver/pkg/uitree"
)

// Resolver owns the per-process pipeline components. It is safe for
// concurrent use across device sessions; the only cross-session state
// is the path generator's confidence store, which locks internally.
type Resolver struct {
	transport device.Transport
	cfg       *config.Config
	scorer    *scorer.Scorer
	norm      *normalizer.Normalizer
	gen       *pathgen.Generator
	log       zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithGenerator injects a path generator (and thus a confidence
// store); tests use this for isolated, deterministic instances.
func WithGenerator(gen *pathgen.Generator) Option {
	return func(r *Resolver) { r.gen = gen }
}

// New creates a resolver. A nil cfg uses defaults.
func New(transport device.Transport, cfg *config.Config, opts ...Option) *Resolver {
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Resolver{
		transport: transport,
		cfg:       cfg,
		scorer:    scorer.New(scorer.WithWeights(cfg.Weights), scorer.WithMinScore(cfg.MinScore)),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.gen == nil {
		r.gen = pathgen.NewGenerator(nil)
	}
	r.norm = normalizer.New(cfg.Normalizer, r.log)
	return r
}

// Generator exposes the path generator for diagnostics and feedback.
func (r *Resolver) Generator() *pathgen.Generator { return r.gen }

// ResolveAndAct runs the full pipeline for one fingerprint and executes
// taps under the policy. The returned result is valid even when an
// error is also returned (partial batch, cancellation).
func (r *Resolver) ResolveAndAct(ctx context.Context, sessionID string, fp *fingerprint.Fingerprint, policy executor.Policy) (*executor.Result, error) {
	if err := fp.Validate(); err != nil {
		return nil, err
	}

	ex := r.newExecutor(sessionID)
	batchMode := policy.Kind == executor.PolicyAll

	// One snapshot feeds both the confidence gate and target
	// resolution, so the gate decision and the acted-on targets never
	// diverge on a mutating screen.
	tree, err := r.fetchTree(ctx, ex)
	if err != nil {
		r.recordOutcome(fp, false)
		return nil, err
	}

	// Strict single-target matching gets the scorer's full failure
	// analysis (reasons, opposite-state detection) up front.
	if policy.Kind == executor.PolicyMatchBest && !policy.FallbackToFirst {
		if _, err := r.gateBest(tree, fp, batchMode); err != nil {
			r.recordOutcome(fp, false)
			return nil, err
		}
	}

	targets, err := r.targetsFromTree(tree, fp, batchMode)
	if err != nil {
		r.recordOutcome(fp, false)
		return nil, err
	}

	resolve := func(ctx context.Context) ([]executor.Target, error) {
		return r.resolveTargets(ctx, ex, fp, batchMode)
	}

	res, err := ex.Execute(ctx, targets, policy, resolve)
	r.recordOutcome(fp, err == nil && res != nil && res.Success)
	return res, err
}

// Explain performs resolution without tapping and returns every scored
// candidate, best first.
func (r *Resolver) Explain(ctx context.Context, sessionID string, fp *fingerprint.Fingerprint) ([]scorer.ScoredCandidate, error) {
	if err := fp.Validate(); err != nil {
		return nil, err
	}

	ex := r.newExecutor(sessionID)
	tree, err := r.fetchTree(ctx, ex)
	if err != nil {
		return nil, err
	}

	cands, strategy := collector.Collect(tree, fp)
	r.log.Debug().Str("strategy", string(strategy)).Int("candidates", len(cands)).Msg("collected")
	return r.scorer.Score(cands, fp), nil
}

// Paths generates ranked locator candidates for a fingerprint without
// touching the device.
func (r *Resolver) Paths(fp *fingerprint.Fingerprint) ([]pathgen.PathCandidate, error) {
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	return r.gen.Generate(fp, 0), nil
}

func (r *Resolver) newExecutor(sessionID string) *executor.Executor {
	opts := []executor.Option{executor.WithLogger(r.log)}
	if r.cfg.TapsPerMinute > 0 {
		opts = append(opts, executor.WithRateLimit(r.cfg.TapsPerMinute/60, 1))
	}
	return executor.New(r.transport, sessionID, opts...)
}

func (r *Resolver) fetchTree(ctx context.Context, ex *executor.Executor) (*uitree.Tree, error) {
	xml, err := ex.FetchTree(ctx)
	if err != nil {
		return nil, err
	}
	return uitree.Parse(xml)
}

// resolveTargets fetches a fresh snapshot and resolves targets from it;
// the executor's refresh policy calls this mid-batch.
func (r *Resolver) resolveTargets(ctx context.Context, ex *executor.Executor, fp *fingerprint.Fingerprint, batchMode bool) ([]executor.Target, error) {
	tree, err := r.fetchTree(ctx, ex)
	if err != nil {
		return nil, err
	}
	return r.targetsFromTree(tree, fp, batchMode)
}

// targetsFromTree runs collect, filter, score and normalize over one
// snapshot and returns executable targets.
func (r *Resolver) targetsFromTree(tree *uitree.Tree, fp *fingerprint.Fingerprint, batchMode bool) ([]executor.Target, error) {
	cands, strategy := collector.Collect(tree, fp)
	if batchMode {
		cands = collector.FilterForBatch(cands)
	} else {
		cands = collector.FilterForSingle(cands, fp.Bounds)
	}
	if len(cands) == 0 {
		return nil, core.ErrNoCandidates.WithDetails(map[string]interface{}{
			"strategy":    string(strategy),
			"fingerprint": fp.Describe(),
		})
	}

	scored := r.scorer.Score(cands, fp)

	var targets []executor.Target
	var lastErr error
	for i := range scored {
		sc := &scored[i]
		target, err := r.norm.Normalize(tree, sc.Node.BoundsRaw)
		if err != nil {
			// Flat layouts have no feed structure to climb; the node
			// itself is still a perfectly good tap site.
			if errors.Is(err, core.ErrNoScrollContainer) || errors.Is(err, core.ErrNoCardRoot) {
				target = &normalizer.Target{
					Clicked:         sc.Node,
					ClickableParent: sc.Node,
				}
			} else {
				r.log.Debug().Str("bounds", sc.Node.BoundsRaw).Err(err).Msg("normalization failed")
				lastErr = err
				continue
			}
		}
		targets = append(targets, executor.Target{Norm: target, Confidence: sc.Score})
	}

	if len(targets) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, core.ErrNoCandidates
	}
	return targets, nil
}

// gateBest re-applies the scorer's confidence gate so strict callers
// get typed reasons instead of a silent empty selection.
func (r *Resolver) gateBest(tree *uitree.Tree, fp *fingerprint.Fingerprint, batchMode bool) (*scorer.ScoredCandidate, error) {
	cands, _ := collector.Collect(tree, fp)
	if batchMode {
		cands = collector.FilterForBatch(cands)
	} else {
		cands = collector.FilterForSingle(cands, fp.Bounds)
	}
	return r.scorer.EvaluateBest(cands, fp)
}

// CaptureArtifacts gathers diagnostic attachments for a finished run
// when its outcome matches the artifact policy: the live hierarchy
// dump and the scored candidate list as the resolver sees them now.
// Capture is best effort; transport failures drop the artifact rather
// than failing the run that already happened.
func (r *Resolver) CaptureArtifacts(ctx context.Context, sessionID string, fp *fingerprint.Fingerprint, res *executor.Result, policy core.ArtifactConfig) []core.Attachment {
	if !wantsArtifacts(res, policy) {
		return nil
	}

	ex := r.newExecutor(sessionID)
	xmlDump, err := ex.FetchTree(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("artifact capture failed")
		return nil
	}

	var out []core.Attachment
	if policy.Hierarchy {
		out = append(out, core.NewHierarchyAttachment("", []byte(xmlDump)))
	}
	if policy.Candidates {
		if tree, err := uitree.Parse(xmlDump); err == nil {
			cands, _ := collector.Collect(tree, fp)
			scored := r.scorer.Score(cands, fp)
			if data, err := json.MarshalIndent(scored, "", "  "); err == nil {
				out = append(out, core.NewCandidatesAttachment("", data))
			}
		}
	}
	return out
}

// wantsArtifacts checks the run's tap outcomes against the policy. A
// run that never reached a tap counts as a failure.
func wantsArtifacts(res *executor.Result, policy core.ArtifactConfig) bool {
	if res == nil || len(res.Details) == 0 {
		return policy.CaptureOnFailure
	}
	for _, d := range res.Details {
		if policy.ShouldCapture(d.Status) {
			return true
		}
	}
	return false
}

// recordOutcome feeds resolution results back into the confidence
// store, keyed by the strongest anchor the fingerprint carries.
func (r *Resolver) recordOutcome(fp *fingerprint.Fingerprint, success bool) {
	var strat pathgen.Strategy
	switch {
	case fp.HasResourceID():
		strat = pathgen.StrategyResourceID
	case fp.HasContentDesc():
		strat = pathgen.StrategyContentDesc
	case fp.HasText():
		strat = pathgen.StrategyText
	default:
		strat = pathgen.StrategyFallback
	}
	if success {
		r.gen.Store().RecordSuccess(strat)
	} else {
		r.gen.Store().RecordFailure(strat)
	}
}

// LoadConfidence restores persisted strategy ratings from the
// configured path. Missing files are not an error.
func (r *Resolver) LoadConfidence() error {
	if r.cfg.ConfidencePath == "" {
		return nil
	}
	data, err := os.ReadFile(r.cfg.ConfidencePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var saved map[string]float64
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return err
	}
	r.gen.Store().Restore(saved)
	return nil
}

// SaveConfidence persists the current strategy ratings.
func (r *Resolver) SaveConfidence() error {
	if r.cfg.ConfidencePath == "" {
		return nil
	}
	data, err := yaml.Marshal(r.gen.Store().Snapshot())
	if err != nil {
		return err
	}
	return os.WriteFile(r.cfg.ConfidencePath, data, 0644)
}
