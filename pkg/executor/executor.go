package executor

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/devicelab-dev/tapresolver/pkg/core"
	"github.com/devicelab-dev/tapresolver/pkg/device"
	"github.com/devicelab-dev/tapresolver/pkg/uitree"
)

// Run statuses reported in Result.Status.
const (
	StatusCompleted    = "completed"
	StatusSessionLimit = "session limit reached"
	StatusAborted      = "aborted"
	StatusCanceled     = "canceled"
	StatusNoSelection  = "no selection"
)

// ResolveFn re-runs the upstream pipeline (collect, score, normalize)
// for the run's original fingerprint against a fresh tree snapshot.
// The executor calls it according to the batch refresh policy.
type ResolveFn func(ctx context.Context) ([]Target, error)

// TapDetail records one tap slot's outcome.
type TapDetail struct {
	Index      int
	X, Y       int
	Confidence float64
	Status     core.TapStatus
	Err        error
	Duration   time.Duration
}

// Result aggregates a run. It is populated even when the run ends
// early; a canceled or aborted batch still reports what happened.
type Result struct {
	RunID         string
	Status        string
	TargetsFound  int
	TapsAttempted int
	TapsSucceeded int
	TapsSkipped   int
	// Success means every attempted tap succeeded, not merely one.
	Success bool
	// CooldownRequired signals that the session cap was hit with
	// targets remaining; callers should pause for the batch cooldown
	// before the next session.
	CooldownRequired bool
	Details          []TapDetail
}

// batch run states; transitions are logged for traceability.
type runState int

const (
	stateIdle runState = iota
	stateResolving
	stateTapping
	stateCoolingDown
	stateDone
	stateAborted
)

func (s runState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateResolving:
		return "resolving"
	case stateTapping:
		return "tapping"
	case stateCoolingDown:
		return "cooling_down"
	case stateDone:
		return "done"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Executor drives tap execution for one device session.
type Executor struct {
	transport device.Transport
	sessionID string
	log       zerolog.Logger

	// sleep is injectable so tests run without real delays.
	sleep func(context.Context, time.Duration) error
	// jitterSource feeds pacing jitter; separate from policy seeds.
	jitterSource *rand.Rand
	// limiter optionally caps the global tap rate across policies.
	limiter *rate.Limiter
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithSleeper replaces the pacing sleep, for tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithJitterSeed makes pacing jitter deterministic.
func WithJitterSeed(seed int64) Option {
	return func(e *Executor) { e.jitterSource = rand.New(rand.NewSource(seed)) }
}

// WithRateLimit caps taps across the whole session at r per second
// with the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(e *Executor) { e.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// New creates an executor bound to one device session.
func New(transport device.Transport, sessionID string, opts ...Option) *Executor {
	e := &Executor{
		transport:    transport,
		sessionID:    sessionID,
		log:          zerolog.Nop(),
		jitterSource: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FetchTree fetches a hierarchy snapshot with exponential backoff on
// transport failures.
func (e *Executor) FetchTree(ctx context.Context) (string, error) {
	var xml string
	operation := func() error {
		var err error
		xml, err = e.transport.FetchUITree(ctx, e.sessionID)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", core.ErrTransport.WithMessage("ui tree fetch failed").WithCause(err)
	}
	return xml, nil
}

// Execute applies the selection policy to the targets and performs the
// taps. The result is valid even when an error is returned; errors
// cover selection failures and cancellation, while individual tap
// failures are reported per detail subject to the batch policy.
func (e *Executor) Execute(ctx context.Context, targets []Target, policy Policy, resolve ResolveFn) (*Result, error) {
	res := &Result{
		RunID:        uuid.NewString(),
		TargetsFound: len(targets),
	}
	log := e.log.With().Str("run_id", res.RunID).Str("policy", policy.Kind.String()).Logger()

	sorted := make([]Target, len(targets))
	copy(sorted, targets)
	SortVisual(sorted)

	if policy.Kind == PolicyAll {
		orient(sorted, policy.Batch.Direction)
		return e.executeBatch(ctx, log, res, sorted, policy.Batch, resolve)
	}

	idx := pick(sorted, policy)
	if idx < 0 {
		res.Status = StatusNoSelection
		if len(sorted) == 0 {
			return res, core.ErrNoCandidates
		}
		best := 0.0
		for i := range sorted {
			if sorted[i].Confidence > best {
				best = sorted[i].Confidence
			}
		}
		return res, core.ErrNoValidMatch.WithDetails(map[string]interface{}{
			"best_score": best,
			"reasons":    []string{fmt.Sprintf("top confidence %.2f below policy minimum %.2f", best, policy.MinConfidence)},
		})
	}

	detail := e.tapOne(ctx, log, sorted[idx], idx)
	res.Details = append(res.Details, detail)
	e.tally(res)
	if res.TapsSucceeded == res.TapsAttempted {
		res.Status = StatusCompleted
		res.Success = res.TapsAttempted > 0
	} else {
		res.Status = StatusAborted
	}
	return res, nil
}

func (e *Executor) executeBatch(ctx context.Context, log zerolog.Logger, res *Result, targets []Target, cfg BatchConfig, resolve ResolveFn) (*Result, error) {
	state := stateTapping
	log.Debug().Str("state", state.String()).Int("targets", len(targets)).Msg("batch started")

	tapped := 0
	aborted := false
	canceled := false

	for i := 0; i < len(targets); i++ {
		if aborted || canceled {
			res.Details = append(res.Details, TapDetail{Index: i, Status: core.TapSkipped})
			continue
		}
		if cfg.MaxPerSession > 0 && tapped >= cfg.MaxPerSession {
			res.Details = append(res.Details, TapDetail{Index: i, Status: core.TapLimited})
			continue
		}

		if err := ctx.Err(); err != nil {
			canceled = true
			res.Details = append(res.Details, TapDetail{Index: i, Status: core.TapSkipped, Err: err})
			continue
		}

		if refreshed, err := e.maybeRefresh(ctx, log, &state, targets, i, tapped, cfg, resolve); err != nil {
			// A failed refresh counts as a tap failure for this slot.
			res.Details = append(res.Details, TapDetail{Index: i, Status: core.TapFailed, Err: err})
			if !cfg.ContinueOnError {
				aborted = true
			}
			continue
		} else if refreshed != nil {
			if i >= len(refreshed) {
				res.Details = append(res.Details, TapDetail{Index: i, Status: core.TapNotResolved})
				continue
			}
			targets = refreshed
		}

		state = stateTapping
		detail := e.tapOne(ctx, log, targets[i], i)
		res.Details = append(res.Details, detail)
		if detail.Status == core.TapExecuted {
			tapped++
		} else if !cfg.ContinueOnError {
			aborted = true
			continue
		}

		// Pace before the next tap, but never after the final one:
		// the last permitted tap ends the session without sleeping.
		hasNext := i+1 < len(targets)
		withinBudget := cfg.MaxPerSession == 0 || tapped < cfg.MaxPerSession
		if hasNext && withinBudget {
			state = stateCoolingDown
			pause := cfg.Interval + e.jitter(cfg.Jitter)
			log.Debug().Str("state", state.String()).Dur("pause", pause).Msg("pacing")
			if err := e.sleep(ctx, pause); err != nil {
				canceled = true
			}
		}
	}

	e.tally(res)
	switch {
	case canceled:
		res.Status = StatusCanceled
	case aborted:
		res.Status = StatusAborted
	case cfg.MaxPerSession > 0 && tapped >= cfg.MaxPerSession && res.TapsAttempted < res.TargetsFound:
		res.Status = StatusSessionLimit
		res.CooldownRequired = cfg.Cooldown > 0
	default:
		res.Status = StatusCompleted
	}
	res.Success = res.TapsAttempted > 0 && res.TapsSucceeded == res.TapsAttempted

	state = stateDone
	if aborted {
		state = stateAborted
	}
	log.Debug().Str("state", state.String()).Str("status", res.Status).
		Int("attempted", res.TapsAttempted).Int("succeeded", res.TapsSucceeded).
		Msg("batch finished")

	if canceled {
		return res, ctx.Err()
	}
	return res, nil
}

// maybeRefresh re-resolves targets per the refresh policy. It returns
// the fresh target list when a refresh happened, nil when it did not.
func (e *Executor) maybeRefresh(ctx context.Context, log zerolog.Logger, state *runState, targets []Target, i, tapped int, cfg BatchConfig, resolve ResolveFn) ([]Target, error) {
	if resolve == nil || i == 0 {
		return nil, nil
	}

	needed := false
	switch cfg.Refresh {
	case RefreshAlways:
		needed = true
	case RefreshEveryK:
		needed = cfg.RefreshEvery > 0 && tapped > 0 && tapped%cfg.RefreshEvery == 0
	case RefreshOnMutation:
		stale, err := e.targetStale(ctx, targets[i])
		if err != nil {
			return nil, err
		}
		needed = stale
	}
	if !needed {
		return nil, nil
	}

	*state = stateResolving
	log.Debug().Str("state", state.String()).Int("index", i).Msg("re-resolving targets")

	fresh, err := resolve(ctx)
	if err != nil {
		return nil, err
	}
	SortVisual(fresh)
	orient(fresh, cfg.Direction)
	return fresh, nil
}

// targetStale fetches a fresh tree and checks whether the target's
// node still sits at the same bounds with the same key attributes.
func (e *Executor) targetStale(ctx context.Context, t Target) (bool, error) {
	xml, err := e.FetchTree(ctx)
	if err != nil {
		return false, err
	}
	tree, err := uitree.Parse(xml)
	if err != nil {
		return false, err
	}

	want := t.Norm.ClickableParent
	live := tree.FindExactBounds(want.BoundsRaw)
	if live == nil {
		return true, nil
	}
	if live.ClassName != want.ClassName ||
		strings.TrimSpace(live.Text) != strings.TrimSpace(want.Text) ||
		strings.TrimSpace(live.ContentDesc) != strings.TrimSpace(want.ContentDesc) {
		return true, nil
	}
	return false, nil
}

func (e *Executor) tapOne(ctx context.Context, log zerolog.Logger, t Target, index int) TapDetail {
	x, y := t.TapPoint()
	detail := TapDetail{Index: index, X: x, Y: y, Confidence: t.Confidence}

	if err := ctx.Err(); err != nil {
		detail.Status = core.TapSkipped
		detail.Err = err
		return detail
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			detail.Status = core.TapSkipped
			detail.Err = err
			return detail
		}
	}

	start := time.Now()
	err := e.transport.Tap(ctx, e.sessionID, x, y)
	detail.Duration = time.Since(start)
	if err != nil {
		detail.Status = core.TapFailed
		detail.Err = core.ErrTransport.WithMessage("tap failed").WithCause(err)
		log.Warn().Int("x", x).Int("y", y).Err(err).Msg("tap failed")
		return detail
	}

	detail.Status = core.TapExecuted
	log.Debug().Int("x", x).Int("y", y).Float64("confidence", t.Confidence).Msg("tapped")
	return detail
}

func (e *Executor) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(e.jitterSource.Int63n(int64(max) + 1))
}

func (e *Executor) tally(res *Result) {
	res.TapsAttempted = 0
	res.TapsSucceeded = 0
	res.TapsSkipped = 0
	for _, d := range res.Details {
		switch d.Status {
		case core.TapExecuted:
			res.TapsAttempted++
			res.TapsSucceeded++
		case core.TapFailed:
			res.TapsAttempted++
		case core.TapSkipped, core.TapLimited, core.TapNotResolved:
			res.TapsSkipped++
		}
	}
}
