package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/tapresolver/pkg/config"
	"github.com/devicelab-dev/tapresolver/pkg/core"
	"github.com/devicelab-dev/tapresolver/pkg/executor"
	"github.com/devicelab-dev/tapresolver/pkg/report"
)

var resolveCommand = &cli.Command{
	Name:  "resolve",
	Usage: "Resolve a fingerprint and tap the matching element(s)",
	Description: `Resolve finds live candidates for the fingerprint, scores them,
normalizes the winner(s) into stable tap targets and taps under the
selection policy.

Examples:
  tapresolver resolve --text "Follow" --policy first
  tapresolver resolve -f fp.yaml --policy match_best --min-confidence 0.5
  tapresolver resolve --desc "关注" --policy all --max-per-session 2 --interval 2s`,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Selection policy (match_best, first, last, random, all)",
			Value: "match_best",
		},
		&cli.Float64Flag{
			Name:  "min-confidence",
			Usage: "Minimum score for match_best",
			Value: 0.3,
		},
		&cli.BoolFlag{
			Name:  "fallback-first",
			Usage: "match_best falls back to the first candidate below the gate",
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "Seed for the random policy",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Base pause between batch taps (overrides config)",
		},
		&cli.DurationFlag{
			Name:  "jitter",
			Usage: "Random extra pause per batch tap (overrides config)",
		},
		&cli.IntFlag{
			Name:  "max-per-session",
			Usage: "Tap budget for the all policy (0 = unlimited)",
		},
		&cli.BoolFlag{
			Name:  "continue-on-error",
			Usage: "Keep the batch going past failed taps",
		},
		&cli.StringFlag{
			Name:  "refresh",
			Usage: "Mid-batch refresh policy (never, on_mutation, every_k, always)",
		},
		&cli.IntFlag{
			Name:  "refresh-every",
			Usage: "k for the every_k refresh policy",
		},
		&cli.StringFlag{
			Name:  "direction",
			Usage: "Batch walk order over the visual baseline (forward, backward)",
		},
		&cli.StringFlag{
			Name:  "report-dir",
			Usage: "Write a run report under this directory",
		},
	}, fingerprintFlags...),
	Action: runResolve,
}

func runResolve(c *cli.Context) error {
	sess, err := openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	fp, err := loadFingerprint(c)
	if err != nil {
		return err
	}

	policy, err := buildPolicy(c, sess.cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	res, runErr := sess.res.ResolveAndAct(c.Context, sess.id, fp, policy)

	if dir := c.String("report-dir"); dir != "" && res != nil {
		arts := sess.res.CaptureArtifacts(c.Context, sess.id, fp, res, core.DefaultArtifactConfig())
		if err := writeRunReport(dir, sess, fp.Describe(), policy, res, start, runErr, arts); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "warning: could not write report: %v\n", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

// buildPolicy assembles the executor policy from flags, falling back
// to the batch defaults in config.
func buildPolicy(c *cli.Context, cfg *config.Config) (executor.Policy, error) {
	batch := cfg.Batch.ToBatch()
	if c.IsSet("interval") {
		batch.Interval = c.Duration("interval")
	}
	if c.IsSet("jitter") {
		batch.Jitter = c.Duration("jitter")
	}
	if c.IsSet("max-per-session") {
		batch.MaxPerSession = c.Int("max-per-session")
	}
	if c.IsSet("continue-on-error") {
		batch.ContinueOnError = c.Bool("continue-on-error")
	}
	if c.IsSet("refresh") {
		parsed := config.BatchDefaults{Refresh: c.String("refresh")}.ToBatch()
		batch.Refresh = parsed.Refresh
	}
	if c.IsSet("refresh-every") {
		batch.RefreshEvery = c.Int("refresh-every")
	}
	if c.IsSet("direction") {
		switch dir := c.String("direction"); dir {
		case "forward":
			batch.Direction = executor.DirectionForward
		case "backward":
			batch.Direction = executor.DirectionBackward
		default:
			return executor.Policy{}, fmt.Errorf("unknown direction %q", dir)
		}
	}

	switch name := c.String("policy"); name {
	case "match_best":
		return executor.MatchBest(c.Float64("min-confidence"), c.Bool("fallback-first")), nil
	case "first":
		return executor.First(), nil
	case "last":
		return executor.Last(), nil
	case "random":
		return executor.Random(c.Int64("seed")), nil
	case "all":
		return executor.All(batch), nil
	default:
		return executor.Policy{}, fmt.Errorf("unknown policy %q", name)
	}
}

// writeRunReport persists one run into a report directory.
func writeRunReport(dir string, sess *session, target string, policy executor.Policy, res *executor.Result, start time.Time, runErr error, arts []core.Attachment) error {
	info, _ := sess.dev.Info()
	w, err := report.NewWriter(filepath.Join(dir, res.RunID), report.Device{
		Serial:     info.Serial,
		Model:      info.Model,
		SDK:        info.SDK,
		IsEmulator: info.IsEmulator,
	})
	if err != nil {
		return err
	}

	status := report.StatusPassed
	errMsg := ""
	if runErr != nil || !res.Success {
		status = report.StatusFailed
	}
	if runErr != nil {
		errMsg = runErr.Error()
	}

	end := time.Now()
	duration := end.Sub(start).Milliseconds()

	detail := report.RunDetail{
		RunEntry: report.RunEntry{
			ID:            res.RunID,
			SessionID:     sess.id,
			Target:        target,
			Policy:        policy.Kind.String(),
			Status:        status,
			TapsAttempted: res.TapsAttempted,
			TapsSucceeded: res.TapsSucceeded,
			StartTime:     start,
			EndTime:       &end,
			Duration:      &duration,
			Error:         errMsg,
		},
		Candidates: res.TargetsFound,
	}
	for i, d := range res.Details {
		rec := report.TapRecord{Index: i, X: d.X, Y: d.Y, Status: d.Status.String()}
		if d.Err != nil {
			rec.Error = d.Err.Error()
		}
		detail.Taps = append(detail.Taps, rec)
	}

	for _, art := range arts {
		rel, err := w.SaveAsset(res.RunID, art.Name+extensionFor(art.ContentType), art.Body)
		if err != nil {
			continue
		}
		if detail.Attachments == nil {
			detail.Attachments = map[string]string{}
		}
		detail.Attachments[art.Name] = rel
	}

	if err := w.AddRun(detail); err != nil {
		return err
	}
	return w.End()
}

func extensionFor(contentType string) string {
	switch contentType {
	case core.ContentTypeXML:
		return ".xml"
	case core.ContentTypeJSON:
		return ".json"
	default:
		return ".txt"
	}
}
