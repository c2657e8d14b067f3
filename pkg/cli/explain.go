package cli

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

var explainCommand = &cli.Command{
	Name:  "explain",
	Usage: "Score candidates for a fingerprint without tapping",
	Description: `Explain runs collection and scoring against the live hierarchy and
prints every candidate with its score breakdown, best first. Nothing is
tapped.

Examples:
  tapresolver explain --text "Follow"
  tapresolver explain -f fingerprint.yaml`,
	Flags:  fingerprintFlags,
	Action: runExplain,
}

type explainEntry struct {
	Rank      int                `json:"rank"`
	Score     float64            `json:"score"`
	Text      string             `json:"text,omitempty"`
	Desc      string             `json:"desc,omitempty"`
	Class     string             `json:"class,omitempty"`
	Bounds    string             `json:"bounds"`
	Clickable bool               `json:"clickable"`
	Breakdown map[string]float64 `json:"breakdown"`
	Reasons   []string           `json:"reasons,omitempty"`
}

func runExplain(c *cli.Context) error {
	sess, err := openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	fp, err := loadFingerprint(c)
	if err != nil {
		return err
	}

	scored, err := sess.res.Explain(c.Context, sess.id, fp)
	if err != nil {
		return err
	}

	entries := make([]explainEntry, 0, len(scored))
	for i, sc := range scored {
		entries = append(entries, explainEntry{
			Rank:      i + 1,
			Score:     sc.Score,
			Text:      sc.Node.Text,
			Desc:      sc.Node.ContentDesc,
			Class:     sc.Node.ClassName,
			Bounds:    sc.Node.BoundsRaw,
			Clickable: sc.Node.Clickable,
			Breakdown: sc.Breakdown,
			Reasons:   sc.Reasons,
		})
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
