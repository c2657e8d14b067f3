package cli

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/tapresolver/pkg/logger"
	"github.com/devicelab-dev/tapresolver/pkg/pathgen"
	"github.com/devicelab-dev/tapresolver/pkg/resolver"
)

var pathsCommand = &cli.Command{
	Name:  "paths",
	Usage: "Generate ranked locator candidates for a fingerprint",
	Description: `Paths prints the locator expressions the resolver would try for a
fingerprint, ordered by adaptive confidence. No device is contacted.

Examples:
  tapresolver paths --id com.app:id/follow_button
  tapresolver paths -f fingerprint.yaml`,
	Flags:  fingerprintFlags,
	Action: runPaths,
}

type pathEntry struct {
	Rank       int     `json:"rank"`
	Strategy   string  `json:"strategy"`
	Locator    string  `json:"locator"`
	Confidence float64 `json:"confidence"`
}

func runPaths(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := initLogging(c, cfg); err != nil {
		return err
	}
	defer logger.Close()

	fp, err := loadFingerprint(c)
	if err != nil {
		return err
	}

	// No transport needed: path generation is offline.
	res := resolver.New(nil, cfg, resolver.WithLogger(logger.Get()), resolver.WithGenerator(pathgen.NewGenerator(nil)))
	if err := res.LoadConfidence(); err != nil {
		logger.Warn("could not load confidence store: %v", err)
	}

	paths, err := res.Paths(fp)
	if err != nil {
		return err
	}

	entries := make([]pathEntry, 0, len(paths))
	for i, p := range paths {
		entries = append(entries, pathEntry{
			Rank:       i + 1,
			Strategy:   p.Strategy.String(),
			Locator:    p.Expr,
			Confidence: p.Confidence,
		})
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
