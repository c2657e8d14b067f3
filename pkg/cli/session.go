package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/tapresolver/pkg/config"
	"github.com/devicelab-dev/tapresolver/pkg/device"
	"github.com/devicelab-dev/tapresolver/pkg/fingerprint"
	"github.com/devicelab-dev/tapresolver/pkg/logger"
	"github.com/devicelab-dev/tapresolver/pkg/resolver"
)

// session bundles everything a device-facing command needs: the adb
// connection, the automation server transport, one live session and
// the resolver on top of it.
type session struct {
	cfg       *config.Config
	dev       *device.Android
	transport *device.UIA2
	id        string
	res       *resolver.Resolver
}

// openSession connects to the device, boots the automation server and
// starts a session. Close releases everything in reverse order.
func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := initLogging(c, cfg); err != nil {
		return nil, err
	}

	dev, err := device.Connect(c.String("device"))
	if err != nil {
		return nil, err
	}

	transport, err := dev.StartServer(30 * time.Second)
	if err != nil {
		return nil, err
	}
	transport.SetLogger(logger.Get())

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	id, err := transport.CreateSession(ctx)
	if err != nil {
		dev.StopServer()
		return nil, fmt.Errorf("create session: %w", err)
	}

	res := resolver.New(transport, cfg, resolver.WithLogger(logger.Get()))
	if err := res.LoadConfidence(); err != nil {
		logger.Warn("could not load confidence store: %v", err)
	}

	return &session{cfg: cfg, dev: dev, transport: transport, id: id, res: res}, nil
}

// Close ends the session, stops the server and persists state.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.transport.DeleteSession(ctx, s.id)
	s.dev.StopServer()
	if err := s.res.SaveConfidence(); err != nil {
		logger.Warn("could not save confidence store: %v", err)
	}
	logger.Close()
}

// loadFingerprint builds the fingerprint from -f or inline flags.
func loadFingerprint(c *cli.Context) (*fingerprint.Fingerprint, error) {
	var fp fingerprint.Fingerprint

	if path := c.String("fingerprint"); path != "" {
		data, err := os.ReadFile(path) //#nosec G304 -- user-provided fingerprint file
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &fp); err != nil {
			return nil, fmt.Errorf("parse fingerprint %s: %w", path, err)
		}
	}

	// Inline flags override file fields.
	if v := c.String("text"); v != "" {
		fp.Text = v
	}
	if v := c.String("desc"); v != "" {
		fp.ContentDesc = v
	}
	if v := c.String("id"); v != "" {
		fp.ResourceID = v
	}
	if v := c.String("locator"); v != "" {
		fp.Locator = v
	}
	if v := c.String("bounds"); v != "" {
		fp.Bounds = v
	}

	if err := fp.Validate(); err != nil {
		return nil, err
	}
	return &fp, nil
}

// fingerprintFlags are shared by resolve, explain and paths.
var fingerprintFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "fingerprint",
		Aliases: []string{"f"},
		Usage:   "YAML file describing the recorded element",
	},
	&cli.StringFlag{
		Name:  "text",
		Usage: "Element text anchor",
	},
	&cli.StringFlag{
		Name:  "desc",
		Usage: "Element content description anchor",
	},
	&cli.StringFlag{
		Name:  "id",
		Usage: "Element resource id anchor",
	},
	&cli.StringFlag{
		Name:  "locator",
		Usage: "Recorded XPath-like locator",
	},
	&cli.StringFlag{
		Name:  "bounds",
		Usage: "Recorded bounds, e.g. [0,0][1080,200]",
	},
}
