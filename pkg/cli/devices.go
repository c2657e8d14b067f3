package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/tapresolver/pkg/device"
)

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List connected Android devices",
	Description: `List the devices adb can see, with model information for those in
a usable state.

Examples:
  tapresolver devices`,
	Action: runDevices,
}

var hierarchyCommand = &cli.Command{
	Name:  "hierarchy",
	Usage: "Print the raw view hierarchy of the connected device",
	Description: `Dump the current UI hierarchy XML, exactly as the resolver sees it.

Examples:
  tapresolver hierarchy
  tapresolver hierarchy --device emulator-5554`,
	Action: runHierarchy,
}

func runDevices(c *cli.Context) error {
	entries, err := device.ListDevices()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.App.Writer, "No devices found")
		return nil
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s\t%s", e.Serial, e.State)
		if e.State == "device" {
			if dev, err := device.Connect(e.Serial); err == nil {
				if info, err := dev.Info(); err == nil && info.Model != "" {
					line = fmt.Sprintf("%s\t%s\t%s (SDK %s)", e.Serial, e.State, info.Model, info.SDK)
				}
			}
		}
		fmt.Fprintln(c.App.Writer, line)
	}
	return nil
}

func runHierarchy(c *cli.Context) error {
	sess, err := openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	xml, err := sess.transport.FetchUITree(c.Context, sess.id)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, xml)
	return nil
}
