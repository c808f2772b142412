package main

import (
	"fmt"

	"github.com/esprelay/esprelay/chip"
	"github.com/esprelay/esprelay/monitor"
	"github.com/esprelay/esprelay/registry"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// devicePathFor picks the serial path to probe for a registered device: the
// persistent udev symlink when one is configured, else the first USB serial.
func devicePathFor(device registry.Device) string {
	if device.USBPath != "" {
		return "/dev/" + device.Name
	}
	return "/dev/ttyUSB0"
}

var verifyCommand = &cobra.Command{
	Use:   "verify <device>",
	Short: "Verify that the attached chip matches the registered identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		device, err := reg.Get(args[0])
		if err != nil {
			return err
		}

		if !newTunnelManager().IsOpen(device.LocalPort) {
			return errors.Errorf("not connected to %q; run: esprelay connect %s", device.Name, device.Name)
		}

		fmt.Printf("Verifying %s...\n", device.Name)
		client, err := dialHost(cmd, device.Host)
		if err != nil {
			return err
		}
		defer client.Close()

		identity, err := chip.Discover(cmd.Context(), client, devicePathFor(device))
		if err != nil {
			return errors.Wrapf(err, "probe %q", device.Name)
		}
		if identity == nil {
			return errors.Errorf("could not read chip identity from %q", device.Name)
		}

		matched, detail := chip.Verify(*identity, device.ChipID)
		if !matched {
			return errors.New(detail)
		}
		fmt.Println(detail)
		return nil
	},
}

var monitorRaw bool

var monitorCommand = &cobra.Command{
	Use:   "monitor <device>",
	Short: "Open an interactive serial monitor for a connected device",
	Long: `Monitor relays the device's serial stream through its open tunnel. The
serial rate is fixed on the remote side by the ser2net configuration.
Press Ctrl-C to exit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		device, err := reg.Get(args[0])
		if err != nil {
			return err
		}

		if !newTunnelManager().IsOpen(device.LocalPort) {
			return errors.Errorf("not connected; run: esprelay connect %s", device.Name)
		}

		fmt.Printf("Connected to %s on port %d. Press Ctrl-C to exit.\n", device.Name, device.LocalPort)
		return monitor.Run(cmd.Context(), device.LocalPort, monitor.Options{Raw: monitorRaw})
	},
}

func init() {
	monitorCommand.Flags().BoolVar(&monitorRaw, "raw", false, "output-only mode, no interactive input")
}
