package main

import (
	"fmt"

	"github.com/esprelay/esprelay/registry"
	"github.com/esprelay/esprelay/remote"
	"github.com/gosuri/uitable"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// targetDevices resolves a command's optional device argument: one named
// device, or every registered device when the argument is omitted.
func targetDevices(args []string) ([]registry.Device, error) {
	reg, err := openRegistry()
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		device, err := reg.Get(args[0])
		if err != nil {
			return nil, errors.Wrap(err, "run: esprelay status to see registered devices")
		}
		return []registry.Device{device}, nil
	}
	return reg.List(), nil
}

var connectCommand = &cobra.Command{
	Use:   "connect [device]",
	Short: "Open SSH forwarding tunnels to one or all devices",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := targetDevices(args)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No devices registered. Run: esprelay scan <host>")
			return nil
		}

		manager := newTunnelManager()
		var failed int
		for _, device := range devices {
			if manager.IsOpen(device.LocalPort) {
				fmt.Printf("%s: already connected (port %d)\n", device.Name, device.LocalPort)
				continue
			}

			fmt.Printf("%s: connecting to %s...\n", device.Name, device.Host)
			host := remote.ParseHost(device.Host, config.GetString(ConfigSSHUser))
			if err := manager.Create(cmd.Context(), host, device.LocalPort, device.RemotePort); err != nil {
				fmt.Printf("%s: connection failed: %s\n", device.Name, err)
				failed++
				continue
			}
			fmt.Printf("%s: connected on port %d\n", device.Name, device.LocalPort)
			fmt.Printf("  Upload: rfc2217://localhost:%d\n", device.LocalPort)
		}

		if failed > 0 {
			return errors.Errorf("%d of %d tunnels failed", failed, len(devices))
		}
		return nil
	},
}

var disconnectCommand = &cobra.Command{
	Use:   "disconnect [device]",
	Short: "Tear down tunnels to one or all devices",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := targetDevices(args)
		if err != nil {
			return err
		}

		manager := newTunnelManager()
		for _, device := range devices {
			killed, err := manager.Kill(device.LocalPort)
			if err != nil {
				return errors.Wrapf(err, "disconnect %q", device.Name)
			}
			if killed {
				fmt.Printf("%s: disconnected\n", device.Name)
			} else {
				fmt.Printf("%s: not connected\n", device.Name)
			}
		}
		return nil
	},
}

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show all devices and their connection status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		devices := reg.List()
		if len(devices) == 0 {
			fmt.Println("No devices registered. Run: esprelay scan <host>")
			return nil
		}

		manager := newTunnelManager()
		table := uitable.New()
		table.AddRow("DEVICE", "CHIP ID", "HOST", "PORT", "STATUS", "UPLOAD PORT")
		for _, device := range devices {
			status, upload := "disconnected", ""
			if manager.IsOpen(device.LocalPort) {
				status = "connected"
				upload = fmt.Sprintf("rfc2217://localhost:%d", device.LocalPort)
			}
			table.AddRow(device.Name, device.ChipID, device.Host, device.LocalPort, status, upload)
		}
		fmt.Println(table)

		gitStatus, err := registry.Status(registryDir())
		if err == nil && gitStatus.Initialized && gitStatus.Dirty {
			fmt.Println("\nRegistry has uncommitted changes. Run: esprelay sync")
		}
		return nil
	},
}
