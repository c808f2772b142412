package main

import (
	"fmt"

	"github.com/esprelay/esprelay/registry"
	"github.com/esprelay/esprelay/ser2net"
	"github.com/esprelay/esprelay/udev"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var setupCommand = &cobra.Command{
	Use:   "setup <host>",
	Short: "Install and configure the serial-to-TCP service on a remote host",
	Long: `Setup generates a ser2net configuration covering every device registered
for the host, installs it, and restarts the service. Each device's serial
path is then reachable on its registered remote port.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := args[0]

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		devices := hostDevices(reg, host)
		if len(devices) == 0 {
			return errors.Errorf("no devices registered for %s; run: esprelay scan %s", host, host)
		}

		fmt.Printf("Setting up ser2net on %s for %d device(s)...\n", host, len(devices))
		cfg, err := ser2net.GenerateConfig(devices, config.GetInt(ConfigSerialBaud))
		if err != nil {
			return errors.Wrap(err, "generate ser2net config")
		}

		client, err := dialHost(cmd, host)
		if err != nil {
			return err
		}
		defer client.Close()

		if err := ser2net.Install(client, cfg); err != nil {
			return errors.Wrapf(err, "install ser2net on %s", host)
		}

		fmt.Println("ser2net configured and restarted")
		for _, device := range devices {
			fmt.Printf("  %s: port %d\n", device.Name, device.RemotePort)
		}
		return nil
	},
}

var udevInstallCommand = &cobra.Command{
	Use:   "udev-install <host>",
	Short: "Install persistent /dev/<name> symlinks on a remote host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := args[0]

		reg, err := openRegistry()
		if err != nil {
			return err
		}

		var withPath []registry.Device
		for _, device := range hostDevices(reg, host) {
			if device.USBPath != "" {
				withPath = append(withPath, device)
			}
		}
		if len(withPath) == 0 {
			return errors.New("no devices with USB paths configured; re-register with --usb-path")
		}

		rules := udev.GenerateRules(withPath)
		if err := udev.SaveRules(registryDir(), withPath); err != nil {
			return err
		}

		fmt.Printf("Installing udev rules on %s...\n", host)
		client, err := dialHost(cmd, host)
		if err != nil {
			return err
		}
		defer client.Close()

		if err := udev.Install(client, rules); err != nil {
			return errors.Wrapf(err, "install udev rules on %s", host)
		}

		fmt.Println("udev rules installed")
		for _, device := range withPath {
			fmt.Printf("  /dev/%s -> %s\n", device.Name, device.USBPath)
		}
		return nil
	},
}
