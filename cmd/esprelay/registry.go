package main

import (
	"fmt"

	"github.com/esprelay/esprelay/registry"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var initCommand = &cobra.Command{
	Use:   "init [git-url]",
	Short: "Initialize the device registry, optionally cloning from a git URL",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := registryDir()
		if registry.IsRepo(dir) {
			fmt.Printf("Registry already initialized at %s\n", dir)
			return nil
		}

		var remoteURL string
		if len(args) == 1 {
			remoteURL = args[0]
			fmt.Printf("Cloning registry from %s...\n", remoteURL)
		}
		if err := registry.InitRepo(dir, remoteURL); err != nil {
			return errors.Wrap(err, "initialize registry")
		}
		fmt.Printf("Registry initialized at %s\n", dir)
		return nil
	},
}

var syncMessage string

var syncCommand = &cobra.Command{
	Use:   "sync",
	Short: "Commit registry changes and sync with the git remote",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := registry.Status(registryDir())
		if err != nil {
			return err
		}
		if !status.Initialized {
			return errors.New("registry not initialized; run: esprelay init")
		}

		summary, err := registry.Sync(registryDir(), syncMessage)
		if err != nil {
			return errors.Wrap(err, "sync registry")
		}
		fmt.Println(summary)
		return nil
	},
}

var registerFlags struct {
	chipID      string
	host        string
	usbPath     string
	description string
	port        int
}

var registerCommand = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a device in the registry",
	Long: `Register a device under a stable name. A new name is assigned the lowest
free remote port on its host; re-registering an existing name preserves its
port unless --port overrides it. Re-registration fully replaces the record,
including usb-path and description.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		reg, err := openRegistry()
		if err != nil {
			return err
		}

		port := registerFlags.port
		if port == 0 {
			if existing, err := reg.Get(name); err == nil {
				fmt.Printf("Device %q already exists. Updating, keeping port %d.\n", name, existing.RemotePort)
				port = existing.RemotePort
			} else {
				port = reg.AllocatePort(registerFlags.host, config.GetInt(ConfigPortBase))
			}
		}

		device := registry.Device{
			Name:        name,
			ChipID:      registerFlags.chipID,
			Host:        registerFlags.host,
			USBPath:     registerFlags.usbPath,
			RemotePort:  port,
			LocalPort:   port,
			Description: registerFlags.description,
		}
		if err := reg.Add(device); err != nil {
			return errors.Wrapf(err, "register %q", name)
		}

		fmt.Printf("Registered %q\n", name)
		fmt.Printf("  Chip ID: %s\n", device.ChipID)
		fmt.Printf("  Host:    %s\n", device.Host)
		fmt.Printf("  Port:    %d\n", device.RemotePort)
		if device.USBPath != "" {
			fmt.Printf("  USB:     %s\n", device.USBPath)
			fmt.Println("\nTo install persistent device names: esprelay udev-install " + device.Host)
		}
		return nil
	},
}

var unregisterCommand = &cobra.Command{
	Use:   "unregister <name>",
	Short: "Remove a device from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		removed, err := reg.Remove(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return errors.Errorf("device %q not found", args[0])
		}
		fmt.Printf("Removed %q\n", args[0])
		return nil
	},
}

func init() {
	syncCommand.Flags().StringVarP(&syncMessage, "message", "m", "Update devices", "commit message")

	registerCommand.Flags().StringVar(&registerFlags.chipID, "chip-id", "", "chip ID or MAC from scan (required)")
	registerCommand.Flags().StringVar(&registerFlags.host, "host", "", "host in user@hostname form (required)")
	registerCommand.Flags().StringVar(&registerFlags.usbPath, "usb-path", "", "physical USB bus path, for persistent naming")
	registerCommand.Flags().StringVarP(&registerFlags.description, "description", "d", "", "device description")
	registerCommand.Flags().IntVar(&registerFlags.port, "port", 0, "remote port override (default: keep existing or allocate)")
	_ = registerCommand.MarkFlagRequired("chip-id")
	_ = registerCommand.MarkFlagRequired("host")
}
