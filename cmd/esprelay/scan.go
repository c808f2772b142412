package main

import (
	"fmt"
	"strings"

	"github.com/esprelay/esprelay/chip"
	"github.com/gosuri/uitable"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var scanCommand = &cobra.Command{
	Use:   "scan <host>",
	Short: "Scan a remote host for attached devices",
	Long: `Scan probes every serial device on the host for a chip identity over a
single SSH session. Devices that produce no identity are still listed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := args[0]
		fmt.Printf("Scanning %s for devices...\n", host)

		client, err := dialHost(cmd, host)
		if err != nil {
			return err
		}
		defer client.Close()

		results, err := chip.ScanHost(cmd.Context(), client)
		if err != nil {
			return errors.Wrapf(err, "scan %s", host)
		}
		if len(results) == 0 {
			fmt.Println("No serial devices found")
			return nil
		}

		table := uitable.New()
		table.AddRow("DEVICE", "CHIP TYPE", "ID", "USB PATH")
		for _, result := range results {
			usbPath := chip.USBPath(client, result.DevicePath)
			if result.Identity != nil {
				table.AddRow(result.DevicePath, result.Identity.ChipType, result.Identity.ID(), usbPath)
			} else {
				table.AddRow(result.DevicePath, "unknown", "", usbPath)
			}
		}
		fmt.Println(table)
		fmt.Printf("\nTo register a device:\n  esprelay register <name> --chip-id <id> --host %s\n", host)
		return nil
	},
}

var devicesCommand = &cobra.Command{
	Use:   "devices [host]",
	Short: "List serial devices on a remote host",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var host string
		if len(args) == 1 {
			host = args[0]
		} else {
			// Fall back to the first registered device's host.
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			devices := reg.List()
			if len(devices) == 0 {
				return errors.New("no host specified and no devices registered")
			}
			host = devices[0].Host
		}

		client, err := dialHost(cmd, host)
		if err != nil {
			return err
		}
		defer client.Close()

		stdout, _, _, err := client.Run("ls /dev/ttyUSB* /dev/ttyACM* /dev/ttyAMA* 2>/dev/null")
		if err != nil {
			return errors.Wrapf(err, "list devices on %s", host)
		}
		paths := strings.Fields(stdout)
		if len(paths) == 0 {
			fmt.Println("No serial devices found")
			return nil
		}

		table := uitable.New()
		table.AddRow("DEVICE", "INFO")
		for _, path := range paths {
			info, _, _, _ := client.Run(fmt.Sprintf(
				"udevadm info -q property -n %s 2>/dev/null | grep -E 'ID_MODEL=|ID_VENDOR=' | head -2", path))
			info = strings.ReplaceAll(strings.TrimSpace(info), "\n", ", ")
			info = strings.NewReplacer("ID_MODEL=", "", "ID_VENDOR=", "").Replace(info)
			if info == "" {
				info = "unknown"
			}
			table.AddRow(path, info)
		}
		fmt.Println(table)
		return nil
	},
}
