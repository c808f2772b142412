package chip

import (
	"context"
	"fmt"
	"strings"

	"github.com/esprelay/esprelay/log"
	"github.com/esprelay/esprelay/remote"
	"github.com/pkg/errors"
)

// listSerialDevicesCommand enumerates the serial device paths a probe can
// target. Missing globs are swallowed on the remote side.
const listSerialDevicesCommand = "ls /dev/ttyUSB* /dev/ttyACM* /dev/ttyAMA* 2>/dev/null"

// installToolCommand is the one-time best-effort install attempted when the
// discovery tool is missing on the remote host.
const installToolCommand = "pip install esptool --break-system-packages 2>/dev/null || pip install esptool"

func discoverCommand(devicePath string) string {
	// Prefer the pip-installed binary in ~/.local/bin, then fall back to PATH.
	return fmt.Sprintf(
		"~/.local/bin/esptool --port %s --no-stub chip-id 2>&1 || esptool --port %s --no-stub chip-id 2>&1",
		devicePath, devicePath,
	)
}

func toolMissing(stdout, stderr string) bool {
	return strings.Contains(stdout, "command not found") ||
		strings.Contains(stderr, "command not found") ||
		strings.Contains(stdout, "No such file")
}

// Discover probes the device at devicePath and returns its identity, or nil
// when no identity could be determined. If the discovery tool is missing on
// the host, one best-effort install is attempted and the probe retried
// exactly once. Unparseable output is "no identity", not an error; only
// transport failures are returned as err.
func Discover(ctx context.Context, executor remote.Executor, devicePath string) (*Identity, error) {
	logger := log.FromContext(ctx).WithField("device_path", devicePath)

	stdout, stderr, code, err := executor.Run(discoverCommand(devicePath))
	if err != nil {
		return nil, errors.Wrap(err, "run discovery")
	}

	if code != 0 && toolMissing(stdout, stderr) {
		logger.Info("discovery tool missing, attempting install")
		if _, _, _, err := executor.Run(installToolCommand); err != nil {
			return nil, errors.Wrap(err, "install discovery tool")
		}
		stdout, _, code, err = executor.Run(fmt.Sprintf("~/.local/bin/esptool --port %s --no-stub chip-id 2>&1", devicePath))
		if err != nil {
			return nil, errors.Wrap(err, "retry discovery")
		}
	}

	if code != 0 {
		logger.WithField("exit_code", code).Debug("discovery command failed")
		return nil, nil
	}

	identity, ok := ParseIdentity(stdout, devicePath)
	if !ok {
		logger.Debug("no chip ID or MAC in discovery output")
		return nil, nil
	}
	return &identity, nil
}

// ScanResult pairs a serial device path with the identity discovered behind
// it. Identity is nil when discovery failed for that path; the path is still
// reported so callers can present partial information.
type ScanResult struct {
	DevicePath string
	Identity   *Identity
}

// ScanHost enumerates the serial devices on the executor's host and probes
// each one over the same shared connection.
func ScanHost(ctx context.Context, executor remote.Executor) ([]ScanResult, error) {
	stdout, _, _, err := executor.Run(listSerialDevicesCommand)
	if err != nil {
		return nil, errors.Wrap(err, "list serial devices")
	}

	var results []ScanResult
	for _, devicePath := range strings.Fields(stdout) {
		identity, err := Discover(ctx, executor, devicePath)
		if err != nil {
			log.FromContext(ctx).WithField("device_path", devicePath).WithError(err).Warn("discovery failed")
			identity = nil
		}
		results = append(results, ScanResult{DevicePath: devicePath, Identity: identity})
	}
	return results, nil
}

// USBPath looks up the physical bus path (udev ID_PATH) of a serial device,
// used for persistent naming. Empty when unavailable.
func USBPath(executor remote.Executor, devicePath string) string {
	stdout, _, code, err := executor.Run(fmt.Sprintf("udevadm info -q property -n %s 2>/dev/null", devicePath))
	if err != nil || code != 0 {
		return ""
	}
	for _, line := range strings.Split(stdout, "\n") {
		if value, ok := strings.CutPrefix(strings.TrimSpace(line), "ID_PATH="); ok {
			return value
		}
	}
	return ""
}
