// Package udev generates and installs rules that give each registered device
// a persistent /dev/<name> symlink keyed on its physical USB bus path, so
// serial paths survive reboots and re-enumeration.
package udev

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/esprelay/esprelay/registry"
	"github.com/esprelay/esprelay/remote"
	"github.com/pkg/errors"
)

const rulesPath = "/etc/udev/rules.d/99-esprelay.rules"

// GenerateRules renders udev rules for every device that has a recorded USB
// path. Devices without one are skipped; they cannot be pinned.
func GenerateRules(devices []registry.Device) string {
	var b strings.Builder
	b.WriteString("# Generated by esprelay. Do not edit by hand.\n")
	for _, device := range devices {
		if device.USBPath == "" {
			continue
		}
		fmt.Fprintf(&b,
			"SUBSYSTEM==\"tty\", ENV{ID_PATH}==\"%s\", SYMLINK+=\"%s\", MODE=\"0666\"\n",
			device.USBPath, device.Name,
		)
	}
	return b.String()
}

// SaveRules writes the generated rules into the registry directory so they
// travel with the synced registry.
func SaveRules(registryDir string, devices []registry.Device) error {
	dir := filepath.Join(registryDir, "udev")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	path := filepath.Join(dir, "99-esprelay.rules")
	return errors.Wrapf(os.WriteFile(path, []byte(GenerateRules(devices)), 0o644), "write %s", path)
}

// Install writes the rules on the remote host and triggers a reload so the
// symlinks appear without a reboot.
func Install(executor remote.Executor, rules string) error {
	safe := strings.ReplaceAll(rules, "'", `'"'"'`)
	_, stderr, code, err := executor.Run(fmt.Sprintf("echo '%s' | sudo tee %s > /dev/null", safe, rulesPath))
	if err != nil {
		return err
	}
	if code != 0 {
		return errors.Errorf("write %s: %s", rulesPath, strings.TrimSpace(stderr))
	}

	_, stderr, code, err = executor.Run("sudo udevadm control --reload-rules && sudo udevadm trigger")
	if err != nil {
		return err
	}
	if code != 0 {
		return errors.Errorf("reload udev rules: %s", strings.TrimSpace(stderr))
	}
	return nil
}
