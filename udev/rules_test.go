package udev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/esprelay/esprelay/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRules(t *testing.T) {
	devices := []registry.Device{
		{Name: "sensor-hub", USBPath: "platform-fd500000.pcie-pci-0000:01:00.0-usb-0:1.3:1.0"},
		{Name: "no-path"},
	}

	rules := GenerateRules(devices)
	assert.Contains(t, rules, `ENV{ID_PATH}=="platform-fd500000.pcie-pci-0000:01:00.0-usb-0:1.3:1.0"`)
	assert.Contains(t, rules, `SYMLINK+="sensor-hub"`)
	assert.NotContains(t, rules, "no-path", "devices without a USB path are skipped")
}

func TestSaveRules(t *testing.T) {
	dir := t.TempDir()
	devices := []registry.Device{{Name: "sensor-hub", USBPath: "usb-0:1.3:1.0"}}

	require.NoError(t, SaveRules(dir, devices))

	data, err := os.ReadFile(filepath.Join(dir, "udev", "99-esprelay.rules"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `SYMLINK+="sensor-hub"`)
}
