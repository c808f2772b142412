package chip

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Captured esptool output, ESP8266 flavor: chip ID and two MAC lines.
const sampleOutputESP8266 = `esptool.py v4.7.0
Serial port /dev/ttyUSB0
Connecting....
Detecting chip type... ESP8266
Chip is ESP8266EX
Features: WiFi
Crystal is 26MHz
MAC: aa:bb:cc:dd:ee:ff
Uploading stub...
Chip ID: 0x00ddeeff
MAC: 11:22:33:44:55:66
Hard resetting via RTS pin...`

// ESP32 flavor: no chip ID, MAC only, different type line.
const sampleOutputESP32 = `esptool.py v4.7.0
Serial port /dev/ttyACM0
Chip type: ESP32-S3
MAC: 7c:df:a1:00:11:22
Warning: ESP32-S3 has no Chip ID. Reading MAC instead.`

func TestParseIdentity(t *testing.T) {
	t.Run("esp8266 output", func(t *testing.T) {
		identity, ok := ParseIdentity(sampleOutputESP8266, "/dev/ttyUSB0")
		require.True(t, ok)
		assert.Equal(t, "ESP8266EX", identity.ChipType)
		assert.Equal(t, "0x00ddeeff", identity.ChipID)
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", identity.MAC, "first MAC wins")
		assert.Equal(t, "/dev/ttyUSB0", identity.DevicePath)
	})

	t.Run("esp32 output without chip id", func(t *testing.T) {
		identity, ok := ParseIdentity(sampleOutputESP32, "/dev/ttyACM0")
		require.True(t, ok)
		assert.Equal(t, "ESP32-S3", identity.ChipType)
		assert.Empty(t, identity.ChipID)
		assert.Equal(t, "7c:df:a1:00:11:22", identity.MAC)
	})

	t.Run("chip type alone is no identity", func(t *testing.T) {
		_, ok := ParseIdentity("Detecting chip type...\nChip is ESP32\nDone.", "/dev/ttyUSB0")
		assert.False(t, ok)
	})

	t.Run("garbage output", func(t *testing.T) {
		_, ok := ParseIdentity("error: could not open port", "/dev/ttyUSB0")
		assert.False(t, ok)
	})
}

func TestIdentityID(t *testing.T) {
	assert.Equal(t, "0xABCD", Identity{ChipID: "0xABCD", MAC: "aa:bb"}.ID())
	assert.Equal(t, "aa:bb", Identity{MAC: "aa:bb"}.ID())
	assert.Empty(t, Identity{}.ID())
}

func TestVerify(t *testing.T) {
	identity := Identity{ChipID: "0xABCD", MAC: "AA:BB:CC:DD:EE:FF"}

	tests := []struct {
		name     string
		identity Identity
		expected string
		matched  bool
	}{
		{"combined path, case-insensitive", identity, "0xabcd", true},
		{"mac fallback when combined misses", identity, "aa:bb:cc:dd:ee:ff", true},
		{"mac-only identity", Identity{MAC: "AA:BB:CC:DD:EE:FF"}, "aa:bb:cc:dd:ee:ff", true},
		{"mismatch", identity, "0xDEAD", false},
		{"empty identity", Identity{}, "0xABCD", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			matched, detail := Verify(test.identity, test.expected)
			assert.Equal(t, test.matched, matched)
			assert.NotEmpty(t, detail)
		})
	}

	t.Run("mismatch detail names both values", func(t *testing.T) {
		_, detail := Verify(identity, "0xDEAD")
		assert.Contains(t, detail, "0xDEAD")
		assert.Contains(t, detail, "0xABCD")
	})
}

// mockExecutor scripts responses per command substring, in order of
// registration, and records every command it ran.
type mockExecutor struct {
	responses []mockResponse
	commands  []string
}

type mockResponse struct {
	match  string
	stdout string
	stderr string
	code   int
	err    error
}

func (m *mockExecutor) Run(command string) (string, string, int, error) {
	m.commands = append(m.commands, command)
	for i, r := range m.responses {
		if strings.Contains(command, r.match) {
			m.responses = append(m.responses[:i], m.responses[i+1:]...)
			return r.stdout, r.stderr, r.code, r.err
		}
	}
	return "", "", 0, nil
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		executor := &mockExecutor{responses: []mockResponse{
			{match: "chip-id", stdout: sampleOutputESP8266},
		}}
		identity, err := Discover(ctx, executor, "/dev/ttyUSB0")
		require.NoError(t, err)
		require.NotNil(t, identity)
		assert.Equal(t, "0x00ddeeff", identity.ChipID)
	})

	t.Run("missing tool triggers one install and retry", func(t *testing.T) {
		executor := &mockExecutor{responses: []mockResponse{
			{match: "chip-id", stdout: "bash: esptool: command not found", code: 127},
			{match: "pip install", code: 0},
			{match: "chip-id", stdout: sampleOutputESP32},
		}}
		identity, err := Discover(ctx, executor, "/dev/ttyACM0")
		require.NoError(t, err)
		require.NotNil(t, identity)
		assert.Equal(t, "7c:df:a1:00:11:22", identity.MAC)
		assert.Len(t, executor.commands, 3)
	})

	t.Run("retry failure is no identity", func(t *testing.T) {
		executor := &mockExecutor{responses: []mockResponse{
			{match: "chip-id", stdout: "bash: esptool: command not found", code: 127},
			{match: "pip install", code: 1},
			{match: "chip-id", stdout: "still broken", code: 1},
		}}
		identity, err := Discover(ctx, executor, "/dev/ttyUSB0")
		require.NoError(t, err)
		assert.Nil(t, identity)
	})

	t.Run("unparseable output is no identity, not an error", func(t *testing.T) {
		executor := &mockExecutor{responses: []mockResponse{
			{match: "chip-id", stdout: "A fatal error occurred: Could not connect"},
		}}
		identity, err := Discover(ctx, executor, "/dev/ttyUSB0")
		require.NoError(t, err)
		assert.Nil(t, identity)
	})
}

func TestScanHost(t *testing.T) {
	executor := &mockExecutor{responses: []mockResponse{
		{match: "ls /dev/ttyUSB*", stdout: "/dev/ttyUSB0\n/dev/ttyUSB1\n/dev/ttyACM0\n"},
		{match: "ttyUSB0", stdout: sampleOutputESP8266},
		{match: "ttyUSB1", stdout: "A fatal error occurred", code: 2},
		{match: "ttyACM0", stdout: sampleOutputESP32},
	}}

	results, err := ScanHost(context.Background(), executor)
	require.NoError(t, err)
	require.Len(t, results, 3, "failed paths are still reported")

	assert.NotNil(t, results[0].Identity)
	assert.Nil(t, results[1].Identity)
	assert.NotNil(t, results[2].Identity)
	assert.Equal(t, "/dev/ttyUSB1", results[1].DevicePath)
}

func TestUSBPath(t *testing.T) {
	executor := &mockExecutor{responses: []mockResponse{
		{match: "udevadm", stdout: "ID_BUS=usb\nID_PATH=platform-fd500000.pcie-pci-0000:01:00.0-usb-0:1.3:1.0\nID_MODEL=CP2102\n"},
	}}
	assert.Equal(t,
		"platform-fd500000.pcie-pci-0000:01:00.0-usb-0:1.3:1.0",
		USBPath(executor, "/dev/ttyUSB0"),
	)

	empty := &mockExecutor{responses: []mockResponse{{match: "udevadm", code: 1}}}
	assert.Empty(t, USBPath(empty, "/dev/ttyUSB0"))
}
