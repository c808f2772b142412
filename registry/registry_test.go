package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "devices.toml"))
	reg, err := NewRegistry(store)
	require.NoError(t, err)
	return reg
}

func testDevice(name, host string, port int) Device {
	return Device{
		Name:        name,
		ChipID:      "0x00ddeeff",
		Host:        host,
		USBPath:     "usb-0:1.3:1.0",
		RemotePort:  port,
		LocalPort:   port,
		Description: "bench unit",
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	store := NewStore(path)

	reg, err := NewRegistry(store)
	require.NoError(t, err)
	require.NoError(t, reg.Add(testDevice("alpha", "pi@bench-1", 4000)))
	require.NoError(t, reg.Add(testDevice("beta", "pi@bench-1", 4001)))

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// Load -> save -> load must be the identity on the document.
	reloaded, err := NewRegistry(store)
	require.NoError(t, err)
	require.NoError(t, reloaded.store.Save(reloaded.doc))

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	again, err := NewRegistry(store)
	require.NoError(t, err)
	assert.Equal(t, reg.List(), again.List())
}

func TestLoadMissingFile(t *testing.T) {
	reg, err := NewRegistry(NewStore(filepath.Join(t.TempDir(), "devices.toml")))
	require.NoError(t, err)
	assert.Empty(t, reg.List())
}

func TestLoadCorruptDocumentFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	require.NoError(t, os.WriteFile(path, []byte("[device\nnot toml"), 0o644))

	_, err := NewRegistry(NewStore(path))
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Add(testDevice("alpha", "pi@bench-1", 4000)))

	device, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "pi@bench-1", device.Host)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestByHost(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Add(testDevice("alpha", "pi@bench-1", 4000)))
	require.NoError(t, reg.Add(testDevice("beta", "pi@bench-2", 4000)))
	require.NoError(t, reg.Add(testDevice("gamma", "pi@bench-1", 4001)))

	assert.Len(t, reg.ByHost("pi@bench-1"), 2)
	assert.Len(t, reg.ByHost("pi@bench-2"), 1)

	// Exact match only: no normalization across user@host variants.
	assert.Empty(t, reg.ByHost("bench-1"))
}

func TestAddReplacesEveryField(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Add(testDevice("alpha", "pi@bench-1", 4000)))

	// Re-registration with blanks erases prior metadata; Add has no merge.
	replacement := Device{Name: "alpha", ChipID: "0xBEEF", Host: "pi@bench-1", RemotePort: 4000, LocalPort: 4000}
	require.NoError(t, reg.Add(replacement))

	device, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "0xBEEF", device.ChipID)
	assert.Empty(t, device.USBPath)
	assert.Empty(t, device.Description)
}

func TestAddDetectsPortConflict(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Add(testDevice("alpha", "pi@bench-1", 4000)))

	err := reg.Add(testDevice("beta", "pi@bench-1", 4000))
	var conflict PortConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 4000, conflict.Port)
	assert.Equal(t, "alpha", conflict.Name)

	// Same port on a different host is fine: ports are a per-host resource.
	assert.NoError(t, reg.Add(testDevice("gamma", "pi@bench-2", 4000)))

	// Re-adding the same name with its own port is not a conflict.
	assert.NoError(t, reg.Add(testDevice("alpha", "pi@bench-1", 4000)))
}

func TestRemove(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Add(testDevice("alpha", "pi@bench-1", 4000)))

	removed, err := reg.Remove("alpha")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reg.Remove("alpha")
	require.NoError(t, err)
	assert.False(t, removed)

	// Removal persisted.
	reloaded, err := NewRegistry(reg.store)
	require.NoError(t, err)
	assert.Empty(t, reloaded.List())
}

func TestAllocatePort(t *testing.T) {
	reg := newTestRegistry(t)

	assert.Equal(t, 4000, reg.AllocatePort("pi@bench-1", DefaultPortBase))
	// Pure function of current state: same answer until an Add intervenes.
	assert.Equal(t, 4000, reg.AllocatePort("pi@bench-1", DefaultPortBase))

	require.NoError(t, reg.Add(testDevice("alpha", "pi@bench-1", 4000)))
	require.NoError(t, reg.Add(testDevice("beta", "pi@bench-1", 4001)))
	assert.Equal(t, 4002, reg.AllocatePort("pi@bench-1", DefaultPortBase))

	// Other hosts have their own port namespace.
	assert.Equal(t, 4000, reg.AllocatePort("pi@bench-2", DefaultPortBase))

	// A hole left by removal is reused before scanning higher.
	_, err := reg.Remove("alpha")
	require.NoError(t, err)
	assert.Equal(t, 4000, reg.AllocatePort("pi@bench-1", DefaultPortBase))
}

func TestReRegistrationPreservesPort(t *testing.T) {
	reg := newTestRegistry(t)
	port := reg.AllocatePort("pi@bench-1", DefaultPortBase)
	require.NoError(t, reg.Add(testDevice("alpha", "pi@bench-1", port)))

	// The caller's preservation contract: Get then Add with the old port.
	existing, err := reg.Get("alpha")
	require.NoError(t, err)

	updated := testDevice("alpha", "pi@bench-1", existing.RemotePort)
	updated.Description = "moved to rack 2"
	require.NoError(t, reg.Add(updated))

	device, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, port, device.RemotePort)
	assert.Equal(t, "moved to rack 2", device.Description)
}
