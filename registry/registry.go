package registry

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// DefaultPortBase is the first remote port considered by AllocatePort.
const DefaultPortBase = 4000

var ErrDeviceNotFound = errors.New("device not found")

// PortConflictError reports a remote port already claimed by another device
// on the same host. The allocation policy should prevent this; it is checked
// on every write so corruption is surfaced rather than persisted.
type PortConflictError struct {
	Host string
	Port int
	Name string
}

func (e PortConflictError) Error() string {
	return fmt.Sprintf("remote port %d on %s is already assigned to %q", e.Port, e.Host, e.Name)
}

// Device is one registered unit: identity plus connectivity metadata.
//
// LocalPort defaults to RemotePort at registration but is independently
// addressable. Local ports are a resource of the operator machine, so no
// cross-host uniqueness is enforced; avoiding collisions between hosts is the
// caller's responsibility.
type Device struct {
	Name        string
	ChipID      string
	Host        string
	USBPath     string
	RemotePort  int
	LocalPort   int
	Description string
}

// Registry is the in-memory view over the persisted device document. Every
// mutation reloads nothing and rewrites everything: Add and Remove persist
// the whole document immediately. Concurrent invocations of the tool are not
// coordinated against each other; last write wins.
type Registry struct {
	store *Store
	doc   document
}

// NewRegistry loads the persisted document through store.
func NewRegistry(store *Store) (*Registry, error) {
	doc, err := store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load device registry")
	}
	return &Registry{store: store, doc: doc}, nil
}

// List returns all registered devices, sorted by name for stable output.
func (r *Registry) List() []Device {
	devices := make([]Device, 0, len(r.doc.Devices))
	for name, rec := range r.doc.Devices {
		devices = append(devices, rec.device(name))
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// Get returns the device registered under name, or ErrDeviceNotFound.
func (r *Registry) Get(name string) (Device, error) {
	rec, ok := r.doc.Devices[name]
	if !ok {
		return Device{}, errors.Wrapf(ErrDeviceNotFound, "%q", name)
	}
	return rec.device(name), nil
}

// ByHost returns the devices whose host field equals host exactly. No
// normalization across user@host variants happens here; callers normalize
// before querying.
func (r *Registry) ByHost(host string) []Device {
	var devices []Device
	for _, d := range r.List() {
		if d.Host == host {
			devices = append(devices, d)
		}
	}
	return devices
}

// Add inserts or fully replaces the record for device.Name and persists the
// document. Replacement has no merge semantics: every field is overwritten
// with whatever the caller supplies, including blanks.
func (r *Registry) Add(device Device) error {
	if device.Name == "" {
		return errors.New("device name is required")
	}
	for name, rec := range r.doc.Devices {
		if name != device.Name && rec.Host == device.Host && rec.RemotePort == device.RemotePort {
			return PortConflictError{Host: device.Host, Port: device.RemotePort, Name: name}
		}
	}
	if r.doc.Devices == nil {
		r.doc.Devices = make(map[string]deviceRecord)
	}
	r.doc.Devices[device.Name] = newDeviceRecord(device)
	return r.store.Save(r.doc)
}

// Remove deletes the named device if present, persists, and reports whether
// anything was removed.
func (r *Registry) Remove(name string) (bool, error) {
	if _, ok := r.doc.Devices[name]; !ok {
		return false, nil
	}
	delete(r.doc.Devices, name)
	if err := r.store.Save(r.doc); err != nil {
		return false, err
	}
	return true, nil
}

// AllocatePort returns the smallest port >= base not used as a remote port by
// any device on host. Pure function of the current document: calling it twice
// without an intervening Add yields the same value. Freed ports below a used
// one are reused before scanning higher.
//
// The port is not reserved; two near-simultaneous registrations against the
// same host can race to the same value. Accepted for single-operator usage.
func (r *Registry) AllocatePort(host string, base int) int {
	used := make(map[int]bool)
	for _, d := range r.ByHost(host) {
		used[d.RemotePort] = true
	}
	port := base
	for used[port] {
		port++
	}
	return port
}
