package registry

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// document is the full persisted registry: a TOML document with one
// [device.<name>] table per device. Load -> Save -> Load is lossless.
type document struct {
	Devices map[string]deviceRecord `toml:"device"`
}

type deviceRecord struct {
	ChipID      string `toml:"chip_id"`
	Host        string `toml:"host"`
	USBPath     string `toml:"usb_path"`
	RemotePort  int    `toml:"remote_port"`
	LocalPort   int    `toml:"local_port"`
	Description string `toml:"description"`
}

func newDeviceRecord(d Device) deviceRecord {
	return deviceRecord{
		ChipID:      d.ChipID,
		Host:        d.Host,
		USBPath:     d.USBPath,
		RemotePort:  d.RemotePort,
		LocalPort:   d.LocalPort,
		Description: d.Description,
	}
}

func (rec deviceRecord) device(name string) Device {
	return Device{
		Name:        name,
		ChipID:      rec.ChipID,
		Host:        rec.Host,
		USBPath:     rec.USBPath,
		RemotePort:  rec.RemotePort,
		LocalPort:   rec.LocalPort,
		Description: rec.Description,
	}
}

// Store persists the registry document at an explicit path. A missing file
// loads as an empty document; anything unparseable is a hard error, since a
// corrupt registry must abort the invocation rather than be rewritten.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	return &Store{Path: path}
}

func (s *Store) Load() (document, error) {
	doc := document{Devices: make(map[string]deviceRecord)}

	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return doc, nil
	} else if err != nil {
		return doc, errors.Wrapf(err, "read %s", s.Path)
	}

	if err := toml.Unmarshal(data, &doc); err != nil {
		return doc, errors.Wrapf(err, "parse %s", s.Path)
	}
	if doc.Devices == nil {
		doc.Devices = make(map[string]deviceRecord)
	}
	return doc, nil
}

// Save atomically rewrites the whole document: marshal, write to a temp file
// in the same directory, rename over the target.
func (s *Store) Save(doc document) error {
	data, err := toml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "marshal device registry")
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".devices-*.toml")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}

	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return errors.Wrapf(err, "rename into %s", s.Path)
	}
	return nil
}
