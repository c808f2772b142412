// Package ser2net generates and installs the remote serial-to-TCP service
// configuration that exposes each device's serial path on its registered
// remote port.
package ser2net

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/esprelay/esprelay/registry"
)

// DefaultBaud is the serial rate configured for connections unless overridden.
const DefaultBaud = 115200

// ser2net wants YAML anchors on each connection entry, which a marshaller
// cannot emit, so the config is rendered from a template instead.
var configTemplate = template.Must(template.New("ser2net").Parse(`%YAML 1.1
---
{{- range .Connections}}

connection: &{{.Anchor}}
  accepter: telnet(rfc2217),tcp,{{.RemotePort}}
  connector: serialdev,{{.DevicePath}},{{.Baud}}n81,local
  options:
    kickolduser: true
{{- end}}
`))

type connection struct {
	Anchor     string
	RemotePort int
	DevicePath string
	Baud       int
}

// GenerateConfig renders a ser2net.yaml for the given devices. Devices with a
// recorded USB path are addressed through their persistent /dev/<name>
// symlink (created by the udev rules); the rest fall back to enumeration
// order.
func GenerateConfig(devices []registry.Device, baud int) (string, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}

	conns := make([]connection, len(devices))
	for i, device := range devices {
		devicePath := "/dev/ttyUSB" + strconv.Itoa(i)
		if device.USBPath != "" {
			devicePath = "/dev/" + device.Name
		}
		conns[i] = connection{
			Anchor:     strings.ReplaceAll(device.Name, "-", "_"),
			RemotePort: device.RemotePort,
			DevicePath: devicePath,
			Baud:       baud,
		}
	}

	var out strings.Builder
	if err := configTemplate.Execute(&out, struct{ Connections []connection }{conns}); err != nil {
		return "", err
	}
	return out.String(), nil
}
