package ser2net

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/esprelay/esprelay/remote"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const configPath = "/etc/ser2net.yaml"

// Install ensures ser2net is present on the remote host, writes the config,
// and restarts the service. The executor carries the scoped connection; the
// whole install runs over one session.
func Install(executor remote.Executor, config string) error {
	_, stderr, code, err := executor.Run("which ser2net || sudo apt-get install -y ser2net")
	if err != nil {
		return err
	}
	if code != 0 && strings.Contains(strings.ToLower(stderr), "permission denied") {
		return errors.New("need sudo rights to install ser2net")
	}

	// Single-quote the config for the remote shell.
	safe := strings.ReplaceAll(config, "'", `'"'"'`)
	_, stderr, code, err = executor.Run(fmt.Sprintf("echo '%s' | sudo tee %s > /dev/null", safe, configPath))
	if err != nil {
		return err
	}
	if code != 0 {
		return errors.Errorf("write %s: %s", configPath, strings.TrimSpace(stderr))
	}

	_, stderr, code, err = executor.Run("sudo systemctl restart ser2net && sudo systemctl enable ser2net")
	if err != nil {
		return err
	}
	if code != 0 {
		return errors.Errorf("restart ser2net: %s", strings.TrimSpace(stderr))
	}
	return nil
}

// ServiceStatus is the observed state of the remote ser2net service.
type ServiceStatus struct {
	Active bool
	// Ports are the TCP accepter ports found in the installed config.
	Ports []int
}

// Status queries the remote service state and parses the installed config for
// the ports it serves.
func Status(executor remote.Executor) (ServiceStatus, error) {
	var status ServiceStatus

	stdout, _, _, err := executor.Run("systemctl is-active ser2net")
	if err != nil {
		return status, err
	}
	status.Active = strings.TrimSpace(stdout) == "active"

	stdout, _, code, err := executor.Run("cat " + configPath + " 2>/dev/null")
	if err != nil {
		return status, err
	}
	if code == 0 {
		status.Ports = parseConfigPorts(stdout)
	}
	return status, nil
}

// parseConfigPorts extracts the tcp accepter ports from a ser2net.yaml. The
// file repeats the "connection" key once per device, which a strict unmarshal
// rejects, so the document is walked as a node tree instead.
func parseConfigPorts(config string) []int {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(config), &root); err != nil || len(root.Content) == 0 {
		return nil
	}

	var ports []int
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		if key.Value != "connection" || value.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(value.Content); j += 2 {
			if value.Content[j].Value != "accepter" {
				continue
			}
			// accepter: telnet(rfc2217),tcp,<port>
			fields := strings.Split(value.Content[j+1].Value, ",")
			if port, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
				ports = append(ports, port)
			}
		}
	}
	return ports
}
