package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/esprelay/esprelay/log"
	"github.com/esprelay/esprelay/registry"
	"github.com/esprelay/esprelay/remote"
	"github.com/esprelay/esprelay/tunnel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

const (
	ConfigRegistryDir    = "registry.dir"
	ConfigSSHUser        = "ssh.user"
	ConfigSSHDialTimeout = "ssh.dial_timeout"
	ConfigPortBase       = "port.base"
	ConfigSerialBaud     = "serial.baud"
	ConfigLogLevel       = "log.level"
	ConfigLogFormat      = "log.format"
)

var config *viper.Viper

var rootCommand = &cobra.Command{
	Use:   "esprelay",
	Short: "Remote embedded device development with a device registry",
	Long: `esprelay manages embedded devices attached to remote Linux hosts:
persistent naming, per-host port allocation, SSH forwarding tunnels, and a
git-synced device registry, so programming tools can address remote devices
as if locally attached.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func initDefaults(config *viper.Viper) {
	home, _ := os.UserHomeDir()
	config.SetDefault(ConfigRegistryDir, filepath.Join(home, ".esprelay", "registry"))
	config.SetDefault(ConfigSSHDialTimeout, 10*time.Second)
	config.SetDefault(ConfigPortBase, registry.DefaultPortBase)
	config.SetDefault(ConfigSerialBaud, 115200)
	config.SetDefault(ConfigLogLevel, "info")
	config.SetDefault(ConfigLogFormat, "text")
}

func newConfig() *viper.Viper {
	config := viper.New()
	config.AutomaticEnv()
	config.SetEnvPrefix("ESPRELAY")
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	initDefaults(config)
	return config
}

func registryDir() string {
	return config.GetString(ConfigRegistryDir)
}

// openRegistry loads the persisted device document into memory.
func openRegistry() (*registry.Registry, error) {
	store := registry.NewStore(filepath.Join(registryDir(), registry.DevicesFile))
	return registry.NewRegistry(store)
}

func clientOptions() remote.ClientOptions {
	return remote.ClientOptions{
		DefaultUser: config.GetString(ConfigSSHUser),
		DialTimeout: config.GetDuration(ConfigSSHDialTimeout),
	}
}

func newTunnelManager() *tunnel.Manager {
	return tunnel.NewManager(tunnel.NewInspector())
}

// dialHost opens one authenticated SSH session for the duration of a command.
func dialHost(cmd *cobra.Command, host string) (*remote.Client, error) {
	return remote.Dial(cmd.Context(), host, clientOptions())
}

// hostDevices returns the devices registered for host, trying both the exact
// string and its user@hostname normalization. The registry itself does no
// normalization across variants.
func hostDevices(reg *registry.Registry, host string) []registry.Device {
	devices := reg.ByHost(host)
	if len(devices) == 0 {
		full := remote.ParseHost(host, config.GetString(ConfigSSHUser)).String()
		devices = reg.ByHost(full)
	}
	return devices
}

func main() {
	config = newConfig()
	log.Init(config.GetString(ConfigLogLevel), config.GetString(ConfigLogFormat))

	rootCommand.AddCommand(
		initCommand,
		syncCommand,
		scanCommand,
		registerCommand,
		unregisterCommand,
		connectCommand,
		disconnectCommand,
		statusCommand,
		verifyCommand,
		monitorCommand,
		setupCommand,
		udevInstallCommand,
		devicesCommand,
	)

	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
