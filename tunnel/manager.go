// Package tunnel manages background SSH port-forwarding sessions between
// local ports and remote hosts. A tunnel is never persisted: its only state
// is the forwarding process in the OS process table and the local socket it
// binds, both of which are re-derived on every query.
package tunnel

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/esprelay/esprelay/log"
	"github.com/esprelay/esprelay/remote"
	"github.com/pkg/errors"
)

const (
	// ProbeTimeout bounds the liveness probe's TCP connect.
	ProbeTimeout = 1 * time.Second

	// ConfirmTimeout is how long Create waits for a freshly launched
	// forwarder to accept connections before declaring failure.
	ConfirmTimeout = 3 * time.Second

	// confirmInterval is the polling step within the confirmation window.
	confirmInterval = 250 * time.Millisecond

	// KillGrace is how long a terminated forwarder gets to release its
	// port before the port is reused.
	KillGrace = 500 * time.Millisecond

	// keepaliveInterval keeps idle tunnels from being dropped by
	// intermediate NATs. Seconds, passed to ssh ServerAliveInterval.
	keepaliveInterval = 30
)

// ProcessError reports a spawn or signal failure for a forwarding process.
// It is reported to the caller as-is; the manager never retries.
type ProcessError struct {
	Op   string
	Port int
	Err  error
}

func (e ProcessError) Error() string {
	return fmt.Sprintf("%s (local port %d): %s", e.Op, e.Port, e.Err)
}

func (e ProcessError) Unwrap() error {
	return e.Err
}

// Manager creates, detects, and tears down forwarding sessions. The zero
// value is not usable; construct with NewManager.
type Manager struct {
	Procs Inspector

	ProbeTimeout   time.Duration
	ConfirmTimeout time.Duration
	KillGrace      time.Duration

	runCommand func(ctx context.Context, name string, args ...string) error
}

func NewManager(procs Inspector) *Manager {
	return &Manager{
		Procs:          procs,
		ProbeTimeout:   ProbeTimeout,
		ConfirmTimeout: ConfirmTimeout,
		KillGrace:      KillGrace,
		runCommand:     runForeground,
	}
}

// runForeground runs a command to completion, folding stderr into the error.
// Stderr must be a file, not a pipe: a backgrounding launcher like ssh -f
// hands its stderr to the detached child, and a pipe would keep Run waiting
// for the child's whole lifetime instead of the launcher's.
func runForeground(ctx context.Context, name string, args ...string) error {
	stderr, err := os.CreateTemp("", "esprelay-launch-*.stderr")
	if err != nil {
		return errors.Wrap(err, "create stderr file")
	}
	defer os.Remove(stderr.Name())
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		data, _ := os.ReadFile(stderr.Name())
		if msg := strings.TrimSpace(string(data)); msg != "" {
			return errors.Wrap(err, msg)
		}
		return err
	}
	return nil
}

// IsOpen reports whether something is accepting TCP connections on loopback
// at localPort right now.
func (m *Manager) IsOpen(localPort int) bool {
	return isPortOpen(localPort, m.ProbeTimeout)
}

// FindProcess locates a background forwarding process whose arguments bind
// localPort (the `-L <port>` form the launcher uses). Zero matches reports
// ok=false; multiple matches yield the first.
func (m *Manager) FindProcess(localPort int) (pid int32, ok bool, err error) {
	infos, err := m.Procs.Processes()
	if err != nil {
		return 0, false, errors.Wrap(err, "inspect process table")
	}
	for _, info := range infos {
		if isForwarderFor(info.Args, localPort) {
			return info.PID, true, nil
		}
	}
	return 0, false, nil
}

// isForwarderFor matches an ssh invocation carrying a -L forward bound to
// localPort, in either the split ("-L", "4000:...") or joined ("-L4000:...")
// argument form.
func isForwarderFor(args []string, localPort int) bool {
	if len(args) == 0 || !strings.HasSuffix(args[0], "ssh") {
		return false
	}
	prefix := strconv.Itoa(localPort) + ":"
	for i, arg := range args {
		if arg == "-L" && i+1 < len(args) && strings.HasPrefix(args[i+1], prefix) {
			return true
		}
		if strings.HasPrefix(arg, "-L") && strings.HasPrefix(strings.TrimPrefix(arg, "-L"), prefix) {
			return true
		}
	}
	return false
}

// Create launches a background forwarding session binding localPort on this
// machine to remotePort on host. It is idempotent by port: an existing
// forwarder on localPort is terminated first, with a grace period, so stale
// forwards are never left to shadow the new one.
//
// Success means the port was confirmed live by a probe within the
// confirmation window. A launched-but-unconfirmed process counts as failure,
// because callers need a definite yes or no. The spawned process is
// fire-and-forget and outlives this invocation.
func (m *Manager) Create(ctx context.Context, host remote.Host, localPort, remotePort int) error {
	logger := log.FromContext(ctx).WithField("local_port", localPort)

	if pid, ok, err := m.FindProcess(localPort); err != nil {
		return ProcessError{Op: "find existing forwarder", Port: localPort, Err: err}
	} else if ok {
		logger.WithField("pid", pid).Info("terminating existing forwarder")
		if err := m.Procs.Terminate(pid); err != nil {
			return ProcessError{Op: "terminate existing forwarder", Port: localPort, Err: err}
		}
		time.Sleep(m.KillGrace)
	}

	// -f backgrounds after authentication, so a launch failure (auth,
	// unreachable host, refused remote port) surfaces here as a non-zero
	// exit. The -L argument is what FindProcess recovers later.
	args := []string{
		"-f", "-N",
		"-L", fmt.Sprintf("%d:127.0.0.1:%d", localPort, remotePort),
		"-o", "ExitOnForwardFailure=yes",
		"-o", fmt.Sprintf("ServerAliveInterval=%d", keepaliveInterval),
		host.String(),
	}
	logger.WithField("host", host.String()).WithField("remote_port", remotePort).Debug("launching forwarder")
	if err := m.runCommand(ctx, "ssh", args...); err != nil {
		return ProcessError{Op: "launch forwarder", Port: localPort, Err: err}
	}

	// Confirm the forward is actually accepting connections.
	confirm := backoff.WithContext(
		backoff.NewConstantBackOff(confirmInterval),
		ctx,
	)
	deadline := time.Now().Add(m.ConfirmTimeout)
	err := backoff.Retry(func() error {
		if m.IsOpen(localPort) {
			return nil
		}
		if time.Now().After(deadline) {
			return backoff.Permanent(errors.New("port did not open within confirmation window"))
		}
		return errors.New("port not open yet")
	}, confirm)
	if err != nil {
		return ProcessError{Op: "confirm forwarder", Port: localPort, Err: err}
	}
	return nil
}

// Kill terminates the forwarding process associated with localPort, if any,
// and reports whether one was found and signaled. Termination is graceful; a
// port with no known process is not an error.
func (m *Manager) Kill(localPort int) (bool, error) {
	pid, ok, err := m.FindProcess(localPort)
	if err != nil {
		return false, ProcessError{Op: "find forwarder", Port: localPort, Err: err}
	}
	if !ok {
		return false, nil
	}
	if err := m.Procs.Terminate(pid); err != nil {
		return false, ProcessError{Op: "terminate forwarder", Port: localPort, Err: err}
	}
	return true, nil
}
