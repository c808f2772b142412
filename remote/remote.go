// Package remote executes shell commands on named hosts over SSH.
//
// A Client is a scoped, authenticated session: connection setup is expensive,
// so one Client is dialed per logical operation (a scan of N devices on one
// host opens the session once) and always closed afterwards.
package remote

import (
	"fmt"
	"os"
	"strings"
)

// Executor runs a shell command on a remote host and returns its output and
// exit status. A non-zero exit code is the remote command's own failure and
// is not an error; err is reserved for transport-level failures.
type Executor interface {
	Run(command string) (stdout, stderr string, exitCode int, err error)
}

// ConnectionError marks a host as unreachable or authentication as failed.
// It is fatal for the current operation and is never retried automatically.
type ConnectionError struct {
	Host string
	Err  error
}

func (e ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %s", e.Host, e.Err)
}

func (e ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is a transport-level failure, as
// opposed to a remote command exiting non-zero.
func IsConnectionError(err error) bool {
	_, ok := err.(ConnectionError)
	return ok
}

// Host is a parsed user@hostname target.
type Host struct {
	User     string
	Hostname string
}

func (h Host) String() string {
	return h.User + "@" + h.Hostname
}

// ParseHost splits a user@hostname string. A bare hostname gets defaultUser,
// falling back to $USER and then "pi" when defaultUser is empty.
func ParseHost(s, defaultUser string) Host {
	if user, hostname, ok := strings.Cut(s, "@"); ok {
		return Host{User: user, Hostname: hostname}
	}
	user := defaultUser
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		user = "pi"
	}
	return Host{User: user, Hostname: s}
}
