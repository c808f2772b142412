package tunnel

import (
	"net"
	"strconv"
	"time"
)

// isPortOpen attempts a short-timeout TCP connect to loopback at port. It is
// a point-in-time probe, never a cached flag: the OS socket state is the only
// source of truth for whether a tunnel is alive.
func isPortOpen(port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
