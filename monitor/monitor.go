// Package monitor relays bytes between the local terminal and a device's
// RFC2217 endpoint over an open tunnel. It is a straightforward I/O relay:
// all connectivity guarantees come from the tunnel manager.
package monitor

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

const dialTimeout = 3 * time.Second

// Options configure a monitor session.
type Options struct {
	// Raw disables interactive input: bytes flow device -> stdout only.
	Raw bool
}

// Run connects to the RFC2217 endpoint on localPort and relays until the
// user interrupts (Ctrl-C in interactive mode) or the connection drops. When
// stdin is a terminal and Raw is unset, the terminal is switched to raw mode
// and every keystroke is forwarded to the device.
func Run(ctx context.Context, localPort int, options Options) error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort)), dialTimeout)
	if err != nil {
		return errors.Wrapf(err, "connect to local port %d", localPort)
	}
	defer conn.Close()
	device := newTelnetConn(conn)

	stdinFd := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdinFd) && !options.Raw

	if interactive {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return errors.Wrap(err, "set raw terminal mode")
		}
		defer term.Restore(stdinFd, oldState)
	}

	// Bidirectional copy; first side to finish ends the session. Buffered
	// so the losing goroutine does not leak.
	done := make(chan error, 2)

	go func() {
		_, err := io.Copy(os.Stdout, device)
		done <- err
	}()

	if interactive {
		go func() {
			buf := make([]byte, 1)
			for {
				if _, err := os.Stdin.Read(buf); err != nil {
					done <- err
					return
				}
				if buf[0] == 0x03 { // Ctrl-C
					done <- nil
					return
				}
				if _, err := device.Write(buf); err != nil {
					done <- err
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) {
			return errors.Wrap(err, "monitor relay")
		}
		return nil
	}
}
