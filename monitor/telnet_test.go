package monitor

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelnetConnReadStripsCommands(t *testing.T) {
	server, client := net.Pipe()
	device := newTelnetConn(client)

	responses := make(chan []byte, 2)
	go func() {
		defer server.Close()

		server.Write([]byte("hi"))

		// Negotiation requests must be refused, not surfaced.
		server.Write([]byte{telnetIAC, telnetWill, 1})
		buf := make([]byte, 3)
		io.ReadFull(server, buf)
		responses <- append([]byte(nil), buf...)

		server.Write([]byte{telnetIAC, telnetDo, 24})
		io.ReadFull(server, buf)
		responses <- append([]byte(nil), buf...)

		// Escaped 0xFF is data; subnegotiation is noise.
		server.Write([]byte{telnetIAC, telnetIAC})
		server.Write([]byte{telnetIAC, telnetSB, 44, 1, 2, telnetIAC, telnetSE})
		server.Write([]byte("ok"))
	}()

	data, err := io.ReadAll(device)
	require.NoError(t, err)
	assert.Equal(t, []byte{'h', 'i', 0xFF, 'o', 'k'}, data)

	assert.Equal(t, []byte{telnetIAC, telnetDont, 1}, <-responses)
	assert.Equal(t, []byte{telnetIAC, telnetWont, 24}, <-responses)
}

func TestTelnetConnReadEmptyBuffer(t *testing.T) {
	_, client := net.Pipe()
	device := newTelnetConn(client)

	// A zero-length read must return immediately without consuming anything.
	n, err := device.Read(nil)
	assert.Zero(t, n)
	assert.NoError(t, err)
}

func TestTelnetConnWriteEscapesIAC(t *testing.T) {
	server, client := net.Pipe()
	device := newTelnetConn(client)

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4)
		io.ReadFull(server, buf)
		received <- buf
	}()

	n, err := device.Write([]byte{1, 0xFF, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, n, "reports logical bytes, not wire bytes")
	assert.Equal(t, []byte{1, 0xFF, 0xFF, 2}, <-received)
}
