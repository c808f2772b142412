package monitor

import (
	"bufio"
	"io"
	"net"
)

// Telnet protocol bytes used by the RFC2217 accepter on the remote side.
const (
	telnetIAC  = 255
	telnetDont = 254
	telnetDo   = 253
	telnetWont = 252
	telnetWill = 251
	telnetSB   = 250
	telnetSE   = 240
)

// telnetConn wraps the raw TCP connection to the RFC2217 endpoint. Reads
// strip telnet command sequences (refusing every negotiation, since the
// monitor only wants the byte stream); writes escape literal 0xFF bytes.
type telnetConn struct {
	conn net.Conn
	br   *bufio.Reader
}

func newTelnetConn(conn net.Conn) *telnetConn {
	return &telnetConn{conn: conn, br: bufio.NewReader(conn)}
}

func (t *telnetConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n == 0 {
		b, err := t.br.ReadByte()
		if err != nil {
			return n, err
		}
		if b != telnetIAC {
			p[n] = b
			n++
			continue
		}

		cmd, err := t.br.ReadByte()
		if err != nil {
			return n, err
		}
		switch cmd {
		case telnetIAC:
			// Escaped literal 0xFF.
			p[n] = telnetIAC
			n++
		case telnetWill, telnetWont, telnetDo, telnetDont:
			opt, err := t.br.ReadByte()
			if err != nil {
				return n, err
			}
			t.refuse(cmd, opt)
		case telnetSB:
			if err := t.skipSubnegotiation(); err != nil {
				return n, err
			}
		default:
			// Two-byte command with no option; drop it.
		}

		// Drain whatever else is buffered without blocking again.
		for t.br.Buffered() > 0 && n < len(p) {
			b, _ := t.br.ReadByte()
			if b == telnetIAC {
				_ = t.br.UnreadByte()
				break
			}
			p[n] = b
			n++
		}
	}
	return n, nil
}

// refuse answers a negotiation request negatively: DONT for WILL, WONT for DO.
func (t *telnetConn) refuse(cmd, opt byte) {
	switch cmd {
	case telnetWill:
		t.conn.Write([]byte{telnetIAC, telnetDont, opt})
	case telnetDo:
		t.conn.Write([]byte{telnetIAC, telnetWont, opt})
	}
}

func (t *telnetConn) skipSubnegotiation() error {
	for {
		b, err := t.br.ReadByte()
		if err != nil {
			return err
		}
		if b != telnetIAC {
			continue
		}
		next, err := t.br.ReadByte()
		if err != nil {
			return err
		}
		if next == telnetSE {
			return nil
		}
	}
}

func (t *telnetConn) Write(p []byte) (int, error) {
	escaped := make([]byte, 0, len(p))
	for _, b := range p {
		if b == telnetIAC {
			escaped = append(escaped, telnetIAC)
		}
		escaped = append(escaped, b)
	}
	if _, err := t.conn.Write(escaped); err != nil {
		return 0, err
	}
	return len(p), nil
}

var _ io.ReadWriter = (*telnetConn)(nil)

func (t *telnetConn) Close() error {
	return t.conn.Close()
}
