package tcpfanout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrBadHandshake is returned when a connection doesn't begin with the
// literal "START" frame.
var ErrBadHandshake = errors.New("tcpfanout: missing START handshake")

// Client is a blocking TCP reader for one fan-out connection: it reads the
// handshake and header once via Dial, then frames via ReadFrame.
type Client struct {
	conn net.Conn
}

// Dial connects to addr and performs the START handshake, returning the
// client and the raw header bytes that follow it.
func Dial(addr string) (*Client, []byte, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	c := &Client{conn: conn}

	start, err := c.ReadFrame()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if string(start) != "START" {
		conn.Close()
		return nil, nil, ErrBadHandshake
	}

	header, err := c.ReadFrame()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	return c, header, nil
}

// ReadFrame reads one length-prefixed frame from the connection, blocking
// until a full frame is available.
func (c *Client) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("tcpfanout: read length prefix: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, fmt.Errorf("tcpfanout: read payload: %w", err)
	}
	return buf, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
