// Package tcpfanout broadcasts a pipeline's framed output to any number of
// TCP clients: each connection gets the START handshake and header on
// connect, then every frame broadcast afterward, length-prefixed.
package tcpfanout

import (
	"encoding/binary"
	"log"
	"net"
	"sync"
)

// Server accepts TCP clients and fans out frames published via Broadcast.
// New clients replay the fixed header (set once, at construction) before
// joining the live broadcast.
type Server struct {
	header []byte

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn net.Conn
	ch   chan []byte
}

// NewServer returns a fan-out server that sends header to every new
// client before subscribing it to live broadcasts.
func NewServer(header []byte) *Server {
	return &Server{
		header:  header,
		clients: make(map[*client]struct{}),
	}
}

// Serve accepts connections on addr until the listener errors or is
// closed. Each connection is handled in its own goroutine.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Printf("tcpfanout: listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		log.Printf("tcpfanout: client connected: %s", conn.RemoteAddr())
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	if err := writeFrame(conn, []byte("START")); err != nil {
		log.Printf("tcpfanout: %s: handshake write failed: %v", conn.RemoteAddr(), err)
		return
	}
	if err := writeFrame(conn, s.header); err != nil {
		log.Printf("tcpfanout: %s: header write failed: %v", conn.RemoteAddr(), err)
		return
	}

	c := &client{conn: conn, ch: make(chan []byte, 256)}
	s.addClient(c)
	defer s.removeClient(c)

	for msg := range c.ch {
		if err := writeFrame(conn, msg); err != nil {
			log.Printf("tcpfanout: %s: write failed: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
	log.Printf("tcpfanout: client disconnected: %s", c.conn.RemoteAddr())
}

// Broadcast sends frame to every connected client. A client whose send
// buffer is full is dropped rather than allowed to block the rest of the
// fan-out — the reference design logs lag instead; dropping the slow
// client achieves the same goal without an unbounded backlog.
func (s *Server) Broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.ch <- frame:
		default:
			log.Printf("tcpfanout: %s: lagging, dropping client", c.conn.RemoteAddr())
			delete(s.clients, c)
			close(c.ch)
		}
	}
}

// Sink adapts Broadcast to the pipeline.Sink signature.
func (s *Server) Sink(frame []byte) error {
	cp := append([]byte(nil), frame...)
	s.Broadcast(cp)
	return nil
}

func writeFrame(conn net.Conn, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}
