// Package scpitest provides a line-oriented TCP server standing in for a SCPI
// instrument in tests
package scpitest

import (
	"bufio"
	"net"
	"strings"
	"sync"
)

// Handler answers one command line.  An empty reply sends nothing back.
type Handler func(cmd string) (reply string)

// Server is a fake instrument listening on the loopback interface
type Server struct {
	Addr string

	ln    net.Listener
	h     Handler
	mu    sync.Mutex
	lines []string
	wg    sync.WaitGroup
}

// NewServer starts a server answering with h
func NewServer(h Handler) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{Addr: ln.Addr().String(), ln: ln, h: h}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		s.mu.Lock()
		s.lines = append(s.lines, line)
		s.mu.Unlock()
		if reply := s.h(line); reply != "" {
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}
}

// Lines returns every command line received so far
func (s *Server) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Close stops accepting connections
func (s *Server) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

// Handshake wraps h for devices that get "*CLS; <cmd> ;:SYSTem:ERRor?"
// frames: the command is passed to h without the framing and the error
// query is answered with errReply, appended after a semicolon when h
// answers too
func Handshake(h Handler, errReply func(cmd string) string) Handler {
	return func(line string) string {
		if !strings.HasPrefix(line, "*CLS;") || !strings.HasSuffix(line, ";:SYSTem:ERRor?") {
			return h(line)
		}
		cmd := strings.TrimSuffix(strings.TrimPrefix(line, "*CLS;"), ";:SYSTem:ERRor?")
		cmd = strings.TrimSpace(cmd)
		r := h(cmd)
		e := `+0,"No error"`
		if errReply != nil {
			e = errReply(cmd)
		}
		if r != "" {
			return r + ";" + e
		}
		return e
	}
}
