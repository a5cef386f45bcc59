package memcachedclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeServer speaks enough of the memcached text protocol for the client.
type fakeServer struct {
	mu      sync.Mutex
	data    map[string][]byte
	exptime map[string]string
	lines   []string
	dials   int
}

func newFakeServer() *fakeServer {
	return &fakeServer{data: make(map[string][]byte), exptime: make(map[string]string)}
}

// install swaps the package dialer for net.Pipe connections served by s.
func (s *fakeServer) install(t *testing.T) {
	t.Helper()
	orig := dialMemcached
	t.Cleanup(func() { dialMemcached = orig })
	dialMemcached = func(context.Context, string, string, time.Duration) (net.Conn, error) {
		s.mu.Lock()
		s.dials++
		s.mu.Unlock()
		server, client := net.Pipe()
		go s.serve(server)
		return client, nil
	}
}

func (s *fakeServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *fakeServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.mu.Lock()
		s.lines = append(s.lines, line)
		s.mu.Unlock()
		parts := strings.Fields(line)
		switch parts[0] {
		case "get", "gets":
			s.mu.Lock()
			for _, key := range parts[1:] {
				if v, ok := s.data[key]; ok {
					fmt.Fprintf(w, "VALUE %s 0 %d\r\n", key, len(v))
					w.Write(v)
					w.WriteString("\r\n")
				}
			}
			s.mu.Unlock()
			w.WriteString("END\r\n")
		case "set":
			// set <key> <flags> <exptime> <bytes>
			if len(parts) < 5 {
				w.WriteString("ERROR\r\n")
				break
			}
			n, _ := strconv.Atoi(parts[4])
			buf := make([]byte, n)
			if _, err := io.ReadFull(r, buf); err != nil {
				return
			}
			r.ReadString('\n')
			s.mu.Lock()
			s.data[parts[1]] = buf
			s.exptime[parts[1]] = parts[3]
			s.mu.Unlock()
			w.WriteString("STORED\r\n")
		case "delete":
			s.mu.Lock()
			_, ok := s.data[parts[1]]
			delete(s.data, parts[1])
			s.mu.Unlock()
			if ok {
				w.WriteString("DELETED\r\n")
			} else {
				w.WriteString("NOT_FOUND\r\n")
			}
		case "flush_all":
			s.mu.Lock()
			s.data = make(map[string][]byte)
			s.mu.Unlock()
			w.WriteString("OK\r\n")
		case "version":
			w.WriteString("VERSION 1.6.21\r\n")
		default:
			w.WriteString("ERROR\r\n")
		}
		w.Flush()
	}
}

// scriptedDial answers every command on a fresh connection with reply.
func scriptedDial(t *testing.T, reply string) {
	t.Helper()
	orig := dialMemcached
	t.Cleanup(func() { dialMemcached = orig })
	dialMemcached = func(context.Context, string, string, time.Duration) (net.Conn, error) {
		server, client := net.Pipe()
		go func() {
			defer server.Close()
			r := bufio.NewReader(server)
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if parts := strings.Fields(line); len(parts) >= 5 && parts[0] == "set" {
				n, _ := strconv.Atoi(parts[4])
				_, _ = io.ReadFull(r, make([]byte, n+2))
			}
			server.Write([]byte(reply))
		}()
		return client, nil
	}
}
