package directory

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// probeTTL bounds how long a liveness answer is trusted before re-dialing.
const probeTTL = 30 * time.Second

type probeEntry struct {
	running   bool
	checkedAt time.Time
}

// Prober answers "is something listening on this port" with a short TTL
// cache, so a dashboard render doesn't dial every app on every request.
type Prober struct {
	host    string
	timeout time.Duration

	mu    sync.Mutex
	cache map[int]probeEntry
}

// NewProber creates a Prober dialing the given host.
func NewProber(host string, timeout time.Duration) *Prober {
	if host == "" {
		host = "127.0.0.1"
	}
	return &Prober{
		host:    host,
		timeout: timeout,
		cache:   make(map[int]probeEntry),
	}
}

// Running reports whether the port accepts TCP connections.
func (p *Prober) Running(port int) bool {
	p.mu.Lock()
	if entry, ok := p.cache[port]; ok && time.Since(entry.checkedAt) < probeTTL {
		p.mu.Unlock()
		return entry.running
	}
	p.mu.Unlock()

	addr := net.JoinHostPort(p.host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, p.timeout)
	running := err == nil
	if conn != nil {
		conn.Close()
	}

	p.mu.Lock()
	p.cache[port] = probeEntry{running: running, checkedAt: time.Now()}
	p.mu.Unlock()
	return running
}

// Invalidate drops the cached answer for a port.
func (p *Prober) Invalidate(port int) {
	p.mu.Lock()
	delete(p.cache, port)
	p.mu.Unlock()
}
