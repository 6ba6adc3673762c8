// Package pool owns the single shared keep-alive HTTP connection pool that
// every fetch funnels through.
package pool

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// Config sizes the pool and its keep-alive behavior.
type Config struct {
	MaxConnections     int
	MaxPerHost         int
	KeepAlive          time.Duration
	IdleTimeout        time.Duration
	DNSCacheTTL        time.Duration
	DialTimeout        time.Duration
	TLSHandshakeTimeout time.Duration
}

// DefaultConfig returns the stock pool sizing: 100 total connections, 30 per
// destination, 30s keep-alive, 300s DNS-cache TTL.
func DefaultConfig() Config {
	return Config{
		MaxConnections:      100,
		MaxPerHost:          30,
		KeepAlive:           30 * time.Second,
		IdleTimeout:         30 * time.Second,
		DNSCacheTTL:         300 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConnections <= 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.MaxPerHost <= 0 {
		c.MaxPerHost = d.MaxPerHost
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = d.KeepAlive
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.DNSCacheTTL <= 0 {
		c.DNSCacheTTL = d.DNSCacheTTL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.TLSHandshakeTimeout <= 0 {
		c.TLSHandshakeTimeout = d.TLSHandshakeTimeout
	}
	return c
}

// Stats describes the live pool for introspection endpoints.
type Stats struct {
	Created        time.Time     `json:"created"`
	Generation     int           `json:"generation"`
	MaxConnections int           `json:"max_connections"`
	MaxPerHost     int           `json:"max_per_host"`
	KeepAlive      time.Duration `json:"keep_alive"`
	DNSCacheTTL    time.Duration `json:"dns_cache_ttl"`
	Closed         bool          `json:"closed"`
}

// Manager guards one shared *http.Client. Concurrent first-use cannot create
// two pools, and GetOrCreate transparently rebuilds after an administrative
// Close. Individual fetches must never close the pool.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	client     *http.Client
	transport  *http.Transport
	created    time.Time
	generation int
	closed     bool
}

// NewManager builds a manager; the pool itself is created lazily on first
// GetOrCreate.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults()}
}

// GetOrCreate returns the shared client, building it on first use or after a
// Close. The returned client must not be mutated by callers.
func (m *Manager) GetOrCreate() *http.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil || m.closed {
		m.buildLocked()
	}
	return m.client
}

func (m *Manager) buildLocked() {
	dialer := &net.Dialer{
		Timeout:   m.cfg.DialTimeout,
		KeepAlive: m.cfg.KeepAlive,
	}
	m.transport = &http.Transport{
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     m.cfg.MaxPerHost,
		MaxIdleConns:        m.cfg.MaxConnections,
		MaxIdleConnsPerHost: m.cfg.MaxPerHost,
		IdleConnTimeout:     m.cfg.IdleTimeout,
		TLSHandshakeTimeout: m.cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}
	m.client = &http.Client{Transport: m.transport}
	m.created = time.Now().UTC()
	m.generation++
	m.closed = false
}

// Close releases idle connections and marks the pool closed. This is an
// administrative action; the next GetOrCreate builds a fresh pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil || m.closed {
		return fmt.Errorf("connection pool already closed")
	}
	m.transport.CloseIdleConnections()
	m.closed = true
	return nil
}

// Stats reports the live pool state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Created:        m.created,
		Generation:     m.generation,
		MaxConnections: m.cfg.MaxConnections,
		MaxPerHost:     m.cfg.MaxPerHost,
		KeepAlive:      m.cfg.KeepAlive,
		DNSCacheTTL:    m.cfg.DNSCacheTTL,
		Closed:         m.closed,
	}
}
