package pool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"printbridge/pkg/device"
	"printbridge/pkg/errors"
)

// Default configuration values
const (
	DefaultMaxConnsPerEndpoint = 3                // Maximum connections per printer
	DefaultConnectTimeout      = 5 * time.Second  // Dial timeout per connection
	DefaultWaitTimeout         = 10 * time.Second // Max wait for a free slot
	DefaultIdleTimeout         = 5 * time.Minute  // Idle reclamation age
	DefaultCleanupInterval     = 1 * time.Minute  // Cleaner tick
	DefaultPollInterval        = 50 * time.Millisecond
)

// Config holds pool tuning parameters
type Config struct {
	MaxConnsPerEndpoint int
	ConnectTimeout      time.Duration
	WaitTimeout         time.Duration
	IdleTimeout         time.Duration
	CleanupInterval     time.Duration
	PollInterval        time.Duration
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{
		MaxConnsPerEndpoint: DefaultMaxConnsPerEndpoint,
		ConnectTimeout:      DefaultConnectTimeout,
		WaitTimeout:         DefaultWaitTimeout,
		IdleTimeout:         DefaultIdleTimeout,
		CleanupInterval:     DefaultCleanupInterval,
		PollInterval:        DefaultPollInterval,
	}
}

// PooledConnection wraps one device connection tracked by an endpoint entry
type PooledConnection struct {
	conn       *device.Connection
	owner      *endpointPool
	lastUsed   time.Time
	created    time.Time
	inUse      bool
	usageCount int
}

// Conn returns the underlying device connection
func (pc *PooledConnection) Conn() *device.Connection {
	return pc.conn
}

// Endpoint returns the printer endpoint this connection belongs to
func (pc *PooledConnection) Endpoint() string {
	return pc.owner.endpoint
}

// endpointPool is the entry for one printer endpoint
type endpointPool struct {
	endpoint string
	host     string
	port     int

	mu      sync.Mutex
	conns   []*PooledConnection
	dialing int // reserved slots for in-flight dials, counted against the cap
}

// Manager owns all endpoint entries and enforces the per-endpoint cap
type Manager struct {
	cfg Config

	mu     sync.RWMutex
	pools  map[string]*endpointPool
	closed bool
}

// EndpointStats describes one endpoint entry at a quiescent point
type EndpointStats struct {
	Endpoint  string `json:"endpoint"`
	Total     int    `json:"connections"`
	Available int    `json:"available"`
	InUse     int    `json:"in_use"`
}

// Stats is a snapshot across all endpoint entries
type Stats struct {
	TotalPools       int             `json:"total_pools"`
	TotalConnections int             `json:"total_connections"`
	Endpoints        []EndpointStats `json:"per_endpoint"`
}

// NewManager creates a pool manager with the given configuration.
// Zero-valued fields fall back to defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.MaxConnsPerEndpoint <= 0 {
		cfg.MaxConnsPerEndpoint = def.MaxConnsPerEndpoint
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}

	return &Manager{
		cfg:   cfg,
		pools: make(map[string]*endpointPool),
	}
}

// getPool returns or creates the entry for an endpoint
func (m *Manager) getPool(host string, port int) (*endpointPool, error) {
	key := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, errors.ErrPoolClosed
	}
	ep, exists := m.pools[key]
	m.mu.RUnlock()

	if exists {
		return ep, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.ErrPoolClosed
	}

	// Double-check after acquiring write lock
	if ep, exists = m.pools[key]; exists {
		return ep, nil
	}

	ep = &endpointPool{endpoint: key, host: host, port: port}
	m.pools[key] = ep
	return ep, nil
}

// Acquire returns a connection to the given printer, reusing an idle
// healthy one when possible, dialing a new one while the endpoint is
// under its cap, and otherwise waiting for a release until WaitTimeout.
// Dial failures propagate immediately and never occupy a slot.
func (m *Manager) Acquire(ctx context.Context, host string, port int) (*PooledConnection, error) {
	ep, err := m.getPool(host, port)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(m.cfg.WaitTimeout)

	for {
		ep.mu.Lock()

		// Reuse path: first idle connection that is still healthy.
		// Dead idle connections found here are dropped on the spot.
		for i := 0; i < len(ep.conns); {
			pc := ep.conns[i]
			if pc.inUse {
				i++
				continue
			}
			if !pc.conn.IsHealthy() {
				pc.conn.Close()
				ep.conns = append(ep.conns[:i], ep.conns[i+1:]...)
				continue
			}
			pc.inUse = true
			pc.lastUsed = time.Now()
			pc.usageCount++
			ep.mu.Unlock()
			return pc, nil
		}

		// Create path: reserve a slot, then dial outside the lock so
		// releases and other acquirers are not blocked behind the dial
		if len(ep.conns)+ep.dialing < m.cfg.MaxConnsPerEndpoint {
			ep.dialing++
			ep.mu.Unlock()

			conn, err := device.Connect(ep.host, ep.port, m.cfg.ConnectTimeout)

			ep.mu.Lock()
			ep.dialing--
			if err != nil {
				// Failed dial never counts against the cap
				ep.mu.Unlock()
				return nil, err
			}

			now := time.Now()
			pc := &PooledConnection{
				conn:       conn,
				owner:      ep,
				lastUsed:   now,
				created:    now,
				inUse:      true,
				usageCount: 1,
			}
			ep.conns = append(ep.conns, pc)
			ep.mu.Unlock()
			return pc, nil
		}

		ep.mu.Unlock()

		// Saturated: poll for a release until the wait deadline
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: endpoint %s saturated for %v",
				errors.ErrPoolTimeout, ep.endpoint, m.cfg.WaitTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

// Release returns a connection to its entry for reuse. The socket stays
// open; reuse is the point of releasing.
func (m *Manager) Release(pc *PooledConnection) {
	ep := pc.owner
	ep.mu.Lock()
	defer ep.mu.Unlock()

	pc.inUse = false
	pc.lastUsed = time.Now()
}

// Discard closes a connection and removes it from its entry. Used after
// a mid-send failure, where the stream state is unknown and the
// connection must not be reused.
func (m *Manager) Discard(pc *PooledConnection) {
	ep := pc.owner
	ep.mu.Lock()
	defer ep.mu.Unlock()

	pc.conn.Close()
	for i, other := range ep.conns {
		if other == pc {
			ep.conns = append(ep.conns[:i], ep.conns[i+1:]...)
			break
		}
	}
}

// CleanIdle closes idle connections older than IdleTimeout and drops
// endpoint entries left with no connections.
func (m *Manager) CleanIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, ep := range m.pools {
		ep.mu.Lock()

		active := ep.conns[:0]
		for _, pc := range ep.conns {
			if pc.inUse {
				active = append(active, pc)
				continue
			}
			if now.Sub(pc.lastUsed) > m.cfg.IdleTimeout {
				pc.conn.Close()
				continue
			}
			active = append(active, pc)
		}
		ep.conns = active

		empty := len(ep.conns) == 0 && ep.dialing == 0
		ep.mu.Unlock()

		if empty {
			delete(m.pools, key)
		}
	}
}

// StartCleaner runs idle reclamation on a fixed interval until the
// context is cancelled.
func (m *Manager) StartCleaner(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanIdle()
			}
		}
	}()
}

// Stats returns a consistent snapshot of every endpoint entry
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{Endpoints: make([]EndpointStats, 0, len(m.pools))}
	for _, ep := range m.pools {
		ep.mu.Lock()
		es := EndpointStats{Endpoint: ep.endpoint, Total: len(ep.conns)}
		for _, pc := range ep.conns {
			if pc.inUse {
				es.InUse++
			} else {
				es.Available++
			}
		}
		ep.mu.Unlock()

		stats.Endpoints = append(stats.Endpoints, es)
		stats.TotalPools++
		stats.TotalConnections += es.Total
	}

	return stats
}

// CloseAll closes every connection in every entry and clears the
// manager. Used only at process shutdown; later Acquire calls fail with
// ErrPoolClosed.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ep := range m.pools {
		ep.mu.Lock()
		for _, pc := range ep.conns {
			pc.conn.Close()
		}
		ep.conns = nil
		ep.mu.Unlock()
	}
	m.pools = make(map[string]*endpointPool)
	m.closed = true
}
