package spool

import (
	"context"
	"sync/atomic"

	"printbridge/pkg/logger"
	"printbridge/pkg/pool"
)

// DeliveryResult reports the outcome of one payload delivery
type DeliveryResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Deliverer delivers opaque payloads to printer endpoints. Implemented
// by Service; the session depends on this interface so tests can swap
// in fakes.
type Deliverer interface {
	Deliver(ctx context.Context, host string, port int, payload []byte) DeliveryResult
}

// Service delivers payloads through a connection pool
type Service struct {
	pool *pool.Manager
	log  *logger.Logger

	delivered atomic.Int64
	failed    atomic.Int64
}

// NewService creates a delivery service on top of a pool manager
func NewService(pm *pool.Manager, log *logger.Logger) *Service {
	return &Service{pool: pm, log: log.Component("spool")}
}

// Deliver acquires a connection for the endpoint, sends the payload and
// releases the connection. A connection that failed mid-send is
// discarded, never returned to the pool. Errors are reported in the
// result, not raised: a delivery failure is local to one job.
func (s *Service) Deliver(ctx context.Context, host string, port int, payload []byte) DeliveryResult {
	pc, err := s.pool.Acquire(ctx, host, port)
	if err != nil {
		s.failed.Add(1)
		s.log.Warn("acquire failed", "host", host, "port", port, "error", err)
		return DeliveryResult{Success: false, Message: err.Error()}
	}

	if err := pc.Conn().Send(payload); err != nil {
		// Stream state unknown after a failed write
		s.pool.Discard(pc)
		s.failed.Add(1)
		s.log.Warn("send failed", "endpoint", pc.Endpoint(), "error", err)
		return DeliveryResult{Success: false, Message: err.Error()}
	}

	s.pool.Release(pc)
	s.delivered.Add(1)
	s.log.Debug("payload delivered", "endpoint", pc.Endpoint(), "bytes", len(payload))
	return DeliveryResult{Success: true, Message: "delivered"}
}

// Stats returns the pool statistics snapshot
func (s *Service) Stats() pool.Stats {
	return s.pool.Stats()
}

// Counters returns totals of delivered and failed jobs since start
func (s *Service) Counters() (delivered, failed int64) {
	return s.delivered.Load(), s.failed.Load()
}
