package pool

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bridgeerrors "printbridge/pkg/errors"
)

// startMockPrinter listens on a loopback port and counts accepted sockets
func startMockPrinter(t *testing.T) (port int, accepted *int64) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start mock printer: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var count int64
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddInt64(&count, 1)
			go func(c net.Conn) {
				// Drain until the bridge closes the connection
				buf := make([]byte, 1024)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, &count
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxConnsPerEndpoint = 2
	cfg.ConnectTimeout = 2 * time.Second
	cfg.WaitTimeout = 200 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func TestAcquireCreatesConnection(t *testing.T) {
	port, _ := startMockPrinter(t)
	m := NewManager(testConfig())
	defer m.CloseAll()

	pc, err := m.Acquire(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}

	stats := m.Stats()
	if stats.TotalConnections != 1 {
		t.Errorf("Expected 1 connection, got %d", stats.TotalConnections)
	}
	if stats.Endpoints[0].InUse != 1 || stats.Endpoints[0].Available != 0 {
		t.Errorf("Expected 1 in-use / 0 available, got %+v", stats.Endpoints[0])
	}

	m.Release(pc)
	stats = m.Stats()
	if stats.Endpoints[0].InUse != 0 || stats.Endpoints[0].Available != 1 {
		t.Errorf("Expected 0 in-use / 1 available after release, got %+v", stats.Endpoints[0])
	}
}

func TestReleaseThenAcquireReusesConnection(t *testing.T) {
	port, accepted := startMockPrinter(t)
	m := NewManager(testConfig())
	defer m.CloseAll()

	pc1, err := m.Acquire(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	m.Release(pc1)

	pc2, err := m.Acquire(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to re-acquire: %v", err)
	}
	defer m.Release(pc2)

	if pc1 != pc2 {
		t.Error("Expected the same pooled connection to be reused")
	}
	if n := atomic.LoadInt64(accepted); n != 1 {
		t.Errorf("Expected a single socket, printer accepted %d", n)
	}
}

func TestAcquireRespectsCap(t *testing.T) {
	port, accepted := startMockPrinter(t)
	m := NewManager(testConfig())
	defer m.CloseAll()

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pc, err := m.Acquire(ctx, "127.0.0.1", port)
			if err != nil {
				errs <- err
				return
			}
			time.Sleep(5 * time.Millisecond)
			m.Release(pc)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent acquire failed: %v", err)
	}

	if n := atomic.LoadInt64(accepted); n > 2 {
		t.Errorf("Cap is 2 but printer accepted %d sockets", n)
	}

	stats := m.Stats()
	if stats.TotalConnections > 2 {
		t.Errorf("Cap is 2 but pool tracks %d connections", stats.TotalConnections)
	}
	if stats.Endpoints[0].InUse+stats.Endpoints[0].Available != stats.Endpoints[0].Total {
		t.Errorf("Stats inconsistent: %+v", stats.Endpoints[0])
	}
}

func TestAcquireTimesOutWhenSaturated(t *testing.T) {
	port, _ := startMockPrinter(t)
	m := NewManager(testConfig())
	defer m.CloseAll()

	ctx := context.Background()
	pc1, err := m.Acquire(ctx, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	pc2, err := m.Acquire(ctx, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}

	start := time.Now()
	_, err = m.Acquire(ctx, "127.0.0.1", port)
	if !errors.Is(err, bridgeerrors.ErrPoolTimeout) {
		t.Fatalf("Expected ErrPoolTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("Timed out too early: %v", elapsed)
	}

	m.Release(pc1)
	m.Release(pc2)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	port, _ := startMockPrinter(t)
	cfg := testConfig()
	cfg.MaxConnsPerEndpoint = 1
	cfg.WaitTimeout = 2 * time.Second
	m := NewManager(cfg)
	defer m.CloseAll()

	ctx := context.Background()
	pc, err := m.Acquire(ctx, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		m.Release(pc)
	}()

	pc2, err := m.Acquire(ctx, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Waiting acquire failed: %v", err)
	}
	m.Release(pc2)
}

func TestAcquireConnectFailureNotCounted(t *testing.T) {
	// Reserve a port with nothing listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := NewManager(testConfig())
	defer m.CloseAll()

	_, err = m.Acquire(context.Background(), "127.0.0.1", port)
	if !errors.Is(err, bridgeerrors.ErrConnectFailed) {
		t.Fatalf("Expected ErrConnectFailed, got %v", err)
	}

	stats := m.Stats()
	if stats.TotalConnections != 0 {
		t.Errorf("Failed dial must not occupy a slot, pool tracks %d", stats.TotalConnections)
	}
}

func TestAcquireSkipsDeadIdleConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	conns := make(chan net.Conn, 4)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- c
		}
	}()

	m := NewManager(testConfig())
	defer m.CloseAll()

	pc, err := m.Acquire(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	m.Release(pc)

	// Kill the idle connection from the printer side
	peer := <-conns
	peer.Close()
	time.Sleep(50 * time.Millisecond)

	pc2, err := m.Acquire(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire replacement: %v", err)
	}
	defer m.Release(pc2)

	if pc2 == pc {
		t.Error("Dead idle connection must not be reused")
	}
	stats := m.Stats()
	if stats.TotalConnections != 1 {
		t.Errorf("Expected dead conn to be dropped, pool tracks %d", stats.TotalConnections)
	}
}

func TestCleanIdleReclaimsAndDropsEmptyEntries(t *testing.T) {
	port, _ := startMockPrinter(t)
	cfg := testConfig()
	cfg.IdleTimeout = 20 * time.Millisecond
	m := NewManager(cfg)
	defer m.CloseAll()

	pc, err := m.Acquire(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	m.Release(pc)

	time.Sleep(50 * time.Millisecond)
	m.CleanIdle()

	stats := m.Stats()
	if stats.TotalConnections != 0 {
		t.Errorf("Expected idle conn reclaimed, pool tracks %d", stats.TotalConnections)
	}
	if stats.TotalPools != 0 {
		t.Errorf("Expected empty entry dropped, %d entries remain", stats.TotalPools)
	}
}

func TestCleanIdleKeepsInUseConnections(t *testing.T) {
	port, _ := startMockPrinter(t)
	cfg := testConfig()
	cfg.IdleTimeout = 1 * time.Millisecond
	m := NewManager(cfg)
	defer m.CloseAll()

	pc, err := m.Acquire(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	m.CleanIdle()

	stats := m.Stats()
	if stats.TotalConnections != 1 {
		t.Errorf("In-use connection must survive cleanup, pool tracks %d", stats.TotalConnections)
	}
	m.Release(pc)
}

func TestDiscardRemovesConnection(t *testing.T) {
	port, _ := startMockPrinter(t)
	m := NewManager(testConfig())
	defer m.CloseAll()

	pc, err := m.Acquire(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}

	m.Discard(pc)

	stats := m.Stats()
	if stats.TotalConnections != 0 {
		t.Errorf("Discarded conn still tracked: %d", stats.TotalConnections)
	}
	if pc.Conn().IsHealthy() {
		t.Error("Discarded connection should be closed")
	}
}

func TestStatsInvariant(t *testing.T) {
	port, _ := startMockPrinter(t)
	m := NewManager(testConfig())
	defer m.CloseAll()

	ctx := context.Background()
	pc1, err := m.Acquire(ctx, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	pc2, err := m.Acquire(ctx, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	m.Release(pc1)

	stats := m.Stats()
	for _, ep := range stats.Endpoints {
		if ep.InUse+ep.Available != ep.Total {
			t.Errorf("inUse + available != total for %s: %+v", ep.Endpoint, ep)
		}
	}
	if stats.Endpoints[0].InUse != 1 || stats.Endpoints[0].Available != 1 {
		t.Errorf("Expected 1 in-use / 1 available, got %+v", stats.Endpoints[0])
	}
	m.Release(pc2)
}

func TestCloseAll(t *testing.T) {
	port, _ := startMockPrinter(t)
	m := NewManager(testConfig())

	pc, err := m.Acquire(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	_ = pc

	m.CloseAll()

	if stats := m.Stats(); stats.TotalPools != 0 {
		t.Errorf("Expected no entries after CloseAll, got %d", stats.TotalPools)
	}

	if _, err := m.Acquire(context.Background(), "127.0.0.1", port); !errors.Is(err, bridgeerrors.ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed after shutdown, got %v", err)
	}
}

func TestStartCleaner(t *testing.T) {
	port, _ := startMockPrinter(t)
	cfg := testConfig()
	cfg.IdleTimeout = 10 * time.Millisecond
	cfg.CleanupInterval = 20 * time.Millisecond
	m := NewManager(cfg)
	defer m.CloseAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartCleaner(ctx)

	pc, err := m.Acquire(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	m.Release(pc)

	deadline := time.Now().Add(2 * time.Second)
	for m.Stats().TotalConnections > 0 {
		if time.Now().After(deadline) {
			t.Fatal("Cleaner never reclaimed the idle connection")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
