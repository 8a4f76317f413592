package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"printbridge/pkg/config"
	"printbridge/pkg/health"
	"printbridge/pkg/logger"
	"printbridge/pkg/pool"
	"printbridge/pkg/spool"
	"printbridge/pkg/storage"
)

func testLogger() *logger.Logger {
	return logger.New(logger.ErrorLevel, "text", io.Discard)
}

type testAPI struct {
	router  *gin.Engine
	store   storage.Store
	monitor *health.Monitor
}

func setupTestAPI(t *testing.T, token string) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewStore(config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "bridge.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pm := pool.NewManager(pool.Config{
		ConnectTimeout: 2 * time.Second,
		WaitTimeout:    2 * time.Second,
	})
	t.Cleanup(pm.CloseAll)

	monitor := health.NewMonitor()
	svc := spool.NewService(pm, testLogger())
	handler := NewHandler(svc, pm, store, nil, monitor, token, testLogger())

	router := gin.New()
	handler.RegisterRoutes(router)

	return &testAPI{router: router, store: store, monitor: monitor}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func startMockPrinter(t *testing.T) (host string, port int, received chan []byte) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	received = make(chan []byte, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					data := make([]byte, n)
					copy(data, buf[:n])
					received <- data
				}
			}(conn)
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, err = strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port, received
}

func TestPrintDirectEndpoint(t *testing.T) {
	a := setupTestAPI(t, "")
	host, port, received := startMockPrinter(t)

	payload := []byte("\x1b@receipt\n")
	w := a.do(t, http.MethodPost, "/api/print", PrintRequest{
		Host:    host,
		Port:    port,
		Payload: base64.StdEncoding.EncodeToString(payload),
		Format:  "base64",
	}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}

	select {
	case got := <-received:
		if string(got) != string(payload) {
			t.Errorf("printer received %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("printer never received the payload")
	}
}

func TestPrintInvalidPayload(t *testing.T) {
	a := setupTestAPI(t, "")

	w := a.do(t, http.MethodPost, "/api/print", PrintRequest{
		Host:    "127.0.0.1",
		Port:    9100,
		Payload: "not-base64!!!",
		Format:  "base64",
	}, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", w.Code)
	}
}

func TestPrintUnknownPrinter(t *testing.T) {
	a := setupTestAPI(t, "")

	w := a.do(t, http.MethodPost, "/api/print", PrintRequest{
		Printer: "nonexistent",
		Payload: base64.StdEncoding.EncodeToString([]byte("data")),
		Format:  "base64",
	}, nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", w.Code)
	}
}

func TestPrintNoDefaultPrinter(t *testing.T) {
	a := setupTestAPI(t, "")

	w := a.do(t, http.MethodPost, "/api/print", PrintRequest{
		Payload: base64.StdEncoding.EncodeToString([]byte("data")),
		Format:  "base64",
	}, nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", w.Code)
	}
}

func TestPrintResolvesDefaultPrinter(t *testing.T) {
	a := setupTestAPI(t, "")
	host, port, received := startMockPrinter(t)

	w := a.do(t, http.MethodPost, "/api/printers", SavePrinterRequest{
		Name:      "front-desk",
		Host:      host,
		Port:      port,
		IsDefault: true,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save printer: status %d, body %s", w.Code, w.Body.String())
	}

	payload := []byte("default target\n")
	w = a.do(t, http.MethodPost, "/api/print", PrintRequest{
		Payload: base64.StdEncoding.EncodeToString(payload),
		Format:  "base64",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("print: status %d, body %s", w.Code, w.Body.String())
	}

	select {
	case got := <-received:
		if string(got) != string(payload) {
			t.Errorf("printer received %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("printer never received the payload")
	}
}

func TestPrintUnreachablePrinter(t *testing.T) {
	a := setupTestAPI(t, "")

	// Reserve a port, then close it
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	w := a.do(t, http.MethodPost, "/api/print", PrintRequest{
		Host:    host,
		Port:    port,
		Payload: base64.StdEncoding.EncodeToString([]byte("data")),
		Format:  "base64",
	}, nil)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status %d, want 502", w.Code)
	}
}

func TestPrinterRegistryCRUD(t *testing.T) {
	a := setupTestAPI(t, "")

	w := a.do(t, http.MethodPost, "/api/printers", SavePrinterRequest{
		Name: "kitchen",
		Host: "192.168.1.60",
		Port: 9100,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save: status %d, body %s", w.Code, w.Body.String())
	}

	w = a.do(t, http.MethodGet, "/api/printers", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var printers []storage.Printer
	if err := json.Unmarshal(w.Body.Bytes(), &printers); err != nil {
		t.Fatalf("failed to decode printer list: %v", err)
	}
	if len(printers) != 1 || printers[0].Name != "kitchen" {
		t.Fatalf("unexpected printer list: %+v", printers)
	}

	w = a.do(t, http.MethodPut, "/api/printers/kitchen/default", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("set default: status %d, body %s", w.Code, w.Body.String())
	}

	w = a.do(t, http.MethodGet, "/api/printers/default", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get default: status %d", w.Code)
	}
	var def storage.Printer
	if err := json.Unmarshal(w.Body.Bytes(), &def); err != nil {
		t.Fatalf("failed to decode default printer: %v", err)
	}
	if def.Name != "kitchen" || !def.IsDefault {
		t.Errorf("unexpected default printer: %+v", def)
	}

	w = a.do(t, http.MethodDelete, "/api/printers/kitchen", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}

	w = a.do(t, http.MethodDelete, "/api/printers/kitchen", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", w.Code)
	}
}

func TestSavePrinterValidation(t *testing.T) {
	a := setupTestAPI(t, "")

	cases := []SavePrinterRequest{
		{Name: "", Host: "10.0.0.1", Port: 9100},
		{Name: "p", Host: "", Port: 9100},
		{Name: "p", Host: "10.0.0.1", Port: 0},
		{Name: "p", Host: "10.0.0.1", Port: 70000},
	}
	for _, req := range cases {
		w := a.do(t, http.MethodPost, "/api/printers", req, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("request %+v: status %d, want 400", req, w.Code)
		}
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	a := setupTestAPI(t, "secret-token")

	w := a.do(t, http.MethodGet, "/api/printers", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", w.Code)
	}

	w = a.do(t, http.MethodGet, "/api/printers", nil, map[string]string{
		"Authorization": "Bearer wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status %d, want 401", w.Code)
	}

	w = a.do(t, http.MethodGet, "/api/printers", nil, map[string]string{
		"Authorization": "Bearer secret-token",
	})
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status %d, want 200", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	a := setupTestAPI(t, "")
	a.monitor.SetComponentStatus(health.ComponentPool, health.StatusHealthy, "ok")

	w := a.do(t, http.MethodGet, "/api/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	var report health.BridgeHealth
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to decode health report: %v", err)
	}
	if report.Status != health.StatusHealthy {
		t.Errorf("health status %s, want healthy", report.Status)
	}
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	a := setupTestAPI(t, "")
	a.monitor.SetComponentStatus(health.ComponentUplink, health.StatusUnhealthy, "reconnect attempts exhausted")

	w := a.do(t, http.MethodGet, "/api/health", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", w.Code)
	}
}

func TestSessionEndpointWithoutUplink(t *testing.T) {
	a := setupTestAPI(t, "")

	w := a.do(t, http.MethodGet, "/api/session", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", w.Code)
	}
}

func TestPoolStatsEndpoint(t *testing.T) {
	a := setupTestAPI(t, "")
	host, port, _ := startMockPrinter(t)

	w := a.do(t, http.MethodPost, "/api/print", PrintRequest{
		Host:    host,
		Port:    port,
		Payload: base64.StdEncoding.EncodeToString([]byte("data")),
		Format:  "base64",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("print: status %d", w.Code)
	}

	w = a.do(t, http.MethodGet, "/api/pool/stats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: status %d", w.Code)
	}

	var stats pool.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.TotalConnections != 1 {
		t.Errorf("total connections %d, want 1", stats.TotalConnections)
	}
}
