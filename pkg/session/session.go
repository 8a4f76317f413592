package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	errs "printbridge/pkg/errors"
	"printbridge/pkg/health"
	"printbridge/pkg/logger"
	"printbridge/pkg/protocol"
	"printbridge/pkg/spool"
)

const (
	// writeWait is the deadline for a single frame write
	writeWait = 10 * time.Second

	// readWait is the read deadline, extended on every pong
	readWait = 60 * time.Second

	// pingPeriod must be shorter than readWait
	pingPeriod = 54 * time.Second

	// sendTimeout bounds how long an outbound message waits for the
	// write pump before being dropped
	sendTimeout = 5 * time.Second
)

// Config holds the session's uplink settings
type Config struct {
	URL                  string
	Identity             string
	Version              string
	HandshakeTimeout     time.Duration
	HeartbeatInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	InsecureSkipVerify   bool
}

// EndpointResolver maps a printer name to its TCP endpoint. An empty
// name resolves to the default printer.
type EndpointResolver interface {
	Resolve(name string) (host string, port int, err error)
}

// Session is the bridge's connection to the remote controller. One
// session exists per process; Disconnect is final.
type Session struct {
	cfg       Config
	deliverer spool.Deliverer
	resolver  EndpointResolver
	monitor   *health.Monitor
	log       *logger.Logger

	mu               sync.RWMutex
	state            State
	conn             *websocket.Conn
	reconnectAttempt int
	manual           bool
	observers        []func(from, to State)

	sendChan chan *protocol.Message
	stopChan chan struct{}
	stopOnce sync.Once

	startedAt     time.Time
	jobsDelivered atomic.Int64
	jobsFailed    atomic.Int64
}

// NewSession creates a session. The deliverer is required; resolver and
// monitor may be nil when the bridge runs without a printer registry or
// health reporting.
func NewSession(cfg Config, deliverer spool.Deliverer, resolver EndpointResolver, monitor *health.Monitor, log *logger.Logger) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if log == nil {
		log = logger.Get()
	}

	return &Session{
		cfg:       cfg,
		deliverer: deliverer,
		resolver:  resolver,
		monitor:   monitor,
		log:       log.Component("session"),
		state:     StateDisconnected,
		sendChan:  make(chan *protocol.Message, 256),
		stopChan:  make(chan struct{}),
		startedAt: time.Now(),
	}
}

// OnStateChange registers a callback invoked after every state
// transition. Callbacks run outside the session lock.
func (s *Session) OnStateChange(fn func(from, to State)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Connect dials the controller and registers the bridge. On success the
// session's pumps start and reconnection is handled internally; on
// failure the session returns to disconnected and the caller decides
// whether to retry.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.manual {
		s.mu.Unlock()
		return errs.ErrSessionClosed
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return errs.ErrAlreadyConnected
	}
	s.mu.Unlock()

	s.log.Info("connecting to controller", "url", s.cfg.URL, "identity", s.cfg.Identity)
	s.setState(StateConnecting)

	conn, err := s.dial()
	if err != nil {
		s.setState(StateDisconnected)
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.reconnectAttempt = 0
	s.mu.Unlock()
	s.setState(StateConnected)

	go s.run(conn)
	return nil
}

// Disconnect tears the session down. No reconnection follows, even from
// the middle of a backoff wait.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.manual {
		s.mu.Unlock()
		return
	}
	s.manual = true
	conn := s.conn
	failed := s.state == StateFailed
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopChan) })
	if conn != nil {
		conn.Close()
	}
	if !failed {
		s.setState(StateDisconnected)
	}
	s.log.Info("session disconnected")
}

// State returns the current session state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns a snapshot of the session for external reporting
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		State:            s.state,
		Identity:         s.cfg.Identity,
		ReconnectAttempt: s.reconnectAttempt,
		JobsDelivered:    s.jobsDelivered.Load(),
		JobsFailed:       s.jobsFailed.Load(),
	}
}

// dial establishes the WebSocket connection and registers over it. The
// connection is closed on registration failure so a half-open uplink
// never escapes.
func (s *Session) dial() (*websocket.Conn, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	dialer := websocket.Dialer{
		TLSClientConfig:  tlsConfig,
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.Dial(s.cfg.URL, http.Header{})
	if err != nil {
		return nil, err
	}

	if err := s.register(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// register announces the bridge's identity and waits for the
// controller's acknowledgement
func (s *Session) register(conn *websocket.Conn) error {
	hostname, _ := os.Hostname()

	payload := &protocol.RegisterPayload{
		AgentID:  s.cfg.Identity,
		Hostname: hostname,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		Version:  s.cfg.Version,
		IP:       localIP(),
	}

	msg, err := protocol.NewMessage(protocol.MsgTypeRegister, payload)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	var resp protocol.Message
	if err := conn.ReadJSON(&resp); err != nil {
		return err
	}
	conn.SetReadDeadline(time.Time{})

	if resp.Type != protocol.MsgTypeRegisterAck {
		return errs.ErrInvalidResponse
	}

	var ack protocol.RegisterAckPayload
	if err := resp.ParsePayload(&ack); err != nil {
		return err
	}
	if !ack.Success {
		if ack.Message != "" {
			return fmt.Errorf("%w: %s", errs.ErrRegisterFailed, ack.Message)
		}
		return errs.ErrRegisterFailed
	}

	s.log.Info("registered with controller", "identity", s.cfg.Identity)
	return nil
}

// run owns one connection at a time: it starts the pumps, waits for the
// read side to fail, then reconnects unless the loss was manual.
func (s *Session) run(conn *websocket.Conn) {
	for {
		writeStop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.writePump(conn, writeStop)
		}()
		go func() {
			defer wg.Done()
			s.heartbeatLoop(writeStop)
		}()

		s.readPump(conn)

		close(writeStop)
		conn.Close()
		wg.Wait()

		if s.isManual() {
			return
		}

		next, ok := s.reconnect()
		if !ok {
			return
		}
		conn = next
	}
}

// readPump reads messages from the controller until the connection dies
func (s *Session) readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !s.isManual() {
				s.log.ErrorWithErr("uplink read failed", err)
			}
			return
		}

		go s.handleMessage(&msg)
	}
}

// writePump writes queued messages and keep-alive pings to the
// controller. Exits when the connection dies or the session stops.
func (s *Session) writePump(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.sendChan:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.log.ErrorWithErr("uplink write failed", err)
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}

		case <-stop:
			return

		case <-s.stopChan:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// reconnect waits out backoff delays and re-dials until registration
// succeeds, attempts run out, or the session is stopped
func (s *Session) reconnect() (*websocket.Conn, bool) {
	s.setState(StateReconnecting)

	for {
		s.mu.RLock()
		attempt := s.reconnectAttempt
		s.mu.RUnlock()

		if attempt >= s.cfg.MaxReconnectAttempts {
			s.log.Error("reconnect attempts exhausted", "attempts", attempt)
			s.setState(StateFailed)
			return nil, false
		}

		delay := backoffDelay(attempt, s.cfg.ReconnectBaseDelay, s.cfg.ReconnectMaxDelay)
		s.log.Info("reconnecting to controller", "attempt", attempt+1, "delay", delay.String())

		select {
		case <-time.After(delay):
		case <-s.stopChan:
			return nil, false
		}
		if s.isManual() {
			return nil, false
		}

		s.mu.Lock()
		s.reconnectAttempt++
		s.mu.Unlock()

		s.setState(StateConnecting)
		conn, err := s.dial()
		if err != nil {
			s.log.ErrorWithErr("reconnect failed", err, "attempt", attempt+1)
			s.setState(StateReconnecting)
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.reconnectAttempt = 0
		s.mu.Unlock()
		s.setState(StateConnected)
		return conn, true
	}
}

// handleMessage dispatches one inbound message
func (s *Session) handleMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgTypePrintJob:
		s.handlePrintJob(msg)

	case protocol.MsgTypePing:
		s.sendMessage(protocol.MsgTypePong, nil)

	case protocol.MsgTypePong:
		// keep-alive response, nothing to do

	default:
		s.log.Warn("unknown message type", "type", msg.Type)
	}
}

// handlePrintJob delivers one dispatched job and reports exactly one
// result back, success or failure
func (s *Session) handlePrintJob(msg *protocol.Message) {
	started := time.Now()

	var job protocol.PrintJobPayload
	if err := msg.ParsePayload(&job); err != nil {
		s.log.ErrorWithErr("malformed print job", err, "msg_id", msg.ID)
		s.jobsFailed.Add(1)
		s.sendJobResult(msg.ID, false, "malformed print job payload", started)
		return
	}

	success, detail := s.deliverJob(&job)
	if success {
		s.jobsDelivered.Add(1)
		s.log.Info("print job delivered", "job_id", job.JobID,
			"duration_ms", time.Since(started).Milliseconds())
	} else {
		s.jobsFailed.Add(1)
		s.log.Error("print job failed", "job_id", job.JobID, "reason", detail)
	}
	s.sendJobResult(job.JobID, success, detail, started)
}

// deliverJob decodes the payload, resolves the target endpoint and
// hands the bytes to the spool
func (s *Session) deliverJob(job *protocol.PrintJobPayload) (bool, string) {
	data, err := protocol.DecodePayload(job.Payload, job.Format, job.Encoding)
	if err != nil {
		return false, err.Error()
	}

	host, port := job.Host, job.Port
	if host == "" || port == 0 {
		if s.resolver == nil {
			return false, errs.ErrPrinterNotFound.Error()
		}
		host, port, err = s.resolver.Resolve(job.Printer)
		if err != nil {
			return false, err.Error()
		}
	}

	result := s.deliverer.Deliver(context.Background(), host, port, data)
	return result.Success, result.Message
}

func (s *Session) sendJobResult(jobID string, success bool, message string, started time.Time) {
	payload := &protocol.JobResultPayload{
		JobID:      jobID,
		Success:    success,
		Message:    message,
		DurationMs: time.Since(started).Milliseconds(),
	}
	s.sendMessage(protocol.MsgTypeJobResult, payload)
}

// sendMessage queues a message for the write pump. Dropped with a log
// line when the uplink is down long enough to fill the queue.
func (s *Session) sendMessage(msgType protocol.MessageType, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		s.log.ErrorWithErr("failed to create message", err, "type", msgType)
		return
	}

	select {
	case s.sendChan <- msg:
	case <-time.After(sendTimeout):
		s.log.Warn("dropped outbound message", "type", msgType)
	case <-s.stopChan:
	}
}

// heartbeatLoop sends periodic heartbeats while a connection is live
func (s *Session) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sendHeartbeat()
		case <-stop:
			return
		case <-s.stopChan:
			return
		}
	}
}

// sendHeartbeat reports system stats and job counters to the controller
func (s *Session) sendHeartbeat() {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	var cpuUsage, memUsage float64
	if len(cpuPercent) > 0 {
		cpuUsage = cpuPercent[0]
	}
	if memStats != nil {
		memUsage = memStats.UsedPercent
	}

	payload := &protocol.HeartbeatPayload{
		AgentID:       s.cfg.Identity,
		Status:        "online",
		CPUUsage:      cpuUsage,
		MemUsage:      memUsage,
		Uptime:        int64(time.Since(s.startedAt).Seconds()),
		JobsDelivered: s.jobsDelivered.Load(),
		JobsFailed:    s.jobsFailed.Load(),
		Timestamp:     time.Now(),
	}

	s.sendMessage(protocol.MsgTypeHeartbeat, payload)
}

func (s *Session) isManual() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manual
}

// setState applies a transition and notifies observers and the health
// monitor outside the lock
func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	observers := make([]func(State, State), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	s.log.Info("session state changed", "from", string(prev), "to", string(next))
	s.updateMonitor(next)
	for _, fn := range observers {
		fn(prev, next)
	}
}

func (s *Session) updateMonitor(state State) {
	if s.monitor == nil {
		return
	}
	switch state {
	case StateConnected:
		s.monitor.SetComponentStatus(health.ComponentUplink, health.StatusHealthy, "registered with controller")
	case StateFailed:
		s.monitor.SetComponentStatus(health.ComponentUplink, health.StatusUnhealthy, "reconnect attempts exhausted")
	case StateDisconnected:
		s.monitor.SetComponentStatus(health.ComponentUplink, health.StatusDegraded, "uplink down, local delivery still available")
	default:
		s.monitor.SetComponentStatus(health.ComponentUplink, health.StatusDegraded, "uplink "+string(state))
	}
}

// localIP returns the address the default route would use
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	addr := conn.LocalAddr().(*net.UDPAddr)
	return addr.IP.String()
}
