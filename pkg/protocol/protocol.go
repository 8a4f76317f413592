package protocol

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"
)

// MessageType defines the type of message being sent
type MessageType string

const (
	// Registration messages
	MsgTypeRegister    MessageType = "register"
	MsgTypeRegisterAck MessageType = "register_ack"

	// Job messages
	MsgTypePrintJob  MessageType = "print_job"
	MsgTypeJobResult MessageType = "job_result"

	// Heartbeat and status
	MsgTypeHeartbeat MessageType = "heartbeat"
	MsgTypePing      MessageType = "ping"
	MsgTypePong      MessageType = "pong"
	MsgTypeError     MessageType = "error"
)

// Message is the base structure for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// RegisterPayload identifies the bridge to the controller. Sent on every
// transition into the connected state, including after reconnection.
type RegisterPayload struct {
	AgentID  string `json:"agent_id"`
	Hostname string `json:"hostname"`
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Version  string `json:"version"`
	IP       string `json:"ip,omitempty"`
}

// RegisterAckPayload contains the controller's registration response
type RegisterAckPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PrintJobPayload contains one dispatched print job. The target device
// is either addressed directly with host and port, or by the name of a
// registered printer; with neither set, the bridge's default printer is
// used.
type PrintJobPayload struct {
	JobID    string `json:"job_id"`
	Printer  string `json:"printer,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Payload  string `json:"payload"`
	Format   string `json:"format"`             // base64 | text
	Encoding string `json:"encoding,omitempty"` // codepage for text payloads
}

// JobResultPayload reports the outcome of one print job
type JobResultPayload struct {
	JobID      string `json:"job_id"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// HeartbeatPayload contains bridge health information
type HeartbeatPayload struct {
	AgentID       string    `json:"agent_id"`
	Status        string    `json:"status"` // online | degraded
	CPUUsage      float64   `json:"cpu_usage"`
	MemUsage      float64   `json:"mem_usage"`
	Uptime        int64     `json:"uptime"` // seconds
	JobsDelivered int64     `json:"jobs_delivered"`
	JobsFailed    int64     `json:"jobs_failed"`
	Timestamp     time.Time `json:"timestamp"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      msgType,
		ID:        GenerateID(),
		Timestamp: time.Now(),
		Payload:   data,
	}, nil
}

// ParsePayload unmarshals the message payload into the given interface
func (m *Message) ParsePayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// GenerateID generates a unique message ID
func GenerateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
