package session

// State is the session's position in its connection lifecycle
type State string

const (
	// StateDisconnected is the initial state, and the terminal state
	// after an explicit Disconnect
	StateDisconnected State = "disconnected"

	// StateConnecting means a dial and registration are in flight
	StateConnecting State = "connecting"

	// StateConnected means the uplink is live and registered
	StateConnected State = "connected"

	// StateReconnecting means the uplink dropped and the session is
	// waiting out a backoff delay
	StateReconnecting State = "reconnecting"

	// StateFailed is terminal: reconnect attempts are exhausted and an
	// operator must restart the process
	StateFailed State = "failed"
)

// Status is a snapshot of the session for external reporting
type Status struct {
	State            State  `json:"state"`
	Identity         string `json:"identity"`
	ReconnectAttempt int    `json:"reconnect_attempt"`
	JobsDelivered    int64  `json:"jobs_delivered"`
	JobsFailed       int64  `json:"jobs_failed"`
}
