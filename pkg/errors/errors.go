package errors

import "errors"

// Device connection errors
var (
	// ErrConnectTimeout is returned when a printer does not accept the
	// TCP connection within the configured timeout
	ErrConnectTimeout = errors.New("printer connect timeout")

	// ErrConnectFailed is returned when the printer refuses the connection
	// or is unreachable
	ErrConnectFailed = errors.New("printer connect failed")

	// ErrWriteFailed is returned when writing to the printer socket fails
	ErrWriteFailed = errors.New("printer write failed")

	// ErrNotConnected is returned when sending on a closed connection
	ErrNotConnected = errors.New("not connected to printer")
)

// Pool errors
var (
	// ErrPoolTimeout is returned when no pooled connection becomes
	// available within the wait timeout
	ErrPoolTimeout = errors.New("connection pool timeout")

	// ErrPoolClosed is returned when acquiring from a closed pool
	ErrPoolClosed = errors.New("connection pool closed")
)

// Session errors
var (
	// ErrRegisterFailed is returned when the controller rejects registration
	ErrRegisterFailed = errors.New("registration rejected by controller")

	// ErrInvalidResponse is returned when the controller response is invalid
	ErrInvalidResponse = errors.New("invalid controller response")

	// ErrAlreadyConnected is returned when Connect is called on a live session
	ErrAlreadyConnected = errors.New("session already connected")

	// ErrSessionFailed is returned when reconnect attempts are exhausted
	ErrSessionFailed = errors.New("session failed: reconnect attempts exhausted")

	// ErrSessionClosed is returned when using a session after Disconnect
	ErrSessionClosed = errors.New("session closed")
)

// Job errors
var (
	// ErrUnknownFormat is returned for an unrecognized payload format
	ErrUnknownFormat = errors.New("unknown payload format")

	// ErrUnknownEncoding is returned for an unsupported text encoding
	ErrUnknownEncoding = errors.New("unsupported text encoding")

	// ErrPrinterNotFound is returned when a named printer is not registered
	ErrPrinterNotFound = errors.New("printer not found")

	// ErrNoDefaultPrinter is returned when a job names no printer and no
	// default is configured
	ErrNoDefaultPrinter = errors.New("no default printer configured")
)

// Storage errors
var (
	// ErrStorageNotInitialized is returned when storage is not initialized
	ErrStorageNotInitialized = errors.New("storage not initialized")

	// ErrDatabaseConnection is returned when database connection fails
	ErrDatabaseConnection = errors.New("database connection failed")
)

// Configuration errors
var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)
