// Package device manages single TCP sessions to network printers. A
// Connection is dialed with a timeout, written to atomically from the
// caller's perspective, and probed for liveness before reuse.
package device
