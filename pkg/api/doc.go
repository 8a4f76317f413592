// Package api provides the bridge's local HTTP API.
//
// This package encapsulates all HTTP-related concerns:
// - Submitting print jobs from the local network
// - Managing the printer registry
// - Pool, session and health introspection
// - Bearer token middleware
// - Error responses
//
// The package uses gin-gonic for routing. The API is local-only by
// intent: remote job dispatch goes through the controller uplink.
package api
