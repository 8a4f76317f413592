// Package spool implements the delivery path for print payloads: one
// acquire-send-release round trip against the connection pool per job,
// with failed sends discarding the connection instead of returning it.
package spool
