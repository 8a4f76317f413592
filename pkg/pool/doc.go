// Package pool provides bounded per-endpoint pooling of printer
// connections. It supports reuse-first acquisition, wait-then-fail
// backpressure when an endpoint is saturated, and automatic cleanup of
// idle connections.
package pool
