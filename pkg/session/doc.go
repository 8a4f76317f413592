// Package session maintains the long-lived outbound connection to the
// remote controller. The Session registers the bridge's identity,
// receives print job dispatches, delivers them through the spool, emits
// correlated job results, and reconnects with bounded exponential
// backoff when the uplink drops. The connection pool is independent of
// the session: local deliveries keep working whatever the uplink state.
package session
