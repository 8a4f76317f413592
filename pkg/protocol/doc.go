// Package protocol defines the wire contract between the bridge and the
// remote controller: the JSON message envelope, typed payloads for
// registration, job dispatch, job results and heartbeats, and payload
// decoding for print data.
package protocol
