// Package errors provides standardized error definitions for the bridge.
// All error definitions are centralized here so callers can match them
// with errors.Is across package boundaries.
package errors
