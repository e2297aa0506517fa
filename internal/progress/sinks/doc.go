// Package sinks implements progress.Sink consumers: structured logging and
// Prometheus collectors.
package sinks
