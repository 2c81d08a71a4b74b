// Package flight reads streams from an Arrow Flight server.
//
// A stream is a Flight whose descriptor path, joined with "/", is the stream name. The client
// resolves each name to a ticket once and caches it until Invalidate is called; DoGet results
// are converted to Grafana data frames.
package flight
