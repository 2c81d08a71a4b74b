// Package dispatch turns panel queries into live subscriptions and merges them into one stream.
//
// Filter drops queries without a stream. Dispatch opens one subscription per remaining query
// (scope "ds", namespace = data source uid, path = stream, 8000 sample append buffer) and fans
// every subscription into a single response channel: one forwarding goroutine per subscription
// keeps each source's order, cross-source order is arrival order. ListStreams reads the catalog
// from the resource service on every call.
package dispatch
