// Package plugin is the Grafana backend of the orcastream data source.
//
// Each data source instance dials the configured Arrow Flight server and owns a live hub. Queries
// answer with a frame whose meta channel points the frontend at ds/<uid>/<stream>; Grafana then
// calls SubscribeStream and RunStream for that channel, and RunStream forwards every non-empty
// frame the hub polls. The resource router serves the stream catalog on GET /streams.
package plugin
