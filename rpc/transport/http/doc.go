// Package http implements an HTTP transport next to the wire protocol
// transports. It is meant for tooling and monitoring rather than for
// drivers.
//
// Endpoints:
//
//   - POST /{db}/cmd: The body is a command document in Extended JSON
//     (relaxed or canonical). It is wrapped into a command query on
//     <db>.$cmd and handed to the same handler as wire messages, so the
//     command semantics are identical. The reply document is returned as
//     relaxed Extended JSON, or canonical with ?canonical=true. Replies with
//     ok other than 1 are sent with status 400.
//
//   - GET /metrics: All VictoriaMetrics metrics of the process in the
//     Prometheus text format.
//
// Every command request is a connection of its own, so per connection state
// such as the outcome of the last write does not outlive the request.
//
// With log level debug every request is logged with its status and duration.
package http
