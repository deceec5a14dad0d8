// Package base provides the foundation for the stream based transports of
// dDB, implementing the wire protocol connection handling independent of the
// specific network protocol (TCP, Unix sockets). Protocol specific details
// are supplied by connectors.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - serverTransport: Accepts connections, assigns each a process wide unique
//     connection id and serves it with exactly one goroutine. Messages are
//     framed by the length field of the wire header and handed to the
//     registered handler one after another, so a getlasterror always observes
//     the write sent before it on the same connection. When a connection ends
//     the close handler is called with its id.
//
//   - clientTransport: Uses a single connection. Replies are matched to
//     waiting requests by the responseTo field of the reply header.
//
// Limits:
//
//   - A message whose declared length exceeds the configured maximum is not
//     read; the connection is closed instead.
//
// Metrics:
//
//   - ddb_connections_total and ddb_connections_active count the accepted and
//     the currently open connections.
//
// Thread Safety:
//
//	All public methods are thread-safe. Client writes are serialized with a
//	mutex, the server keeps its open connections in a concurrent map.
package base
