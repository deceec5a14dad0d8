// Package tcp implements the TCP socket transport of the wire protocol. It
// provides concrete implementations of the base package's connector
// interfaces and applies the configured socket options (no delay, keep
// alive, linger and buffer sizes) to every connection.
//
// See the base package documentation for the connection handling itself.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
package tcp
