// Package unix implements the wire protocol transport over Unix domain
// sockets for clients running on the same machine.
//
// This package extends the base transport layer with Unix socket-specific
// connectors while inheriting the connection handling from the base package.
// An existing socket file at the endpoint path is removed before listening.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners and accepts connections
package unix
