// Package rpc contains the network layer of dDB. It speaks the legacy
// MongoDB wire protocol, so existing drivers and shells can talk to the
// in-memory databases of lib/store.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures, their validation and the logger
//     factory used by all other packages.
//
//   - wire: Encoding and decoding of wire messages (header, OP_QUERY,
//     OP_INSERT, OP_UPDATE, OP_DELETE, OP_GET_MORE, OP_KILL_CURSORS and
//     OP_REPLY).
//
//   - transport: Network communication abstractions with pluggable
//     implementations (TCP, Unix sockets, HTTP).
//
//   - serializer: Document serialization as BSON or Extended JSON.
//
//   - client: A small client used by the command line tools and the tests.
//
//   - server: The adapter routing wire messages to databases and commands,
//     and the server running it on one or more transports.
package rpc
