// Package server implements the wire protocol server of dDB. It connects the
// transports with the databases of a store.IBackend.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for server adapters,
//     with the Handle method that processes a complete wire message of a
//     connection and HandleClose that releases the state of a connection.
//
//   - NewWireAdapter: Creates the adapter for the legacy wire protocol. It
//     routes each message by opcode:
//     OP_QUERY on <db>.$cmd runs a command, OP_QUERY on any other namespace
//     reads documents, OP_INSERT, OP_UPDATE and OP_DELETE are handed to the
//     write handlers of the database without a reply (their outcome is read
//     with getlasterror), OP_GET_MORE is answered with CursorNotFound because
//     every result is returned in a single batch and OP_KILL_CURSORS is
//     ignored.
//
//   - Admin Commands: ismaster/hello, buildinfo, whatsmyuri, getnonce, ping,
//     listDatabases, getLog and serverStatus are answered by the server
//     itself. Every other command is handed to the database named by the
//     namespace.
//
//   - NewRPCServer: Creates a server on top of one or more transports that
//     share one adapter.
//
// Error Handling:
//
//	A failing command is answered with {ok: 0, errmsg, code}. A failing
//	query is answered with the QueryFailure flag and {$err, code}. Write
//	errors are never returned directly.
//
// Metrics (VictoriaMetrics):
//
//	ddb_requests_total{op="..."}           requests per opcode and per command
//	ddb_request_errors_total{op="..."}     failed requests
//	ddb_request_duration_seconds{op="..."} request latency histogram
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  TransportName: "tcp",
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:27017"},
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(config, lstore.NewLocalBackend(memory.NewEngine()), tcp.NewTCPServerTransport())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The adapter is safe for concurrent use by many connections. The
//	messages of a single connection are handled in order by the transport.
package server
