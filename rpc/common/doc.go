// Package common provides configuration structures and the logging setup
// shared by the server, the transports and the client.
//
// Key Components:
//
//   - ServerConfig: Configuration of a server process. It selects the wire
//     protocol transport (tcp or unix), its socket options, the optional HTTP
//     endpoint, message size limits, deadlines and the log level. String()
//     renders the effective configuration at startup.
//
//   - ClientConfig: Configuration of a wire protocol client, the endpoint
//     and the timeout for a single request.
//
//   - Logger: A logger factory for dragonboats logger package. Every package
//     obtains its logger with logger.GetLogger(name); after InitLoggers the
//     loggers write through a shared zap logger and filter by the configured
//     level.
package common
