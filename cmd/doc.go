// Package cmd implements the command-line interface of dDB. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the wire protocol server (and optionally the HTTP endpoint)
//   - doc: Client commands for document operations (cmd, insert, find, update,
//     remove, count), an interactive shell and a benchmark (perf). Documents
//     are given and printed as Extended JSON.
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable DDB_<FLAG> (dashes
// become underscores), .env and .env.local are loaded on startup.
//
// See ddb -help for a list of all commands.
package cmd
