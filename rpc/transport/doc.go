// Package transport defines the interfaces and abstractions for the wire
// protocol communication of dDB. It provides a common contract that all
// transport implementations must fulfill.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Handing complete wire messages to the server together with a connection id
//   - Reporting closed connections so per connection state can be released
//   - Enabling multiple transport implementations (TCP, Unix sockets, HTTP)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles the connection and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to the registered handler.
//
//   - ServerHandleFunc / CloseHandleFunc: Callbacks for messages and closed connections.
//
//   - NextConnID: Process wide connection id counter shared by all transports.
package transport
