// Package client implements a minimal client for the dDB wire protocol. It
// is used by the command line tool and by the end to end tests.
//
// Key Components:
//
//   - NewRPCClient: Connects a client transport (tcp or unix) and returns an
//     RPCClient.
//
//   - RPCClient: RunCommand, Insert, Update, Delete, Find, GetLastError and
//     Close. Writes are fire and forget as in the protocol itself; their
//     outcome is read with GetLastError on the same client.
//
// Errors:
//
//	Failed commands, failed queries and failed writes reported by
//	getlasterror are returned as *db.Error with the code sent by the server.
//
// Usage Example:
//
//	c, err := client.NewRPCClient(common.ClientConfig{
//	  Transport:     common.ClientTransportConfig{Endpoint: "localhost:27017"},
//	  TimeoutSecond: 5,
//	}, tcp.NewTCPClientTransport())
//
//	_ = c.Insert("test.users", bson.D{{Key: "_id", Value: 1}, {Key: "name", Value: "a"}})
//	if _, err := c.GetLastError("test"); err != nil {
//	  // e.g. duplicate key (code 11000)
//	}
//	docs, err := c.Find("test.users", bson.D{{Key: "name", Value: "a"}}, 0, 0, nil)
package client
