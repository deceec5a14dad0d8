package client

import (
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/transport"
	"github.com/ValentinKolb/dDB/rpc/wire"
	"go.mongodb.org/mongo-driver/bson"
)

// NewRPCClient connects the transport and returns a client on top of it.
// All requests of a client share one connection, so GetLastError reports
// the outcome of the last write sent by the same client.
func NewRPCClient(config common.ClientConfig, transport transport.IRPCClientTransport) (*RPCClient, error) {
	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}
	return &RPCClient{config: config, transport: transport}, nil
}

// RPCClient is a minimal wire protocol client
type RPCClient struct {
	config    common.ClientConfig
	transport transport.IRPCClientTransport
	requestID atomic.Int32
}

// RunCommand runs cmd on database. A reply with ok other than 1 is
// returned together with a *db.Error carrying errmsg and code.
func (c *RPCClient) RunCommand(database string, cmd bson.D) (bson.D, error) {
	docs, err := c.invokeQuery(&wire.Query{
		FullCollectionName: database + ".$cmd",
		NumberToReturn:     -1,
		Query:              cmd,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, remoteError(nil, "empty command reply")
	}

	result := docs[0]
	if !commandOK(result) {
		msg, _ := document.Get(result, "errmsg")
		return result, remoteError(result, msg)
	}
	return result, nil
}

// Insert sends documents to namespace (<db>.<collection>). The outcome is
// read with GetLastError.
func (c *RPCClient) Insert(namespace string, docs ...bson.D) error {
	return c.invokeWrite(&wire.Insert{FullCollectionName: namespace, Documents: docs})
}

// Update sends an update to namespace. The outcome is read with GetLastError.
func (c *RPCClient) Update(namespace string, selector, update bson.D, upsert, multi bool) error {
	var flags int32
	if upsert {
		flags |= wire.UpdateFlagUpsert
	}
	if multi {
		flags |= wire.UpdateFlagMulti
	}
	return c.invokeWrite(&wire.Update{FullCollectionName: namespace, Flags: flags, Selector: selector, Update: update})
}

// Delete sends a delete to namespace. The outcome is read with GetLastError.
func (c *RPCClient) Delete(namespace string, selector bson.D, single bool) error {
	var flags int32
	if single {
		flags = wire.DeleteFlagSingleRemove
	}
	return c.invokeWrite(&wire.Delete{FullCollectionName: namespace, Flags: flags, Selector: selector})
}

// Find queries namespace. limit 0 returns all matching documents.
func (c *RPCClient) Find(namespace string, filter bson.D, skip, limit int, projection bson.D) ([]bson.D, error) {
	if filter == nil {
		filter = bson.D{}
	}
	return c.invokeQuery(&wire.Query{
		FullCollectionName:   namespace,
		NumberToSkip:         int32(skip),
		NumberToReturn:       int32(limit),
		Query:                filter,
		ReturnFieldsSelector: projection,
	})
}

// GetLastError returns the outcome of the last write on the database of
// namespace. If the write failed the result document is returned together
// with a *db.Error carrying err and code.
func (c *RPCClient) GetLastError(database string) (bson.D, error) {
	database, _, _ = strings.Cut(database, ".")

	result, err := c.RunCommand(database, bson.D{{Key: "getlasterror", Value: int32(1)}})
	if err != nil {
		return result, err
	}
	if msg, ok := document.Get(result, "err"); ok && msg != nil {
		return result, remoteError(result, msg)
	}
	return result, nil
}

// Close closes the connection
func (c *RPCClient) Close() error {
	return c.transport.Close()
}
