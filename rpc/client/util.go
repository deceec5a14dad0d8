package client

import (
	"fmt"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/ValentinKolb/dDB/rpc/wire"
	"github.com/lni/dragonboat/v4/logger"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	Logger = logger.GetLogger("rpc")
)

// invokeQuery sends a query and decodes the reply. A reply with the
// QueryFailure flag is turned into an error.
func (c *RPCClient) invokeQuery(q *wire.Query) ([]bson.D, error) {
	requestID := c.requestID.Add(1)
	req, err := wire.Encode(requestID, 0, q)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := c.transport.Send(req)
	if err != nil {
		return nil, err
	}

	// Decode the reply
	h, msg, err := wire.Decode(respBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid reply: %w", err)
	}
	reply, ok := msg.(*wire.Reply)
	if !ok {
		return nil, fmt.Errorf("unexpected %s message in reply", h.OpCode)
	}
	if h.ResponseTo != requestID {
		return nil, fmt.Errorf("reply to %d received for request %d", h.ResponseTo, requestID)
	}

	// Check if the reply is an error reply
	if reply.ResponseFlags&wire.ReplyFlagQueryFailure != 0 {
		if len(reply.Documents) == 0 {
			return nil, db.NewInternalError("query failed without details")
		}
		msg, _ := document.Get(reply.Documents[0], "$err")
		return nil, remoteError(reply.Documents[0], msg)
	}
	return reply.Documents, nil
}

// invokeWrite sends a message that has no reply
func (c *RPCClient) invokeWrite(m wire.Message) error {
	req, err := wire.Encode(c.requestID.Add(1), 0, m)
	if err != nil {
		return err
	}
	return c.transport.SendNoReply(req)
}

// remoteError rebuilds a *db.Error from the code field of a reply document
func remoteError(doc bson.D, msg any) error {
	code := db.CodeInternalError
	if raw, ok := document.Get(doc, "code"); ok {
		if f, ok := document.ToFloat(raw); ok {
			code = int(f)
		}
	}
	return &db.Error{Kind: db.KindDomain, Code: code, Msg: fmt.Sprint(msg)}
}

// commandOK reports whether a command reply carries ok: 1
func commandOK(doc bson.D) bool {
	raw, ok := document.Get(doc, "ok")
	if !ok {
		return false
	}
	f, ok := document.ToFloat(raw)
	return ok && f == 1
}
