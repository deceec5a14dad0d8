// Package wire implements the legacy document database wire protocol: the
// 16 byte message header and the OP_QUERY, OP_INSERT, OP_UPDATE, OP_DELETE,
// OP_GET_MORE, OP_KILL_CURSORS and OP_REPLY message bodies.
//
// All integers are little endian. Documents are BSON and decoded into
// bson.D, so field order is preserved end to end.
//
// Usage Example:
//
//	msg, err := wire.ReadMessage(conn, buf, maxSize)
//	header, body, err := wire.Decode(msg)
//	switch m := body.(type) {
//	case *wire.Query:
//		reply, err := wire.Encode(nextID, header.RequestID, &wire.Reply{Documents: docs})
//	}
package wire
