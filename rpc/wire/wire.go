package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// OpCode identifies the kind of a wire message
type OpCode int32

const (
	OpReply       OpCode = 1
	OpUpdate      OpCode = 2001
	OpInsert      OpCode = 2002
	OpQuery       OpCode = 2004
	OpGetMore     OpCode = 2005
	OpDelete      OpCode = 2006
	OpKillCursors OpCode = 2007
)

func (o OpCode) String() string {
	switch o {
	case OpReply:
		return "reply"
	case OpUpdate:
		return "update"
	case OpInsert:
		return "insert"
	case OpQuery:
		return "query"
	case OpGetMore:
		return "getmore"
	case OpDelete:
		return "delete"
	case OpKillCursors:
		return "killcursors"
	default:
		return fmt.Sprintf("opcode(%d)", int32(o))
	}
}

// HeaderSize is the length of the message header in bytes
const HeaderSize = 16

// Flag bits of the individual messages
const (
	UpdateFlagUpsert = 1 << 0
	UpdateFlagMulti  = 1 << 1

	DeleteFlagSingleRemove = 1 << 0

	InsertFlagContinueOnError = 1 << 0

	ReplyFlagCursorNotFound = 1 << 0
	ReplyFlagQueryFailure   = 1 << 1
	ReplyFlagAwaitCapable   = 1 << 3
)

var (
	// ErrMessageTooLarge is returned for a declared length above the limit
	ErrMessageTooLarge = errors.New("wire: message too large")
	// ErrMalformed is returned for a message that cannot be decoded
	ErrMalformed = errors.New("wire: malformed message")
)

// --------------------------------------------------------------------------
// Header and Messages
// --------------------------------------------------------------------------

// Header is the standard header in front of every message. All fields are
// little endian int32 on the wire.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        OpCode
}

// Message is a decoded wire message body
type Message interface {
	OpCode() OpCode
	appendBody(b []byte) ([]byte, error)
}

type Query struct {
	Flags                int32
	FullCollectionName   string
	NumberToSkip         int32
	NumberToReturn       int32
	Query                bson.D
	ReturnFieldsSelector bson.D // nil if absent
}

type Insert struct {
	Flags              int32
	FullCollectionName string
	Documents          []bson.D
}

type Update struct {
	FullCollectionName string
	Flags              int32
	Selector           bson.D
	Update             bson.D
}

func (u *Update) Upsert() bool { return u.Flags&UpdateFlagUpsert != 0 }
func (u *Update) Multi() bool  { return u.Flags&UpdateFlagMulti != 0 }

type Delete struct {
	FullCollectionName string
	Flags              int32
	Selector           bson.D
}

func (d *Delete) SingleRemove() bool { return d.Flags&DeleteFlagSingleRemove != 0 }

type GetMore struct {
	FullCollectionName string
	NumberToReturn     int32
	CursorID           int64
}

type KillCursors struct {
	CursorIDs []int64
}

type Reply struct {
	ResponseFlags int32
	CursorID      int64
	StartingFrom  int32
	Documents     []bson.D
}

func (*Query) OpCode() OpCode       { return OpQuery }
func (*Insert) OpCode() OpCode      { return OpInsert }
func (*Update) OpCode() OpCode      { return OpUpdate }
func (*Delete) OpCode() OpCode      { return OpDelete }
func (*GetMore) OpCode() OpCode     { return OpGetMore }
func (*KillCursors) OpCode() OpCode { return OpKillCursors }
func (*Reply) OpCode() OpCode       { return OpReply }

// --------------------------------------------------------------------------
// Framing
// --------------------------------------------------------------------------

// ReadMessage reads one complete message (header included) from r. buf is
// reused if it is large enough. A declared length above maxSize is rejected
// before the body is read.
func ReadMessage(r io.Reader, buf []byte, maxSize int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	length := int(int32(binary.LittleEndian.Uint32(lenBuf[:])))
	if length < HeaderSize {
		return nil, fmt.Errorf("%w: length %d shorter than header", ErrMalformed, length)
	}
	if maxSize > 0 && length > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, length, maxSize)
	}

	if cap(buf) < length {
		buf = make([]byte, length)
	}
	buf = buf[:length]
	copy(buf, lenBuf[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return nil, err
	}
	return buf, nil
}

// ParseHeader reads the header of a complete message
func ParseHeader(msg []byte) (Header, error) {
	if len(msg) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes shorter than header", ErrMalformed, len(msg))
	}
	h := Header{
		MessageLength: int32(binary.LittleEndian.Uint32(msg[0:4])),
		RequestID:     int32(binary.LittleEndian.Uint32(msg[4:8])),
		ResponseTo:    int32(binary.LittleEndian.Uint32(msg[8:12])),
		OpCode:        OpCode(binary.LittleEndian.Uint32(msg[12:16])),
	}
	if int(h.MessageLength) != len(msg) {
		return Header{}, fmt.Errorf("%w: declared length %d but got %d bytes", ErrMalformed, h.MessageLength, len(msg))
	}
	return h, nil
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// Decode parses a complete message into its header and typed body
func Decode(msg []byte) (Header, Message, error) {
	h, err := ParseHeader(msg)
	if err != nil {
		return h, nil, err
	}

	r := &reader{b: msg, pos: HeaderSize}
	var m Message

	switch h.OpCode {
	case OpQuery:
		q := &Query{}
		q.Flags = r.int32()
		q.FullCollectionName = r.cstring()
		q.NumberToSkip = r.int32()
		q.NumberToReturn = r.int32()
		q.Query = r.document()
		if r.remaining() > 0 {
			q.ReturnFieldsSelector = r.document()
		}
		m = q

	case OpInsert:
		ins := &Insert{}
		ins.Flags = r.int32()
		ins.FullCollectionName = r.cstring()
		for r.err == nil && r.remaining() > 0 {
			ins.Documents = append(ins.Documents, r.document())
		}
		m = ins

	case OpUpdate:
		u := &Update{}
		r.int32() // reserved
		u.FullCollectionName = r.cstring()
		u.Flags = r.int32()
		u.Selector = r.document()
		u.Update = r.document()
		m = u

	case OpDelete:
		d := &Delete{}
		r.int32() // reserved
		d.FullCollectionName = r.cstring()
		d.Flags = r.int32()
		d.Selector = r.document()
		m = d

	case OpGetMore:
		g := &GetMore{}
		r.int32() // reserved
		g.FullCollectionName = r.cstring()
		g.NumberToReturn = r.int32()
		g.CursorID = r.int64()
		m = g

	case OpKillCursors:
		k := &KillCursors{}
		r.int32() // reserved
		n := r.int32()
		if n < 0 || int(n)*8 > r.remaining() {
			return h, nil, fmt.Errorf("%w: invalid cursor count %d", ErrMalformed, n)
		}
		for i := int32(0); i < n; i++ {
			k.CursorIDs = append(k.CursorIDs, r.int64())
		}
		m = k

	case OpReply:
		rep := &Reply{}
		rep.ResponseFlags = r.int32()
		rep.CursorID = r.int64()
		rep.StartingFrom = r.int32()
		n := r.int32()
		for i := int32(0); i < n && r.err == nil; i++ {
			rep.Documents = append(rep.Documents, r.document())
		}
		m = rep

	default:
		return h, nil, fmt.Errorf("%w: unsupported opcode %d", ErrMalformed, int32(h.OpCode))
	}

	if r.err != nil {
		return h, nil, r.err
	}
	if r.remaining() != 0 {
		return h, nil, fmt.Errorf("%w: %d trailing bytes in %s", ErrMalformed, r.remaining(), h.OpCode)
	}
	return h, m, nil
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// Encode renders a complete message with the given request id and the id of
// the request it answers (0 for requests).
func Encode(requestID, responseTo int32, m Message) ([]byte, error) {
	b := make([]byte, HeaderSize, 256)
	b, err := m.appendBody(b)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(b)))
	binary.LittleEndian.PutUint32(b[4:8], uint32(requestID))
	binary.LittleEndian.PutUint32(b[8:12], uint32(responseTo))
	binary.LittleEndian.PutUint32(b[12:16], uint32(m.OpCode()))
	return b, nil
}

func (q *Query) appendBody(b []byte) ([]byte, error) {
	b = appendInt32(b, q.Flags)
	b = appendCString(b, q.FullCollectionName)
	b = appendInt32(b, q.NumberToSkip)
	b = appendInt32(b, q.NumberToReturn)
	b, err := appendDocument(b, q.Query)
	if err != nil || q.ReturnFieldsSelector == nil {
		return b, err
	}
	return appendDocument(b, q.ReturnFieldsSelector)
}

func (ins *Insert) appendBody(b []byte) ([]byte, error) {
	b = appendInt32(b, ins.Flags)
	b = appendCString(b, ins.FullCollectionName)
	var err error
	for _, doc := range ins.Documents {
		if b, err = appendDocument(b, doc); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (u *Update) appendBody(b []byte) ([]byte, error) {
	b = appendInt32(b, 0)
	b = appendCString(b, u.FullCollectionName)
	b = appendInt32(b, u.Flags)
	b, err := appendDocument(b, u.Selector)
	if err != nil {
		return nil, err
	}
	return appendDocument(b, u.Update)
}

func (d *Delete) appendBody(b []byte) ([]byte, error) {
	b = appendInt32(b, 0)
	b = appendCString(b, d.FullCollectionName)
	b = appendInt32(b, d.Flags)
	return appendDocument(b, d.Selector)
}

func (g *GetMore) appendBody(b []byte) ([]byte, error) {
	b = appendInt32(b, 0)
	b = appendCString(b, g.FullCollectionName)
	b = appendInt32(b, g.NumberToReturn)
	return binary.LittleEndian.AppendUint64(b, uint64(g.CursorID)), nil
}

func (k *KillCursors) appendBody(b []byte) ([]byte, error) {
	b = appendInt32(b, 0)
	b = appendInt32(b, int32(len(k.CursorIDs)))
	for _, id := range k.CursorIDs {
		b = binary.LittleEndian.AppendUint64(b, uint64(id))
	}
	return b, nil
}

func (rep *Reply) appendBody(b []byte) ([]byte, error) {
	b = appendInt32(b, rep.ResponseFlags)
	b = binary.LittleEndian.AppendUint64(b, uint64(rep.CursorID))
	b = appendInt32(b, rep.StartingFrom)
	b = appendInt32(b, int32(len(rep.Documents)))
	var err error
	for _, doc := range rep.Documents {
		if b, err = appendDocument(b, doc); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func appendInt32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func appendCString(b []byte, s string) []byte {
	b = append(b, s...)
	return append(b, 0)
}

func appendDocument(b []byte, doc bson.D) ([]byte, error) {
	if doc == nil {
		doc = bson.D{}
	}
	return bson.MarshalAppend(b, doc)
}

// reader walks a message body. The first error sticks, later reads return
// zero values.
type reader struct {
	b   []byte
	pos int
	err error
}

func (r *reader) remaining() int {
	return len(r.b) - r.pos
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
	}
}

func (r *reader) int32() int32 {
	if r.err != nil {
		return 0
	}
	if r.remaining() < 4 {
		r.fail("truncated int32 at offset %d", r.pos)
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(r.b[r.pos:]))
	r.pos += 4
	return v
}

func (r *reader) int64() int64 {
	if r.err != nil {
		return 0
	}
	if r.remaining() < 8 {
		r.fail("truncated int64 at offset %d", r.pos)
		return 0
	}
	v := int64(binary.LittleEndian.Uint64(r.b[r.pos:]))
	r.pos += 8
	return v
}

func (r *reader) cstring() string {
	if r.err != nil {
		return ""
	}
	for i := r.pos; i < len(r.b); i++ {
		if r.b[i] == 0 {
			s := string(r.b[r.pos:i])
			r.pos = i + 1
			return s
		}
	}
	r.fail("unterminated cstring at offset %d", r.pos)
	return ""
}

func (r *reader) document() bson.D {
	if r.err != nil {
		return nil
	}
	if r.remaining() < 5 {
		r.fail("truncated document at offset %d", r.pos)
		return nil
	}
	size := int(int32(binary.LittleEndian.Uint32(r.b[r.pos:])))
	if size < 5 || size > r.remaining() {
		r.fail("invalid document size %d at offset %d", size, r.pos)
		return nil
	}

	raw := bson.Raw(r.b[r.pos : r.pos+size])
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		r.fail("document at offset %d: %v", r.pos, err)
		return nil
	}
	r.pos += size
	if doc == nil {
		doc = bson.D{}
	}
	return doc
}
