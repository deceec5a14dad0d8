package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRoundTrip(t *testing.T) {
	messages := []Message{
		&Query{
			Flags:              4,
			FullCollectionName: "test.$cmd",
			NumberToSkip:       0,
			NumberToReturn:     -1,
			Query:              bson.D{{Key: "count", Value: "coll"}, {Key: "query", Value: bson.D{{Key: "a", Value: int32(1)}}}},
		},
		&Query{
			FullCollectionName:   "test.coll",
			NumberToSkip:         2,
			NumberToReturn:       10,
			Query:                bson.D{},
			ReturnFieldsSelector: bson.D{{Key: "a", Value: int32(1)}},
		},
		&Insert{
			FullCollectionName: "test.coll",
			Documents: []bson.D{
				{{Key: "_id", Value: int32(1)}, {Key: "tags", Value: bson.A{"x", "y"}}},
				{{Key: "_id", Value: int32(2)}, {Key: "re", Value: primitive.Regex{Pattern: "^a", Options: "i"}}},
			},
		},
		&Update{
			FullCollectionName: "test.coll",
			Flags:              UpdateFlagUpsert | UpdateFlagMulti,
			Selector:           bson.D{{Key: "_id", Value: int32(1)}},
			Update:             bson.D{{Key: "$set", Value: bson.D{{Key: "a", Value: 2.5}}}},
		},
		&Delete{
			FullCollectionName: "test.coll",
			Flags:              DeleteFlagSingleRemove,
			Selector:           bson.D{{Key: "a", Value: "b"}},
		},
		&GetMore{FullCollectionName: "test.coll", NumberToReturn: 5, CursorID: 42},
		&KillCursors{CursorIDs: []int64{1, 2, 3}},
		&Reply{
			ResponseFlags: ReplyFlagAwaitCapable,
			Documents:     []bson.D{{{Key: "ok", Value: 1.0}}},
		},
	}

	for _, m := range messages {
		t.Run(m.OpCode().String(), func(t *testing.T) {
			raw, err := Encode(7, 3, m)
			require.NoError(t, err)

			h, decoded, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, Header{MessageLength: int32(len(raw)), RequestID: 7, ResponseTo: 3, OpCode: m.OpCode()}, h)
			if diff := cmp.Diff(m, decoded); diff != "" {
				t.Errorf("decoded message differs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFlags(t *testing.T) {
	u := &Update{Flags: UpdateFlagMulti}
	assert.False(t, u.Upsert())
	assert.True(t, u.Multi())

	d := &Delete{}
	assert.False(t, d.SingleRemove())
	d.Flags = DeleteFlagSingleRemove
	assert.True(t, d.SingleRemove())
}

func TestReadMessage(t *testing.T) {
	first, err := Encode(1, 0, &Delete{FullCollectionName: "a.b", Selector: bson.D{}})
	require.NoError(t, err)
	second, err := Encode(2, 0, &GetMore{FullCollectionName: "a.b"})
	require.NoError(t, err)

	r := bytes.NewReader(append(append([]byte{}, first...), second...))

	msg, err := ReadMessage(r, nil, 1024)
	require.NoError(t, err)
	assert.Equal(t, first, msg)

	msg, err = ReadMessage(r, make([]byte, 0, 4096), 1024)
	require.NoError(t, err)
	assert.Equal(t, second, msg)

	_, err = ReadMessage(r, nil, 1024)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessageLimits(t *testing.T) {
	var lenOnly [4]byte

	binary.LittleEndian.PutUint32(lenOnly[:], 1<<20)
	_, err := ReadMessage(bytes.NewReader(lenOnly[:]), nil, 1024)
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	binary.LittleEndian.PutUint32(lenOnly[:], 8)
	_, err = ReadMessage(bytes.NewReader(lenOnly[:]), nil, 1024)
	assert.ErrorIs(t, err, ErrMalformed)

	// declared length longer than the available bytes
	binary.LittleEndian.PutUint32(lenOnly[:], 32)
	_, err = ReadMessage(bytes.NewReader(append(lenOnly[:], 1, 2, 3, 4)), nil, 1024)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestDecodeMalformed(t *testing.T) {
	valid, err := Encode(1, 0, &Query{FullCollectionName: "a.$cmd", Query: bson.D{{Key: "ping", Value: 1.0}}})
	require.NoError(t, err)

	t.Run("ShortHeader", func(t *testing.T) {
		_, _, err := Decode(valid[:10])
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		_, _, err := Decode(valid[:len(valid)-1])
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("TruncatedDocument", func(t *testing.T) {
		broken := append([]byte{}, valid[:len(valid)-3]...)
		binary.LittleEndian.PutUint32(broken[0:4], uint32(len(broken)))
		_, _, err := Decode(broken)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("TrailingBytes", func(t *testing.T) {
		raw, err := Encode(1, 0, &GetMore{FullCollectionName: "a.b"})
		require.NoError(t, err)
		raw = append(raw, 0, 0)
		binary.LittleEndian.PutUint32(raw[0:4], uint32(len(raw)))
		_, _, err = Decode(raw)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("UnknownOpCode", func(t *testing.T) {
		raw := append([]byte{}, valid...)
		binary.LittleEndian.PutUint32(raw[12:16], 2013)
		_, _, err := Decode(raw)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestOpCodeString(t *testing.T) {
	assert.Equal(t, "query", OpQuery.String())
	assert.Equal(t, "opcode(2013)", OpCode(2013).String())
}
