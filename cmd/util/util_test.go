package util

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestWrapString(t *testing.T) {
	wrapped := WrapString(strings.Repeat("word ", 30))
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument(`{"a": 1, "b": {"c": "x"}}`)
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "a", Value: int32(1)},
		{Key: "b", Value: bson.D{{Key: "c", Value: "x"}}},
	}, doc)

	doc, err = ParseDocument("")
	require.NoError(t, err)
	assert.Equal(t, bson.D{}, doc)
}

func TestParseDocumentExtensions(t *testing.T) {
	// comments and trailing commas
	doc, err := ParseDocument(`{
		// the primary key
		"_id": {"$oid": "5f1d7f1c8b6e4a3d2c1b0a99"},
		"n": 2,
	}`)
	require.NoError(t, err)
	id, err := primitive.ObjectIDFromHex("5f1d7f1c8b6e4a3d2c1b0a99")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: id}, {Key: "n", Value: int32(2)}}, doc)

	_, err = ParseDocument(`{"a": `)
	assert.Error(t, err)
	_, err = ParseDocument(`[1, 2]`)
	assert.Error(t, err)
}

func TestFormatDocument(t *testing.T) {
	doc := bson.D{{Key: "n", Value: int32(5)}}

	viper.Set("json-canonical", false)
	text, err := FormatDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"n":5}`, text)

	viper.Set("json-canonical", true)
	t.Cleanup(func() { viper.Set("json-canonical", false) })
	text, err = FormatDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"n":{"$numberInt":"5"}}`, text)
}

func TestClientConfig(t *testing.T) {
	viper.Set("endpoint", "/tmp/ddb.sock")
	viper.Set("transport", "unix")
	viper.Set("timeout", 3)
	viper.Set("transport-read-buffer", 4)
	t.Cleanup(viper.Reset)

	conf := GetClientConfig()
	assert.Equal(t, "/tmp/ddb.sock", conf.Transport.Endpoint)
	assert.Equal(t, 3, conf.TimeoutSecond)
	assert.Equal(t, 4*1024, conf.Transport.ReadBufferSize)

	_, err := GetTransport()
	require.NoError(t, err)

	viper.Set("transport", "carrier-pigeon")
	_, err = GetTransport()
	assert.Error(t, err)
}
