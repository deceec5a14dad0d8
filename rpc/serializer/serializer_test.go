package serializer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// testSerializers is a map of serializer name to factory function. Only
// serializers that keep every type are listed.
var testSerializers = map[string]func() IDocumentSerializer{
	"BSON":          NewBSONSerializer,
	"CanonicalJSON": func() IDocumentSerializer { return NewJSONSerializer(true) },
}

// testDocuments creates a set of documents covering the value space
func testDocuments() []bson.D {
	oid, _ := primitive.ObjectIDFromHex("5f1d7f0e2a3b4c5d6e7f8091")
	return []bson.D{
		// Empty document
		{},

		// Scalars of every numeric kind
		{
			{Key: "i32", Value: int32(1)},
			{Key: "i64", Value: int64(1) << 40},
			{Key: "f64", Value: 1.5},
			{Key: "str", Value: "value"},
			{Key: "bool", Value: true},
			{Key: "null", Value: nil},
		},

		// Special types
		{
			{Key: "_id", Value: oid},
			{Key: "date", Value: primitive.DateTime(1700000000000)},
			{Key: "re", Value: primitive.Regex{Pattern: "^a.*", Options: "i"}},
			{Key: "bin", Value: primitive.Binary{Subtype: 0, Data: []byte{1, 2, 3}}},
			{Key: "ts", Value: primitive.Timestamp{T: 12, I: 3}},
			{Key: "min", Value: primitive.MinKey{}},
			{Key: "max", Value: primitive.MaxKey{}},
		},

		// Nesting keeps the field order
		{
			{Key: "z", Value: int32(1)},
			{Key: "a", Value: bson.D{{Key: "y", Value: "1"}, {Key: "b", Value: bson.A{int32(1), "two", bson.D{{Key: "c", Value: 3.0}}}}}},
		},
	}
}

// TestSerializerRoundTrip tests that documents can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	docs := testDocuments()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, doc := range docs {
				// Serialize
				data, err := serializer.Serialize(doc)
				if err != nil {
					t.Errorf("Failed to serialize document %d: %v", i, err)
					continue
				}

				// Deserialize
				var result bson.D
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize document %d: %v", i, err)
					continue
				}

				// Compare
				if diff := cmp.Diff(doc, result, cmpopts.EquateEmpty()); diff != "" {
					t.Errorf("Document %d doesn't match after round trip (-want +got):\n%s", i, diff)
				}
			}
		})
	}
}

// TestNilDocument tests that a nil document is serialized as an empty document
func TestNilDocument(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(nil)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result bson.D
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if len(result) != 0 {
				t.Errorf("Expected empty document, got %v", result)
			}
		})
	}
}

// TestRelaxedJSON tests the relaxed mode as used for command line input
func TestRelaxedJSON(t *testing.T) {
	serializer := NewJSONSerializer(false)

	var doc bson.D
	err := serializer.Deserialize([]byte(`{"a": 1, "b": 2.5, "c": "x", "d": {"$oid": "5f1d7f0e2a3b4c5d6e7f8091"}}`), &doc)
	if err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}

	oid, _ := primitive.ObjectIDFromHex("5f1d7f0e2a3b4c5d6e7f8091")
	want := bson.D{
		{Key: "a", Value: int32(1)},
		{Key: "b", Value: 2.5},
		{Key: "c", Value: "x"},
		{Key: "d", Value: oid},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("Unexpected document (-want +got):\n%s", diff)
	}

	data, err := serializer.Serialize(bson.D{{Key: "n", Value: int64(5)}})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	if string(data) != `{"n":5}` {
		t.Errorf("Unexpected relaxed output: %s", data)
	}
}

// TestInvalidInput tests that broken input is rejected
func TestInvalidInput(t *testing.T) {
	var doc bson.D

	if err := NewBSONSerializer().Deserialize([]byte{5, 0, 0}, &doc); err == nil {
		t.Error("Expected error for truncated BSON")
	}
	if err := NewJSONSerializer(false).Deserialize([]byte(`{"a":`), &doc); err == nil {
		t.Error("Expected error for truncated JSON")
	}
}

func TestNames(t *testing.T) {
	if NewBSONSerializer().Name() != "bson" || NewJSONSerializer(true).Name() != "json" {
		t.Error("Unexpected serializer names")
	}
}
