package serializer

import "go.mongodb.org/mongo-driver/bson"

// IDocumentSerializer is the interface for all document serializers
type IDocumentSerializer interface {
	// Serialize serializes a document into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(doc bson.D) ([]byte, error)
	// Deserialize deserializes a byte array into a document
	// It takes a byte array and a pointer to a document as parameters
	// It returns an error if any
	Deserialize(b []byte, doc *bson.D) error
	// Name returns a short name of the format (used for content types and flags)
	Name() string
}
