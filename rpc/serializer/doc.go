// Package serializer converts documents to and from bytes. It defines a
// common interface and two implementations.
//
// Key Components:
//
//   - IDocumentSerializer: Core interface that all serializer implementations must satisfy.
//
//   - bsonSerializerImpl: The BSON binary format as used by the wire protocol.
//     Every type of the document model survives a round trip.
//
//   - jsonSerializerImpl: MongoDB Extended JSON. Used by the HTTP command
//     endpoint and by the CLI to read documents from the command line and to
//     print results. In canonical mode all types survive a round trip, in
//     relaxed mode numbers are printed as plain JSON numbers.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	s := serializer.NewJSONSerializer(false)
//	var doc bson.D
//	err := s.Deserialize([]byte(`{"name": "dDB", "tags": ["a", "b"]}`), &doc)
//	out, err := s.Serialize(doc)
package serializer
