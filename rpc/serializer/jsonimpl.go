package serializer

import (
	"go.mongodb.org/mongo-driver/bson"
)

// NewJSONSerializer creates a new serializer using Extended JSON. Canonical
// mode keeps every type (int32 vs int64 vs double), relaxed mode renders
// numbers and dates the way plain JSON tools expect them.
func NewJSONSerializer(canonical bool) IDocumentSerializer {
	return &jsonSerializerImpl{canonical: canonical}
}

// jsonSerializerImpl implements the IDocumentSerializer interface using Extended JSON
type jsonSerializerImpl struct {
	canonical bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IDocumentSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(doc bson.D) ([]byte, error) {
	if doc == nil {
		doc = bson.D{}
	}
	return bson.MarshalExtJSON(doc, j.canonical, false)
}

func (j jsonSerializerImpl) Deserialize(b []byte, doc *bson.D) error {
	return bson.UnmarshalExtJSON(b, j.canonical, doc)
}

func (j jsonSerializerImpl) Name() string {
	return "json"
}
