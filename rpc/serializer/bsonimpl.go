package serializer

import (
	"go.mongodb.org/mongo-driver/bson"
)

// NewBSONSerializer creates a new serializer using the BSON binary format
// that is also used on the wire.
func NewBSONSerializer() IDocumentSerializer {
	return &bsonSerializerImpl{}
}

// bsonSerializerImpl implements the IDocumentSerializer interface using BSON
type bsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IDocumentSerializer)
// --------------------------------------------------------------------------

func (s bsonSerializerImpl) Serialize(doc bson.D) ([]byte, error) {
	if doc == nil {
		doc = bson.D{}
	}
	return bson.Marshal(doc)
}

func (s bsonSerializerImpl) Deserialize(b []byte, doc *bson.D) error {
	if err := bson.Raw(b).Validate(); err != nil {
		return err
	}
	return bson.Unmarshal(b, doc)
}

func (s bsonSerializerImpl) Name() string {
	return "bson"
}
