package internal

import (
	"testing"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func baseDoc() bson.D {
	return bson.D{
		{Key: "_id", Value: int32(1)},
		{Key: "n", Value: int32(5)},
		{Key: "f", Value: 1.5},
		{Key: "list", Value: bson.A{int32(1), int32(2), int32(3)}},
		{Key: "sub", Value: bson.D{{Key: "a", Value: "x"}}},
	}
}

func TestApplyUpdateOperators(t *testing.T) {
	cases := []struct {
		name   string
		update bson.D
		path   string
		want   any
	}{
		{"Set", bson.D{{Key: "$set", Value: bson.D{{Key: "n", Value: "v"}}}}, "n", "v"},
		{"SetNested", bson.D{{Key: "$set", Value: bson.D{{Key: "sub.b.c", Value: int32(1)}}}}, "sub.b.c", int32(1)},
		{"IncInt32", bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: int32(2)}}}}, "n", int32(7)},
		{"IncWidens", bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: int64(2)}}}}, "n", int64(7)},
		{"IncFloat", bson.D{{Key: "$inc", Value: bson.D{{Key: "f", Value: int32(1)}}}}, "f", 2.5},
		{"IncMissing", bson.D{{Key: "$inc", Value: bson.D{{Key: "new", Value: int32(3)}}}}, "new", int32(3)},
		{"Mul", bson.D{{Key: "$mul", Value: bson.D{{Key: "n", Value: int32(3)}}}}, "n", int32(15)},
		{"MulMissing", bson.D{{Key: "$mul", Value: bson.D{{Key: "new", Value: int32(3)}}}}, "new", int32(0)},
		{"Min", bson.D{{Key: "$min", Value: bson.D{{Key: "n", Value: int32(2)}}}}, "n", int32(2)},
		{"MinKeeps", bson.D{{Key: "$min", Value: bson.D{{Key: "n", Value: int32(9)}}}}, "n", int32(5)},
		{"Max", bson.D{{Key: "$max", Value: bson.D{{Key: "n", Value: int32(9)}}}}, "n", int32(9)},
		{"Rename", bson.D{{Key: "$rename", Value: bson.D{{Key: "n", Value: "m"}}}}, "m", int32(5)},
		{"Push", bson.D{{Key: "$push", Value: bson.D{{Key: "list", Value: int32(4)}}}}, "list", bson.A{int32(1), int32(2), int32(3), int32(4)}},
		{"PushEach", bson.D{{Key: "$push", Value: bson.D{{Key: "list", Value: bson.D{{Key: "$each", Value: bson.A{int32(4), int32(5)}}}}}}}, "list", bson.A{int32(1), int32(2), int32(3), int32(4), int32(5)}},
		{"PushMissing", bson.D{{Key: "$push", Value: bson.D{{Key: "other", Value: "a"}}}}, "other", bson.A{"a"}},
		{"AddToSet", bson.D{{Key: "$addToSet", Value: bson.D{{Key: "list", Value: 2.0}}}}, "list", bson.A{int32(1), int32(2), int32(3)}},
		{"PopLast", bson.D{{Key: "$pop", Value: bson.D{{Key: "list", Value: 1}}}}, "list", bson.A{int32(1), int32(2)}},
		{"PopFirst", bson.D{{Key: "$pop", Value: bson.D{{Key: "list", Value: -1}}}}, "list", bson.A{int32(2), int32(3)}},
		{"Pull", bson.D{{Key: "$pull", Value: bson.D{{Key: "list", Value: int32(2)}}}}, "list", bson.A{int32(1), int32(3)}},
		{"PullCondition", bson.D{{Key: "$pull", Value: bson.D{{Key: "list", Value: bson.D{{Key: "$gte", Value: 2}}}}}}, "list", bson.A{int32(1)}},
		{"PullAll", bson.D{{Key: "$pullAll", Value: bson.D{{Key: "list", Value: bson.A{1, 3}}}}}, "list", bson.A{int32(2)}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, err := ApplyUpdate(document.Clone(baseDoc()), c.update, "_id", false)
			require.NoError(t, err)
			got, ok := document.Lookup(out, c.path)
			require.True(t, ok, "path %s missing in %v", c.path, out)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("unexpected value (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyUpdateUnset(t *testing.T) {
	out, err := ApplyUpdate(baseDoc(), bson.D{{Key: "$unset", Value: bson.D{{Key: "sub", Value: ""}}}}, "_id", false)
	require.NoError(t, err)
	assert.False(t, document.Has(out, "sub"))
}

func TestApplyUpdateSetOnInsert(t *testing.T) {
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "created", Value: true}}}}

	out, err := ApplyUpdate(baseDoc(), update, "_id", false)
	require.NoError(t, err)
	assert.False(t, document.Has(out, "created"))

	out, err = ApplyUpdate(baseDoc(), update, "_id", true)
	require.NoError(t, err)
	assert.True(t, document.Has(out, "created"))
}

func TestApplyUpdateReplacement(t *testing.T) {
	out, err := ApplyUpdate(baseDoc(), bson.D{{Key: "only", Value: "field"}}, "_id", false)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: int32(1)}, {Key: "only", Value: "field"}}, out)

	// same id in a different numeric representation is not a change
	_, err = ApplyUpdate(baseDoc(), bson.D{{Key: "_id", Value: 1.0}}, "_id", false)
	assert.NoError(t, err)
}

func TestApplyUpdateErrors(t *testing.T) {
	cases := map[string]bson.D{
		"Mixed":           {{Key: "$set", Value: bson.D{{Key: "a", Value: 1}}}, {Key: "b", Value: 1}},
		"ReplaceID":       {{Key: "_id", Value: int32(2)}},
		"SetID":           {{Key: "$set", Value: bson.D{{Key: "_id", Value: int32(2)}}}},
		"UnknownModifier": {{Key: "$foo", Value: bson.D{{Key: "a", Value: 1}}}},
		"IncNonNumeric":   {{Key: "$inc", Value: bson.D{{Key: "sub", Value: 1}}}},
		"PushNonArray":    {{Key: "$push", Value: bson.D{{Key: "n", Value: 1}}}},
	}
	for name, update := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ApplyUpdate(baseDoc(), update, "_id", false)
			require.Error(t, err)
		})
	}

	_, err := ApplyUpdate(baseDoc(), bson.D{{Key: "_id", Value: int32(2)}}, "_id", false)
	assert.Equal(t, db.CodeImmutableField, db.AsError(err).Code)
}

func TestProject(t *testing.T) {
	doc := bson.D{
		{Key: "_id", Value: int32(1)},
		{Key: "a", Value: int32(1)},
		{Key: "b", Value: bson.D{{Key: "c", Value: int32(2)}, {Key: "d", Value: int32(3)}}},
		{Key: "e", Value: "x"},
	}

	out, err := Project(document.Clone(doc), bson.D{{Key: "e", Value: 1}, {Key: "a", Value: true}}, "_id")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: int32(1)}, {Key: "a", Value: int32(1)}, {Key: "e", Value: "x"}}, out)

	out, err = Project(document.Clone(doc), bson.D{{Key: "b.c", Value: 1}, {Key: "_id", Value: 0}}, "_id")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "b", Value: bson.D{{Key: "c", Value: int32(2)}}}}, out)

	out, err = Project(document.Clone(doc), bson.D{{Key: "b", Value: 0}, {Key: "e", Value: 0}}, "_id")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: int32(1)}, {Key: "a", Value: int32(1)}}, out)

	_, err = Project(document.Clone(doc), bson.D{{Key: "a", Value: 1}, {Key: "e", Value: 0}}, "_id")
	assert.Error(t, err)
}

func TestSort(t *testing.T) {
	docs := []bson.D{
		{{Key: "k", Value: int32(2)}, {Key: "o", Value: "a"}},
		{{Key: "k", Value: int32(1)}, {Key: "o", Value: "b"}},
		{{Key: "k", Value: 2.0}, {Key: "o", Value: "c"}},
		{{Key: "o", Value: "d"}},
	}
	Sort(docs, bson.D{{Key: "k", Value: -1}})

	order := make([]string, len(docs))
	for i, d := range docs {
		v, _ := document.Get(d, "o")
		order[i] = v.(string)
	}
	assert.Equal(t, []string{"a", "c", "b", "d"}, order)
}
