package internal

import (
	"testing"

	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMatches(t *testing.T) {
	doc := bson.D{
		{Key: "_id", Value: int32(1)},
		{Key: "name", Value: "Apple"},
		{Key: "price", Value: 2.5},
		{Key: "qty", Value: int64(10)},
		{Key: "tags", Value: bson.A{"red", "fruit"}},
		{Key: "meta", Value: bson.D{{Key: "origin", Value: "NZ"}, {Key: "grade", Value: int32(3)}}},
		{Key: "sizes", Value: bson.A{
			bson.D{{Key: "w", Value: int32(1)}, {Key: "h", Value: int32(5)}},
			bson.D{{Key: "w", Value: int32(3)}, {Key: "h", Value: int32(2)}},
		}},
		{Key: "none", Value: nil},
	}

	cases := []struct {
		name     string
		selector bson.D
		want     bool
	}{
		{"Empty", bson.D{}, true},
		{"Equality", bson.D{{Key: "name", Value: "Apple"}}, true},
		{"EqualityNumberKinds", bson.D{{Key: "_id", Value: 1.0}}, true},
		{"EqualityMismatch", bson.D{{Key: "name", Value: "Pear"}}, false},
		{"DottedPath", bson.D{{Key: "meta.origin", Value: "NZ"}}, true},
		{"ArrayElement", bson.D{{Key: "tags", Value: "red"}}, true},
		{"WholeArray", bson.D{{Key: "tags", Value: bson.A{"red", "fruit"}}}, true},
		{"ArrayOfDocuments", bson.D{{Key: "sizes.w", Value: int32(3)}}, true},
		{"NullMatchesMissing", bson.D{{Key: "missing", Value: nil}}, true},
		{"NullMatchesNull", bson.D{{Key: "none", Value: nil}}, true},
		{"Gt", bson.D{{Key: "price", Value: bson.D{{Key: "$gt", Value: int32(2)}}}}, true},
		{"GtTypeClass", bson.D{{Key: "name", Value: bson.D{{Key: "$gt", Value: int32(2)}}}}, false},
		{"Range", bson.D{{Key: "qty", Value: bson.D{{Key: "$gte", Value: 10}, {Key: "$lt", Value: 11}}}}, true},
		{"Ne", bson.D{{Key: "name", Value: bson.D{{Key: "$ne", Value: "Apple"}}}}, false},
		{"In", bson.D{{Key: "tags", Value: bson.D{{Key: "$in", Value: bson.A{"blue", "fruit"}}}}}, true},
		{"InRegex", bson.D{{Key: "name", Value: bson.D{{Key: "$in", Value: bson.A{primitive.Regex{Pattern: "^A"}}}}}}, true},
		{"Nin", bson.D{{Key: "tags", Value: bson.D{{Key: "$nin", Value: bson.A{"red"}}}}}, false},
		{"Exists", bson.D{{Key: "meta.grade", Value: bson.D{{Key: "$exists", Value: true}}}}, true},
		{"NotExists", bson.D{{Key: "missing", Value: bson.D{{Key: "$exists", Value: false}}}}, true},
		{"RegexLiteral", bson.D{{Key: "name", Value: primitive.Regex{Pattern: "^a", Options: "i"}}}, true},
		{"RegexValue", bson.D{{Key: "name", Value: document.NewRegex("^a", "")}}, false},
		{"RegexOperator", bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "pp"}, {Key: "$options", Value: ""}}}}, true},
		{"Not", bson.D{{Key: "price", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$gt", Value: 5}}}}}}, true},
		{"Size", bson.D{{Key: "tags", Value: bson.D{{Key: "$size", Value: 2}}}}, true},
		{"All", bson.D{{Key: "tags", Value: bson.D{{Key: "$all", Value: bson.A{"fruit", "red"}}}}}, true},
		{"AllMissing", bson.D{{Key: "tags", Value: bson.D{{Key: "$all", Value: bson.A{"fruit", "blue"}}}}}, false},
		{"ElemMatch", bson.D{{Key: "sizes", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "w", Value: int32(1)}, {Key: "h", Value: int32(5)}}}}}}, true},
		{"ElemMatchNoSingleElement", bson.D{{Key: "sizes", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "w", Value: int32(1)}, {Key: "h", Value: int32(2)}}}}}}, false},
		{"Mod", bson.D{{Key: "qty", Value: bson.D{{Key: "$mod", Value: bson.A{4, 2}}}}}, true},
		{"TypeAlias", bson.D{{Key: "qty", Value: bson.D{{Key: "$type", Value: "long"}}}}, true},
		{"TypeNumber", bson.D{{Key: "name", Value: bson.D{{Key: "$type", Value: 2}}}}, true},
		{"And", bson.D{{Key: "$and", Value: bson.A{bson.D{{Key: "name", Value: "Apple"}}, bson.D{{Key: "qty", Value: 10}}}}}, true},
		{"Or", bson.D{{Key: "$or", Value: bson.A{bson.D{{Key: "name", Value: "Pear"}}, bson.D{{Key: "qty", Value: 10}}}}}, true},
		{"Nor", bson.D{{Key: "$nor", Value: bson.A{bson.D{{Key: "name", Value: "Pear"}}}}}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Matches(doc, c.selector)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestMatchesErrors(t *testing.T) {
	doc := bson.D{{Key: "a", Value: 1}}

	_, err := Matches(doc, bson.D{{Key: "$foo", Value: 1}})
	assert.Error(t, err)

	_, err = Matches(doc, bson.D{{Key: "a", Value: bson.D{{Key: "$foo", Value: 1}}}})
	assert.Error(t, err)

	_, err = Matches(doc, bson.D{{Key: "$or", Value: bson.A{}}})
	assert.Error(t, err)

	_, err = Matches(bson.D{{Key: "a", Value: "x"}}, bson.D{{Key: "a", Value: primitive.Regex{Pattern: "x", Options: "q"}}})
	assert.Error(t, err)
}

func TestUnwrapQuery(t *testing.T) {
	selector, orderBy := UnwrapQuery(bson.D{
		{Key: "$query", Value: bson.D{{Key: "a", Value: 1}}},
		{Key: "$orderby", Value: bson.D{{Key: "b", Value: -1}}},
	})
	assert.Equal(t, bson.D{{Key: "a", Value: 1}}, selector)
	assert.Equal(t, bson.D{{Key: "b", Value: -1}}, orderBy)

	selector, orderBy = UnwrapQuery(bson.D{{Key: "a", Value: 1}})
	assert.Equal(t, bson.D{{Key: "a", Value: 1}}, selector)
	assert.Nil(t, orderBy)
}
