package document

import (
	"sync"
	"testing"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRegexMatch(t *testing.T) {
	cases := []struct {
		pattern, options, text string
		want                   bool
	}{
		{"^ab", "", "abc", true},
		{"^AB", "", "abc", false},
		{"^AB", "i", "abc", true},
		{"^b", "", "a\nb", false},
		{"^b", "m", "a\nb", true},
		{"a.b", "", "a\nb", false},
		{"a.b", "s", "a\nb", true},
		{"a b # comment", "x", "ab", true},
		{"ü", "iu", "Ü", true},
	}
	for _, c := range cases {
		ok, err := NewRegex(c.pattern, c.options).Match(c.text)
		require.NoError(t, err)
		assert.Equal(t, c.want, ok, "/%s/%s against %q", c.pattern, c.options, c.text)
	}
}

func TestRegexUnknownFlag(t *testing.T) {
	_, err := NewRegex("a", "ic").Match("a")
	require.Error(t, err)

	e := db.AsError(err)
	assert.Equal(t, db.KindDomain, e.Kind)
	assert.Equal(t, db.CodeInvalidRegexOption, e.Code)
	assert.Equal(t, "unknown pattern flag: 'c'", e.Msg)
}

func TestRegexMemoised(t *testing.T) {
	r := NewRegex("^x+$", "")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Match("xxx")
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	first, err := r.Compile()
	require.NoError(t, err)
	second, err := r.Compile()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRegexExtendedForm(t *testing.T) {
	r, err := FromExtendedForm(bson.D{{Key: "$regex", Value: "^a"}, {Key: "$options", Value: "i"}})
	require.NoError(t, err)
	assert.Equal(t, "^a", r.Pattern())
	assert.Equal(t, "i", r.Options())

	r, err = FromExtendedForm(bson.D{{Key: "$regex", Value: "^a"}})
	require.NoError(t, err)
	assert.Equal(t, "", r.Options())

	_, err = FromExtendedForm(bson.D{{Key: "$options", Value: "i"}})
	assert.Error(t, err)

	assert.Equal(t, bson.D{{Key: "$regex", Value: "^a"}, {Key: "$options", Value: ""}}, r.ToDocument())
}

func TestIsRegex(t *testing.T) {
	assert.True(t, IsRegex(NewRegex("a", "")))
	assert.True(t, IsRegex(primitive.Regex{Pattern: "a"}))
	assert.True(t, IsRegex(bson.D{{Key: "$regex", Value: "a"}}))
	assert.False(t, IsRegex(bson.D{{Key: "a", Value: "b"}}))
	assert.False(t, IsRegex("a"))

	r, err := ToRegex(primitive.Regex{Pattern: "p", Options: "m"})
	require.NoError(t, err)
	assert.Equal(t, "/p/m", r.String())
}

func TestRegexMarshal(t *testing.T) {
	b, err := bson.Marshal(bson.D{{Key: "r", Value: NewRegex("a+", "i")}})
	require.NoError(t, err)

	var out bson.D
	require.NoError(t, bson.Unmarshal(b, &out))
	assert.Equal(t, primitive.Regex{Pattern: "a+", Options: "i"}, out[0].Value)
}
