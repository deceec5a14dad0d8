package document

import (
	"bytes"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --------------------------------------------------------------------------
// Type Discriminant
// --------------------------------------------------------------------------

// TypeOf returns the BSON type of a value of the document model.
// Unknown Go types report bsontype.Type(0).
func TypeOf(v any) bsontype.Type {
	switch v.(type) {
	case nil, primitive.Null:
		return bsontype.Null
	case float64, float32:
		return bsontype.Double
	case string:
		return bsontype.String
	case primitive.D, primitive.M, map[string]any:
		return bsontype.EmbeddedDocument
	case primitive.A, []any:
		return bsontype.Array
	case primitive.Binary, []byte:
		return bsontype.Binary
	case primitive.Undefined:
		return bsontype.Undefined
	case primitive.ObjectID:
		return bsontype.ObjectID
	case bool:
		return bsontype.Boolean
	case primitive.DateTime, time.Time:
		return bsontype.DateTime
	case primitive.Regex, *Regex:
		return bsontype.Regex
	case primitive.DBPointer:
		return bsontype.DBPointer
	case primitive.JavaScript:
		return bsontype.JavaScript
	case primitive.Symbol:
		return bsontype.Symbol
	case primitive.CodeWithScope:
		return bsontype.CodeWithScope
	case int8, int16, int32, uint8, uint16:
		return bsontype.Int32
	case primitive.Timestamp:
		return bsontype.Timestamp
	case int, int64, uint, uint32, uint64:
		return bsontype.Int64
	case primitive.Decimal128:
		return bsontype.Decimal128
	case primitive.MinKey:
		return bsontype.MinKey
	case primitive.MaxKey:
		return bsontype.MaxKey
	default:
		return bsontype.Type(0)
	}
}

// IsNumber reports whether v is one of the numeric BSON types.
func IsNumber(v any) bool {
	switch TypeOf(v) {
	case bsontype.Double, bsontype.Int32, bsontype.Int64, bsontype.Decimal128:
		return true
	default:
		return false
	}
}

// IsDocument reports whether v is an embedded document.
func IsDocument(v any) bool {
	return TypeOf(v) == bsontype.EmbeddedDocument
}

// IsArray reports whether v is an array.
func IsArray(v any) bool {
	return TypeOf(v) == bsontype.Array
}

// AsDocument returns v as an ordered document. Unordered maps are converted
// with their keys sorted so the result is deterministic.
func AsDocument(v any) (bson.D, bool) {
	switch d := v.(type) {
	case primitive.D:
		return d, true
	case primitive.M:
		return fromMap(d), true
	case map[string]any:
		return fromMap(d), true
	default:
		return nil, false
	}
}

// AsArray returns v as an array.
func AsArray(v any) (bson.A, bool) {
	switch a := v.(type) {
	case primitive.A:
		return a, true
	case []any:
		return a, true
	default:
		return nil, false
	}
}

// ToFloat converts a numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	default:
		if !IsNumber(v) {
			return 0, false
		}
		f, err := cast.ToFloat64E(v)
		return f, err == nil
	}
}

func fromMap(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: m[k]})
	}
	return d
}

// --------------------------------------------------------------------------
// Normalisation
// --------------------------------------------------------------------------

// Normalize maps a value onto its comparison form: every number with an
// exact int64 value becomes an int64 (so 1 and 1.0 are the same key), all
// other numbers become a float64. Maps become ordered documents and regex
// values become primitive.Regex. Containers are normalised recursively.
func Normalize(v any) any {
	switch TypeOf(v) {
	case bsontype.Double, bsontype.Int32, bsontype.Int64, bsontype.Decimal128:
		return normalizeNumber(v)
	case bsontype.EmbeddedDocument:
		d, _ := AsDocument(v)
		out := make(bson.D, len(d))
		for i, e := range d {
			out[i] = bson.E{Key: e.Key, Value: Normalize(e.Value)}
		}
		return out
	case bsontype.Array:
		a, _ := AsArray(v)
		out := make(bson.A, len(a))
		for i, e := range a {
			out[i] = Normalize(e)
		}
		return out
	case bsontype.Regex:
		if r, ok := v.(*Regex); ok {
			return primitive.Regex{Pattern: r.Pattern(), Options: r.Options()}
		}
		return v
	case bsontype.DateTime:
		if t, ok := v.(time.Time); ok {
			return primitive.NewDateTimeFromTime(t)
		}
		return v
	case bsontype.Binary:
		if b, ok := v.([]byte); ok {
			return primitive.Binary{Data: b}
		}
		return v
	case bsontype.Null:
		return nil
	default:
		return v
	}
}

// bounds of the doubles that convert to int64 without overflow
const (
	minInt64Float = -9223372036854775808.0
	maxInt64Float = 9223372036854775808.0
)

// normalizeNumber returns v as int64 if its value is an integer within the
// int64 range and as float64 otherwise.
func normalizeNumber(v any) any {
	switch n := v.(type) {
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
		return float64(n)
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n)
		}
		return float64(n)
	case primitive.Decimal128:
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return i
		}
	}

	if TypeOf(v) != bsontype.Double && TypeOf(v) != bsontype.Decimal128 {
		i, _ := cast.ToInt64E(v)
		return i
	}

	f, _ := ToFloat(v)
	if f == math.Trunc(f) && f >= minInt64Float && f < maxInt64Float {
		return int64(f)
	}
	return f
}

// compareNumbers orders two normalised numbers exactly. A float64 here is
// either NaN, infinite, fractional or outside the int64 range.
func compareNumbers(a, b any) int {
	ia, aInt := a.(int64)
	ib, bInt := b.(int64)
	switch {
	case aInt && bInt:
		return cmpInt(ia, ib)
	case aInt:
		return -compareFloatInt(b.(float64), ia)
	case bInt:
		return compareFloatInt(a.(float64), ib)
	}

	fa, fb := a.(float64), b.(float64)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	case math.IsNaN(fa) && !math.IsNaN(fb):
		return -1
	case !math.IsNaN(fa) && math.IsNaN(fb):
		return 1
	default:
		return 0
	}
}

// compareFloatInt compares a float64 that has no exact int64 value with i.
// NaN sorts before every number.
func compareFloatInt(f float64, i int64) int {
	switch {
	case math.IsNaN(f), f < minInt64Float:
		return -1
	case f >= maxInt64Float:
		return 1
	}
	// f is fractional, so it lies strictly between floor(f) and floor(f)+1
	if i <= int64(math.Floor(f)) {
		return 1
	}
	return -1
}

// Key returns a canonical string for v that is equal for two values exactly
// when Compare reports them equal. It is used as hash key by indexes,
// distinct and set-like update operators.
func Key(v any) string {
	var sb strings.Builder
	writeKey(&sb, Normalize(v))
	return sb.String()
}

func writeKey(sb *strings.Builder, v any) {
	switch TypeOf(v) {
	case bsontype.Null, bsontype.Undefined:
		sb.WriteString("null")
	case bsontype.Int64:
		sb.WriteString("n:")
		sb.WriteString(strconv.FormatInt(v.(int64), 10))
	case bsontype.Double:
		sb.WriteString("n:")
		sb.WriteString(strconv.FormatFloat(v.(float64), 'g', -1, 64))
	case bsontype.String:
		sb.WriteString("s:")
		sb.WriteString(strconv.Quote(v.(string)))
	case bsontype.Symbol:
		sb.WriteString("s:")
		sb.WriteString(strconv.Quote(string(v.(primitive.Symbol))))
	case bsontype.EmbeddedDocument:
		d, _ := AsDocument(v)
		sb.WriteString("{")
		for i, e := range d {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(strconv.Quote(e.Key))
			sb.WriteString(":")
			writeKey(sb, e.Value)
		}
		sb.WriteString("}")
	case bsontype.Array:
		a, _ := AsArray(v)
		sb.WriteString("[")
		for i, e := range a {
			if i > 0 {
				sb.WriteString(",")
			}
			writeKey(sb, e)
		}
		sb.WriteString("]")
	case bsontype.ObjectID:
		sb.WriteString("o:")
		sb.WriteString(v.(primitive.ObjectID).Hex())
	case bsontype.Boolean:
		sb.WriteString("b:")
		sb.WriteString(strconv.FormatBool(v.(bool)))
	case bsontype.DateTime:
		sb.WriteString("t:")
		sb.WriteString(strconv.FormatInt(int64(v.(primitive.DateTime)), 10))
	case bsontype.Regex:
		r := v.(primitive.Regex)
		sb.WriteString("r:/")
		sb.WriteString(r.Pattern)
		sb.WriteString("/")
		sb.WriteString(r.Options)
	default:
		sb.WriteString(strconv.Itoa(int(TypeOf(v))))
		sb.WriteString(":")
		b, err := bson.Marshal(bson.D{{Key: "v", Value: v}})
		if err == nil {
			sb.Write(b)
		}
	}
}

// --------------------------------------------------------------------------
// Comparison
// --------------------------------------------------------------------------

// canonical BSON sort order of the type classes
func typeRank(v any) int {
	switch TypeOf(v) {
	case bsontype.MinKey:
		return 1
	case bsontype.Null, bsontype.Undefined:
		return 2
	case bsontype.Double, bsontype.Int32, bsontype.Int64, bsontype.Decimal128:
		return 3
	case bsontype.String, bsontype.Symbol:
		return 4
	case bsontype.EmbeddedDocument:
		return 5
	case bsontype.Array:
		return 6
	case bsontype.Binary:
		return 7
	case bsontype.ObjectID:
		return 8
	case bsontype.Boolean:
		return 9
	case bsontype.DateTime:
		return 10
	case bsontype.Timestamp:
		return 11
	case bsontype.Regex:
		return 12
	case bsontype.MaxKey:
		return 14
	default:
		return 13
	}
}

// SameClass reports whether a and b belong to the same comparison class
// (e.g. both numbers), which is required for range operators to match.
func SameClass(a, b any) bool {
	return typeRank(a) == typeRank(b)
}

// Compare orders two values following the canonical BSON comparison order.
// Numbers of different kinds compare by value.
func Compare(a, b any) int {
	a, b = Normalize(a), Normalize(b)
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}

	switch TypeOf(a) {
	case bsontype.Double, bsontype.Int64:
		return compareNumbers(a, b)
	case bsontype.String, bsontype.Symbol:
		return strings.Compare(stringOf(a), stringOf(b))
	case bsontype.EmbeddedDocument:
		xa, _ := AsDocument(a)
		xb, _ := AsDocument(b)
		for i := 0; i < len(xa) && i < len(xb); i++ {
			if c := strings.Compare(xa[i].Key, xb[i].Key); c != 0 {
				return c
			}
			if c := Compare(xa[i].Value, xb[i].Value); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(xa)), int64(len(xb)))
	case bsontype.Array:
		aa, _ := AsArray(a)
		ab, _ := AsArray(b)
		for i := 0; i < len(aa) && i < len(ab); i++ {
			if c := Compare(aa[i], ab[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(aa)), int64(len(ab)))
	case bsontype.Binary:
		ba, bb := a.(primitive.Binary), b.(primitive.Binary)
		if c := cmpInt(int64(len(ba.Data)), int64(len(bb.Data))); c != 0 {
			return c
		}
		if c := cmpInt(int64(ba.Subtype), int64(bb.Subtype)); c != 0 {
			return c
		}
		return bytes.Compare(ba.Data, bb.Data)
	case bsontype.ObjectID:
		oa, ob := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return bytes.Compare(oa[:], ob[:])
	case bsontype.Boolean:
		return cmpInt(boolInt(a.(bool)), boolInt(b.(bool)))
	case bsontype.DateTime:
		return cmpInt(int64(a.(primitive.DateTime)), int64(b.(primitive.DateTime)))
	case bsontype.Timestamp:
		ta, tb := a.(primitive.Timestamp), b.(primitive.Timestamp)
		if c := cmpInt(int64(ta.T), int64(tb.T)); c != 0 {
			return c
		}
		return cmpInt(int64(ta.I), int64(tb.I))
	case bsontype.Regex:
		xa, xb := a.(primitive.Regex), b.(primitive.Regex)
		if c := strings.Compare(xa.Pattern, xb.Pattern); c != 0 {
			return c
		}
		return strings.Compare(xa.Options, xb.Options)
	default:
		return strings.Compare(Key(a), Key(b))
	}
}

// Equal reports whether two values are equal under Compare.
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}

func stringOf(v any) string {
	if s, ok := v.(primitive.Symbol); ok {
		return string(s)
	}
	s, _ := v.(string)
	return s
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// --------------------------------------------------------------------------
// Cloning & Size
// --------------------------------------------------------------------------

// Clone returns a deep copy of doc. Nested documents, arrays and binary
// payloads are copied, other values are immutable.
func Clone(doc bson.D) bson.D {
	if doc == nil {
		return nil
	}
	out := make(bson.D, len(doc))
	for i, e := range doc {
		out[i] = bson.E{Key: e.Key, Value: CloneValue(e.Value)}
	}
	return out
}

// CloneValue returns a deep copy of a single value.
func CloneValue(v any) any {
	switch x := v.(type) {
	case primitive.D:
		return Clone(x)
	case primitive.M:
		return Clone(fromMap(x))
	case map[string]any:
		return Clone(fromMap(x))
	case primitive.A:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = CloneValue(e)
		}
		return out
	case []any:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = CloneValue(e)
		}
		return out
	case primitive.Binary:
		return primitive.Binary{Subtype: x.Subtype, Data: bytes.Clone(x.Data)}
	case []byte:
		return bytes.Clone(x)
	default:
		return v
	}
}

// Size returns the encoded BSON size of doc in bytes, or 0 if it cannot be encoded.
func Size(doc bson.D) int {
	b, err := bson.Marshal(doc)
	if err != nil {
		return 0
	}
	return len(b)
}
