package document

import (
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/dlclark/regexp2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	regexKey   = "$regex"
	optionsKey = "$options"
)

// Regex is an immutable regular expression value (pattern + option flags).
// The compiled matcher is built on first use and memoised.
//
// Thread-safety: Regex is safe for concurrent use. Two goroutines may both
// compile the pattern on first use, the last store wins and both results are
// equivalent.
type Regex struct {
	pattern  string
	options  string
	compiled atomic.Pointer[regexp2.Regexp]
}

// NewRegex creates a regex value. The option flags are validated lazily when
// the pattern is compiled.
func NewRegex(pattern, options string) *Regex {
	return &Regex{pattern: pattern, options: options}
}

// FromExtendedForm builds a regex from {$regex: <pattern>, $options: <flags>}.
// $options is optional and defaults to no flags.
func FromExtendedForm(doc bson.D) (*Regex, error) {
	raw, ok := Get(doc, regexKey)
	if !ok {
		return nil, db.ErrInvalidArgument("%s is required", regexKey)
	}

	var pattern, options string
	switch p := raw.(type) {
	case string:
		pattern = p
	case primitive.Regex:
		pattern, options = p.Pattern, p.Options
	case *Regex:
		pattern, options = p.pattern, p.options
	default:
		return nil, db.ErrInvalidArgument("%s has to be a string", regexKey)
	}

	if o, ok := Get(doc, optionsKey); ok {
		s, isString := o.(string)
		if !isString {
			return nil, db.ErrInvalidArgument("%s has to be a string", optionsKey)
		}
		options = s
	}
	return NewRegex(pattern, options), nil
}

// IsRegex reports whether v is a regex value or a document in extended
// form (one that contains a $regex field).
func IsRegex(v any) bool {
	if TypeOf(v) == bsontype.Regex {
		return true
	}
	if d, ok := AsDocument(v); ok {
		return Has(d, regexKey)
	}
	return false
}

// ToRegex converts any value accepted by IsRegex into a *Regex.
func ToRegex(v any) (*Regex, error) {
	switch r := v.(type) {
	case *Regex:
		return r, nil
	case primitive.Regex:
		return NewRegex(r.Pattern, r.Options), nil
	}
	if d, ok := AsDocument(v); ok {
		return FromExtendedForm(d)
	}
	return nil, db.ErrInvalidArgument("%v is not a regular expression", v)
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

func (r *Regex) Pattern() string { return r.pattern }

func (r *Regex) Options() string { return r.options }

func (r *Regex) String() string {
	return fmt.Sprintf("/%s/%s", r.pattern, r.options)
}

// ToDocument renders the regex in extended form.
func (r *Regex) ToDocument() bson.D {
	return bson.D{{Key: regexKey, Value: r.pattern}, {Key: optionsKey, Value: r.options}}
}

// MarshalBSONValue encodes the regex as a native BSON regular expression.
func (r *Regex) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(primitive.Regex{Pattern: r.pattern, Options: r.options})
}

// --------------------------------------------------------------------------
// Matching
// --------------------------------------------------------------------------

// Compile returns the memoised matcher, compiling it on first use.
func (r *Regex) Compile() (*regexp2.Regexp, error) {
	if re := r.compiled.Load(); re != nil {
		return re, nil
	}

	opts, err := parseOptions(r.options)
	if err != nil {
		return nil, err
	}
	re, err := regexp2.Compile(r.pattern, opts)
	if err != nil {
		return nil, db.ErrInvalidArgument("invalid regular expression %s: %v", r, err)
	}
	r.compiled.Store(re)
	return re, nil
}

// Match reports whether text contains a match of the pattern.
func (r *Regex) Match(text string) (bool, error) {
	re, err := r.Compile()
	if err != nil {
		return false, err
	}
	return re.MatchString(text)
}

// parseOptions maps the option flags onto regexp2 options.
// regexp2 always matches on runes, so 'u' needs no translation.
func parseOptions(options string) (regexp2.RegexOptions, error) {
	opts := regexp2.None
	for _, flag := range options {
		switch flag {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 'x':
			opts |= regexp2.IgnorePatternWhitespace
		case 's':
			opts |= regexp2.Singleline
		case 'u':
		default:
			return opts, db.ErrInvalidRegexOption(flag)
		}
	}
	return opts, nil
}
