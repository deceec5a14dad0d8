// Package document provides the value model shared by every layer of dDB.
// Documents are ordered bson.D values from the official MongoDB Go driver,
// arrays are bson.A and scalars use the driver's primitive types.
//
// The package focuses on:
//   - A single type discriminant (TypeOf) that maps every Go value of the
//     document model onto its BSON type, so structural checks never rely on
//     ad-hoc type assertions spread over the code base
//   - Dotted path access (Lookup, LookupAll, SetPath, RemovePath) used by
//     query predicates, projections and update operators
//   - Normalisation and ordering (Normalize, Compare, Key) following the
//     canonical BSON comparison order. Integer 1 and double 1.0 are equal.
//   - The Regex value type with its lazily compiled, memoised matcher
//
// Key Components:
//
//   - TypeOf / IsNumber / IsDocument / IsArray: discriminant helpers.
//
//   - Normalize / Key: map a value onto its comparison form and onto a
//     canonical string. Key is used wherever values are hashed, for example
//     by unique indexes or by the distinct command.
//
//   - Regex: immutable (pattern, options) pair. Supported flags are i, m, x,
//     s and u. Any other flag fails with an invalid argument error when the
//     pattern is compiled. Matching uses github.com/dlclark/regexp2.
//
// Note: all functions treat their arguments as read-only except Set, Remove,
// SetPath and RemovePath, which may modify the passed document in place.
// Callers that share documents must Clone them first.
package document
