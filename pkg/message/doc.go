// Package message defines the immutable request and response values that
// flow through the kette middleware chain.
//
// A Request or Response is never mutated after construction. Every With*
// method returns a new value with one field replaced, so a middleware unit
// can forward a modified request downstream without affecting the value
// seen by units further up the chain.
//
// # Headers
//
// Header is an ordered multi-map. Names are matched case-insensitively,
// the casing of the first occurrence is kept for output, and the order of
// both names and values is preserved. Fields serializes a Header into
// wire lines, joining the values of each name with a comma.
//
// # Factories
//
// RequestFactory and ResponseFactory are the construction contracts the
// transport adapter and terminal units depend on. Factory is the default
// implementation of both.
package message
