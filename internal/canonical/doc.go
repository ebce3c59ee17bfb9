// Package canonical renders engine state as canonical JSON.
//
// Traces written by the harness and stored in the journal must be
// byte-identical across runs and machines, so every document goes through
// one serializer:
//
//   - object keys sorted by UTF-16 code units (RFC 8785)
//   - strings NFC normalized, no HTML escaping
//   - integers only, floats are rejected
//
// Values are a sealed set (String, Int, Bool, Null, Array, Object). Null only
// appears where a trace needs an explicit "absent" marker.
package canonical
