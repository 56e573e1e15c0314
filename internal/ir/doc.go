// Package ir provides the canonical representation used to fingerprint
// built models.
//
// A model is marshaled with encoding/json, decoded into the sealed Value
// types, and written out as RFC 8785 canonical JSON. The canonical bytes are
// hashed with SHA-256 under a domain prefix. Two models hash equal exactly
// when their canonical forms are equal, which is what schema-compatibility
// checks compare.
//
// Key design constraints:
//   - Object keys sort by UTF-16 code units, not UTF-8 bytes
//   - Strings are NFC normalized at the serialization boundary
//   - null object members are dropped, so a nil slice and an absent field
//     fingerprint the same
//   - Numbers keep their JSON literal; floats are allowed only in annotations
//     and hash by their shortest decimal form
package ir
