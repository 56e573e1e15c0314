// Package metadata provides the conceptual model, the store model and the
// mapping between them.
//
// This package contains type definitions and small lookup helpers only. It
// imports nothing internal, so every other package can depend on it.
//
// Cross references between elements are by name (entity type name, table
// name, column name), never by pointer. Models therefore have no cycles,
// compare structurally with reflect.DeepEqual and round-trip through JSON.
// GoType fields are excluded from JSON and rebound with BindTypes after a
// model is loaded from a model store.
package metadata
