// Package resolve provides the dependency-resolution primitives used by
// codefirst configuration.
//
// A Resolver answers one question: "what instance satisfies service kind K
// for key Y?". Kinds are reflect.Types (usually interface or func types) and
// keys are optional comparable discriminators such as a provider invariant
// name or an ExecutionStrategyKey. A nil key on a registration matches every
// request key; a nil key on a request only matches unkeyed registrations and
// predicate registrations that accept nil.
//
// The set of resolver variants is closed:
//   - Singleton: one instance, exact key or key predicate
//   - Transient: a factory invoked on every lookup
//   - Func: an adapter for ad hoc resolution logic
//   - Chain: an ordered list searched most-recently-added first (or in
//     insertion order for fallback chains)
//   - Composite: a first/second pair
//   - Registry: a mutable store of singletons keyed by (kind, key)
//
// Lookups never fail: absence is reported with ok == false and callers decide
// whether that is fatal. Service wraps the absence in a MissingServiceError
// for callers that need the dependency.
package resolve
