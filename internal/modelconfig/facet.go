package modelconfig

import "sync/atomic"

// Origin records who set a facet.
type Origin uint8

const (
	// OriginNone means the facet is unset.
	OriginNone Origin = iota
	// OriginConvention means a convention set the facet.
	OriginConvention
	// OriginExplicit means a fluent call set the facet.
	OriginExplicit
)

// stamps orders facet writes across every configuration in the process, so
// merging two configurations can tell which write is the most recent.
var stamps atomic.Uint64

// Facet is one configurable value with its origin and write stamp.
//
// Values are replaced, never mutated in place, so copies of a Facet may share
// slice values.
type Facet[T any] struct {
	value  T
	origin Origin
	stamp  uint64
}

// set stores v unless a convention tries to overwrite an explicit value.
func (f *Facet[T]) set(v T, origin Origin) {
	if origin < f.origin {
		return
	}
	f.value, f.origin, f.stamp = v, origin, stamps.Add(1)
}

// Get returns the value and whether it was set.
func (f Facet[T]) Get() (T, bool) {
	return f.value, f.origin != OriginNone
}

// Origin returns who set the facet.
func (f Facet[T]) Origin() Origin { return f.origin }

// merge takes o if it outranks f: explicit beats convention, and between
// equal origins the later write wins.
func (f *Facet[T]) merge(o Facet[T]) {
	if o.origin == OriginNone {
		return
	}
	if f.origin == OriginNone || o.origin > f.origin || (o.origin == f.origin && o.stamp > f.stamp) {
		*f = o
	}
}
