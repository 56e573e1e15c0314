package resolve

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Order controls the search order of a Chain.
type Order int

const (
	// NewestFirst searches the most recently added resolver first.
	NewestFirst Order = iota
	// OldestFirst searches resolvers in insertion order.
	OldestFirst
)

// Chain is an ordered list of resolvers. The first resolver (in search order)
// that yields a result wins.
//
// Writers copy the list and publish it atomically, so readers never lock and
// always see a consistent snapshot.
type Chain struct {
	order     Order
	mu        sync.Mutex
	resolvers atomic.Pointer[[]Resolver]
}

// NewChain returns an empty chain that searches newest-first.
func NewChain() *Chain {
	return newChain(NewestFirst)
}

// NewFallbackChain returns an empty chain that searches oldest-first.
func NewFallbackChain() *Chain {
	return newChain(OldestFirst)
}

func newChain(order Order) *Chain {
	c := &Chain{order: order}
	empty := []Resolver{}
	c.resolvers.Store(&empty)
	return c
}

// Add appends r. Nil resolvers are ignored.
func (c *Chain) Add(r Resolver) {
	if r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.resolvers.Load()
	next := make([]Resolver, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, r)
	c.resolvers.Store(&next)
}

// Len returns the number of resolvers in the chain.
func (c *Chain) Len() int {
	return len(*c.resolvers.Load())
}

// Snapshot returns the resolvers in search order.
func (c *Chain) Snapshot() []Resolver {
	cur := *c.resolvers.Load()
	out := make([]Resolver, len(cur))
	if c.order == OldestFirst {
		copy(out, cur)
		return out
	}
	for i, r := range cur {
		out[len(cur)-1-i] = r
	}
	return out
}

// Clone returns an independent chain with the same resolvers and order.
func (c *Chain) Clone() *Chain {
	clone := newChain(c.order)
	cur := *c.resolvers.Load()
	cp := make([]Resolver, len(cur))
	copy(cp, cur)
	clone.resolvers.Store(&cp)
	return clone
}

// GetService walks the chain in search order and returns the first hit.
func (c *Chain) GetService(kind reflect.Type, key any) (any, bool) {
	cur := *c.resolvers.Load()
	if c.order == OldestFirst {
		for _, r := range cur {
			if svc, ok := r.GetService(kind, key); ok {
				return svc, true
			}
		}
		return nil, false
	}
	for i := len(cur) - 1; i >= 0; i-- {
		if svc, ok := cur[i].GetService(kind, key); ok {
			return svc, true
		}
	}
	return nil, false
}

// GetServices collects results from every resolver in search order.
func (c *Chain) GetServices(kind reflect.Type, key any) []any {
	var out []any
	for _, r := range c.Snapshot() {
		out = append(out, r.GetServices(kind, key)...)
	}
	return out
}

// Composite consults First, then Second.
type Composite struct {
	First  Resolver
	Second Resolver
}

// GetService returns First's result if present, otherwise Second's.
func (c Composite) GetService(kind reflect.Type, key any) (any, bool) {
	if c.First != nil {
		if svc, ok := c.First.GetService(kind, key); ok {
			return svc, true
		}
	}
	if c.Second != nil {
		return c.Second.GetService(kind, key)
	}
	return nil, false
}

// GetServices concatenates First's and Second's results.
func (c Composite) GetServices(kind reflect.Type, key any) []any {
	var out []any
	if c.First != nil {
		out = append(out, c.First.GetServices(kind, key)...)
	}
	if c.Second != nil {
		out = append(out, c.Second.GetServices(kind, key)...)
	}
	return out
}
