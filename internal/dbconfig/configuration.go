// Package dbconfig is the dependency-resolution configuration of codefirst.
//
// A Configuration answers "which implementation serves service kind K for
// key Y". Lookup walks these layers in order and stops at the first hit:
//
//  1. overrides added by Loaded handlers, newest first
//  2. the singleton registry filled by the Set* facet methods
//  3. the primary chain (AddResolver), newest first
//  4. the application configuration file, if one is attached
//  5. the default chain (AddDefaultResolver), oldest first
//  6. the built-in root defaults
//
// A Configuration locks the first time it resolves a service. After that,
// every mutation fails with a LockedError naming the method, and reads never
// take a lock.
package dbconfig

import (
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/roach88/codefirst/internal/appconfig"
	"github.com/roach88/codefirst/internal/resolve"
)

const (
	stateUnlocked int32 = iota
	stateLocking
	stateLocked
)

// Configuration owns the resolver layers and the lock.
type Configuration struct {
	name   string
	logger *slog.Logger

	// mu serializes mutations and the lock transition; reads use the
	// copy-on-write layers directly.
	mu           sync.Mutex
	state        atomic.Int32
	lockingHooks []func()
	// locked is closed once the state reaches stateLocked.
	locked chan struct{}

	overrides *resolve.Chain
	registry  *resolve.Registry
	primary   *resolve.Chain
	app       atomic.Pointer[appResolver]
	defaults  *resolve.Chain
	root      resolve.Resolver
}

var _ resolve.Resolver = (*Configuration)(nil)

// Option configures a Configuration at construction.
type Option func(*Configuration)

// WithName names the configuration. Names identify configurations in
// mismatch checks and logs.
func WithName(name string) Option {
	return func(c *Configuration) { c.name = name }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Configuration) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAppConfig attaches an application configuration file.
func WithAppConfig(f *appconfig.File) Option {
	return func(c *Configuration) {
		if f != nil {
			c.app.Store(newAppResolver(f))
		}
	}
}

// New returns an unlocked configuration with the built-in defaults.
func New(opts ...Option) *Configuration {
	c := &Configuration{
		name:      "default",
		logger:    slog.Default(),
		overrides: resolve.NewChain(),
		registry:  resolve.NewRegistry(),
		primary:   resolve.NewChain(),
		defaults:  resolve.NewFallbackChain(),
		locked:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.root = newRootResolver(c)
	return c
}

// Name returns the configuration name.
func (c *Configuration) Name() string { return c.name }

// Logger returns the configuration logger.
func (c *Configuration) Logger() *slog.Logger { return c.logger }

// AppConfig returns the attached application configuration file, or nil.
func (c *Configuration) AppConfig() *appconfig.File {
	if a := c.app.Load(); a != nil {
		return a.file
	}
	return nil
}

// IsLocked reports whether the configuration has served a request.
func (c *Configuration) IsLocked() bool {
	return c.state.Load() == stateLocked
}

// CheckNotLocked returns a LockedError naming operation if the configuration
// is locked.
func (c *Configuration) CheckNotLocked(operation string) error {
	if c.IsLocked() {
		return &LockedError{Operation: operation}
	}
	return nil
}

// mutate runs f under the mutation lock unless the configuration is locked.
func (c *Configuration) mutate(operation string, f func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Load() == stateLocked {
		return &LockedError{Operation: operation}
	}
	return f()
}

// Lock locks the configuration. Hooks registered with onLocking run once,
// before the transition, and may still mutate the configuration. A call made
// by another goroutine while hooks run waits until the configuration is
// locked, so no caller resolves against layers a hook is still changing.
// Hooks must resolve through view; a hook that calls GetService deadlocks.
func (c *Configuration) Lock() {
	if c.state.Load() == stateLocked {
		return
	}
	c.mu.Lock()
	switch c.state.Load() {
	case stateLocked:
		c.mu.Unlock()
		return
	case stateLocking:
		c.mu.Unlock()
		<-c.locked
		return
	}
	c.state.Store(stateLocking)
	hooks := c.lockingHooks
	c.lockingHooks = nil
	c.mu.Unlock()

	for _, h := range hooks {
		h()
	}

	c.mu.Lock()
	c.state.Store(stateLocked)
	close(c.locked)
	c.mu.Unlock()
	c.logger.Debug("configuration locked", "name", c.name)
}

// onLocking registers a hook that runs right before the configuration
// locks. It reports false if the configuration is already locking or locked.
func (c *Configuration) onLocking(h func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Load() != stateUnlocked {
		return false
	}
	c.lockingHooks = append(c.lockingHooks, h)
	return true
}

// AddResolver adds r to the primary chain. The most recently added resolver
// is consulted first.
func (c *Configuration) AddResolver(r resolve.Resolver) error {
	if r == nil {
		return argError("AddResolver", "resolver", "must not be nil")
	}
	return c.mutate("AddResolver", func() error {
		c.primary.Add(r)
		return nil
	})
}

// AddDefaultResolver adds r to the default chain, which is consulted in
// insertion order and only after every primary resolver.
func (c *Configuration) AddDefaultResolver(r resolve.Resolver) error {
	if r == nil {
		return argError("AddDefaultResolver", "resolver", "must not be nil")
	}
	return c.mutate("AddDefaultResolver", func() error {
		c.defaults.Add(r)
		return nil
	})
}

// RegisterSingleton registers instance for (kind, key) in the singleton
// registry. A later registration for the same (kind, key) replaces it.
func (c *Configuration) RegisterSingleton(kind reflect.Type, instance any, key any) error {
	return c.registerSingleton("RegisterSingleton", kind, instance, key)
}

// RegisterSingletonWhere registers instance for every key of kind accepted
// by match. Predicate registrations are consulted in registration order,
// after exact-key registrations.
func (c *Configuration) RegisterSingletonWhere(kind reflect.Type, instance any, match func(key any) bool) error {
	if err := checkRegistration("RegisterSingletonWhere", kind, instance); err != nil {
		return err
	}
	if match == nil {
		return argError("RegisterSingletonWhere", "match", "must not be nil")
	}
	return c.mutate("RegisterSingletonWhere", func() error {
		return c.registry.RegisterSingletonWhere(kind, instance, match)
	})
}

// SetAppConfig attaches an application configuration file.
func (c *Configuration) SetAppConfig(f *appconfig.File) error {
	if f == nil {
		return argError("SetAppConfig", "file", "must not be nil")
	}
	return c.mutate("SetAppConfig", func() error {
		c.app.Store(newAppResolver(f))
		return nil
	})
}

func (c *Configuration) registerSingleton(operation string, kind reflect.Type, instance any, key any) error {
	if err := checkRegistration(operation, kind, instance); err != nil {
		return err
	}
	if key != nil && !reflect.TypeOf(key).Comparable() {
		return argError(operation, "key", "must be comparable")
	}
	return c.mutate(operation, func() error {
		return c.registry.RegisterSingleton(kind, instance, key)
	})
}

func (c *Configuration) registerWhere(operation string, kind reflect.Type, id any, instance any, match func(key any) bool) error {
	if err := checkRegistration(operation, kind, instance); err != nil {
		return err
	}
	return c.mutate(operation, func() error {
		return c.registry.ReplaceSingletonWhere(kind, id, instance, match)
	})
}

func checkRegistration(operation string, kind reflect.Type, instance any) error {
	if kind == nil {
		return argError(operation, "kind", "must not be nil")
	}
	if isNil(instance) {
		return argError(operation, "instance", "must not be nil")
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// GetService locks the configuration and resolves (kind, key).
func (c *Configuration) GetService(kind reflect.Type, key any) (any, bool) {
	c.Lock()
	return c.resolve(kind, key)
}

// GetServices locks the configuration and collects every instance for
// (kind, key) across all layers, in lookup order.
func (c *Configuration) GetServices(kind reflect.Type, key any) []any {
	c.Lock()
	return layered(c.layers()).GetServices(kind, key)
}

func (c *Configuration) resolve(kind reflect.Type, key any) (any, bool) {
	return layered(c.layers()).GetService(kind, key)
}

func (c *Configuration) layers() []resolve.Resolver {
	layers := make([]resolve.Resolver, 0, 6)
	layers = append(layers, c.overrides, c.registry, c.primary)
	if a := c.app.Load(); a != nil {
		layers = append(layers, a)
	}
	return append(layers, c.defaults, c.root)
}

// snapshot returns a resolver over a frozen copy of the current layers.
func (c *Configuration) snapshot() resolve.Resolver {
	layers := []resolve.Resolver{c.overrides.Clone(), c.registry.Clone(), c.primary.Clone()}
	if a := c.app.Load(); a != nil {
		layers = append(layers, a)
	}
	layers = append(layers, c.defaults.Clone(), c.root)
	return layered(layers)
}

// view resolves against the live layers without locking.
func (c *Configuration) view() resolve.Resolver {
	return liveView{c}
}

type liveView struct{ c *Configuration }

func (v liveView) GetService(kind reflect.Type, key any) (any, bool) {
	return v.c.resolve(kind, key)
}

func (v liveView) GetServices(kind reflect.Type, key any) []any {
	return layered(v.c.layers()).GetServices(kind, key)
}

type layered []resolve.Resolver

func (l layered) GetService(kind reflect.Type, key any) (any, bool) {
	for _, r := range l {
		if svc, ok := r.GetService(kind, key); ok {
			return svc, true
		}
	}
	return nil, false
}

func (l layered) GetServices(kind reflect.Type, key any) []any {
	var out []any
	for _, r := range l {
		out = append(out, r.GetServices(kind, key)...)
	}
	return out
}
