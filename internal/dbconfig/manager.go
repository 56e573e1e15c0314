package dbconfig

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/roach88/codefirst/internal/appconfig"
	"github.com/roach88/codefirst/internal/resolve"
)

// Factory creates a configuration. Factories registered for discovery are
// called at most once per Manager.
type Factory func() *Configuration

// LoadedHandler observes the active configuration right before it locks.
type LoadedHandler func(args *LoadedEventArgs)

// Manager owns the process-wide active configuration.
//
// The first context to need a configuration activates one: the configuration
// set with SetConfiguration, else the one discovered for the context type,
// else the one named by the configuration file, else a default. Activation
// runs the Loaded handlers and locks the configuration exactly once, even
// under concurrent first use.
type Manager struct {
	mu     sync.Mutex
	logger *slog.Logger
	active atomic.Pointer[Configuration]

	pending    *Configuration
	app        *appconfig.File
	handlers   []LoadedHandler
	byType     map[reflect.Type]Factory
	byPackage  map[string]Factory
	named      map[string]Factory
	discovered map[reflect.Type]*Configuration
}

// NewManager returns a manager with no active configuration.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:     logger,
		byType:     make(map[reflect.Type]Factory),
		byPackage:  make(map[string]Factory),
		named:      make(map[string]Factory),
		discovered: make(map[reflect.Type]*Configuration),
	}
}

var (
	globalMu      sync.Mutex
	globalManager *Manager
)

// Global returns the process-wide manager, creating it on first use.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalManager == nil {
		globalManager = NewManager(nil)
	}
	return globalManager
}

// ResetGlobal discards the process-wide manager. Tests use it to start from
// a clean state; it must not race with other uses of Global.
func ResetGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalManager = nil
}

// RegisterFor registers the companion configuration of a context type.
func (m *Manager) RegisterFor(contextType reflect.Type, f Factory) error {
	if contextType == nil {
		return argError("RegisterFor", "contextType", "must not be nil")
	}
	if f == nil {
		return argError("RegisterFor", "factory", "must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byType[baseType(contextType)] = f
	return nil
}

// RegisterForPackage registers the configuration used by every context type
// declared in a package without its own registration.
func (m *Manager) RegisterForPackage(pkgPath string, f Factory) error {
	if pkgPath == "" {
		return argError("RegisterForPackage", "pkgPath", "must not be empty")
	}
	if f == nil {
		return argError("RegisterForPackage", "factory", "must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPackage[pkgPath] = f
	return nil
}

// RegisterNamed registers a configuration that a configuration file can
// select with configuration_type.
func (m *Manager) RegisterNamed(name string, f Factory) error {
	if name == "" {
		return argError("RegisterNamed", "name", "must not be empty")
	}
	if f == nil {
		return argError("RegisterNamed", "factory", "must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.named[name] = f
	return nil
}

// SetAppConfig sets the configuration file attached to the configuration
// when it activates.
func (m *Manager) SetAppConfig(f *appconfig.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active.Load() != nil {
		return &LockedError{Operation: "SetAppConfig"}
	}
	m.app = f
	return nil
}

// SetConfiguration chooses the configuration to activate. Setting the active
// configuration again is a no-op; setting a different one is a MismatchError.
func (m *Manager) SetConfiguration(c *Configuration) error {
	if c == nil {
		return argError("SetConfiguration", "configuration", "must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if active := m.active.Load(); active != nil {
		if active == c {
			return nil
		}
		return &MismatchError{Active: active.Name(), Discovered: c.Name()}
	}
	if m.pending != nil && m.pending != c {
		return &MismatchError{Active: m.pending.Name(), Discovered: c.Name()}
	}
	m.pending = c
	return nil
}

// OnLoaded adds a handler that runs once, right before the configuration
// locks. Handlers cannot be added after activation.
//
// Handlers run while the manager is loading. A handler that asks the manager
// for a configuration with args.Context() gets a ReentrantLoadError; asking
// with any other context deadlocks. A handler resolves services through
// args.Resolver(), never through the configuration itself.
func (m *Manager) OnLoaded(h LoadedHandler) error {
	if h == nil {
		return argError("OnLoaded", "handler", "must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active.Load() != nil {
		return &LockedError{Operation: "OnLoaded"}
	}
	m.handlers = append(m.handlers, h)
	return nil
}

// Active returns the active configuration, or nil before activation.
func (m *Manager) Active() *Configuration {
	return m.active.Load()
}

// Configuration returns the active configuration, activating one if needed.
func (m *Manager) Configuration(ctx context.Context) (*Configuration, error) {
	return m.EnsureLoadedForContext(ctx, nil)
}

// EnsureLoadedForContext returns the active configuration, activating one if
// needed, and checks that contextType's companion configuration (if any) is
// the active one.
func (m *Manager) EnsureLoadedForContext(ctx context.Context, contextType reflect.Type) (*Configuration, error) {
	if loading, _ := ctx.Value(loadingKey{}).(*Manager); loading == m {
		return nil, &ReentrantLoadError{Operation: "EnsureLoadedForContext"}
	}

	if active := m.active.Load(); active != nil {
		if contextType == nil {
			return active, nil
		}
		m.mu.Lock()
		discovered := m.discover(contextType)
		m.mu.Unlock()
		return active, checkMatch(contextType, active, discovered)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if active := m.active.Load(); active != nil {
		return active, checkMatch(contextType, active, m.discover(contextType))
	}

	var discovered *Configuration
	if contextType != nil {
		discovered = m.discover(contextType)
	}
	c := m.pending
	switch {
	case c != nil:
		if err := checkMatch(contextType, c, discovered); err != nil {
			return nil, err
		}
	case discovered != nil:
		c = discovered
	default:
		c = m.fromAppConfig()
	}
	if err := m.activate(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func checkMatch(contextType reflect.Type, active, discovered *Configuration) error {
	if discovered == nil || discovered == active || discovered.Name() == active.Name() {
		return nil
	}
	return &MismatchError{ContextType: contextType, Active: active.Name(), Discovered: discovered.Name()}
}

// discover finds the companion configuration of a context type. Results,
// including misses, are memoized. Callers hold m.mu.
func (m *Manager) discover(contextType reflect.Type) *Configuration {
	if contextType == nil {
		return nil
	}
	t := baseType(contextType)
	if c, ok := m.discovered[t]; ok {
		return c
	}
	f, ok := m.byType[t]
	if !ok {
		f, ok = m.byPackage[t.PkgPath()]
	}
	var c *Configuration
	if ok {
		c = f()
	}
	m.discovered[t] = c
	return c
}

func (m *Manager) fromAppConfig() *Configuration {
	if m.app != nil && m.app.ConfigurationType != "" {
		if f, ok := m.named[m.app.ConfigurationType]; ok {
			if c := f(); c != nil {
				return c
			}
		}
		m.logger.Warn("configuration type not registered; using default",
			"configuration_type", m.app.ConfigurationType)
	}
	return New(WithLogger(m.logger))
}

// activate runs the Loaded handlers, locks c and publishes it. Callers hold
// m.mu.
func (m *Manager) activate(ctx context.Context, c *Configuration) error {
	if m.app != nil && c.AppConfig() == nil && !c.IsLocked() {
		if err := c.SetAppConfig(m.app); err != nil {
			return err
		}
	}
	handlers := m.handlers
	if len(handlers) > 0 {
		loadCtx := context.WithValue(ctx, loadingKey{}, m)
		ok := c.onLocking(func() {
			args := &LoadedEventArgs{ctx: loadCtx, cfg: c}
			for _, h := range handlers {
				h(args)
			}
		})
		if !ok {
			return &LockedError{Operation: "OnLoaded"}
		}
	}
	c.Lock()
	m.active.Store(c)
	m.pending = nil
	m.logger.Info("configuration loaded", "name", c.Name(), "handlers", len(handlers))
	return nil
}

// Reset discards the active configuration, registrations and handlers.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active.Store(nil)
	m.pending = nil
	m.app = nil
	m.handlers = nil
	m.byType = make(map[reflect.Type]Factory)
	m.byPackage = make(map[string]Factory)
	m.named = make(map[string]Factory)
	m.discovered = make(map[reflect.Type]*Configuration)
}

func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

type loadingKey struct{}

// LoadedEventArgs is what a Loaded handler sees of the configuration about to
// lock.
type LoadedEventArgs struct {
	ctx context.Context
	cfg *Configuration
}

// Context carries the activation context. Loading a configuration with it
// fails with a ReentrantLoadError.
func (a *LoadedEventArgs) Context() context.Context { return a.ctx }

// ConfigurationName returns the name of the configuration being loaded.
func (a *LoadedEventArgs) ConfigurationName() string { return a.cfg.Name() }

// Resolver resolves against the configuration without locking it.
func (a *LoadedEventArgs) Resolver() resolve.Resolver { return a.cfg.view() }

// AddResolver adds an override that beats every other registration,
// including the singleton registry.
func (a *LoadedEventArgs) AddResolver(r resolve.Resolver) error {
	if r == nil {
		return argError("AddResolver", "resolver", "must not be nil")
	}
	return a.cfg.mutate("AddResolver", func() error {
		a.cfg.overrides.Add(r)
		return nil
	})
}

// AddDefaultResolver adds a resolver to the default chain.
func (a *LoadedEventArgs) AddDefaultResolver(r resolve.Resolver) error {
	return a.cfg.AddDefaultResolver(r)
}

// ReplaceService decorates the single-instance lookups of kind: every
// resolved instance is passed through wrap together with its key. A nil
// result from wrap counts as absence.
func (a *LoadedEventArgs) ReplaceService(kind reflect.Type, wrap func(svc any, key any) any) error {
	if kind == nil {
		return argError("ReplaceService", "kind", "must not be nil")
	}
	if wrap == nil {
		return argError("ReplaceService", "wrap", "must not be nil")
	}
	inner := a.cfg.snapshot()
	return a.cfg.mutate("ReplaceService", func() error {
		a.cfg.overrides.Add(&replacer{kind: kind, inner: inner, wrap: wrap})
		return nil
	})
}

// ReplaceService is the typed form of LoadedEventArgs.ReplaceService.
func ReplaceService[T any](a *LoadedEventArgs, wrap func(svc T, key any) T) error {
	if wrap == nil {
		return argError("ReplaceService", "wrap", "must not be nil")
	}
	return a.ReplaceService(resolve.KindOf[T](), func(svc any, key any) any {
		typed, ok := svc.(T)
		if !ok {
			return svc
		}
		return wrap(typed, key)
	})
}

type replacer struct {
	kind  reflect.Type
	inner resolve.Resolver
	wrap  func(svc any, key any) any
}

func (r *replacer) GetService(kind reflect.Type, key any) (any, bool) {
	if kind != r.kind {
		return nil, false
	}
	svc, ok := r.inner.GetService(kind, key)
	if !ok {
		return nil, false
	}
	out := r.wrap(svc, key)
	if isNil(out) {
		return nil, false
	}
	return out, true
}

// GetServices is empty: multi-instance lookups are not decorated.
func (r *replacer) GetServices(reflect.Type, any) []any { return nil }
