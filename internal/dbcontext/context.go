// Package dbcontext is the unit-of-work surface applications embed in their
// own context types.
//
// A context type is a struct that embeds Context and declares one *Set[T]
// field per entity type:
//
//	type BlogContext struct {
//		dbcontext.Context
//		Blogs *dbcontext.Set[Blog]
//	}
//
// The first Init for a context type loads the process-wide configuration for
// it and discovers its sets; later instances reuse that work. Models are
// built once per model cache key and shared between instances. A Context is
// not safe for concurrent use.
package dbcontext

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/codefirst/internal/dbconfig"
	"github.com/roach88/codefirst/internal/ir"
	"github.com/roach88/codefirst/internal/modelbuilder"
	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/services"
)

// ModelCreator is implemented by context types that configure their model.
// OnModelCreating runs once per model cache key, before the build.
type ModelCreator interface {
	OnModelCreating(b *modelbuilder.ModelBuilder)
}

// SchemaProvider is implemented by context types that map into a default
// schema. The schema is part of the model cache key.
type SchemaProvider interface {
	DefaultSchema() string
}

// Context tracks entities for one unit of work against one database.
type Context struct {
	owner    reflect.Value
	info     *typeInfo
	reg      *registry
	cfg      *dbconfig.Configuration
	conn     provider.Connection
	ps       provider.Services
	model    *modelbuilder.DbModel
	compiled *modelbuilder.CompiledModel
	id       string
	logger   *slog.Logger
	sink     func(string)

	db      *sql.DB
	tracker *tracker
}

// Option configures Init.
type Option func(*options)

type options struct {
	manager    *dbconfig.Manager
	logger     *slog.Logger
	sink       func(string)
	initialize bool
}

// WithManager loads configuration from m instead of dbconfig.Global().
func WithManager(m *dbconfig.Manager) Option {
	return func(o *options) {
		if m != nil {
			o.manager = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLogSink writes a command log for every command the context sends,
// through the configured log formatter.
func WithLogSink(write func(string)) Option {
	return func(o *options) { o.sink = write }
}

// WithoutInitialization skips the database initializer. Call
// Database().Initialize to run it later.
func WithoutInitialization() Option {
	return func(o *options) { o.initialize = false }
}

// Init prepares owner, a pointer to a struct embedding Context, for use
// against the database named by nameOrConnectionString. An empty name uses
// the database configured for the context type, or the type name.
//
// Init binds every *Set[T] field of owner and, unless disabled, runs the
// database initializer once per context type and database.
func Init(ctx context.Context, owner any, nameOrConnectionString string, opts ...Option) error {
	o := options{manager: dbconfig.Global(), logger: slog.Default(), initialize: true}
	for _, opt := range opts {
		opt(&o)
	}

	v := reflect.ValueOf(owner)
	if owner == nil || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return &InvalidContextError{Type: reflect.TypeOf(owner), Reason: "not a non-nil pointer to a struct"}
	}
	t := v.Type().Elem()

	reg := registryFor(o.manager)
	info, err := reg.bootstrap(ctx, o.manager, t)
	if err != nil {
		return err
	}

	c := v.Elem().FieldByIndex(info.contextField).Addr().Interface().(*Context)
	*c = Context{
		owner:   v,
		info:    info,
		reg:     reg,
		cfg:     info.cfg,
		id:      uuid.Must(uuid.NewV7()).String(),
		logger:  o.logger.With("context", t.Name()),
		sink:    o.sink,
		tracker: newTracker(),
	}

	if c.conn, err = c.resolveConnection(nameOrConnectionString); err != nil {
		return err
	}
	if c.ps, err = c.cfg.ProviderServices(c.conn.ProviderName); err != nil {
		return fmt.Errorf("dbcontext: %w", err)
	}
	if c.model, err = reg.model(ctx, c); err != nil {
		return err
	}
	if c.compiled, err = c.model.Compile(); err != nil {
		return fmt.Errorf("dbcontext: %w", err)
	}

	for _, s := range info.sets {
		set := reflect.New(s.typ.Elem())
		set.Interface().(setBinder).bind(c)
		v.Elem().FieldByIndex(s.index).Set(set)
	}

	c.logger.Debug("context initialized",
		"context_id", c.id,
		"database", c.conn.Database,
		"sets", len(info.sets),
		"model_hash", c.model.Hash())

	if o.initialize {
		return c.Database().Initialize(ctx, false)
	}
	return nil
}

// New creates and initializes a context of type C. A context factory
// registered for C creates the instance; otherwise it is allocated with new.
func New[C any](ctx context.Context, nameOrConnectionString string, opts ...Option) (*C, error) {
	o := options{manager: dbconfig.Global()}
	for _, opt := range opts {
		opt(&o)
	}
	t := reflect.TypeFor[C]()
	cfg, err := o.manager.EnsureLoadedForContext(ctx, t)
	if err != nil {
		return nil, err
	}

	c := new(C)
	if f, ok := cfg.ContextFactory(t); ok {
		inst, err := f()
		if err != nil {
			return nil, fmt.Errorf("dbcontext: context factory for %v: %w", t, err)
		}
		typed, ok := inst.(*C)
		if !ok {
			return nil, &InvalidContextError{Type: t, Reason: fmt.Sprintf("context factory returned %T", inst)}
		}
		c = typed
	}
	if err := Init(ctx, c, nameOrConnectionString, opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// ID identifies the context instance in command logs.
func (c *Context) ID() string { return c.id }

// Model returns the model the context uses.
func (c *Context) Model() *modelbuilder.DbModel { return c.model }

// Configuration returns the configuration the context was initialized with.
func (c *Context) Configuration() *dbconfig.Configuration { return c.cfg }

// Connection returns the resolved connection.
func (c *Context) Connection() provider.Connection { return c.conn }

// ContextKey identifies the context type and database in model stores and
// migration history.
func (c *Context) ContextKey() string {
	return ir.ContextKey(c.info.name, c.conn.ProviderName, c.conn.Database)
}

// Database returns the database operations for the context.
func (c *Context) Database() *Database { return &Database{c: c} }

// Close releases the database connection. The context may be used again;
// the connection reopens on demand.
func (c *Context) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// open returns the context's connection, opening it on first use.
func (c *Context) open() (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	db, err := c.ps.Open(c.conn)
	if err != nil {
		return nil, fmt.Errorf("dbcontext: open %s: %w", c.conn.Database, err)
	}
	c.db = db
	return db, nil
}

func (c *Context) dispatcher() *services.CommandDispatcher {
	d := &services.CommandDispatcher{ContextID: c.id, Interceptors: c.cfg.CommandInterceptors()}
	if c.sink != nil {
		d.Formatter = c.cfg.LogFormatterFactory()(c.id, c.sink)
	}
	return d
}

// resolveConnection turns a name or connection string into a connection:
// a named connection string of the configuration file wins, then the
// configured connection factory.
func (c *Context) resolveConnection(nameOrConnectionString string) (provider.Connection, error) {
	name := nameOrConnectionString
	app := c.cfg.AppConfig()
	if name == "" {
		if s, ok := app.Context(c.info.typ.Name()); ok && s.Database != "" {
			name = s.Database
		} else {
			name = c.info.typ.Name()
		}
	}
	if cs, ok := app.ConnectionString(name); ok {
		return provider.Connection{
			ProviderName: cs.ProviderName,
			DataSource:   cs.ConnectionString,
			Database:     strings.TrimPrefix(name, "name="),
		}, nil
	}
	if strings.HasPrefix(name, "name=") {
		return provider.Connection{}, fmt.Errorf("dbcontext: no connection string named %q", strings.TrimPrefix(name, "name="))
	}
	f := c.cfg.ConnectionFactory()
	if f == nil {
		return provider.Connection{}, fmt.Errorf("dbcontext: no connection factory configured")
	}
	conn, err := f.CreateConnection(name)
	if err != nil {
		return provider.Connection{}, fmt.Errorf("dbcontext: %w", err)
	}
	return conn, nil
}

// contextInfo is what the model cache key factory sees.
type contextInfo struct {
	typ      reflect.Type
	provider string
	schema   string
}

func (i contextInfo) ContextType() reflect.Type { return i.typ }
func (i contextInfo) ProviderName() string      { return i.provider }
func (i contextInfo) DefaultSchema() string     { return i.schema }

// typeInfo is the per-type bootstrap result.
type typeInfo struct {
	once sync.Once
	err  error

	typ          reflect.Type
	name         string
	cfg          *dbconfig.Configuration
	contextField []int
	sets         []setField

	initMu      sync.Mutex
	initialized map[string]bool
}

type setField struct {
	name  string
	index []int
	typ   reflect.Type
	elem  reflect.Type
}

// registry holds bootstrap results and built models for one configuration
// manager.
type registry struct {
	types  sync.Map // reflect.Type -> *typeInfo
	models sync.Map // model cache key -> *modelEntry
}

type modelEntry struct {
	mu    sync.Mutex
	model *modelbuilder.DbModel
}

var registries sync.Map // *dbconfig.Manager -> *registry

func registryFor(m *dbconfig.Manager) *registry {
	r, _ := registries.LoadOrStore(m, &registry{})
	return r.(*registry)
}

// Forget drops the bootstrap results and cached models kept for m. Tests
// call it together with m.Reset.
func Forget(m *dbconfig.Manager) {
	registries.Delete(m)
}

var (
	contextType   = reflect.TypeFor[Context]()
	setBinderType = reflect.TypeFor[setBinder]()
)

// bootstrap runs once per context type: it loads the configuration for the
// type and discovers the context field and the sets.
func (r *registry) bootstrap(ctx context.Context, m *dbconfig.Manager, t reflect.Type) (*typeInfo, error) {
	v, _ := r.types.LoadOrStore(t, &typeInfo{typ: t, name: t.String(), initialized: make(map[string]bool)})
	info := v.(*typeInfo)
	info.once.Do(func() {
		info.err = info.discover(t)
		if info.err != nil {
			return
		}
		info.cfg, info.err = m.EnsureLoadedForContext(ctx, t)
	})
	return info, info.err
}

func (info *typeInfo) discover(t reflect.Type) error {
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous && f.Type == contextType {
			info.contextField = f.Index
			break
		}
	}
	if info.contextField == nil {
		return &InvalidContextError{Type: t, Reason: "does not embed dbcontext.Context"}
	}
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() || !f.Type.Implements(setBinderType) || f.Type.Kind() != reflect.Pointer {
			continue
		}
		elem := reflect.Zero(f.Type).Interface().(setBinder).elemType()
		info.sets = append(info.sets, setField{name: f.Name, index: f.Index, typ: f.Type, elem: elem})
	}
	return nil
}

// model returns the cached model for c, building or loading it on first
// request for its cache key.
func (r *registry) model(ctx context.Context, c *Context) (*modelbuilder.DbModel, error) {
	schema := ""
	if sp, ok := c.owner.Interface().(SchemaProvider); ok {
		schema = sp.DefaultSchema()
	}
	key := c.cfg.ModelCacheKeyFactory()(contextInfo{typ: c.info.typ, provider: c.conn.ProviderName, schema: schema})

	v, _ := r.models.LoadOrStore(key, &modelEntry{})
	entry := v.(*modelEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.model != nil {
		return entry.model, nil
	}
	m, err := c.createModel(ctx, schema)
	if err != nil {
		return nil, err
	}
	entry.model = m
	return m, nil
}

// createModel loads the model from the configured model store, or builds
// it and saves it there.
func (c *Context) createModel(ctx context.Context, schema string) (*modelbuilder.DbModel, error) {
	ms, hasStore := c.cfg.ModelStore()
	storeKey := c.ContextKey()
	if hasStore {
		m, err := c.loadModel(ctx, ms, storeKey)
		if err != nil {
			return nil, err
		}
		if m != nil {
			c.logger.Debug("model loaded from store", "context_key", storeKey, "model_hash", m.Hash())
			return m, nil
		}
	}

	b := modelbuilder.New(modelbuilder.WithConfiguration(c.cfg), modelbuilder.WithLogger(c.logger))
	for _, s := range c.info.sets {
		b.Entity(s.elem)
	}
	if schema != "" {
		b.HasDefaultSchema(schema)
	}
	if mc, ok := c.owner.Interface().(ModelCreator); ok {
		mc.OnModelCreating(b)
	}
	m, err := b.Build(c.conn)
	if err != nil {
		return nil, err
	}

	if hasStore {
		if err := ms.Save(ctx, storeKey, m.Mapping()); err != nil {
			c.logger.Warn("saving model to store failed", "context_key", storeKey, "error", err)
		}
	}
	return m, nil
}

func (c *Context) loadModel(ctx context.Context, ms services.ModelStore, key string) (*modelbuilder.DbModel, error) {
	mapping, ok, err := ms.TryLoad(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dbcontext: load model: %w", err)
	}
	if !ok {
		return nil, nil
	}
	token, err := c.cfg.ManifestTokenResolver().ResolveManifestToken(c.conn)
	if err != nil {
		return nil, fmt.Errorf("dbcontext: %w", err)
	}
	manifest, err := c.ps.Manifest(token)
	if err != nil {
		return nil, fmt.Errorf("dbcontext: %w", err)
	}
	info := provider.Info{InvariantName: c.ps.InvariantName(), ManifestToken: token}
	m, err := modelbuilder.Load(mapping, c.reachableTypes(), info, manifest)
	if err != nil {
		// A stale snapshot is rebuilt, not fatal.
		c.logger.Warn("stored model unusable; rebuilding", "context_key", key, "error", err)
		return nil, nil
	}
	return m, nil
}

// reachableTypes collects the named struct types reachable from the set
// element types through fields, for rebinding a stored model.
func (c *Context) reachableTypes() []reflect.Type {
	seen := make(map[reflect.Type]bool)
	var out []reflect.Type
	var walk func(t reflect.Type)
	walk = func(t reflect.Type) {
		for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array || t.Kind() == reflect.Map {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct || t.Name() == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
		for i := range t.NumField() {
			walk(t.Field(i).Type)
		}
	}
	for _, s := range c.info.sets {
		walk(s.elem)
	}
	return out
}
