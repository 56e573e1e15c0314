package cli

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/roach88/codefirst/internal/appconfig"
	"github.com/roach88/codefirst/internal/dbconfig"
	"github.com/roach88/codefirst/internal/dbcontext"
	"github.com/roach88/codefirst/internal/modelbuilder"
	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/provider/sqlite"
)

// Handle is the part of an initialized context the commands use. Every
// pointer to a struct embedding dbcontext.Context implements it.
type Handle interface {
	ID() string
	Model() *modelbuilder.DbModel
	ContextKey() string
	Connection() provider.Connection
	Database() *dbcontext.Database
	Close() error
}

type opener func(ctx context.Context, nameOrConnectionString string, opts ...dbcontext.Option) (Handle, error)

// Registry holds the context types the commands can open, by type name.
type Registry struct {
	// Manager supplies configuration when set. Otherwise each command
	// builds one from the --config and --dir flags.
	Manager *dbconfig.Manager

	openers map[string]opener
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]opener)}
}

// Register adds context type C, a struct embedding dbcontext.Context.
func Register[C any](r *Registry) error {
	name := reflect.TypeFor[C]().Name()
	if _, ok := any((*C)(nil)).(Handle); !ok {
		return fmt.Errorf("cli: %v does not embed dbcontext.Context", reflect.TypeFor[C]())
	}
	if _, dup := r.openers[name]; dup {
		return fmt.Errorf("cli: context type %q already registered", name)
	}
	r.openers[name] = func(ctx context.Context, nameOrConnectionString string, opts ...dbcontext.Option) (Handle, error) {
		c, err := dbcontext.New[C](ctx, nameOrConnectionString, opts...)
		if err != nil {
			return nil, err
		}
		return any(c).(Handle), nil
	}
	return nil
}

// Names returns the registered context type names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// environment is the configuration one command runs against.
type environment struct {
	manager *dbconfig.Manager
	cfg     *dbconfig.Configuration
	logger  *slog.Logger
	owned   bool
}

// environment returns the registry's manager, or a private manager built
// from the root flags. A private manager is forgotten by close.
func (r *Registry) environment(ctx context.Context, opts *RootOptions, logger *slog.Logger) (*environment, error) {
	if r.Manager != nil {
		cfg, err := r.Manager.Configuration(ctx)
		if err != nil {
			return nil, err
		}
		return &environment{manager: r.Manager, cfg: cfg, logger: logger}, nil
	}

	cfg := dbconfig.New(dbconfig.WithName("cli"), dbconfig.WithLogger(logger))
	if err := cfg.SetDefaultConnectionFactory(sqlite.ConnectionFactory{Dir: opts.Dir}); err != nil {
		return nil, err
	}
	if opts.ConfigFile != "" {
		f, err := appconfig.Load(opts.ConfigFile)
		if err != nil {
			return nil, &configError{err: err}
		}
		if err := cfg.SetAppConfig(f); err != nil {
			return nil, err
		}
	}
	m := dbconfig.NewManager(logger)
	if err := m.SetConfiguration(cfg); err != nil {
		return nil, err
	}
	return &environment{manager: m, cfg: cfg, logger: logger, owned: true}, nil
}

func (e *environment) close() {
	if e.owned {
		dbcontext.Forget(e.manager)
	}
}

// open initializes a context of the named type without running its
// database initializer.
func (e *environment) open(ctx context.Context, r *Registry, typeName, nameOrConnectionString string) (Handle, error) {
	op, ok := r.openers[typeName]
	if !ok {
		return nil, &unknownContextError{name: typeName, known: r.Names()}
	}
	return op(ctx, nameOrConnectionString,
		dbcontext.WithManager(e.manager),
		dbcontext.WithLogger(e.logger),
		dbcontext.WithoutInitialization(),
	)
}

type unknownContextError struct {
	name  string
	known []string
}

func (e *unknownContextError) Error() string {
	if len(e.known) == 0 {
		return fmt.Sprintf("context type %q is not registered (no context types registered)", e.name)
	}
	return fmt.Sprintf("context type %q is not registered (known: %v)", e.name, e.known)
}

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// withContext runs fn against an opened context and reports setup failures
// through f.
func withContext(ctx context.Context, f *OutputFormatter, opts *RootOptions, reg *Registry, typeName, database string, fn func(Handle) error) error {
	env, err := reg.environment(ctx, opts, f.Logger())
	if err != nil {
		return setupFailure(f, err)
	}
	defer env.close()

	h, err := env.open(ctx, reg, typeName, database)
	if err != nil {
		return setupFailure(f, err)
	}
	defer h.Close()
	f.VerboseLog("Opened %s (context %s) on %s", typeName, h.ID(), h.Connection().DataSource)
	return fn(h)
}

func setupFailure(f *OutputFormatter, err error) error {
	switch err.(type) {
	case *unknownContextError:
		return f.Fail(ExitCommandError, ErrCodeUnknownCtx, err)
	case *configError:
		return f.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	if modelbuilder.IsModelValidation(err) || modelbuilder.IsUnmappableType(err) {
		return f.Fail(ExitCommandError, ErrCodeModel, err)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err)
}
