// Package modelbuilder turns accumulated model configuration into an
// immutable DbModel: a conceptual model, the store model derived from it and
// the mapping between the two.
//
// Build runs a fixed pipeline on a snapshot of the builder:
//
//	 1. resolve the provider manifest
//	 2. run configuration conventions on the reachable types
//	 3. normalize configuration conflicts
//	 4. map Go types to the conceptual model
//	 5. apply explicit configuration
//	 6. run conceptual conventions
//	 7. validate the conceptual model
//	 8. generate the store model and mapping
//	 9. name tables
//	10. apply explicit store configuration
//	11. run store conventions
//	12. validate the store model
//	13. package the result
//
// Validation problems are aggregated into one ModelValidationError per
// phase. A type that cannot be mapped aborts the build with an
// UnmappableTypeError.
package modelbuilder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/roach88/codefirst/internal/conventions"
	"github.com/roach88/codefirst/internal/dbconfig"
	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/modelconfig"
	"github.com/roach88/codefirst/internal/provider"
)

// ModelBuilder accumulates entity, complex type and convention
// configuration. Its methods, and the configuration handles they return, are
// safe for concurrent use: Build and Clone work on a snapshot taken under a
// lock, so one goroutine may build while another keeps configuring.
type ModelBuilder struct {
	mu          sync.Mutex
	config      *modelconfig.ModelConfiguration
	conventions *conventions.Set
	dbconfig    *dbconfig.Configuration
	logger      *slog.Logger
}

// Option configures a ModelBuilder.
type Option func(*ModelBuilder)

// WithConfiguration sets the configuration providers and services are
// resolved from. Without it the active process-wide configuration is used.
func WithConfiguration(c *dbconfig.Configuration) Option {
	return func(b *ModelBuilder) {
		b.dbconfig = c
	}
}

// WithLogger sets the logger for build steps.
func WithLogger(l *slog.Logger) Option {
	return func(b *ModelBuilder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithConventions replaces the default convention set.
func WithConventions(s *conventions.Set) Option {
	return func(b *ModelBuilder) {
		if s != nil {
			b.conventions = s
		}
	}
}

// New creates a builder with the default conventions.
func New(opts ...Option) *ModelBuilder {
	b := &ModelBuilder{
		config:      modelconfig.New(),
		conventions: conventions.Default(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Entity registers t as an entity type and returns its configuration.
func (b *ModelBuilder) Entity(t reflect.Type) *modelconfig.EntityConfiguration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.Entity(t)
}

// ComplexType registers t as a complex type and returns its configuration.
func (b *ModelBuilder) ComplexType(t reflect.Type) *modelconfig.ComplexTypeConfiguration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.ComplexType(t)
}

// Ignore excludes t from the model, discarding its configuration.
func (b *ModelBuilder) Ignore(types ...reflect.Type) *ModelBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.config.Ignore(t)
	}
	return b
}

// Add registers a standalone entity configuration.
func (b *ModelBuilder) Add(cfg *modelconfig.EntityConfiguration) *ModelBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.Add(cfg)
	return b
}

// AddComplexType registers a standalone complex type configuration.
func (b *ModelBuilder) AddComplexType(cfg *modelconfig.ComplexTypeConfiguration) *ModelBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.AddComplexType(cfg)
	return b
}

// HasDefaultSchema sets the schema of tables without an explicit schema.
func (b *ModelBuilder) HasDefaultSchema(schema string) *ModelBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.HasDefaultSchema(schema)
	return b
}

// Configurations exposes the accumulated model configuration.
func (b *ModelBuilder) Configurations() *modelconfig.ModelConfiguration { return b.config }

// Conventions exposes the convention set.
func (b *ModelBuilder) Conventions() *conventions.Set { return b.conventions }

// Clone returns an independent copy of the builder.
func (b *ModelBuilder) Clone() *ModelBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cloneLocked()
}

func (b *ModelBuilder) cloneLocked() *ModelBuilder {
	return &ModelBuilder{
		config:      b.config.Clone(),
		conventions: b.conventions.Clone(),
		dbconfig:    b.dbconfig,
		logger:      b.logger,
	}
}

// Entity registers T as an entity type.
func Entity[T any](b *ModelBuilder) *modelconfig.EntityConfiguration {
	return b.Entity(reflect.TypeFor[T]())
}

// ComplexType registers T as a complex type.
func ComplexType[T any](b *ModelBuilder) *modelconfig.ComplexTypeConfiguration {
	return b.ComplexType(reflect.TypeFor[T]())
}

// Ignore excludes T from the model.
func Ignore[T any](b *ModelBuilder) *ModelBuilder {
	return b.Ignore(reflect.TypeFor[T]())
}

func (b *ModelBuilder) configuration() (*dbconfig.Configuration, error) {
	if b.dbconfig != nil {
		return b.dbconfig, nil
	}
	return dbconfig.Global().Configuration(context.Background())
}

// Build builds the model for a connection. The manifest token is resolved
// through the configured manifest token resolver, which need not open the
// connection.
func (b *ModelBuilder) Build(conn provider.Connection) (*DbModel, error) {
	cfg, err := b.configuration()
	if err != nil {
		return nil, err
	}
	token, err := cfg.ManifestTokenResolver().ResolveManifestToken(conn)
	if err != nil {
		return nil, fmt.Errorf("modelbuilder: resolve manifest token for %q: %w", conn.ProviderName, err)
	}
	return b.BuildFor(provider.Info{InvariantName: conn.ProviderName, ManifestToken: token})
}

// BuildFor builds the model for an explicit provider and manifest token.
func (b *ModelBuilder) BuildFor(info provider.Info) (*DbModel, error) {
	b.mu.Lock()
	work := b.cloneLocked()
	kept := b.cloneLocked()
	b.mu.Unlock()

	if errs := work.config.Errors(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg, err := work.configuration()
	if err != nil {
		return nil, err
	}
	mapping, manifest, err := work.build(cfg, info)
	if err != nil {
		return nil, err
	}
	return newDbModel(mapping, info, manifest, kept)
}

func (b *ModelBuilder) build(cfg *dbconfig.Configuration, info provider.Info) (*metadata.DatabaseMapping, provider.Manifest, error) {
	log := b.logger.With("provider", info.InvariantName, "manifest_token", info.ManifestToken)

	// Step 1: provider manifest.
	log.Debug("resolving provider manifest")
	services, err := cfg.ProviderServices(info.InvariantName)
	if err != nil {
		return nil, nil, fmt.Errorf("modelbuilder: %w", err)
	}
	manifest, err := services.Manifest(info.ManifestToken)
	if err != nil {
		return nil, nil, fmt.Errorf("modelbuilder: manifest for %s: %w", info.InvariantName, err)
	}

	cc := &conventions.Context{
		Config:     b.config,
		Manifest:   manifest,
		Pluralizer: cfg.Pluralizer(),
		Logger:     log,
	}
	mapper := newTypeMapper(b.config, b.conventions, cc)

	// Step 2: configuration conventions on every reachable type.
	log.Debug("applying configuration conventions")
	roots := mapper.roots()
	mapper.discover(roots)

	// Step 3: settle entity/complex conflicts and ignores.
	log.Debug("normalizing configurations")
	b.config.NormalizeConfigurations()

	// Step 4: type mapping. Discovery runs again because normalization may
	// have changed what is reachable.
	log.Debug("mapping types")
	types := mapper.discover(mapper.roots())
	model, err := mapper.mapTypes(types)
	if err != nil {
		return nil, nil, err
	}
	model.DefaultSchema = b.config.DefaultSchema()
	mapper.applyTypeConventions(model)

	// Step 5: explicit configuration.
	log.Debug("applying explicit configuration")
	configErrs := configurationErrors(ErrConfiguration, b.config.Configure(model))

	// Step 6: conceptual conventions.
	log.Debug("applying conceptual conventions")
	for _, c := range conventions.All[conventions.ConceptualConvention](b.conventions) {
		c.ApplyConceptual(cc, model)
	}
	completeConstraints(model)
	for _, et := range model.EntityTypes {
		if len(et.Key) == 0 {
			return nil, nil, &UnmappableTypeError{Type: et.GoType, Reason: "no key was configured or discovered"}
		}
	}

	// Step 7: conceptual validation.
	log.Debug("validating conceptual model")
	problems := ValidateConceptual(model)
	problems = append(problems, configurationErrors(ErrConfiguration, cc.Problems())...)
	problems = append(problems, configErrs...)
	if len(problems) > 0 {
		return nil, nil, &ModelValidationError{Phase: PhaseConceptual, Errors: problems}
	}

	// Step 8: store model.
	log.Debug("generating store model")
	mapping, storeProblems := generateStore(model, info, manifest)

	// Step 9: table naming.
	for _, c := range conventions.All[conventions.TableNamingConvention](b.conventions) {
		c.NameTables(cc, mapping)
	}

	// Step 10: explicit store configuration.
	log.Debug("applying explicit store configuration")
	storeProblems = append(storeProblems, configurationErrors(ErrStoreConfiguration, b.config.ConfigureStore(mapping, manifest))...)

	// Step 11: store conventions.
	for _, c := range conventions.All[conventions.StoreConvention](b.conventions) {
		c.ApplyStore(cc, mapping)
	}
	nameForeignKeys(mapping.Database)

	// Step 12: store validation.
	log.Debug("validating store model")
	storeProblems = append(ValidateStore(mapping.Database, manifest), storeProblems...)
	if len(storeProblems) > 0 {
		return nil, nil, &ModelValidationError{Phase: PhaseStore, Errors: storeProblems}
	}

	log.Debug("model built",
		"entity_types", len(model.EntityTypes),
		"associations", len(model.Associations),
		"tables", len(mapping.Database.Tables))
	return mapping, manifest, nil
}

// completeConstraints fills in principal properties that configuration and
// conventions left implicit: they default to the principal key.
func completeConstraints(model *metadata.Model) {
	for _, a := range model.Associations {
		c := a.Constraint
		if c == nil || len(c.PrincipalProperties) > 0 {
			continue
		}
		end := a.Target
		if c.PrincipalIsSource {
			end = a.Source
		}
		if principal := model.EntityType(end.EntityType); principal != nil {
			c.PrincipalProperties = append([]string(nil), principal.Key...)
		}
	}
}
