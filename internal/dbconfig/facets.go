package dbconfig

import (
	"reflect"

	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/resolve"
	"github.com/roach88/codefirst/internal/services"
)

// Facet setters. Each one registers into the singleton registry, so a later
// call for the same facet and key replaces the earlier one. All of them fail
// with a LockedError once the configuration is locked.

// facetID identifies a predicate registration so that repeating it replaces
// the earlier registration in place.
type facetID struct {
	facet string
	key   string
}

// SetDefaultConnectionFactory sets the factory that turns database names into
// connections.
func (c *Configuration) SetDefaultConnectionFactory(f services.ConnectionFactory) error {
	return c.registerSingleton("SetDefaultConnectionFactory", resolve.KindOf[services.ConnectionFactory](), f, nil)
}

// SetProviderServices registers provider services for an invariant name.
func (c *Configuration) SetProviderServices(invariantName string, ps provider.Services) error {
	if invariantName == "" {
		return argError("SetProviderServices", "invariantName", "must not be empty")
	}
	return c.registerSingleton("SetProviderServices", resolve.KindOf[provider.Services](), ps, invariantName)
}

// SetExecutionStrategy sets the execution strategy for every server of a
// provider.
func (c *Configuration) SetExecutionStrategy(invariantName string, f services.ExecutionStrategyFactory) error {
	if invariantName == "" {
		return argError("SetExecutionStrategy", "invariantName", "must not be empty")
	}
	return c.registerWhere("SetExecutionStrategy", resolve.KindOf[services.ExecutionStrategyFactory](),
		facetID{"execution-strategy", invariantName}, f, providerWide(invariantName))
}

// SetExecutionStrategyForServer sets the execution strategy for one server of
// a provider. It beats a provider-wide registration.
func (c *Configuration) SetExecutionStrategyForServer(invariantName, serverName string, f services.ExecutionStrategyFactory) error {
	if invariantName == "" {
		return argError("SetExecutionStrategyForServer", "invariantName", "must not be empty")
	}
	if serverName == "" {
		return argError("SetExecutionStrategyForServer", "serverName", "must not be empty")
	}
	return c.registerSingleton("SetExecutionStrategyForServer", resolve.KindOf[services.ExecutionStrategyFactory](), f,
		services.ExecutionStrategyKey{ProviderInvariantName: invariantName, ServerName: serverName})
}

// SetTransactionHandler sets the transaction handler for every server of a
// provider.
func (c *Configuration) SetTransactionHandler(invariantName string, f services.TransactionHandlerFactory) error {
	if invariantName == "" {
		return argError("SetTransactionHandler", "invariantName", "must not be empty")
	}
	return c.registerWhere("SetTransactionHandler", resolve.KindOf[services.TransactionHandlerFactory](),
		facetID{"transaction-handler", invariantName}, f, providerWide(invariantName))
}

// SetTransactionHandlerForServer sets the transaction handler for one server.
func (c *Configuration) SetTransactionHandlerForServer(invariantName, serverName string, f services.TransactionHandlerFactory) error {
	if invariantName == "" {
		return argError("SetTransactionHandlerForServer", "invariantName", "must not be empty")
	}
	if serverName == "" {
		return argError("SetTransactionHandlerForServer", "serverName", "must not be empty")
	}
	return c.registerSingleton("SetTransactionHandlerForServer", resolve.KindOf[services.TransactionHandlerFactory](), f,
		services.ExecutionStrategyKey{ProviderInvariantName: invariantName, ServerName: serverName})
}

func providerWide(invariantName string) func(key any) bool {
	return func(key any) bool {
		k, ok := key.(services.ExecutionStrategyKey)
		return ok && k.ProviderInvariantName == invariantName
	}
}

// SetMigrationSQLGenerator sets the SQL generator for a provider.
func (c *Configuration) SetMigrationSQLGenerator(invariantName string, f services.MigrationSQLGeneratorFactory) error {
	if invariantName == "" {
		return argError("SetMigrationSQLGenerator", "invariantName", "must not be empty")
	}
	return c.registerSingleton("SetMigrationSQLGenerator", resolve.KindOf[services.MigrationSQLGeneratorFactory](), f, invariantName)
}

// SetManifestTokenResolver replaces the manifest token resolver.
func (c *Configuration) SetManifestTokenResolver(r services.ManifestTokenResolver) error {
	return c.registerSingleton("SetManifestTokenResolver", resolve.KindOf[services.ManifestTokenResolver](), r, nil)
}

// SetSpatialServices sets the spatial services used when no provider-specific
// registration applies.
func (c *Configuration) SetSpatialServices(s services.SpatialServices) error {
	return c.registerSingleton("SetSpatialServices", resolve.KindOf[services.SpatialServices](), s, nil)
}

// SetSpatialServicesForProvider sets spatial services for every manifest
// token of a provider.
func (c *Configuration) SetSpatialServicesForProvider(invariantName string, s services.SpatialServices) error {
	if invariantName == "" {
		return argError("SetSpatialServicesForProvider", "invariantName", "must not be empty")
	}
	return c.registerWhere("SetSpatialServicesForProvider", resolve.KindOf[services.SpatialServices](),
		facetID{"spatial", invariantName}, s, func(key any) bool {
			info, ok := key.(provider.Info)
			return ok && info.InvariantName == invariantName
		})
}

// SetSpatialServicesFor sets spatial services for one provider and manifest
// token.
func (c *Configuration) SetSpatialServicesFor(info provider.Info, s services.SpatialServices) error {
	if info.InvariantName == "" {
		return argError("SetSpatialServicesFor", "info.InvariantName", "must not be empty")
	}
	if info.ManifestToken == "" {
		return argError("SetSpatialServicesFor", "info.ManifestToken", "must not be empty")
	}
	return c.registerSingleton("SetSpatialServicesFor", resolve.KindOf[services.SpatialServices](), s, info)
}

// SetMetadataAnnotationSerializer sets the serializer for an annotation name.
func (c *Configuration) SetMetadataAnnotationSerializer(annotationName string, f services.AnnotationSerializerFactory) error {
	if annotationName == "" {
		return argError("SetMetadataAnnotationSerializer", "annotationName", "must not be empty")
	}
	return c.registerSingleton("SetMetadataAnnotationSerializer", resolve.KindOf[services.AnnotationSerializerFactory](), f, annotationName)
}

// SetModelCacheKeyFactory replaces the model cache key factory.
func (c *Configuration) SetModelCacheKeyFactory(f services.ModelCacheKeyFactory) error {
	return c.registerSingleton("SetModelCacheKeyFactory", resolve.KindOf[services.ModelCacheKeyFactory](), f, nil)
}

// SetHistoryContext sets the history context factory for a provider.
func (c *Configuration) SetHistoryContext(invariantName string, f services.HistoryContextFactory) error {
	if invariantName == "" {
		return argError("SetHistoryContext", "invariantName", "must not be empty")
	}
	return c.registerSingleton("SetHistoryContext", resolve.KindOf[services.HistoryContextFactory](), f, invariantName)
}

// SetDefaultHistoryContext sets the history context factory used for
// providers without their own.
func (c *Configuration) SetDefaultHistoryContext(f services.HistoryContextFactory) error {
	return c.registerSingleton("SetDefaultHistoryContext", resolve.KindOf[services.HistoryContextFactory](), f, nil)
}

// SetDatabaseLogFormatter replaces the log formatter factory.
func (c *Configuration) SetDatabaseLogFormatter(f services.LogFormatterFactory) error {
	return c.registerSingleton("SetDatabaseLogFormatter", resolve.KindOf[services.LogFormatterFactory](), f, nil)
}

// AddInterceptor adds an interceptor. Every added interceptor is kept.
func (c *Configuration) AddInterceptor(i services.Interceptor) error {
	if isNil(i) {
		return argError("AddInterceptor", "interceptor", "must not be nil")
	}
	return c.mutate("AddInterceptor", func() error {
		c.primary.Add(resolve.NewSingleton(resolve.KindOf[services.Interceptor](), i, nil))
		return nil
	})
}

// SetContextFactory sets the factory used to create contexts of a type.
func (c *Configuration) SetContextFactory(contextType reflect.Type, f services.ContextFactory) error {
	if contextType == nil {
		return argError("SetContextFactory", "contextType", "must not be nil")
	}
	return c.registerSingleton("SetContextFactory", resolve.KindOf[services.ContextFactory](), f, contextType)
}

// SetModelStore sets the persisted model store.
func (c *Configuration) SetModelStore(s services.ModelStore) error {
	return c.registerSingleton("SetModelStore", resolve.KindOf[services.ModelStore](), s, nil)
}

// SetTableExistenceChecker sets the table existence checker for a provider.
func (c *Configuration) SetTableExistenceChecker(invariantName string, tc services.TableExistenceChecker) error {
	if invariantName == "" {
		return argError("SetTableExistenceChecker", "invariantName", "must not be empty")
	}
	return c.registerSingleton("SetTableExistenceChecker", resolve.KindOf[services.TableExistenceChecker](), tc, invariantName)
}

// SetDatabaseInitializer sets the initializer for a context type. A nil
// initializer disables initialization for that type.
func (c *Configuration) SetDatabaseInitializer(contextType reflect.Type, initializer services.DatabaseInitializer) error {
	if contextType == nil {
		return argError("SetDatabaseInitializer", "contextType", "must not be nil")
	}
	if isNil(initializer) {
		initializer = services.NullDatabaseInitializer{}
	}
	return c.registerSingleton("SetDatabaseInitializer", resolve.KindOf[services.DatabaseInitializer](), initializer, contextType)
}

// SetPluralizer replaces the pluralizer used for table names.
func (c *Configuration) SetPluralizer(p services.Pluralizer) error {
	return c.registerSingleton("SetPluralizer", resolve.KindOf[services.Pluralizer](), p, nil)
}

// ConnectionFactory resolves the default connection factory.
func (c *Configuration) ConnectionFactory() services.ConnectionFactory {
	f, _ := resolve.Get[services.ConnectionFactory](c, nil)
	return f
}

// ManifestTokenResolver resolves the manifest token resolver.
func (c *Configuration) ManifestTokenResolver() services.ManifestTokenResolver {
	r, _ := resolve.Get[services.ManifestTokenResolver](c, nil)
	return r
}

// ModelCacheKeyFactory resolves the model cache key factory.
func (c *Configuration) ModelCacheKeyFactory() services.ModelCacheKeyFactory {
	f, ok := resolve.Get[services.ModelCacheKeyFactory](c, nil)
	if !ok {
		return services.DefaultModelCacheKeyFactory
	}
	return f
}

// LogFormatterFactory resolves the log formatter factory.
func (c *Configuration) LogFormatterFactory() services.LogFormatterFactory {
	f, ok := resolve.Get[services.LogFormatterFactory](c, nil)
	if !ok {
		return services.NewTextLogFormatter
	}
	return f
}

// ModelStore resolves the persisted model store, if one is registered.
func (c *Configuration) ModelStore() (services.ModelStore, bool) {
	return resolve.Get[services.ModelStore](c, nil)
}

// TableExistenceChecker resolves the table existence checker for a provider.
func (c *Configuration) TableExistenceChecker(invariantName string) (services.TableExistenceChecker, bool) {
	return resolve.Get[services.TableExistenceChecker](c, invariantName)
}

// DatabaseInitializer resolves the initializer registered for a context type.
func (c *Configuration) DatabaseInitializer(contextType reflect.Type) (services.DatabaseInitializer, bool) {
	return resolve.Get[services.DatabaseInitializer](c, contextType)
}

// Pluralizer resolves the pluralizer.
func (c *Configuration) Pluralizer() services.Pluralizer {
	p, ok := resolve.Get[services.Pluralizer](c, nil)
	if !ok {
		return services.InflectionPluralizer{}
	}
	return p
}
