package dbconfig

import (
	"fmt"
	"reflect"

	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/provider/sqlite"
	"github.com/roach88/codefirst/internal/resolve"
	"github.com/roach88/codefirst/internal/services"
)

// newRootResolver builds the built-in defaults every configuration falls back
// to. It never changes after construction.
func newRootResolver(c *Configuration) resolve.Resolver {
	r := resolve.NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(fmt.Sprintf("dbconfig: root registration: %v", err))
		}
	}

	must(r.RegisterSingleton(resolve.KindOf[services.ConnectionFactory](), sqlite.ConnectionFactory{Dir: "."}, nil))
	must(r.RegisterSingleton(resolve.KindOf[provider.Services](), sqlite.New(), sqlite.InvariantName))
	must(r.RegisterSingleton(resolve.KindOf[services.MigrationSQLGeneratorFactory](),
		services.MigrationSQLGeneratorFactory(sqlite.NewMigrationSQLGenerator), sqlite.InvariantName))
	must(r.RegisterSingleton(resolve.KindOf[services.TableExistenceChecker](), sqlite.TableExistenceChecker{}, sqlite.InvariantName))

	must(r.RegisterSingleton(resolve.KindOf[services.ExecutionStrategyFactory](),
		services.ExecutionStrategyFactory(func() services.ExecutionStrategy { return services.DefaultExecutionStrategy{} }), nil))
	must(r.RegisterSingleton(resolve.KindOf[services.TransactionHandlerFactory](),
		services.TransactionHandlerFactory(func() services.TransactionHandler { return services.DefaultTransactionHandler{} }), nil))
	must(r.RegisterSingleton(resolve.KindOf[services.ManifestTokenResolver](), &manifestTokenResolver{cfg: c}, nil))
	must(r.RegisterSingleton(resolve.KindOf[services.SpatialServices](), services.NoSpatialServices{}, nil))
	must(r.RegisterSingleton(resolve.KindOf[services.AnnotationSerializerFactory](),
		services.AnnotationSerializerFactory(func() services.AnnotationSerializer { return services.JSONAnnotationSerializer{} }), nil))
	must(r.RegisterSingleton(resolve.KindOf[services.ModelCacheKeyFactory](),
		services.ModelCacheKeyFactory(services.DefaultModelCacheKeyFactory), nil))
	must(r.RegisterSingleton(resolve.KindOf[services.HistoryContextFactory](),
		services.HistoryContextFactory(services.DefaultHistoryContext), nil))
	must(r.RegisterSingleton(resolve.KindOf[services.LogFormatterFactory](),
		services.LogFormatterFactory(services.NewTextLogFormatter), nil))
	must(r.RegisterSingleton(resolve.KindOf[services.Pluralizer](), services.InflectionPluralizer{}, nil))
	return r
}

// manifestTokenResolver asks the connection's provider for its token.
type manifestTokenResolver struct {
	cfg *Configuration
}

func (m *manifestTokenResolver) ResolveManifestToken(conn provider.Connection) (string, error) {
	ps, err := m.cfg.ProviderServices(conn.ProviderName)
	if err != nil {
		return "", err
	}
	return ps.ManifestToken(conn)
}

// ProviderServices resolves the provider registered under invariantName.
func (c *Configuration) ProviderServices(invariantName string) (provider.Services, error) {
	return resolve.Service[provider.Services](c, invariantName)
}

// ExecutionStrategy resolves the execution strategy for a provider and
// server. A server-specific registration beats a provider-wide one.
func (c *Configuration) ExecutionStrategy(invariantName, serverName string) services.ExecutionStrategy {
	f, ok := resolve.Get[services.ExecutionStrategyFactory](c, services.ExecutionStrategyKey{
		ProviderInvariantName: invariantName, ServerName: serverName,
	})
	if !ok || f == nil {
		return services.DefaultExecutionStrategy{}
	}
	if s := f(); s != nil {
		return s
	}
	return services.DefaultExecutionStrategy{}
}

// TransactionHandler resolves the transaction handler for a provider and
// server.
func (c *Configuration) TransactionHandler(invariantName, serverName string) services.TransactionHandler {
	f, ok := resolve.Get[services.TransactionHandlerFactory](c, services.ExecutionStrategyKey{
		ProviderInvariantName: invariantName, ServerName: serverName,
	})
	if !ok || f == nil {
		return services.DefaultTransactionHandler{}
	}
	if h := f(); h != nil {
		return h
	}
	return services.DefaultTransactionHandler{}
}

// MigrationSQLGenerator resolves the SQL generator for a provider.
func (c *Configuration) MigrationSQLGenerator(invariantName string) (services.MigrationSQLGenerator, error) {
	f, err := resolve.Service[services.MigrationSQLGeneratorFactory](c, invariantName)
	if err != nil {
		return nil, err
	}
	return f(), nil
}

// HistoryContext resolves the history context for a provider and default
// schema. A provider-specific factory beats the default one.
func (c *Configuration) HistoryContext(invariantName, defaultSchema string) services.HistoryContext {
	f, ok := resolve.Get[services.HistoryContextFactory](c, invariantName)
	if !ok {
		return services.DefaultHistoryContext(defaultSchema)
	}
	return f(defaultSchema)
}

// SpatialServices resolves spatial services for a provider and manifest
// token, falling back to per-provider and then global registrations.
func (c *Configuration) SpatialServices(info provider.Info) services.SpatialServices {
	if s, ok := resolve.Get[services.SpatialServices](c, info); ok {
		return s
	}
	return services.NoSpatialServices{}
}

// AnnotationSerializer resolves the serializer for an annotation name.
func (c *Configuration) AnnotationSerializer(name string) services.AnnotationSerializer {
	if f, ok := resolve.Get[services.AnnotationSerializerFactory](c, name); ok {
		if s := f(); s != nil {
			return s
		}
	}
	return services.JSONAnnotationSerializer{}
}

// Interceptors collects every registered interceptor.
func (c *Configuration) Interceptors() []services.Interceptor {
	return resolve.All[services.Interceptor](c, nil)
}

// CommandInterceptors collects the interceptors that observe commands.
func (c *Configuration) CommandInterceptors() []services.CommandInterceptor {
	var out []services.CommandInterceptor
	for _, i := range c.Interceptors() {
		if ci, ok := i.(services.CommandInterceptor); ok {
			out = append(out, ci)
		}
	}
	return out
}

// ContextFactory resolves the factory registered for a context type.
func (c *Configuration) ContextFactory(contextType reflect.Type) (services.ContextFactory, bool) {
	return resolve.Get[services.ContextFactory](c, contextType)
}
