package dbconfig

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/roach88/codefirst/internal/appconfig"
	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/provider/sqlite"
	"github.com/roach88/codefirst/internal/resolve"
	"github.com/roach88/codefirst/internal/services"
)

// ConnectionFactoryType builds a connection factory from configuration file
// arguments.
type ConnectionFactoryType func(args map[string]string) (services.ConnectionFactory, error)

var (
	namedMu            sync.RWMutex
	connectionFactory  = map[string]ConnectionFactoryType{}
	interceptorFactory = map[string]func() services.Interceptor{}
)

func init() {
	RegisterConnectionFactoryType("sqlite", func(args map[string]string) (services.ConnectionFactory, error) {
		return sqlite.ConnectionFactory{Dir: args["dir"]}, nil
	})
	RegisterInterceptorType("command-log", func() services.Interceptor {
		return services.CommandLogInterceptor{}
	})
}

// RegisterConnectionFactoryType makes a connection factory available to
// configuration files under name. A later registration replaces an earlier one.
func RegisterConnectionFactoryType(name string, f ConnectionFactoryType) {
	namedMu.Lock()
	defer namedMu.Unlock()
	connectionFactory[name] = f
}

// RegisterInterceptorType makes an interceptor available to configuration
// files under name. A later registration replaces an earlier one.
func RegisterInterceptorType(name string, f func() services.Interceptor) {
	namedMu.Lock()
	defer namedMu.Unlock()
	interceptorFactory[name] = f
}

// InterceptorTypes returns the registered interceptor names, sorted.
func InterceptorTypes() []string {
	namedMu.RLock()
	defer namedMu.RUnlock()
	names := make([]string, 0, len(interceptorFactory))
	for name := range interceptorFactory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// appResolver serves the services a configuration file declares. Instances
// are built once, on first request.
type appResolver struct {
	file *appconfig.File

	once         sync.Once
	factory      services.ConnectionFactory
	factoryErr   error
	providers    map[string]provider.Services
	interceptors []services.Interceptor
}

func newAppResolver(f *appconfig.File) *appResolver {
	return &appResolver{file: f}
}

func (a *appResolver) build() {
	a.once.Do(func() {
		if ref := a.file.DefaultConnectionFactory; ref != nil {
			namedMu.RLock()
			f, ok := connectionFactory[ref.Type]
			namedMu.RUnlock()
			if !ok {
				a.factoryErr = fmt.Errorf("dbconfig: unknown connection factory type %q", ref.Type)
			} else {
				a.factory, a.factoryErr = f(ref.Args)
			}
		}
		a.providers = make(map[string]provider.Services)
		for _, p := range a.file.Providers {
			if ps, ok := provider.Lookup(p.Type); ok {
				a.providers[p.InvariantName] = ps
			}
		}
		namedMu.RLock()
		for _, name := range a.file.Interceptors {
			if f, ok := interceptorFactory[name]; ok {
				a.interceptors = append(a.interceptors, f())
			}
		}
		namedMu.RUnlock()
	})
}

func (a *appResolver) GetService(kind reflect.Type, key any) (any, bool) {
	switch kind {
	case resolve.KindOf[*appconfig.File]():
		return a.file, true
	case resolve.KindOf[services.ConnectionFactory]():
		a.build()
		if a.factory == nil {
			return nil, false
		}
		return a.factory, true
	case resolve.KindOf[provider.Services]():
		name, ok := key.(string)
		if !ok {
			return nil, false
		}
		a.build()
		ps, ok := a.providers[name]
		return ps, ok
	}
	return nil, false
}

func (a *appResolver) GetServices(kind reflect.Type, key any) []any {
	if kind == resolve.KindOf[services.Interceptor]() {
		a.build()
		out := make([]any, len(a.interceptors))
		for i, ic := range a.interceptors {
			out[i] = ic
		}
		return out
	}
	if svc, ok := a.GetService(kind, key); ok {
		return []any{svc}
	}
	return nil
}

// Problems reports configuration file entries that name unregistered types.
func (a *appResolver) Problems() []error {
	a.build()
	var errs []error
	if a.factoryErr != nil {
		errs = append(errs, a.factoryErr)
	}
	for _, p := range a.file.Providers {
		if _, ok := a.providers[p.InvariantName]; !ok {
			errs = append(errs, fmt.Errorf("dbconfig: unknown provider type %q for %q", p.Type, p.InvariantName))
		}
	}
	namedMu.RLock()
	defer namedMu.RUnlock()
	for _, name := range a.file.Interceptors {
		if _, ok := interceptorFactory[name]; !ok {
			errs = append(errs, fmt.Errorf("dbconfig: unknown interceptor %q", name))
		}
	}
	return errs
}

// AppConfigProblems reports entries of the attached configuration file that
// name unregistered types.
func (c *Configuration) AppConfigProblems() []error {
	if a := c.app.Load(); a != nil {
		return a.Problems()
	}
	return nil
}
