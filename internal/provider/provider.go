// Package provider defines the boundary between codefirst and a database
// provider: provider services, provider manifests and connections.
//
// Provider implementations live in sub-packages (see provider/sqlite).
// Configuration resolves them by invariant name; nothing validates a
// provider eagerly, so a missing provider surfaces at the first point of
// need, typically during model building.
package provider

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/codefirst/internal/metadata"
)

// Info identifies a provider and the manifest token that selects its
// capabilities.
type Info struct {
	InvariantName string `json:"invariant_name"`
	ManifestToken string `json:"manifest_token"`
}

// Connection describes a database connection without opening it.
type Connection struct {
	ProviderName string
	DataSource   string
	Database     string
	Server       string
}

// StoreType is a provider type with its facets.
type StoreType struct {
	Name      string
	MaxLength *int
	Precision *uint8
	Scale     *uint8
}

// Manifest describes the store types and capabilities of a provider
// for one manifest token.
type Manifest interface {
	// Token returns the manifest token this manifest was created for.
	Token() string
	// StoreType maps a conceptual property to a store type.
	StoreType(p *metadata.Property) (StoreType, error)
	// ParseStoreType validates an explicitly configured column type.
	ParseStoreType(name string) (StoreType, error)
	// SupportsSchemas reports whether table schemas are meaningful.
	SupportsSchemas() bool
	// MaxIdentifierLength bounds table, column and constraint names.
	MaxIdentifierLength() int
}

// Services is the entry point to a provider.
type Services interface {
	InvariantName() string
	// ManifestToken resolves the manifest token for conn. Implementations
	// should avoid opening the connection when the token is derivable.
	ManifestToken(conn Connection) (string, error)
	Manifest(token string) (Manifest, error)
	Open(conn Connection) (*sql.DB, error)
	DatabaseExists(ctx context.Context, conn Connection) (bool, error)
	CreateDatabase(ctx context.Context, conn Connection) error
	DeleteDatabase(ctx context.Context, conn Connection) error
}

// UnsupportedTypeError reports a property or store type the provider cannot
// represent.
type UnsupportedTypeError struct {
	Provider string
	Type     string
}

// Error implements the error interface.
func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("provider %s: unsupported type %q", e.Provider, e.Type)
}

var (
	typesMu sync.RWMutex
	types   = make(map[string]func() Services)
)

// Register makes a provider type available by name to configuration files.
// Provider packages call it from init, the way database/sql drivers do.
// Registering a name twice panics.
func Register(name string, factory func() Services) {
	typesMu.Lock()
	defer typesMu.Unlock()
	if factory == nil {
		panic("provider: Register factory is nil")
	}
	if _, dup := types[name]; dup {
		panic("provider: Register called twice for type " + name)
	}
	types[name] = factory
}

// Lookup returns a new instance of the named provider type.
func Lookup(name string) (Services, bool) {
	typesMu.RLock()
	factory, ok := types[name]
	typesMu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Types returns the registered provider type names, sorted.
func Types() []string {
	typesMu.RLock()
	defer typesMu.RUnlock()
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
