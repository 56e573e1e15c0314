// Package appconfig loads deployment configuration for codefirst: named
// connection strings, provider registrations, per-context initialization
// settings and interceptor names.
//
// Files may be written in CUE (.cue), YAML (.yaml, .yml) or TOML (.toml).
// Every file is validated against the embedded CUE schema regardless of its
// format. A .env file, when present, is loaded into the process environment
// first, and ${VAR} references in connection strings and factory arguments
// are expanded from the environment.
package appconfig

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Initializer names accepted in ContextSettings.Initializer.
const (
	InitializerCreateIfNotExists        = "create_if_not_exists"
	InitializerDropCreateAlways         = "drop_create_always"
	InitializerDropCreateIfModelChanges = "drop_create_if_model_changes"
	InitializerNull                     = "null"
)

// File is a parsed configuration file.
type File struct {
	ConnectionStrings        map[string]ConnectionString `json:"connection_strings,omitempty" yaml:"connection_strings" toml:"connection_strings"`
	DefaultConnectionFactory *FactoryRef                 `json:"default_connection_factory,omitempty" yaml:"default_connection_factory" toml:"default_connection_factory"`
	Providers                []ProviderRef               `json:"providers,omitempty" yaml:"providers" toml:"providers"`
	Contexts                 map[string]ContextSettings  `json:"contexts,omitempty" yaml:"contexts" toml:"contexts"`
	Interceptors             []string                    `json:"interceptors,omitempty" yaml:"interceptors" toml:"interceptors"`
	// ConfigurationType names a registered configuration that should be used
	// instead of the one discovered for a context.
	ConfigurationType string `json:"configuration_type,omitempty" yaml:"configuration_type" toml:"configuration_type"`

	// Path is the file the configuration was loaded from.
	Path string `json:"-" yaml:"-" toml:"-"`
}

// ConnectionString is a named connection.
type ConnectionString struct {
	ProviderName     string `json:"provider_name" yaml:"provider_name" toml:"provider_name"`
	ConnectionString string `json:"connection_string" yaml:"connection_string" toml:"connection_string"`
}

// FactoryRef names a registered factory and its string arguments.
type FactoryRef struct {
	Type string            `json:"type" yaml:"type" toml:"type"`
	Args map[string]string `json:"args,omitempty" yaml:"args" toml:"args"`
}

// ProviderRef binds a provider invariant name to a registered provider type.
type ProviderRef struct {
	InvariantName string `json:"invariant_name" yaml:"invariant_name" toml:"invariant_name"`
	Type          string `json:"type" yaml:"type" toml:"type"`
}

// ContextSettings configures one context type, by type name.
type ContextSettings struct {
	Database              string `json:"database,omitempty" yaml:"database" toml:"database"`
	DisableInitialization bool   `json:"disable_initialization,omitempty" yaml:"disable_initialization" toml:"disable_initialization"`
	Initializer           string `json:"initializer,omitempty" yaml:"initializer" toml:"initializer"`
}

// ErrUnsupportedFormat is returned for files with an unknown extension.
var ErrUnsupportedFormat = errors.New("appconfig: unsupported file format")

// Load reads the .env files (default ".env" next to path; missing files are
// ignored), parses path by extension, validates it and expands environment
// references.
func Load(path string, envFiles ...string) (*File, error) {
	if len(envFiles) == 0 {
		envFiles = []string{filepath.Join(filepath.Dir(path), ".env")}
	}
	for _, env := range envFiles {
		if _, err := os.Stat(env); err != nil {
			continue
		}
		if err := godotenv.Load(env); err != nil {
			return nil, fmt.Errorf("config env load failed (%s): %w", env, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	f, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Parse decodes data in the format named by ext (".cue", ".yaml", ".yml" or
// ".toml"), validates it and expands environment references.
func Parse(ext string, data []byte) (*File, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".cue":
		if err := decodeCUE(data, &f); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}
	f.expand()
	return &f, nil
}

// decodeCUE unifies the source with the schema before decoding, so unknown
// fields are rejected rather than dropped.
func decodeCUE(data []byte, f *File) error {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return err
	}
	v := ctx.CompileBytes(data, cue.Filename("config.cue"))
	if err := v.Err(); err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return v.Decode(f)
}

func compileSchema(ctx *cue.Context) (cue.Value, error) {
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("appconfig: schema: %w", err)
	}
	return schema, nil
}

// Validate checks f against the embedded CUE schema.
func Validate(f *File) error {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return err
	}
	v := schema.Unify(ctx.Encode(f))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("appconfig: invalid configuration: %w", err)
	}
	return nil
}

func (f *File) expand() {
	for name, cs := range f.ConnectionStrings {
		cs.ConnectionString = os.ExpandEnv(cs.ConnectionString)
		f.ConnectionStrings[name] = cs
	}
	if f.DefaultConnectionFactory != nil {
		for k, v := range f.DefaultConnectionFactory.Args {
			f.DefaultConnectionFactory.Args[k] = os.ExpandEnv(v)
		}
	}
}

// ConnectionString returns the named connection string. A name written as
// "name=Foo" is looked up as "Foo".
func (f *File) ConnectionString(name string) (ConnectionString, bool) {
	if f == nil {
		return ConnectionString{}, false
	}
	cs, ok := f.ConnectionStrings[strings.TrimPrefix(name, "name=")]
	return cs, ok
}

// Context returns the settings for a context type name.
func (f *File) Context(typeName string) (ContextSettings, bool) {
	if f == nil {
		return ContextSettings{}, false
	}
	cs, ok := f.Contexts[typeName]
	return cs, ok
}

// ConnectionNames returns the connection string names in sorted order.
func (f *File) ConnectionNames() []string {
	names := make([]string, 0, len(f.ConnectionStrings))
	for name := range f.ConnectionStrings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
