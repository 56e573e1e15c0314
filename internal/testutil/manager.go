package testutil

import (
	"testing"

	"github.com/roach88/codefirst/internal/dbconfig"
	"github.com/roach88/codefirst/internal/provider/sqlite"
)

// NewManager returns a configuration manager isolated from the global one.
// Databases named without a path are created in dir. configure runs before
// the configuration is activated.
func NewManager(t *testing.T, dir string, configure func(*dbconfig.Configuration)) *dbconfig.Manager {
	t.Helper()
	cfg := dbconfig.New()
	if err := cfg.SetDefaultConnectionFactory(sqlite.ConnectionFactory{Dir: dir}); err != nil {
		t.Fatalf("set connection factory: %v", err)
	}
	if configure != nil {
		configure(cfg)
	}
	m := dbconfig.NewManager(nil)
	if err := m.SetConfiguration(cfg); err != nil {
		t.Fatalf("set configuration: %v", err)
	}
	return m
}
