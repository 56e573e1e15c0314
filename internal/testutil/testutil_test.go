package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codefirst/internal/dbconfig"
	"github.com/roach88/codefirst/internal/provider/sqlite"
)

func TestNewManagerActivatesConfiguration(t *testing.T) {
	dir := t.TempDir()
	configured := false
	m := NewManager(t, dir, func(cfg *dbconfig.Configuration) {
		configured = true
		assert.False(t, cfg.IsLocked())
	})
	require.True(t, configured)

	cfg, err := m.Configuration(context.Background())
	require.NoError(t, err)
	conn, err := cfg.ConnectionFactory().CreateConnection("shop")
	require.NoError(t, err)
	assert.Equal(t, sqlite.InvariantName, conn.ProviderName)
	assert.Equal(t, filepath.Join(dir, "shop.db"), conn.DataSource)
}

func TestNewManagerIsolatedFromGlobal(t *testing.T) {
	a := NewManager(t, t.TempDir(), nil)
	b := NewManager(t, t.TempDir(), nil)
	assert.NotSame(t, a, b)
	assert.NotSame(t, dbconfig.Global(), a)
}

func TestAssertGoldenCanonical(t *testing.T) {
	// Keys are sorted and whitespace dropped whatever the input order.
	AssertGoldenCanonical(t, "canonical", map[string]any{
		"table":    "Products",
		"columns":  []string{"ID", "Name"},
		"identity": true,
	})

	data, err := os.ReadFile(filepath.Join("testdata", "golden", "canonical.golden"))
	require.NoError(t, err)
	assert.Equal(t, `{"columns":["ID","Name"],"identity":true,"table":"Products"}`+"\n", string(data))
}
