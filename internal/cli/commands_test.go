package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codefirst/internal/dbconfig"
	"github.com/roach88/codefirst/internal/dbcontext"
	"github.com/roach88/codefirst/internal/store"
	"github.com/roach88/codefirst/internal/testutil"
)

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codefirst.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestModelSummary(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(newTestRegistry(t), "--dir", dir, "model", "ShopContext")
	require.NoError(t, err)

	assert.Contains(t, out, "ShopContext (ShopContext)")
	assert.Contains(t, out, "Product -> Products (key: ID)")
	assert.Contains(t, out, "model hash:")
	// Inspecting a model never creates its database.
	assert.NoFileExists(t, filepath.Join(dir, "ShopContext.db"))
}

func TestModelSummaryJSON(t *testing.T) {
	out, err := execute(newTestRegistry(t), "--dir", t.TempDir(), "--format", "json", "model", "ShopContext", "--db", "shop")
	require.NoError(t, err)

	s := decode[ModelSummary](t, out)
	assert.Equal(t, "ShopContext", s.Context)
	assert.Equal(t, "shop", s.Database)
	assert.Len(t, s.ContextKey, 16)
	require.Len(t, s.Entities, 1)

	product := s.Entities[0]
	assert.Equal(t, "Product", product.Name)
	assert.Equal(t, "Products", product.Table)
	assert.Equal(t, []string{"ID"}, product.Key)

	columns := map[string]ColumnSummary{}
	for _, c := range product.Columns {
		columns[c.Name] = c
	}
	require.Contains(t, columns, "ID")
	require.Contains(t, columns, "Name")
	assert.Equal(t, "identity", columns["ID"].Generated)
	assert.False(t, columns["Name"].Nullable)
}

func TestSnapshotHashMatchesModelHash(t *testing.T) {
	reg := newTestRegistry(t)
	dir := t.TempDir()

	snapshot, err := execute(reg, "--dir", dir, "model", "ShopContext", "--snapshot")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "shop.json")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))

	fromContext, err := execute(reg, "--dir", dir, "hash", "ShopContext")
	require.NoError(t, err)
	fromFile, err := execute(reg, "hash", "--snapshot", path)
	require.NoError(t, err)

	assert.Len(t, strings.TrimSpace(fromContext), 64)
	assert.Equal(t, fromContext, fromFile)
}

func TestUnknownContext(t *testing.T) {
	out, err := execute(newTestRegistry(t), "--dir", t.TempDir(), "model", "Warehouse")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
	assert.Contains(t, out, "ShopContext")
}

func TestContextArgumentRequired(t *testing.T) {
	for _, name := range []string{"model", "hash", "history"} {
		_, err := execute(newTestRegistry(t), name)
		require.Error(t, err, name)
		assert.Equal(t, ExitCommandError, GetExitCode(err), name)
	}
}

func TestInitCreatesDatabaseAndHistory(t *testing.T) {
	reg := newTestRegistry(t)
	dir := t.TempDir()

	out, err := execute(reg, "--dir", dir, "init", "ShopContext", "--db", "shop")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ ShopContext")
	assert.FileExists(t, filepath.Join(dir, "shop.db"))

	hash, err := execute(reg, "--dir", dir, "hash", "ShopContext", "--db", "shop")
	require.NoError(t, err)

	out, err = execute(reg, "--dir", dir, "--format", "json", "history", "ShopContext", "--db", "shop")
	require.NoError(t, err)
	history := decode[HistoryResult](t, out)
	require.Len(t, history.Migrations, 1)
	assert.Equal(t, strings.TrimSpace(hash), history.Migrations[0].ModelHash)

	out, err = execute(reg, "--format", "json", "history", "--file", filepath.Join(dir, "shop.db"))
	require.NoError(t, err)
	raw := decode[HistoryResult](t, out)
	assert.Equal(t, history.Migrations, raw.Migrations)

	// A second run finds the database compatible and leaves it alone.
	out, err = execute(reg, "--dir", dir, "--format", "json", "init", "ShopContext", "--db", "shop")
	require.NoError(t, err)
	result := decode[InitResult](t, out)
	assert.True(t, result.Exists)
	assert.True(t, result.Compatible)
}

func TestHistoryOfMissingDatabase(t *testing.T) {
	reg := newTestRegistry(t)
	dir := t.TempDir()

	out, err := execute(reg, "--dir", dir, "history", "ShopContext")
	require.NoError(t, err)
	assert.Contains(t, out, "no migrations applied")
	assert.NoFileExists(t, filepath.Join(dir, "ShopContext.db"))

	missing := filepath.Join(dir, "missing.db")
	out, err = execute(reg, "history", "--file", missing)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
	assert.NoFileExists(t, missing)
}

func TestInitFollowsConfigurationFile(t *testing.T) {
	dir := t.TempDir()
	named := filepath.Join(dir, "named.db")
	path := writeConfig(t, `
connection_strings:
  Shop:
    provider_name: sqlite3
    connection_string: `+named+`
contexts:
  ShopContext:
    database: Shop
`)

	out, err := execute(newTestRegistry(t), "--config", path, "--format", "json", "init", "ShopContext")
	require.NoError(t, err)
	result := decode[InitResult](t, out)
	assert.Equal(t, "Shop", result.Database)
	assert.Equal(t, named, result.DataSource)
	assert.FileExists(t, named)
}

func TestInitWithInitializationDisabled(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
contexts:
  ShopContext:
    disable_initialization: true
`)

	out, err := execute(newTestRegistry(t), "--config", path, "--dir", dir, "init", "ShopContext")
	require.NoError(t, err)
	assert.Contains(t, out, "was not created")
	assert.NoFileExists(t, filepath.Join(dir, "ShopContext.db"))
}

func TestConfigWithoutFile(t *testing.T) {
	out, err := execute(newTestRegistry(t), "config")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration file: (none)")
	assert.Contains(t, out, "registered contexts: ShopContext")
	assert.Contains(t, out, "command-log")
	assert.Contains(t, out, "✓ No problems")
}

func TestConfigReportsProblems(t *testing.T) {
	path := writeConfig(t, `
connection_strings:
  Shop:
    provider_name: sqlite3
    connection_string: shop.db
contexts:
  ShopContext:
    database: Shop
    initializer: "null"
interceptors:
  - command-log
  - audit
`)

	out, err := execute(newTestRegistry(t), "--config", path, "--format", "json", "config")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	report := decode[ConfigReport](t, out)
	assert.Equal(t, path, report.File)
	assert.Equal(t, []ConnectionEntry{{Name: "Shop", Provider: "sqlite3"}}, report.Connections)
	assert.Equal(t, []ContextEntry{{Name: "ShopContext", Database: "Shop", Initializer: "null"}}, report.Contexts)
	require.Len(t, report.Problems, 1)
	assert.Contains(t, report.Problems[0], `unknown interceptor "audit"`)
}

func TestConfigFileNotFound(t *testing.T) {
	out, err := execute(newTestRegistry(t), "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}

func TestModelStoreListing(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "models.db")
	st, err := store.Open(storePath)
	require.NoError(t, err)

	m := testutil.NewManager(t, t.TempDir(), func(cfg *dbconfig.Configuration) {
		require.NoError(t, cfg.SetModelStore(st))
	})
	t.Cleanup(func() { dbcontext.Forget(m) })

	reg := newTestRegistry(t)
	reg.Manager = m
	out, err := execute(reg, "--format", "json", "hash", "ShopContext")
	require.NoError(t, err)
	built := decode[HashResult](t, out)
	require.NoError(t, st.Close())

	offline := newTestRegistry(t)
	out, err = execute(offline, "--format", "json", "model", "--store", storePath)
	require.NoError(t, err)
	listed := decode[StoredModels](t, out)
	require.Len(t, listed.Models, 1)
	assert.Equal(t, built.ContextKey, listed.Models[0].ContextKey)
	assert.Equal(t, built.ModelHash, listed.Models[0].ModelHash)

	snapshot, err := execute(offline, "model", "--store", storePath, "--key", built.ContextKey)
	require.NoError(t, err)
	snapshotPath := filepath.Join(t.TempDir(), "stored.json")
	require.NoError(t, os.WriteFile(snapshotPath, []byte(snapshot), 0o644))

	out, err = execute(offline, "hash", "--snapshot", snapshotPath)
	require.NoError(t, err)
	assert.Equal(t, built.ModelHash, strings.TrimSpace(out))

	out, err = execute(offline, "model", "--store", storePath, "--key", "0000000000000000")
	require.Error(t, err)
	assert.Contains(t, out, "Error [E005]")
}

func TestInitReportsDatabaseErrors(t *testing.T) {
	dir := t.TempDir()
	// A directory where the database file should be.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "shop.db"), 0o755))

	_, err := execute(newTestRegistry(t), "--dir", dir, "init", "ShopContext", "--db", "shop")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCommandsHonorContext(t *testing.T) {
	reg := newTestRegistry(t)
	cmd := NewRootCommand(reg)
	cmd.SetOut(&strings.Builder{})
	cmd.SetArgs([]string{"--dir", t.TempDir(), "hash", "ShopContext"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
}
