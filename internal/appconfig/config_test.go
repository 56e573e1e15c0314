package appconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AllFormatsAgree(t *testing.T) {
	t.Setenv("CODEFIRST_DATA", "/srv/data")

	for _, name := range []string{"app.cue", "app.yaml", "app.toml"} {
		t.Run(name, func(t *testing.T) {
			f, err := Load(filepath.Join("testdata", name), filepath.Join("testdata", "missing.env"))
			require.NoError(t, err)

			cs, ok := f.ConnectionString("Blogging")
			require.True(t, ok)
			assert.Equal(t, "sqlite3", cs.ProviderName)
			assert.Equal(t, "/srv/data/blogging.db", cs.ConnectionString)

			require.NotNil(t, f.DefaultConnectionFactory)
			assert.Equal(t, "sqlite", f.DefaultConnectionFactory.Type)
			assert.Equal(t, "/srv/data", f.DefaultConnectionFactory.Args["dir"])

			assert.Equal(t, []ProviderRef{{InvariantName: "sqlite3", Type: "sqlite"}}, f.Providers)
			assert.Equal(t, []string{"command-log"}, f.Interceptors)

			ctx, ok := f.Context("BlogContext")
			require.True(t, ok)
			assert.Equal(t, "Blogging", ctx.Database)
			assert.Equal(t, InitializerDropCreateIfModelChanges, ctx.Initializer)
			assert.False(t, ctx.DisableInitialization)
		})
	}
}

func TestLoad_EnvFileNextToConfig(t *testing.T) {
	require.NoError(t, os.Unsetenv("CODEFIRST_DATA"))
	t.Cleanup(func() { os.Unsetenv("CODEFIRST_DATA") })

	f, err := Load(filepath.Join("testdata", "app.yaml"))
	require.NoError(t, err)

	cs, _ := f.ConnectionString("name=Blogging")
	assert.Equal(t, "/var/lib/codefirst/blogging.db", cs.ConnectionString)
}

func TestLoad_RejectsInvalidInitializer(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "invalid.yaml"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_RejectsUnknownCUEField(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "unknown.cue"), "")
	assert.Error(t, err)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse(".ini", []byte("x=1"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(".yaml", []byte(""))
	require.NoError(t, err)
	_, ok := f.ConnectionString("Blogging")
	assert.False(t, ok)
	assert.Empty(t, f.ConnectionNames())
}

func TestNilFileLookups(t *testing.T) {
	var f *File
	_, ok := f.ConnectionString("x")
	assert.False(t, ok)
	_, ok = f.Context("x")
	assert.False(t, ok)
}
