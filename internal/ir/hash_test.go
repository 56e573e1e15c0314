package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns,omitempty"`
	Keys    []string `json:"keys"`
}

func TestModelHashDeterminism(t *testing.T) {
	s := snapshot{Name: "Blogs", Columns: []string{"ID", "Title"}}

	h1, err := ModelHash(s)
	require.NoError(t, err)
	h2, err := ModelHash(s)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestModelHashChangesWithInput(t *testing.T) {
	h1 := MustModelHash(snapshot{Name: "Blogs"})
	h2 := MustModelHash(snapshot{Name: "Posts"})
	h3 := MustModelHash(snapshot{Name: "Blogs", Columns: []string{"ID"}})

	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestModelHashNilAndAbsentAgree(t *testing.T) {
	// Keys is nil (marshals to null) in one and absent from the map in the
	// other.
	h1 := MustModelHash(snapshot{Name: "Blogs"})
	h2 := MustModelHash(map[string]any{"name": "Blogs"})
	assert.Equal(t, h1, h2)
}

func TestHashDomainSeparation(t *testing.T) {
	v := map[string]any{"name": "Blogs"}
	h1, err := Hash(DomainModel, v)
	require.NoError(t, err)
	h2, err := Hash(DomainContextKey, v)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestContextKey(t *testing.T) {
	k1 := ContextKey("BlogContext", "sqlite3", "Blogging")
	k2 := ContextKey("BlogContext", "sqlite3", "Blogging")
	k3 := ContextKey("BlogContext", "sqlite3", "Other")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 16)
}
