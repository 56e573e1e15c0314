// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/codefirst/internal/ir"
)

// AssertGolden compares data with testdata/golden/{name}.golden.
//
// To regenerate golden files, run the package tests with -update.
func AssertGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// AssertGoldenCanonical compares the canonical JSON form of v, the form
// model hashes are computed over, with a golden file.
func AssertGoldenCanonical(t *testing.T, name string, v any) {
	t.Helper()
	val, err := ir.FromGo(v)
	if err != nil {
		t.Fatalf("canonical form of %s: %v", name, err)
	}
	data, err := ir.MarshalCanonical(val)
	if err != nil {
		t.Fatalf("canonical form of %s: %v", name, err)
	}
	AssertGolden(t, name, append(data, '\n'))
}
