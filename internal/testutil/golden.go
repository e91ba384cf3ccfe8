package testutil

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGolden compares data against testdata/golden/<name>.golden in the
// calling package.
//
// To regenerate golden files, run:
//
//	go test ./internal/<pkg> -update
func AssertGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// AssertGoldenJSON marshals v as indented JSON with a trailing newline,
// the same shape bman writes to disk, and compares it like AssertGolden.
func AssertGoldenJSON(t *testing.T, name string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal golden %s: %v", name, err)
	}
	AssertGolden(t, name, append(data, '\n'))
}
