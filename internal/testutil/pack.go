package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/roach88/bman/internal/config"
	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/scenarios"
)

// Pack builds a doc pack fixture in its own temporary directory, so tests
// can run many packs side by side.
type Pack struct {
	t    testing.TB
	Root docpack.Root
}

// NewPack creates an empty pack under t.TempDir().
func NewPack(t testing.TB) *Pack {
	t.Helper()
	root, err := docpack.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	return &Pack{t: t, Root: root}
}

// Minimal is a pack with a manifest for binaryName, the default config and
// a scenario plan holding one help scenario.
func Minimal(t testing.TB, binaryName string) *Pack {
	t.Helper()
	zero := 0
	return NewPack(t).
		Manifest(binaryName, "/usr/bin/"+binaryName).
		Config(config.Default(binaryName)).
		ScenarioPlan(&scenarios.Plan{
			SchemaVersion: 1,
			Scenarios: []scenarios.Spec{{
				ID:     "help",
				Kind:   scenarios.KindHelp,
				Argv:   []string{"--help"},
				Expect: scenarios.Expect{ExitCode: &zero},
			}},
		})
}

// File writes content to rel.
func (p *Pack) File(rel, content string) *Pack {
	p.t.Helper()
	if err := p.Root.WriteFile(rel, []byte(content)); err != nil {
		p.t.Fatalf("write %s: %v", rel, err)
	}
	return p
}

// JSON writes v to rel the way bman writes JSON.
func (p *Pack) JSON(rel string, v any) *Pack {
	p.t.Helper()
	if err := p.Root.WriteJSON(rel, v); err != nil {
		p.t.Fatalf("write %s: %v", rel, err)
	}
	return p
}

// Manifest writes binary.lens/manifest.json.
func (p *Pack) Manifest(binaryName, binaryPath string) *Pack {
	return p.JSON(docpack.ManifestPath, docpack.Manifest{BinaryName: binaryName, BinaryPath: binaryPath})
}

// Config writes enrich/config.json.
func (p *Pack) Config(cfg config.Config) *Pack {
	return p.JSON(docpack.ConfigPath, cfg)
}

// ScenarioPlan writes scenarios/plan.json.
func (p *Pack) ScenarioPlan(plan *scenarios.Plan) *Pack {
	return p.JSON(docpack.ScenarioPlanPath, plan)
}

// Remove deletes rel.
func (p *Pack) Remove(rel string) *Pack {
	p.t.Helper()
	if err := os.RemoveAll(p.Root.Path(rel)); err != nil {
		p.t.Fatalf("remove %s: %v", rel, err)
	}
	return p
}

// Touch sets the modification time of rel.
func (p *Pack) Touch(rel string, at time.Time) *Pack {
	p.t.Helper()
	if err := os.Chtimes(p.Root.Path(rel), at, at); err != nil {
		p.t.Fatalf("touch %s: %v", rel, err)
	}
	return p
}

// Read returns the content of rel.
func (p *Pack) Read(rel string) string {
	p.t.Helper()
	data, err := p.Root.ReadFile(rel)
	if err != nil {
		p.t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

// ReadJSON decodes rel into v.
func (p *Pack) ReadJSON(rel string, v any) {
	p.t.Helper()
	if err := p.Root.ReadJSON(rel, v); err != nil {
		p.t.Fatalf("read %s: %v", rel, err)
	}
}

// Exists reports whether rel exists.
func (p *Pack) Exists(rel string) bool {
	return p.Root.Exists(rel)
}

// Stat returns the size and modification time of rel.
func (p *Pack) Stat(rel string) (int64, time.Time) {
	p.t.Helper()
	info, err := os.Stat(p.Root.Path(rel))
	if err != nil {
		p.t.Fatalf("stat %s: %v", rel, err)
	}
	return info.Size(), info.ModTime()
}
