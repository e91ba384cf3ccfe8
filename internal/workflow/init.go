package workflow

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/roach88/bman/internal/config"
	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/scenarios"
)

// Init seeds a pack for binary: the pack manifest, the default config and a
// scenario plan holding one help scenario. Files that already exist are
// left alone; when all of them exist Init returns ErrAlreadyInitialized.
// binary is either a path or a name looked up on PATH.
func (o *Orchestrator) Init(ctx context.Context, binary string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, fmt.Errorf("init: binary is empty")
	}
	name := filepath.Base(binary)
	path := ""
	if strings.ContainsRune(binary, filepath.Separator) {
		abs, err := filepath.Abs(binary)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", binary, err)
		}
		path = abs
	} else if p, err := exec.LookPath(binary); err == nil {
		path = p
	}

	files := []struct {
		rel   string
		value any
	}{
		{docpack.ManifestPath, docpack.Manifest{BinaryName: name, BinaryPath: path}},
		{docpack.ConfigPath, config.Default(name)},
		{docpack.ScenarioPlanPath, scenarios.StubPlan()},
	}
	var written []string
	for _, f := range files {
		if o.root.Exists(f.rel) {
			o.logger.Debug("init keeps existing file", "path", f.rel)
			continue
		}
		if err := o.root.WriteJSON(f.rel, f.value); err != nil {
			return written, fmt.Errorf("write %s: %w", f.rel, err)
		}
		written = append(written, f.rel)
	}
	if len(written) == 0 {
		return nil, ErrAlreadyInitialized
	}
	o.logger.Info("pack initialized", "doc_pack", o.root.Dir(), "binary", name, "written", written)
	return written, nil
}
