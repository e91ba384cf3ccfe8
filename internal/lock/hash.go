package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"slices"
	"sort"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/ir"
)

// volatileManifestFields are rewritten on every export without any change
// in substance.
var volatileManifestFields = []string{
	"created_at",
	"created_at_epoch_seconds",
	"created_at_source",
	"coverage_summary",
}

// HashPaths computes the combined content digest of rels under root.
//
// Paths are visited in sorted order and directories are walked with their
// children sorted by name, so the digest never depends on directory
// enumeration order. Each path contributes one of:
//
//	missing:<rel>
//	symlink:<rel> <target>
//	dir:<rel>     (followed by every child)
//	file:<rel>    <bytes>
//
// The pack manifest is reduced to its stable subset before hashing.
func HashPaths(root docpack.Root, rels []string) (string, error) {
	cleaned, err := NormalizeInputs(rels)
	if err != nil {
		return "", err
	}
	h := ir.NewRecordHasher(ir.DomainInputs)
	for _, rel := range cleaned {
		if err := hashPath(h, root, rel); err != nil {
			return "", err
		}
	}
	return h.Sum(), nil
}

// NormalizeInputs validates, cleans, sorts and deduplicates rels.
func NormalizeInputs(rels []string) ([]string, error) {
	out := make([]string, 0, len(rels))
	for _, rel := range rels {
		clean, err := docpack.CleanRel(rel)
		if err != nil {
			return nil, err
		}
		out = append(out, clean)
	}
	sort.Strings(out)
	return slices.Compact(out), nil
}

func hashPath(h *ir.RecordHasher, root docpack.Root, rel string) error {
	full := root.Path(rel)
	info, err := os.Lstat(full)
	if err != nil {
		if os.IsNotExist(err) {
			h.WriteString("missing:", rel)
			return nil
		}
		return fmt.Errorf("stat %s: %w", rel, err)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(full)
		if err != nil {
			return fmt.Errorf("readlink %s: %w", rel, err)
		}
		h.WriteString("symlink:", rel)
		h.WriteString(target)
	case info.IsDir():
		h.WriteString("dir:", rel)
		entries, err := os.ReadDir(full)
		if err != nil {
			return fmt.Errorf("read directory %s: %w", rel, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			if err := hashPath(h, root, path.Join(rel, name)); err != nil {
				return err
			}
		}
	default:
		data, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		if rel == docpack.ManifestPath {
			if stable, ok := stableManifest(data); ok {
				h.WriteString("file:", rel, ":stable_manifest:")
				h.Write(stable)
				return nil
			}
		}
		h.WriteString("file:", rel)
		h.Write(data)
	}
	return nil
}

// stableManifest reduces the pack manifest to the fields that identify its
// content: export_config_digest alone when present, otherwise the whole
// object minus the volatile timestamp and summary fields. Returns false
// when data is not a JSON object, in which case the raw bytes are hashed.
func stableManifest(data []byte) ([]byte, bool) {
	value, err := ir.DecodeJSON(data)
	if err != nil {
		return nil, false
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	if digest, ok := obj["export_config_digest"]; ok && digest != nil {
		obj = map[string]any{"export_config_digest": digest}
	} else {
		for _, field := range volatileManifestFields {
			delete(obj, field)
		}
	}
	out, err := ir.MarshalCanonical(obj)
	if err != nil {
		// Floats in a manifest cannot be canonicalized; fall back to a
		// plain encoding of the same reduced object.
		out, err = json.Marshal(obj)
		if err != nil {
			return nil, false
		}
	}
	return out, true
}
