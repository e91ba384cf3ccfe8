package scenarios

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/bman/internal/docpack"
)

// Materialize populates work with a copy of seedDir (when set) followed by
// the seed entries, in order.
func Materialize(work, seedDir string, entries []SeedEntry) error {
	if seedDir != "" {
		if err := copyTree(seedDir, work); err != nil {
			return fmt.Errorf("copy seed_dir: %w", err)
		}
	}
	for _, e := range entries {
		rel, err := docpack.CleanRel(e.Path)
		if err != nil {
			return fmt.Errorf("seed entry: %w", err)
		}
		target := filepath.Join(work, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("seed entry %s: %w", rel, err)
		}
		switch e.Kind {
		case "dir":
			if err := os.MkdirAll(target, fileMode(e.Mode, 0o755)); err != nil {
				return fmt.Errorf("seed dir %s: %w", rel, err)
			}
		case "symlink":
			if e.Target == "" {
				return fmt.Errorf("seed symlink %s: target is empty", rel)
			}
			if err := os.Symlink(e.Target, target); err != nil {
				return fmt.Errorf("seed symlink %s: %w", rel, err)
			}
		default:
			if err := os.WriteFile(target, []byte(e.Contents), fileMode(e.Mode, 0o644)); err != nil {
				return fmt.Errorf("seed file %s: %w", rel, err)
			}
		}
	}
	return nil
}

func fileMode(mode int, fallback os.FileMode) os.FileMode {
	if mode <= 0 {
		return fallback
	}
	return os.FileMode(mode) & os.ModePerm
}

// copyTree copies regular files, directories and symlinks from src to dst.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(p, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
