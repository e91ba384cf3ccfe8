// Package staging implements transactional writes into a doc pack.
//
// Apply writes every output into enrich/txns/<id>/staging first. Publish
// then copies the staged tree over the pack one file at a time, backing up
// what it replaces, and restores the backups if any file fails. A failed
// transaction leaves its staging tree in place for inspection.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/bman/internal/docpack"
)

// IDGenerator produces transaction ids.
type IDGenerator interface {
	NewID() (string, error)
}

// UUIDv7 generates time-sortable UUIDv7 transaction ids, so txn
// directories list in creation order.
type UUIDv7 struct{}

// NewID implements IDGenerator.
func (UUIDv7) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate txn id: %w", err)
	}
	return id.String(), nil
}

// Txn is one staged transaction.
type Txn struct {
	ID               string
	StartedAtEpochMs int64

	root docpack.Root
	dir  string

	// beforePublish runs ahead of each destination write. Tests use it to
	// inject failures.
	beforePublish func(rel string) error
}

// Begin creates enrich/txns/<id>/staging. A nil ids uses UUIDv7.
func Begin(root docpack.Root, ids IDGenerator, clock docpack.Clock) (*Txn, error) {
	if ids == nil {
		ids = UUIDv7{}
	}
	id, err := ids.NewID()
	if err != nil {
		return nil, err
	}
	if _, err := docpack.CleanRel(id); err != nil || path.Base(id) != id {
		return nil, fmt.Errorf("invalid txn id %q", id)
	}
	t := &Txn{
		ID:               id,
		StartedAtEpochMs: docpack.NowMillis(clock),
		root:             root,
		dir:              path.Join(docpack.TxnsDir, id),
	}
	if err := os.MkdirAll(root.Path(t.stagingRel("")), 0o755); err != nil {
		return nil, fmt.Errorf("create staging for txn %s: %w", id, err)
	}
	return t, nil
}

// Dir is the pack-relative transaction directory.
func (t *Txn) Dir() string { return t.dir }

func (t *Txn) stagingRel(rel string) string { return path.Join(t.dir, "staging", rel) }
func (t *Txn) backupRel(rel string) string  { return path.Join(t.dir, "backup", rel) }

// WriteBytes stages data for rel.
func (t *Txn) WriteBytes(rel string, data []byte) error {
	clean, err := docpack.CleanRel(rel)
	if err != nil {
		return fmt.Errorf("stage %s: %w", rel, err)
	}
	target := t.root.Path(t.stagingRel(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("stage %s: %w", rel, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("stage %s: %w", rel, err)
	}
	return nil
}

// WriteJSON stages the JSON encoding of v for rel.
func (t *Txn) WriteJSON(rel string, v any) error {
	data, err := docpack.MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	return t.WriteBytes(rel, data)
}

// Staged lists the staged pack-relative paths in sorted order.
func (t *Txn) Staged() ([]string, error) {
	base := t.root.Path(t.stagingRel(""))
	var files []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list staging for txn %s: %w", t.ID, err)
	}
	slices.Sort(files)
	return files, nil
}

// ReadFile reads rel as the pack will look after Publish: the staged copy
// when there is one, the pack file otherwise.
func (t *Txn) ReadFile(rel string) ([]byte, error) {
	clean, err := docpack.CleanRel(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(t.root.Path(t.stagingRel(clean)))
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read staged %s: %w", rel, err)
	}
	return t.root.ReadFile(clean)
}

// ModTime is the staged view counterpart of docpack.Root.ModTime.
func (t *Txn) ModTime(rel string) (int64, bool) {
	clean, err := docpack.CleanRel(rel)
	if err != nil {
		return 0, false
	}
	if info, err := os.Stat(t.root.Path(t.stagingRel(clean))); err == nil {
		return info.ModTime().UnixNano(), true
	}
	return t.root.ModTime(clean)
}

type published struct {
	rel       string
	hadBackup bool
}

// Publish moves every staged file into the pack and returns the published
// paths. On failure the files published so far are restored from backup
// or removed, and the staging tree is kept.
func (t *Txn) Publish() ([]string, error) {
	files, err := t.Staged()
	if err != nil {
		return nil, err
	}
	var done []published
	for _, rel := range files {
		if t.beforePublish != nil {
			if err := t.beforePublish(rel); err != nil {
				return nil, t.rollback(done, fmt.Errorf("publish %s: %w", rel, err))
			}
		}
		dest := t.root.Path(rel)
		info, err := os.Lstat(dest)
		switch {
		case err == nil && info.IsDir():
			return nil, t.rollback(done, fmt.Errorf("publish %s: destination is a directory", rel))
		case err == nil:
			if err := copyFile(dest, t.root.Path(t.backupRel(rel))); err != nil {
				return nil, t.rollback(done, fmt.Errorf("back up %s: %w", rel, err))
			}
			done = append(done, published{rel: rel, hadBackup: true})
		case errors.Is(err, fs.ErrNotExist):
			done = append(done, published{rel: rel})
		default:
			return nil, t.rollback(done, fmt.Errorf("publish %s: %w", rel, err))
		}
		if err := replace(t.root.Path(t.stagingRel(rel)), dest); err != nil {
			return nil, t.rollback(done, fmt.Errorf("publish %s: %w", rel, err))
		}
	}
	return files, nil
}

func (t *Txn) rollback(done []published, cause error) error {
	errs := []error{cause}
	for i := len(done) - 1; i >= 0; i-- {
		p := done[i]
		dest := t.root.Path(p.rel)
		if p.hadBackup {
			if err := replace(t.root.Path(t.backupRel(p.rel)), dest); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", p.rel, err))
			}
			continue
		}
		if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p.rel, err))
		}
	}
	return errors.Join(errs...)
}

// Cleanup removes the transaction directory, and enrich/txns when it is
// left empty.
func (t *Txn) Cleanup() error {
	if err := os.RemoveAll(t.root.Path(t.dir)); err != nil {
		return fmt.Errorf("remove txn %s: %w", t.ID, err)
	}
	txns := t.root.Path(docpack.TxnsDir)
	entries, err := os.ReadDir(txns)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", docpack.TxnsDir, err)
	}
	if len(entries) == 0 {
		if err := os.Remove(txns); err != nil {
			return fmt.Errorf("remove %s: %w", docpack.TxnsDir, err)
		}
	}
	return nil
}

// replace copies src to .<name>.tmp beside dest and renames it over dest.
func replace(src, dest string) error {
	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp")
	if err := copyFile(src, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
