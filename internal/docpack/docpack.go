// Package docpack describes the on-disk layout of a doc pack and provides
// the small set of file operations every other package shares.
//
// A doc pack is addressed through an explicit Root value that is passed
// through every call. Nothing in bman keeps ambient pack state, so many
// packs can be processed side by side in one process.
package docpack

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Layout paths, relative to the pack root and always slash separated.
const (
	ConfigPath             = "enrich/config.json"
	LockPath               = "enrich/lock.json"
	PlanPath               = "enrich/plan.out.json"
	ReportPath             = "enrich/report.json"
	HistoryPath            = "enrich/history.jsonl"
	ProgressPath           = "enrich/verification_progress.json"
	SemanticsPath          = "enrich/semantics.json"
	TxnsDir                = "enrich/txns"
	ManifestPath           = "binary.lens/manifest.json"
	ScenarioPlanPath       = "scenarios/plan.json"
	SurfacePath            = "inventory/surface.json"
	OverlaysPath           = "inventory/surface.overlays.json"
	ScenarioEvidenceDir    = "inventory/scenarios"
	ScenarioIndexPath      = "inventory/scenarios/index.json"
	VerificationLedgerPath = "inventory/verification_ledger.json"
	CoverageLedgerPath     = "inventory/coverage_ledger.json"
	ManDir                 = "man"
	ManMetaPath            = "man/meta.json"
	ExamplesReportPath     = "man/examples_report.json"
	FixturesDir            = "fixtures"
)

// Root is the explicit doc-pack context. The zero value is not usable;
// construct one with Open.
type Root struct {
	dir string
}

// Open resolves dir to an absolute path and checks that it is a directory.
func Open(dir string) (Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, fmt.Errorf("resolve doc pack %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Root{}, fmt.Errorf("open doc pack %s: %w", abs, err)
	}
	if !info.IsDir() {
		return Root{}, fmt.Errorf("open doc pack %s: not a directory", abs)
	}
	return Root{dir: abs}, nil
}

// Dir returns the absolute pack directory.
func (r Root) Dir() string {
	return r.dir
}

// Path joins a slash-separated relative path onto the root.
// The caller is responsible for validating rel first when it comes from
// user-controlled input.
func (r Root) Path(rel string) string {
	return filepath.Join(r.dir, filepath.FromSlash(rel))
}

// Exists reports whether rel exists (without following a final symlink).
func (r Root) Exists(rel string) bool {
	_, err := os.Lstat(r.Path(rel))
	return err == nil
}

// ReadFile reads rel from the pack. Missing files yield an error matching
// fs.ErrNotExist.
func (r Root) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(r.Path(rel))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// ModTime returns the modification time of rel.
func (r Root) ModTime(rel string) (int64, bool) {
	info, err := os.Stat(r.Path(rel))
	if err != nil {
		return 0, false
	}
	return info.ModTime().UnixNano(), true
}

// IsNotExist reports whether err (possibly wrapped) means a file is absent.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// PathErrorCode categorizes invalid relative paths.
type PathErrorCode string

const (
	// ErrCodeEmptyPath indicates an empty path.
	ErrCodeEmptyPath PathErrorCode = "empty_path"

	// ErrCodeAbsolutePath indicates a path that is not relative to the pack.
	ErrCodeAbsolutePath PathErrorCode = "absolute_path"

	// ErrCodeParentTraversal indicates a path containing a ".." segment.
	ErrCodeParentTraversal PathErrorCode = "parent_traversal"
)

// PathError reports a relative path that cannot be resolved inside a pack.
type PathError struct {
	Code    PathErrorCode
	Path    string
	Message string
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
}

// IsPathError returns true if err is a PathError.
// Uses errors.As to handle wrapped errors.
func IsPathError(err error) bool {
	var pe *PathError
	return errors.As(err, &pe)
}

// CleanRel validates a pack-relative path and returns its cleaned, slash
// separated form. Absolute paths and any ".." segment are rejected even
// when the cleaned result would stay inside the pack.
func CleanRel(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", &PathError{Code: ErrCodeEmptyPath, Path: rel, Message: "path is empty"}
	}
	slashed := filepath.ToSlash(rel)
	if path.IsAbs(slashed) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", &PathError{Code: ErrCodeAbsolutePath, Path: rel, Message: "path must be relative to the doc pack"}
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", &PathError{Code: ErrCodeParentTraversal, Path: rel, Message: "path must not contain '..'"}
		}
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." {
		return "", &PathError{Code: ErrCodeEmptyPath, Path: rel, Message: "path resolves to the pack root"}
	}
	return cleaned, nil
}
