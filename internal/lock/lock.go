// Package lock builds and checks the content-addressed snapshot of a doc
// pack's inputs.
//
// A Lock records which inputs were resolved and the combined digest over
// them. It is written whole by validate and never patched. Staleness is
// always judged by recomputing the digest over the recorded inputs.
package lock

import (
	"errors"
	"fmt"

	"github.com/roach88/bman/internal/docpack"
)

// SchemaVersion is the current lock file format.
const SchemaVersion = 1

// DefaultOptionalInputs are hashed when present. Their absence is not an
// error; one created later joins the lock at the next validate.
var DefaultOptionalInputs = []string{
	docpack.SemanticsPath,
	docpack.OverlaysPath,
	docpack.ManifestPath,
	docpack.FixturesDir,
}

// Lock is the snapshot of resolved inputs.
type Lock struct {
	SchemaVersion      int      `json:"schema_version"`
	GeneratedAtEpochMs int64    `json:"generated_at_epoch_ms"`
	BinaryName         string   `json:"binary_name,omitempty"`
	ConfigPath         string   `json:"config_path"`
	Inputs             []string `json:"inputs"`
	SelectedInputs     []string `json:"selected_inputs"`
	InputsHash         string   `json:"inputs_hash"`
}

// Status is the freshness of a lock against the pack on disk.
type Status struct {
	Present     bool   `json:"present"`
	Stale       bool   `json:"stale"`
	InputsHash  string `json:"inputs_hash,omitempty"`
	CurrentHash string `json:"current_hash,omitempty"`
}

// BuildInput describes what a lock covers.
type BuildInput struct {
	// ConfigPath is the pack config, always a required input.
	ConfigPath string

	// Required inputs must exist; a missing one fails the build.
	Required []string

	// Optional inputs are included only when present.
	Optional []string

	BinaryName string
}

// MissingInputError reports a required lock input that does not exist.
type MissingInputError struct {
	Path string
}

// Error implements the error interface.
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("required input missing: %s", e.Path)
}

// IsMissingInput returns true if err is a MissingInputError.
// Uses errors.As to handle wrapped errors.
func IsMissingInput(err error) bool {
	var mie *MissingInputError
	return errors.As(err, &mie)
}

// Build resolves the input set and hashes it.
func Build(root docpack.Root, in BuildInput, clock docpack.Clock) (Lock, error) {
	configPath, err := docpack.CleanRel(in.ConfigPath)
	if err != nil {
		return Lock{}, fmt.Errorf("config path: %w", err)
	}

	required, err := NormalizeInputs(append([]string{configPath}, in.Required...))
	if err != nil {
		return Lock{}, fmt.Errorf("required inputs: %w", err)
	}
	for _, rel := range required {
		if !root.Exists(rel) {
			return Lock{}, &MissingInputError{Path: rel}
		}
	}

	optional, err := NormalizeInputs(in.Optional)
	if err != nil {
		return Lock{}, fmt.Errorf("optional inputs: %w", err)
	}
	inputs := append([]string{}, required...)
	for _, rel := range optional {
		if root.Exists(rel) {
			inputs = append(inputs, rel)
		}
	}
	inputs, err = NormalizeInputs(inputs)
	if err != nil {
		return Lock{}, err
	}

	digest, err := HashPaths(root, inputs)
	if err != nil {
		return Lock{}, fmt.Errorf("hash inputs: %w", err)
	}

	return Lock{
		SchemaVersion:      SchemaVersion,
		GeneratedAtEpochMs: docpack.NowMillis(clock),
		BinaryName:         in.BinaryName,
		ConfigPath:         configPath,
		Inputs:             inputs,
		SelectedInputs:     required,
		InputsHash:         digest,
	}, nil
}

// CheckStatus recomputes the digest over the lock's recorded inputs.
// A nil lock reports not present and not stale.
func CheckStatus(root docpack.Root, l *Lock) (Status, error) {
	if l == nil {
		return Status{}, nil
	}
	current, err := HashPaths(root, l.Inputs)
	if err != nil {
		return Status{}, fmt.Errorf("recompute lock hash: %w", err)
	}
	return Status{
		Present:     true,
		Stale:       current != l.InputsHash,
		InputsHash:  l.InputsHash,
		CurrentHash: current,
	}, nil
}

// Load reads enrich/lock.json. A missing file yields an error for which
// docpack.IsNotExist is true.
func Load(root docpack.Root) (*Lock, error) {
	var l Lock
	if err := root.ReadJSON(docpack.LockPath, &l); err != nil {
		return nil, err
	}
	if l.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("parse %s: unsupported schema_version %d", docpack.LockPath, l.SchemaVersion)
	}
	return &l, nil
}

// LoadStatus loads the lock, if any, and checks it. A missing lock is not
// an error.
func LoadStatus(root docpack.Root) (*Lock, Status, error) {
	l, err := Load(root)
	if err != nil {
		if docpack.IsNotExist(err) {
			return nil, Status{}, nil
		}
		return nil, Status{}, err
	}
	st, err := CheckStatus(root, l)
	if err != nil {
		return nil, Status{}, err
	}
	return l, st, nil
}

// Write replaces enrich/lock.json.
func Write(root docpack.Root, l Lock) error {
	return root.WriteJSON(docpack.LockPath, l)
}
