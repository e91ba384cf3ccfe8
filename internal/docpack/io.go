package docpack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MarshalJSON renders v as indented JSON with a trailing newline.
// Map keys are emitted sorted, so equal values always produce equal bytes.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadJSON reads rel and decodes it into v.
func (r Root) ReadJSON(rel string, v any) error {
	data, err := r.ReadFile(rel)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", rel, err)
	}
	return nil
}

// WriteJSON atomically replaces rel with the JSON encoding of v.
func (r Root) WriteJSON(rel string, v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	return r.WriteFile(rel, data)
}

// WriteFile atomically replaces rel with data, creating parent directories.
func (r Root) WriteFile(rel string, data []byte) error {
	clean, err := CleanRel(rel)
	if err != nil {
		return err
	}
	return WriteFileAtomic(r.Path(clean), data, 0o644)
}

// AppendLine appends one newline-terminated record to rel.
func (r Root) AppendLine(rel string, line []byte) error {
	clean, err := CleanRel(rel)
	if err != nil {
		return err
	}
	target := r.Path(clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	line = bytes.TrimRight(line, "\n")
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", rel, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file beside target and renames it
// into place, so readers observe either the old or the new content.
func WriteFileAtomic(target string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", target, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file for %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", target, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file for %s: %w", target, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", target, err)
	}

	success = true
	return nil
}
