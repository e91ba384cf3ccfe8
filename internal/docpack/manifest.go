package docpack

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Manifest is the subset of binary.lens/manifest.json bman reads. The file
// is produced by the pack exporter and carries more fields than these.
type Manifest struct {
	BinaryName         string `json:"binary_name"`
	BinaryPath         string `json:"binary_path,omitempty"`
	ExportConfigDigest string `json:"export_config_digest,omitempty"`
}

// LoadManifest reads the pack manifest. A missing file is reported through
// IsNotExist.
func (r Root) LoadManifest() (*Manifest, error) {
	data, err := r.ReadFile(ManifestPath)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestPath, err)
	}
	m.BinaryName = strings.TrimSpace(m.BinaryName)
	if m.BinaryName == "" {
		return nil, fmt.Errorf("parse %s: binary_name is empty", ManifestPath)
	}
	return &m, nil
}

// ManPagePath is man/<binary>.1.
func ManPagePath(binaryName string) string {
	return ManDir + "/" + binaryName + ".1"
}
