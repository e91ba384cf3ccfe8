package surface

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/enrich"
	"github.com/roach88/bman/internal/schema"
)

// FileReader reads pack-relative files.
type FileReader interface {
	ReadFile(rel string) ([]byte, error)
}

// LoadInventory reads and validates inventory/surface.json. A missing file
// is reported through docpack.IsNotExist.
func LoadInventory(src FileReader) (*Inventory, error) {
	data, err := src.ReadFile(docpack.SurfacePath)
	if err != nil {
		return nil, err
	}
	return ParseInventory(data)
}

// ParseInventory validates and decodes inventory bytes.
func ParseInventory(data []byte) (*Inventory, error) {
	if err := schema.Validate(schema.KindSurfaceInventory, docpack.SurfacePath, data); err != nil {
		return nil, err
	}
	var inv Inventory
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parse %s: %w", docpack.SurfacePath, err)
	}
	return &inv, nil
}

// LoadOverlays reads inventory/surface.overlays.json. A missing file
// returns nil, nil.
func LoadOverlays(src FileReader) (*Overlays, error) {
	data, err := src.ReadFile(docpack.OverlaysPath)
	if err != nil {
		if docpack.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if err := schema.Validate(schema.KindSurfaceOverlays, docpack.OverlaysPath, data); err != nil {
		return nil, err
	}
	var o Overlays
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse %s: %w", docpack.OverlaysPath, err)
	}
	return &o, nil
}

// Merge applies overlays to a discovered inventory and returns a new
// inventory. Added items are appended when their id is new. Overlay
// invocation fields replace the discovered ones. Overlays naming unknown
// items produce a surface_overlays_missing_targets blocker.
func Merge(inv *Inventory, o *Overlays) *Inventory {
	out := &Inventory{SchemaVersion: InventorySchemaVersion}
	if inv != nil {
		*out = *inv
		out.Items = slices.Clone(inv.Items)
		out.Blockers = slices.Clone(inv.Blockers)
	}
	if o == nil {
		return out
	}

	evidence := []enrich.EvidenceRef{{Path: docpack.OverlaysPath}}
	for _, it := range o.Items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			continue
		}
		if _, exists := out.Find(it.ID); exists {
			continue
		}
		if it.Display == "" {
			it.Display = it.ID
		}
		it.Evidence = evidence
		out.Items = append(out.Items, it)
	}

	var missing []string
	for _, ov := range o.Overlays {
		id := strings.TrimSpace(ov.ID)
		if id == "" {
			continue
		}
		idx := slices.IndexFunc(out.Items, func(it Item) bool { return it.ID == id })
		if idx < 0 {
			missing = append(missing, id)
			continue
		}
		item := out.Items[idx]
		if ov.Invocation != nil {
			if ov.Invocation.RequiresArgv != nil {
				item.Invocation.RequiresArgv = slices.Clone(ov.Invocation.RequiresArgv)
			}
			if ov.Invocation.ValueExamples != nil {
				item.Invocation.ValueExamples = slices.Clone(ov.Invocation.ValueExamples)
			}
		}
		if ov.Kind != "" {
			item.Kind = ov.Kind
		}
		item.Evidence = appendEvidence(item.Evidence, evidence...)
		out.Items[idx] = item
	}

	if len(missing) > 0 {
		out.Blockers = append(out.Blockers, enrich.Blocker{
			Code:     "surface_overlays_missing_targets",
			Message:  fmt.Sprintf("surface overlays reference unknown items: %s", strings.Join(missing, ", ")),
			Evidence: evidence,
		})
	}
	return out
}

func appendEvidence(dst []enrich.EvidenceRef, refs ...enrich.EvidenceRef) []enrich.EvidenceRef {
	for _, ref := range refs {
		if !slices.ContainsFunc(dst, func(e enrich.EvidenceRef) bool { return e.Path == ref.Path }) {
			dst = append(dst, ref)
		}
	}
	return dst
}

// ExclusionEntry is the ledger view an exclusion is validated against.
type ExclusionEntry struct {
	DeltaOutcome       enrich.DeltaOutcome
	DeltaEvidencePaths []string
}

// ValidateExclusions checks behavior exclusions against the set of
// required target ids and their ledger entries. An exclusion is valid
// only for a required target whose entry has delta evidence.
func ValidateExclusions(exclusions []SurfaceExclusion, targets []string, entries map[string]ExclusionEntry) (map[string]BehaviorExclusion, error) {
	valid := make(map[string]BehaviorExclusion, len(exclusions))
	for _, ex := range exclusions {
		id := ex.SurfaceID
		if id == "" {
			return nil, fmt.Errorf("behavior_exclusion surface_id must not be empty")
		}
		if note := ex.Exclusion.Note; note != "" {
			if strings.TrimSpace(note) == "" {
				return nil, fmt.Errorf("behavior_exclusion note must not be blank for %s", id)
			}
			if len([]rune(note)) > MaxExclusionNoteChars {
				return nil, fmt.Errorf("behavior_exclusion note must be <= %d chars for %s", MaxExclusionNoteChars, id)
			}
		}
		path := strings.TrimSpace(ex.Exclusion.Evidence.DeltaVariantPath)
		if path == "" {
			return nil, fmt.Errorf("behavior_exclusion evidence.delta_variant_path must not be empty for %s", id)
		}
		if !slices.Contains(targets, id) {
			return nil, fmt.Errorf("behavior_exclusion surface_id %s is not a required behavior target", id)
		}
		entry, ok := entries[id]
		if !ok {
			return nil, fmt.Errorf("behavior_exclusion surface_id %s missing from verification rows", id)
		}
		if entry.DeltaOutcome == "" || len(entry.DeltaEvidencePaths) == 0 {
			return nil, fmt.Errorf("behavior_exclusion surface_id %s requires delta evidence", id)
		}
		if entry.DeltaOutcome == enrich.DeltaSeen {
			return nil, fmt.Errorf("behavior_exclusion surface_id %s invalid: delta_outcome=delta_seen must be verified with assertions", id)
		}
		if !slices.Contains(entry.DeltaEvidencePaths, path) {
			return nil, fmt.Errorf("behavior_exclusion surface_id %s invalid: delta_variant_path %s not found in delta evidence", id, path)
		}
		if _, dup := valid[id]; dup {
			return nil, fmt.Errorf("duplicate behavior_exclusion entries for surface_id %s", id)
		}
		valid[id] = ex.Exclusion
	}
	return valid, nil
}
