// Package surface models the discovered command-line surface of the target
// binary (options and subcommands), the human-owned overlays merged on top
// of it, and the default help-text discoverer.
package surface

import (
	"slices"
	"strings"

	"github.com/roach88/bman/internal/enrich"
)

// InventorySchemaVersion is the current inventory/surface.json format.
const InventorySchemaVersion = 1

// OverlaysSchemaVersion is the current inventory/surface.overlays.json format.
const OverlaysSchemaVersion = 1

// MaxExclusionNoteChars bounds a behavior exclusion note.
const MaxExclusionNoteChars = 200

// ItemKind classifies a surface item.
type ItemKind string

const (
	KindOption     ItemKind = "option"
	KindCommand    ItemKind = "command"
	KindSubcommand ItemKind = "subcommand"
	KindEntryPoint ItemKind = "entry_point"
)

// ValueArity says whether an option takes a value.
type ValueArity string

const (
	ArityNone     ValueArity = "none"
	ArityOptional ValueArity = "optional"
	ArityRequired ValueArity = "required"
)

// Invocation describes how to invoke an item.
type Invocation struct {
	ValueArity       ValueArity `json:"value_arity,omitempty"`
	ValuePlaceholder string     `json:"value_placeholder,omitempty"`
	RequiresArgv     []string   `json:"requires_argv,omitempty"`
	ValueExamples    []string   `json:"value_examples,omitempty"`
}

// Item is one discovered option, command or subcommand.
type Item struct {
	Kind        ItemKind             `json:"kind"`
	ID          string               `json:"id"`
	Forms       []string             `json:"forms,omitempty"`
	Display     string               `json:"display,omitempty"`
	Description string               `json:"description,omitempty"`
	Invocation  Invocation           `json:"invocation"`
	Evidence    []enrich.EvidenceRef `json:"evidence,omitempty"`
}

// NeedsValueExamples reports whether the item requires a value but no
// example value is known.
func (it Item) NeedsValueExamples() bool {
	return it.Invocation.ValueArity == ArityRequired && len(it.Invocation.ValueExamples) == 0
}

// Inventory is inventory/surface.json.
type Inventory struct {
	SchemaVersion      int              `json:"schema_version"`
	GeneratedAtEpochMs int64            `json:"generated_at_epoch_ms,omitempty"`
	BinaryName         string           `json:"binary_name,omitempty"`
	InputsHash         string           `json:"inputs_hash,omitempty"`
	Items              []Item           `json:"items"`
	Blockers           []enrich.Blocker `json:"blockers,omitempty"`
}

// Find returns the item with the given id.
func (inv *Inventory) Find(id string) (Item, bool) {
	for _, it := range inv.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// MeaningfulItems returns the items that are not entry points.
func (inv *Inventory) MeaningfulItems() []Item {
	var out []Item
	for _, it := range inv.Items {
		if it.Kind != KindEntryPoint && strings.TrimSpace(it.ID) != "" {
			out = append(out, it)
		}
	}
	return out
}

// IDsOfKinds returns the sorted ids of items whose kind is listed.
func (inv *Inventory) IDsOfKinds(kinds []string) []string {
	var ids []string
	for _, it := range inv.Items {
		if slices.Contains(kinds, string(it.Kind)) && !slices.Contains(ids, it.ID) {
			ids = append(ids, it.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// IsMultiCommand reports whether the surface has subcommands.
func (inv *Inventory) IsMultiCommand() bool {
	for _, it := range inv.Items {
		if it.Kind == KindSubcommand || it.Kind == KindCommand {
			return true
		}
	}
	return false
}

// ExclusionReason is the closed set of reasons a behavior target may be
// excluded for.
type ExclusionReason string

const (
	ExcludeUnsafeSideEffects      ExclusionReason = "unsafe_side_effects"
	ExcludeFixtureGap             ExclusionReason = "fixture_gap"
	ExcludeAssertionGap           ExclusionReason = "assertion_gap"
	ExcludeNondeterministic       ExclusionReason = "nondeterministic"
	ExcludeRequiresInteractiveTTY ExclusionReason = "requires_interactive_tty"
)

// ExclusionEvidence points at the delta evidence that justifies an
// exclusion.
type ExclusionEvidence struct {
	DeltaVariantPath string `json:"delta_variant_path"`
}

// BehaviorExclusion removes a target from the behavior tier.
type BehaviorExclusion struct {
	ReasonCode ExclusionReason   `json:"reason_code"`
	Note       string            `json:"note,omitempty"`
	Evidence   ExclusionEvidence `json:"evidence"`
}

// OverlayInvocation is the overridable subset of Invocation.
type OverlayInvocation struct {
	RequiresArgv  []string `json:"requires_argv,omitempty"`
	ValueExamples []string `json:"value_examples,omitempty"`
}

// Overlay adjusts one discovered item.
type Overlay struct {
	ID                string             `json:"id"`
	Kind              ItemKind           `json:"kind,omitempty"`
	Invocation        *OverlayInvocation `json:"invocation,omitempty"`
	BehaviorExclusion *BehaviorExclusion `json:"behavior_exclusion,omitempty"`
}

// Overlays is inventory/surface.overlays.json.
type Overlays struct {
	SchemaVersion int       `json:"schema_version"`
	Items         []Item    `json:"items,omitempty"`
	Overlays      []Overlay `json:"overlays,omitempty"`
}

// Find returns the overlay for id.
func (o *Overlays) Find(id string) (Overlay, bool) {
	if o == nil {
		return Overlay{}, false
	}
	for _, ov := range o.Overlays {
		if ov.ID == id {
			return ov, true
		}
	}
	return Overlay{}, false
}

// Exclusions returns the behavior exclusions keyed by surface id. Later
// entries for the same id are ignored by the merge but reported by
// ValidateExclusions.
func (o *Overlays) Exclusions() []SurfaceExclusion {
	if o == nil {
		return nil
	}
	var out []SurfaceExclusion
	for _, ov := range o.Overlays {
		if ov.BehaviorExclusion != nil {
			out = append(out, SurfaceExclusion{SurfaceID: strings.TrimSpace(ov.ID), Exclusion: *ov.BehaviorExclusion})
		}
	}
	return out
}

// SurfaceExclusion pairs an exclusion with its surface id.
type SurfaceExclusion struct {
	SurfaceID string
	Exclusion BehaviorExclusion
}
