package enrich

import (
	"encoding/json"
	"fmt"
)

// NextActionKind discriminates the NextAction union.
type NextActionKind string

const (
	KindCommand NextActionKind = "command"
	KindEdit    NextActionKind = "edit"
)

// EditStrategy tells the file-editing tool how to merge Edit content into
// the target file.
type EditStrategy string

const (
	// StrategyReplaceFile writes the content as the whole file. Only used
	// when the target file does not exist yet.
	StrategyReplaceFile EditStrategy = "replace_file"

	// StrategyUpsertScenariosByID merges scenarios[] entries by scenario id.
	StrategyUpsertScenariosByID EditStrategy = "upsert_scenarios_by_id"

	// StrategyMergeOverlaysByID merges overlays[] entries by surface id.
	StrategyMergeOverlaysByID EditStrategy = "merge_overlays_by_id"
)

// Valid reports whether s is a known strategy.
func (s EditStrategy) Valid() bool {
	switch s {
	case StrategyReplaceFile, StrategyUpsertScenariosByID, StrategyMergeOverlaysByID:
		return true
	}
	return false
}

// NextAction is the single recommended step: either a Command to run or an
// Edit to apply. Build values with NewCommand and NewEdit.
type NextAction struct {
	Kind          NextActionKind   `json:"kind"`
	Command       string           `json:"command,omitempty"`
	Path          string           `json:"path,omitempty"`
	Content       string           `json:"content,omitempty"`
	MergeStrategy EditStrategy     `json:"merge_strategy,omitempty"`
	Reason        string           `json:"reason"`
	Payload       *BehaviorPayload `json:"payload,omitempty"`
}

// BehaviorPayload carries machine-readable details of a verification
// recommendation.
type BehaviorPayload struct {
	TargetIDs            []string            `json:"target_ids"`
	ReasonCode           ReasonCode          `json:"reason_code,omitempty"`
	RetryCount           *int                `json:"retry_count,omitempty"`
	LatestDeltaPath      string              `json:"latest_delta_path,omitempty"`
	SuggestedOverlayKeys []string            `json:"suggested_overlay_keys,omitempty"`
	SuggestedExclusion   *SuggestedExclusion `json:"suggested_exclusion,omitempty"`
}

// SuggestedExclusion is a behavior_exclusion overlay the engine proposes
// once a target stops converging.
type SuggestedExclusion struct {
	SurfaceID  string            `json:"surface_id"`
	ReasonCode string            `json:"reason_code"`
	Note       string            `json:"note"`
	Evidence   ExclusionEvidence `json:"evidence"`
}

// ExclusionEvidence names the delta evidence that justifies an exclusion.
type ExclusionEvidence struct {
	DeltaVariantPath string `json:"delta_variant_path"`
}

// NewCommand builds a Command action.
func NewCommand(command, reason string) NextAction {
	return NextAction{Kind: KindCommand, Command: command, Reason: reason}
}

// NewEdit builds an Edit action.
func NewEdit(path, content, reason string, strategy EditStrategy) NextAction {
	return NextAction{
		Kind:          KindEdit,
		Path:          path,
		Content:       content,
		Reason:        reason,
		MergeStrategy: strategy,
	}
}

// WithPayload returns a copy of a carrying p.
func (a NextAction) WithPayload(p *BehaviorPayload) NextAction {
	a.Payload = p
	return a
}

// IsCommand reports whether a is a Command.
func (a NextAction) IsCommand() bool { return a.Kind == KindCommand }

// IsEdit reports whether a is an Edit.
func (a NextAction) IsEdit() bool { return a.Kind == KindEdit }

// Validate checks that the fields match the kind.
func (a NextAction) Validate() error {
	switch a.Kind {
	case KindCommand:
		if a.Command == "" {
			return fmt.Errorf("command next action without command")
		}
		if a.Path != "" || a.Content != "" || a.MergeStrategy != "" {
			return fmt.Errorf("command next action carries edit fields")
		}
	case KindEdit:
		if a.Path == "" {
			return fmt.Errorf("edit next action without path")
		}
		if !a.MergeStrategy.Valid() {
			return fmt.Errorf("edit next action with unknown merge strategy %q", a.MergeStrategy)
		}
		if a.Command != "" {
			return fmt.Errorf("edit next action carries a command")
		}
	default:
		return fmt.Errorf("unknown next action kind %q", a.Kind)
	}
	return nil
}

// UnmarshalJSON decodes a NextAction and rejects values that do not form
// a valid Command or Edit.
func (a *NextAction) UnmarshalJSON(data []byte) error {
	type plain NextAction
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	decoded := NextAction(p)
	if err := decoded.Validate(); err != nil {
		return err
	}
	*a = decoded
	return nil
}
