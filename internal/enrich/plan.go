package enrich

import (
	"github.com/roach88/bman/internal/lock"
)

// Runtime defaults.
const (
	DefaultSnippetMaxLines    = 12
	DefaultSnippetMaxBytes    = 1024
	DefaultTimeoutSeconds     = 3
	TriagePreviewLimit        = 10
	BehaviorBatchLimit        = 15
	BehaviorRerunCap          = 2
	AssertionFailedNoopCap    = 2
	DefaultMaxNewRunsPerApply = 50
	AutoVerifyScenarioPrefix  = "auto_verify::"
	MaxScenarioEvidenceBytes  = 64 * 1024
)

// PlanSchemaVersion is the current plan/report/status format.
const PlanSchemaVersion = 1

// Plan is the persisted evaluation of a pack against one lock.
type Plan struct {
	SchemaVersion      int                   `json:"schema_version"`
	GeneratedAtEpochMs int64                 `json:"generated_at_epoch_ms"`
	BinaryName         string                `json:"binary_name,omitempty"`
	Lock               lock.Lock             `json:"lock"`
	Requirements       []RequirementStatus   `json:"requirements"`
	PlannedActions     []PlannedAction       `json:"planned_actions"`
	NextAction         NextAction            `json:"next_action"`
	Decision           Decision              `json:"decision"`
	DecisionReason     string                `json:"decision_reason"`
	ForceUsed          bool                  `json:"force_used"`
	VerificationPlan   *VerificationPlanInfo `json:"verification_plan,omitempty"`
}

// VerificationPlanInfo summarizes the verification target set at plan time.
type VerificationPlanInfo struct {
	Tier           Tier `json:"tier"`
	TargetCount    int  `json:"target_count"`
	RemainingCount int  `json:"remaining_count"`
	ExcludedCount  int  `json:"excluded_count"`
}

// PlanStatus is the freshness of the persisted plan.
type PlanStatus struct {
	Present    bool   `json:"present"`
	Stale      bool   `json:"stale"`
	InputsHash string `json:"inputs_hash,omitempty"`
}

// StatusSummary is the read-only evaluation returned by status.
type StatusSummary struct {
	SchemaVersion      int                 `json:"schema_version"`
	GeneratedAtEpochMs int64               `json:"generated_at_epoch_ms"`
	BinaryName         string              `json:"binary_name,omitempty"`
	Lock               lock.Status         `json:"lock"`
	Plan               PlanStatus          `json:"plan"`
	Requirements       []RequirementStatus `json:"requirements"`
	MissingArtifacts   []string            `json:"missing_artifacts"`
	Blockers           []Blocker           `json:"blockers"`
	Decision           Decision            `json:"decision"`
	DecisionReason     string              `json:"decision_reason"`
	NextAction         NextAction          `json:"next_action"`
	ForceUsed          bool                `json:"force_used"`
	Warnings           []string            `json:"warnings,omitempty"`
}

// Report describes the last apply.
type Report struct {
	SchemaVersion      int                 `json:"schema_version"`
	GeneratedAtEpochMs int64               `json:"generated_at_epoch_ms"`
	BinaryName         string              `json:"binary_name,omitempty"`
	InputsHash         string              `json:"inputs_hash"`
	OutputsHash        string              `json:"outputs_hash"`
	ExecutedActions    []PlannedAction     `json:"executed_actions"`
	Published          []string            `json:"published"`
	Scenarios          *ScenarioRunSummary `json:"scenarios,omitempty"`
	ForcedRerunIDs     []string            `json:"forced_rerun_ids,omitempty"`
	Warnings           []string            `json:"warnings,omitempty"`
	Requirements       []RequirementStatus `json:"requirements"`
	Decision           Decision            `json:"decision"`
	DecisionReason     string              `json:"decision_reason"`
	NextAction         NextAction          `json:"next_action"`
	RecommendedEdits   []ActionSignature   `json:"recommended_edits,omitempty"`
	LastRun            LastRun             `json:"last_run"`
}

// ScenarioRunSummary counts scenario outcomes of one apply.
type ScenarioRunSummary struct {
	ScenarioCount int `json:"scenario_count"`
	RunCount      int `json:"run_count"`
	SkippedCount  int `json:"skipped_count"`
	PassCount     int `json:"pass_count"`
	FailCount     int `json:"fail_count"`
}

// LastRun identifies the apply transaction.
type LastRun struct {
	TxnID             string `json:"txn_id"`
	StartedAtEpochMs  int64  `json:"started_at_epoch_ms"`
	FinishedAtEpochMs int64  `json:"finished_at_epoch_ms"`
	Success           bool   `json:"success"`
}

// Step names a pipeline step in history.
type Step string

const (
	StepValidate Step = "validate"
	StepPlan     Step = "plan"
	StepApply    Step = "apply"
)

// HistoryEntry is one line of enrich/history.jsonl.
type HistoryEntry struct {
	TimestampEpochMs int64  `json:"ts_epoch_ms"`
	Step             Step   `json:"step"`
	Success          bool   `json:"success"`
	InputsHash       string `json:"inputs_hash,omitempty"`
	OutputsHash      string `json:"outputs_hash,omitempty"`
	TxnID            string `json:"txn_id,omitempty"`
	ForceUsed        bool   `json:"force_used,omitempty"`
	Message          string `json:"message,omitempty"`
}
