package housekeeper

import (
	"time"

	"github.com/nerrad567/gray-logic-housekeeper/internal/registry"
)

// ActionType identifies the mutation an Action proposes.
type ActionType string

// Proposed mutation types.
const (
	ActionSetEntityArea ActionType = "set_entity_area"
	ActionSetDeviceArea ActionType = "set_device_area"
	ActionRenameEntity  ActionType = "rename_entity"
	ActionRenameDevice  ActionType = "rename_device"
	ActionRemoveEntity  ActionType = "remove_entity"
	ActionHideEntity    ActionType = "hide_entity"
	ActionRenameArea    ActionType = "rename_area"
	ActionCreateArea    ActionType = "create_area"
)

// Payload carries the target and parameters of an Action. Which fields
// are set depends on the action type; validation happens at construction
// and again defensively at apply time.
type Payload struct {
	EntityID string `json:"entity_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	AreaID   string `json:"area_id,omitempty"`
	Name     string `json:"name,omitempty"`
	HiddenBy string `json:"hidden_by,omitempty"`
}

// Action is one proposed registry mutation.
//
// Actions are created once per planning pass and are immutable
// thereafter. The ID is an opaque unique token used for approval; the
// fingerprint (see Fingerprint) identifies "the same proposal" across
// planning runs for deduplication and suppression.
type Action struct {
	ID               string     `json:"id"`
	Type             ActionType `json:"type"`
	Payload          Payload    `json:"payload"`
	Reason           string     `json:"reason"`
	Confidence       float64    `json:"confidence"`
	RequiresApproval bool       `json:"requires_approval"`
}

// Plan is the persisted result of one planning run. A single current
// plan exists per process; each run overwrites the previous one.
// Suppressed (ignored) actions are excluded from Actions and counted in
// IgnoredCount.
type Plan struct {
	CreatedAt    time.Time         `json:"created_at"`
	Rules        RuleProvenance    `json:"rules"`
	Actions      []Action          `json:"actions"`
	AreaNameByID map[string]string `json:"area_name_by_id"`
	IgnoredCount int               `json:"ignored_count"`
}

// StepType identifies the kind of a rollback step.
type StepType string

// Rollback step types. Note steps are informational: creations and
// removals are not automatically reversed.
const (
	StepEntityUpdate      StepType = "entity_update"
	StepDeviceUpdate      StepType = "device_update"
	StepAreaUpdate        StepType = "area_update"
	StepNote              StepType = "note"
	StepEntityRestoreNote StepType = "entity_restore_note"
)

// RollbackStep captures the prior state of exactly the fields one
// applied action changed. Before values may be explicit nulls; the
// registry needs a null sent to clear a field.
type RollbackStep struct {
	Type     StepType       `json:"type"`
	EntityID string         `json:"entity_id,omitempty"`
	DeviceID string         `json:"device_id,omitempty"`
	AreaID   string         `json:"area_id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Note     string         `json:"note,omitempty"`
	Before   map[string]any `json:"before,omitempty"`

	// Entity holds the full registry entry for entity_restore_note steps,
	// so a removed entity can at least be reconstructed by hand.
	Entity *registry.Entity `json:"entity,omitempty"`
}

// RollbackRecord is the persisted undo log of one apply run, in apply
// order. Rollback replays the steps in reverse.
type RollbackRecord struct {
	CreatedAt time.Time      `json:"created_at"`
	Steps     []RollbackStep `json:"steps"`
}

// SkippedAction explains why one action in a plan was not applied.
type SkippedAction struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ApplyResult is the outcome of one apply run. The rollback record is
// persisted unconditionally, even when some actions were skipped.
type ApplyResult struct {
	AppliedActionIDs []string        `json:"applied_action_ids"`
	Skipped          []SkippedAction `json:"skipped"`
	Rollback         *RollbackRecord `json:"rollback"`
}

// RollbackError records one failed rollback step. Failures do not abort
// the remaining steps.
type RollbackError struct {
	Step  RollbackStep `json:"step"`
	Error string       `json:"error"`
}

// RollbackResult is the outcome of one rollback run. OK is true only
// when every step succeeded.
type RollbackResult struct {
	OK       bool            `json:"ok"`
	Reverted int             `json:"reverted"`
	Errors   []RollbackError `json:"errors"`
}
