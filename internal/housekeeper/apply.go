package housekeeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-housekeeper/internal/registry"
)

// skipRequiresApproval is the reason attached to actions that were
// gated on approval and not approved.
const skipRequiresApproval = "requires_approval"

// applier executes one plan against the registry. It is built fresh for
// every apply call so the name index reflects areas created mid-run.
type applier struct {
	client Client
	snap   *Snapshot

	// areaIDByName maps normalized area names to ids, including areas
	// created during this apply run. Fallback placements that reference
	// an area by name resolve through it.
	areaIDByName map[string]string

	applied []string
	skipped []SkippedAction
	steps   []RollbackStep
}

// outcome is the result of dispatching a single action.
type outcome struct {
	applied    bool
	skipReason string
}

func applied() outcome { return outcome{applied: true} }

func skipped(reason string) outcome { return outcome{skipReason: reason} }

func skippedf(f string, a ...any) outcome {
	return outcome{skipReason: fmt.Sprintf(f, a...)}
}

// runApply executes the plan's actions in order. Approval-gated actions
// run only when their id is in approvedIDs; everything else runs
// unconditionally. One failing action never aborts the rest: mutation
// and validation failures both downgrade to a per-action skip.
func runApply(ctx context.Context, client Client, snap *Snapshot, plan *Plan, approvedIDs []string) *ApplyResult {
	areaIDByName := make(map[string]string, len(snap.Areas))
	for _, a := range snap.Areas {
		if a.ID != "" && a.Name != "" {
			areaIDByName[normalizeName(a.Name)] = a.ID
		}
	}

	ap := &applier{
		client:       client,
		snap:         snap,
		areaIDByName: areaIDByName,
		applied:      []string{},
		skipped:      []SkippedAction{},
		steps:        []RollbackStep{},
	}
	approved := toSet(approvedIDs)

	for _, action := range plan.Actions {
		if action.RequiresApproval && !approved[action.ID] {
			ap.skip(action, skipRequiresApproval)
			continue
		}
		out := ap.dispatch(ctx, action)
		if out.applied {
			ap.applied = append(ap.applied, action.ID)
		} else {
			ap.skip(action, out.skipReason)
		}
	}

	return &ApplyResult{
		AppliedActionIDs: ap.applied,
		Skipped:          ap.skipped,
		Rollback: &RollbackRecord{
			CreatedAt: time.Now().UTC(),
			Steps:     ap.steps,
		},
	}
}

func (ap *applier) skip(action Action, reason string) {
	ap.skipped = append(ap.skipped, SkippedAction{ID: action.ID, Reason: reason})
}

func (ap *applier) dispatch(ctx context.Context, action Action) outcome {
	switch action.Type {
	case ActionSetEntityArea:
		return ap.setEntityArea(ctx, action.Payload)
	case ActionSetDeviceArea:
		return ap.setDeviceArea(ctx, action.Payload)
	case ActionRenameEntity:
		return ap.renameEntity(ctx, action.Payload)
	case ActionRenameDevice:
		return ap.renameDevice(ctx, action.Payload)
	case ActionRemoveEntity:
		return ap.removeEntity(ctx, action.Payload)
	case ActionHideEntity:
		return ap.hideEntity(ctx, action.Payload)
	case ActionRenameArea:
		return ap.renameArea(ctx, action.Payload)
	case ActionCreateArea:
		return ap.createArea(ctx, action.Payload)
	default:
		return skippedf("unsupported action type %s", action.Type)
	}
}

// setEntityArea moves an entity into an area. The payload carries either
// an area id or, for fallback placements planned before the fallback
// area existed, an area name resolved here after create_area has run.
func (ap *applier) setEntityArea(ctx context.Context, p Payload) outcome {
	if p.EntityID == "" {
		return skipped("missing entity_id")
	}
	areaID := p.AreaID
	if areaID == "" && p.Name != "" {
		areaID = ap.areaIDByName[normalizeName(p.Name)]
		if areaID == "" {
			return skippedf("area '%s' does not exist", p.Name)
		}
	}
	if areaID == "" {
		return skipped("missing area_id")
	}
	entity, ok := ap.entityByID(p.EntityID)
	if !ok {
		return skippedf("entity '%s' not found", p.EntityID)
	}
	before := map[string]any{"area_id": nullable(entity.AreaID)}
	if err := ap.client.UpdateEntity(ctx, p.EntityID, registry.Fields{"area_id": areaID}); err != nil {
		return skipped(err.Error())
	}
	ap.steps = append(ap.steps, RollbackStep{Type: StepEntityUpdate, EntityID: p.EntityID, Before: before})
	return applied()
}

func (ap *applier) setDeviceArea(ctx context.Context, p Payload) outcome {
	if p.DeviceID == "" {
		return skipped("missing device_id")
	}
	if p.AreaID == "" {
		return skipped("missing area_id")
	}
	device, ok := ap.snap.DeviceByID(p.DeviceID)
	if !ok {
		return skippedf("device '%s' not found", p.DeviceID)
	}
	before := map[string]any{"area_id": nullable(device.AreaID)}
	if err := ap.client.UpdateDevice(ctx, p.DeviceID, registry.Fields{"area_id": p.AreaID}); err != nil {
		return skipped(err.Error())
	}
	ap.steps = append(ap.steps, RollbackStep{Type: StepDeviceUpdate, DeviceID: p.DeviceID, Before: before})
	return applied()
}

func (ap *applier) renameEntity(ctx context.Context, p Payload) outcome {
	if p.EntityID == "" {
		return skipped("missing entity_id")
	}
	if p.Name == "" {
		return skipped("missing name")
	}
	entity, ok := ap.entityByID(p.EntityID)
	if !ok {
		return skippedf("entity '%s' not found", p.EntityID)
	}
	before := map[string]any{"name": nullable(entity.Name)}
	if err := ap.client.UpdateEntity(ctx, p.EntityID, registry.Fields{"name": p.Name}); err != nil {
		return skipped(err.Error())
	}
	ap.steps = append(ap.steps, RollbackStep{Type: StepEntityUpdate, EntityID: p.EntityID, Before: before})
	return applied()
}

func (ap *applier) renameDevice(ctx context.Context, p Payload) outcome {
	if p.DeviceID == "" {
		return skipped("missing device_id")
	}
	if p.Name == "" {
		return skipped("missing name")
	}
	device, ok := ap.snap.DeviceByID(p.DeviceID)
	if !ok {
		return skippedf("device '%s' not found", p.DeviceID)
	}
	before := map[string]any{"name_by_user": nullable(device.NameByUser)}
	if err := ap.client.UpdateDevice(ctx, p.DeviceID, registry.Fields{"name_by_user": p.Name}); err != nil {
		return skipped(err.Error())
	}
	ap.steps = append(ap.steps, RollbackStep{Type: StepDeviceUpdate, DeviceID: p.DeviceID, Before: before})
	return applied()
}

// removeEntity deletes the registry entry. Removal cannot be replayed
// in reverse, so the rollback record keeps a full copy of the entity as
// an informational restore note.
func (ap *applier) removeEntity(ctx context.Context, p Payload) outcome {
	if p.EntityID == "" {
		return skipped("missing entity_id")
	}
	entity, ok := ap.entityByID(p.EntityID)
	if !ok {
		return skippedf("entity '%s' not found", p.EntityID)
	}
	if err := ap.client.RemoveEntity(ctx, p.EntityID); err != nil {
		return skipped(err.Error())
	}
	saved := entity
	ap.steps = append(ap.steps, RollbackStep{
		Type:     StepEntityRestoreNote,
		EntityID: p.EntityID,
		Note:     fmt.Sprintf("entity '%s' was removed; manual re-add required", p.EntityID),
		Entity:   &saved,
	})
	return applied()
}

// hideEntity tries hidden_by first and falls back to disabled_by when
// the registry rejects the hide. The captured before fields cover both
// mechanisms so rollback does not need to know which one succeeded.
func (ap *applier) hideEntity(ctx context.Context, p Payload) outcome {
	if p.EntityID == "" {
		return skipped("missing entity_id")
	}
	hiddenBy := p.HiddenBy
	if hiddenBy == "" {
		hiddenBy = "user"
	}
	entity, ok := ap.entityByID(p.EntityID)
	if !ok {
		return skippedf("entity '%s' not found", p.EntityID)
	}
	before := map[string]any{
		"hidden_by":   nullable(entity.HiddenBy),
		"disabled_by": nullable(entity.DisabledBy),
	}
	err := ap.client.UpdateEntity(ctx, p.EntityID, registry.Fields{"hidden_by": hiddenBy})
	if err != nil {
		var apiErr *registry.APIError
		if !errors.As(err, &apiErr) {
			return skipped(err.Error())
		}
		if err = ap.client.UpdateEntity(ctx, p.EntityID, registry.Fields{"disabled_by": "user"}); err != nil {
			return skipped(err.Error())
		}
	}
	ap.steps = append(ap.steps, RollbackStep{Type: StepEntityUpdate, EntityID: p.EntityID, Before: before})
	return applied()
}

func (ap *applier) renameArea(ctx context.Context, p Payload) outcome {
	if p.AreaID == "" {
		return skipped("missing area_id")
	}
	if p.Name == "" {
		return skipped("missing name")
	}
	oldName := ""
	for _, a := range ap.snap.Areas {
		if a.ID == p.AreaID {
			oldName = a.Name
			break
		}
	}
	if oldName == "" {
		return skippedf("area '%s' not found", p.AreaID)
	}
	if err := ap.client.UpdateArea(ctx, p.AreaID, registry.Fields{"name": p.Name}); err != nil {
		return skipped(err.Error())
	}
	delete(ap.areaIDByName, normalizeName(oldName))
	ap.areaIDByName[normalizeName(p.Name)] = p.AreaID
	ap.steps = append(ap.steps, RollbackStep{
		Type:   StepAreaUpdate,
		AreaID: p.AreaID,
		Before: map[string]any{"name": oldName},
	})
	return applied()
}

// createArea is idempotent: an already-existing name counts as applied
// without a mutation or rollback step. Created areas are not removed on
// rollback; the record only carries a note.
func (ap *applier) createArea(ctx context.Context, p Payload) outcome {
	if p.Name == "" {
		return skipped("missing name")
	}
	if ap.areaIDByName[normalizeName(p.Name)] != "" {
		return applied()
	}
	area, err := ap.client.CreateArea(ctx, p.Name)
	if err != nil {
		return skipped(err.Error())
	}
	ap.areaIDByName[normalizeName(p.Name)] = area.ID
	ap.steps = append(ap.steps, RollbackStep{
		Type: StepNote,
		Note: fmt.Sprintf("area '%s' (%s) was created; not removed on rollback", p.Name, area.ID),
	})
	return applied()
}

func (ap *applier) entityByID(entityID string) (registry.Entity, bool) {
	for _, e := range ap.snap.Entities {
		if e.EntityID == entityID {
			return e, true
		}
	}
	return registry.Entity{}, false
}

// nullable maps an empty registry field to an explicit null so rollback
// clears the field instead of writing an empty string.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
