package housekeeper

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-housekeeper/internal/registry"
)

// runRollback replays a rollback record against the registry. Steps are
// undone in reverse order so the most recent change is reverted first.
// A failing step is recorded and never aborts the remaining steps.
func runRollback(ctx context.Context, client Client, record *RollbackRecord) *RollbackResult {
	result := &RollbackResult{Errors: []RollbackError{}}

	for i := len(record.Steps) - 1; i >= 0; i-- {
		step := record.Steps[i]
		if err := revertStep(ctx, client, step); err != nil {
			result.Errors = append(result.Errors, RollbackError{Step: step, Error: err.Error()})
			continue
		}
		if step.Type == StepEntityUpdate || step.Type == StepDeviceUpdate || step.Type == StepAreaUpdate {
			result.Reverted++
		}
	}

	result.OK = len(result.Errors) == 0
	return result
}

func revertStep(ctx context.Context, client Client, step RollbackStep) error {
	switch step.Type {
	case StepEntityUpdate:
		// Before values may be explicit null to clear a field.
		return client.UpdateEntity(ctx, step.EntityID, registry.Fields(step.Before))
	case StepDeviceUpdate:
		return client.UpdateDevice(ctx, step.DeviceID, registry.Fields(step.Before))
	case StepAreaUpdate:
		name, _ := step.Before["name"].(string)
		if name == "" {
			return fmt.Errorf("area rollback for '%s' has no previous name", step.AreaID)
		}
		return client.UpdateArea(ctx, step.AreaID, registry.Fields{"name": name})
	case StepNote, StepEntityRestoreNote:
		// Informational only. Creations and removals are not reversed.
		return nil
	default:
		return fmt.Errorf("unknown rollback step type %s", step.Type)
	}
}
