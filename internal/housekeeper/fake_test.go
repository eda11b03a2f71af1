package housekeeper

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-housekeeper/internal/registry"
)

// fakeClient is an in-memory registry for tests. Mutations are applied
// to its stored registry so apply/rollback round trips can be asserted.
type fakeClient struct {
	mu sync.Mutex

	areas    []registry.Area
	devices  []registry.Device
	entities []registry.Entity
	states   []registry.State

	// failures maps "op/id" (e.g. "update_entity/light.x") to an error
	// returned for every matching call.
	failures map[string]error

	// rejectHiddenBy makes entity updates carrying hidden_by fail with
	// an APIError, forcing the disabled_by fallback.
	rejectHiddenBy bool

	calls      []string
	nextAreaID int
}

func newFakeClient() *fakeClient {
	return &fakeClient{failures: map[string]error{}}
}

func (f *fakeClient) record(op, id string) error {
	f.calls = append(f.calls, op+"/"+id)
	if err, ok := f.failures[op+"/"+id]; ok {
		return err
	}
	return nil
}

func (f *fakeClient) Connect(context.Context) error { return nil }
func (f *fakeClient) URL() string                   { return "ws://fake/websocket" }

func (f *fakeClient) ListAreas(context.Context) ([]registry.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registry.Area(nil), f.areas...), nil
}

func (f *fakeClient) CreateArea(_ context.Context, name string) (registry.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_area", name); err != nil {
		return registry.Area{}, err
	}
	f.nextAreaID++
	area := registry.Area{ID: fmt.Sprintf("new_area_%d", f.nextAreaID), Name: name}
	f.areas = append(f.areas, area)
	return area, nil
}

func (f *fakeClient) UpdateArea(_ context.Context, areaID string, fields registry.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update_area", areaID); err != nil {
		return err
	}
	for i := range f.areas {
		if f.areas[i].ID == areaID {
			if name, ok := fields["name"].(string); ok {
				f.areas[i].Name = name
			}
			return nil
		}
	}
	return &registry.APIError{Code: "not_found", Message: "area " + areaID}
}

func (f *fakeClient) ListDevices(context.Context) ([]registry.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registry.Device(nil), f.devices...), nil
}

func (f *fakeClient) UpdateDevice(_ context.Context, deviceID string, fields registry.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update_device", deviceID); err != nil {
		return err
	}
	for i := range f.devices {
		if f.devices[i].ID != deviceID {
			continue
		}
		if v, ok := fields["area_id"]; ok {
			f.devices[i].AreaID = stringOrEmpty(v)
		}
		if v, ok := fields["name_by_user"]; ok {
			f.devices[i].NameByUser = stringOrEmpty(v)
		}
		return nil
	}
	return &registry.APIError{Code: "not_found", Message: "device " + deviceID}
}

func (f *fakeClient) ListEntities(context.Context) ([]registry.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registry.Entity(nil), f.entities...), nil
}

func (f *fakeClient) UpdateEntity(_ context.Context, entityID string, fields registry.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update_entity", entityID); err != nil {
		return err
	}
	if f.rejectHiddenBy {
		if _, ok := fields["hidden_by"]; ok {
			return &registry.APIError{Code: "invalid_format", Message: "hidden_by not supported"}
		}
	}
	for i := range f.entities {
		if f.entities[i].EntityID != entityID {
			continue
		}
		if v, ok := fields["area_id"]; ok {
			f.entities[i].AreaID = stringOrEmpty(v)
		}
		if v, ok := fields["name"]; ok {
			f.entities[i].Name = stringOrEmpty(v)
		}
		if v, ok := fields["hidden_by"]; ok {
			f.entities[i].HiddenBy = stringOrEmpty(v)
		}
		if v, ok := fields["disabled_by"]; ok {
			f.entities[i].DisabledBy = stringOrEmpty(v)
		}
		return nil
	}
	return &registry.APIError{Code: "not_found", Message: "entity " + entityID}
}

func (f *fakeClient) RemoveEntity(_ context.Context, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("remove_entity", entityID); err != nil {
		return err
	}
	for i := range f.entities {
		if f.entities[i].EntityID == entityID {
			f.entities = append(f.entities[:i], f.entities[i+1:]...)
			return nil
		}
	}
	return &registry.APIError{Code: "not_found", Message: "entity " + entityID}
}

func (f *fakeClient) ListStates(context.Context) ([]registry.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registry.State(nil), f.states...), nil
}

func (f *fakeClient) entity(entityID string) (registry.Entity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entities {
		if e.EntityID == entityID {
			return e, true
		}
	}
	return registry.Entity{}, false
}

func (f *fakeClient) device(deviceID string) (registry.Device, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.ID == deviceID {
			return d, true
		}
	}
	return registry.Device{}, false
}

func stringOrEmpty(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// activeState marks an entity as active in the fake's state table.
func activeState(entityID string) registry.State {
	return registry.State{EntityID: entityID, State: "on"}
}
