package housekeeper

import (
	"context"

	"github.com/nerrad567/gray-logic-housekeeper/internal/registry"
)

// Client is the registry surface the housekeeper consumes. It is
// implemented by registry.Client; tests substitute a fake.
type Client interface {
	Connect(ctx context.Context) error
	URL() string

	ListAreas(ctx context.Context) ([]registry.Area, error)
	CreateArea(ctx context.Context, name string) (registry.Area, error)
	UpdateArea(ctx context.Context, areaID string, fields registry.Fields) error
	ListDevices(ctx context.Context) ([]registry.Device, error)
	UpdateDevice(ctx context.Context, deviceID string, fields registry.Fields) error
	ListEntities(ctx context.Context) ([]registry.Entity, error)
	UpdateEntity(ctx context.Context, entityID string, fields registry.Fields) error
	RemoveEntity(ctx context.Context, entityID string) error
	ListStates(ctx context.Context) ([]registry.State, error)
}

// stateUnavailable is the live state value that marks an entity inactive.
const stateUnavailable = "unavailable"

// Snapshot is one consistent-as-possible read of the registry: areas,
// devices, entities and live states fetched in a single pass and indexed
// for O(1) lookup. Snapshots are read-only; nothing in the audit or
// planning pipeline mutates them.
type Snapshot struct {
	Areas    []registry.Area
	Devices  []registry.Device
	Entities []registry.Entity

	StatesByEntityID map[string]registry.State

	deviceByID map[string]registry.Device
	entityIDs  map[string]bool
}

// FetchSnapshot pulls areas, devices, entities and states sequentially
// over one connection and builds the lookup indexes.
func FetchSnapshot(ctx context.Context, client Client) (*Snapshot, error) {
	areas, err := client.ListAreas(ctx)
	if err != nil {
		return nil, err
	}
	devices, err := client.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := client.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	states, err := client.ListStates(ctx)
	if err != nil {
		return nil, err
	}

	return NewSnapshot(areas, devices, entities, states), nil
}

// NewSnapshot builds a Snapshot from already-fetched registry dumps.
// Split out from FetchSnapshot so tests can construct snapshots directly.
func NewSnapshot(areas []registry.Area, devices []registry.Device, entities []registry.Entity, states []registry.State) *Snapshot {
	snap := &Snapshot{
		Areas:            areas,
		Devices:          devices,
		Entities:         entities,
		StatesByEntityID: make(map[string]registry.State, len(states)),
		deviceByID:       make(map[string]registry.Device, len(devices)),
		entityIDs:        make(map[string]bool, len(entities)),
	}

	for _, s := range states {
		if s.EntityID != "" {
			snap.StatesByEntityID[s.EntityID] = s
		}
	}
	for _, d := range devices {
		if d.ID != "" {
			snap.deviceByID[d.ID] = d
		}
	}
	for _, e := range entities {
		if e.EntityID != "" {
			snap.entityIDs[e.EntityID] = true
		}
	}

	return snap
}

// DeviceByID looks up a device by registry id.
func (s *Snapshot) DeviceByID(id string) (registry.Device, bool) {
	d, ok := s.deviceByID[id]
	return d, ok
}

// HasEntity reports whether an entity id exists in the registry.
func (s *Snapshot) HasEntity(entityID string) bool {
	return s.entityIDs[entityID]
}

// IsActive reports whether an entity has a live state and that state is
// not "unavailable". Entities without any state are inactive.
func (s *Snapshot) IsActive(entityID string) bool {
	st, ok := s.StatesByEntityID[entityID]
	if !ok {
		return false
	}
	return st.State != "" && st.State != stateUnavailable
}

// EffectiveAreaID resolves an entity's effective area: its own area if
// set, else the area of its linked device. Returns "" when neither is set.
func (s *Snapshot) EffectiveAreaID(e registry.Entity) string {
	if e.AreaID != "" {
		return e.AreaID
	}
	if e.DeviceID == "" {
		return ""
	}
	return s.deviceByID[e.DeviceID].AreaID
}

// AreaNameByID builds an id -> name map over all named areas.
func (s *Snapshot) AreaNameByID() map[string]string {
	m := make(map[string]string, len(s.Areas))
	for _, a := range s.Areas {
		if a.ID != "" {
			m[a.ID] = a.Name
		}
	}
	return m
}

// AreaIDByName builds a name -> id map over all named areas.
func (s *Snapshot) AreaIDByName() map[string]string {
	m := make(map[string]string, len(s.Areas))
	for _, a := range s.Areas {
		if a.ID != "" && a.Name != "" {
			m[a.Name] = a.ID
		}
	}
	return m
}

// entityDisplayName returns the best available display name for an
// entity: user-set name, else original name, else the live friendly name.
func (s *Snapshot) entityDisplayName(e registry.Entity) string {
	if e.Name != "" {
		return e.Name
	}
	if e.OriginalName != "" {
		return e.OriginalName
	}
	return s.StatesByEntityID[e.EntityID].FriendlyName()
}
