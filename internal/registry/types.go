package registry

// Area is a named grouping a device or entity can belong to.
// Area names are unique within the registry; the housekeeper must not
// propose a rename to a name that is already taken.
type Area struct {
	ID   string `json:"area_id"`
	Name string `json:"name"`
}

// Device is a physical or logical device owning zero or more entities.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	NameByUser string `json:"name_by_user,omitempty"`
	AreaID     string `json:"area_id,omitempty"`
}

// DisplayName returns the user-assigned name if set, else the integration name.
func (d Device) DisplayName() string {
	if d.NameByUser != "" {
		return d.NameByUser
	}
	return d.Name
}

// Entity is a registry entry for a single entity. EntityID is the unique,
// stable string key (e.g. "sensor.kitchen_temp"); UniqueID is the
// integration-scoped hardware identifier, if any.
type Entity struct {
	EntityID     string `json:"entity_id"`
	UniqueID     string `json:"unique_id,omitempty"`
	Name         string `json:"name,omitempty"`
	OriginalName string `json:"original_name,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
	AreaID       string `json:"area_id,omitempty"`
	HiddenBy     string `json:"hidden_by,omitempty"`
	DisabledBy   string `json:"disabled_by,omitempty"`
}

// State is the live state of one entity.
type State struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// FriendlyName returns the friendly_name attribute, if present.
func (s State) FriendlyName() string {
	if s.Attributes == nil {
		return ""
	}
	name, _ := s.Attributes["friendly_name"].(string)
	return name
}

// Fields is a JSON object of registry fields for an update call.
// A nil value is serialized as an explicit JSON null, which the registry
// requires to clear a field (e.g. Fields{"area_id": nil}).
type Fields map[string]any
