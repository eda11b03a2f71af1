package housekeeper

// Fingerprint returns the stable identity of a proposal across planning
// runs: "<type>:<key>", where key is the first present of entity id,
// device id, area id, or name in the payload.
//
// It is a pure function of type and payload; two actions proposing the
// same mutation on different runs fingerprint identically even though
// their IDs differ. The ignore list is keyed on fingerprints.
func Fingerprint(a Action) string {
	key := ""
	switch {
	case a.Payload.EntityID != "":
		key = a.Payload.EntityID
	case a.Payload.DeviceID != "":
		key = a.Payload.DeviceID
	case a.Payload.AreaID != "":
		key = a.Payload.AreaID
	case a.Payload.Name != "":
		key = a.Payload.Name
	}
	return string(a.Type) + ":" + key
}
