package housekeeper

import (
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-housekeeper/internal/registry"
)

// helperPrefixes are entity id prefixes that usually indicate helper or
// template entities worth reviewing for an area assignment.
var helperPrefixes = []string{"input_", "sensor.", "template."}

// mediaPlayerPrefix identifies media player entities.
const mediaPlayerPrefix = "media_player."

// ReportCounts summarises the findings of one audit.
type ReportCounts struct {
	Areas                        int `json:"areas"`
	Devices                      int `json:"devices"`
	Entities                     int `json:"entities"`
	DevicesWithoutArea           int `json:"devices_without_area"`
	EntitiesWithoutEffectiveArea int `json:"entities_without_effective_area"`
	SuffixDuplicateEntities      int `json:"suffix_duplicate_entities"`
	UniqueIDDuplicateGroups      int `json:"unique_id_duplicate_groups"`
	GenericMediaPlayers          int `json:"generic_media_players"`
}

// DeviceFinding references a device flagged by the audit.
type DeviceFinding struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// EntityFinding references an entity flagged by the audit.
type EntityFinding struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// SuffixDuplicateFinding pairs a suspected duplicate with its base id.
type SuffixDuplicateFinding struct {
	EntityID     string `json:"entity_id"`
	BaseEntityID string `json:"base_entity_id"`
}

// UniqueIDDuplicateFinding groups entity ids sharing one unique_id.
type UniqueIDDuplicateFinding struct {
	UniqueID  string   `json:"unique_id"`
	EntityIDs []string `json:"entity_ids"`
}

// MediaPlayerFinding references an active media player with a generic name.
type MediaPlayerFinding struct {
	EntityID        string `json:"entity_id"`
	CurrentName     string `json:"current_name"`
	EffectiveAreaID string `json:"effective_area_id,omitempty"`
}

// HelperFinding references an active helper-like entity.
type HelperFinding struct {
	EntityID        string `json:"entity_id"`
	EffectiveAreaID string `json:"effective_area_id,omitempty"`
}

// Report is the read-only audit output. It never contains Actions; it is
// purely informational.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Counts      ReportCounts `json:"counts"`

	DevicesWithoutArea           []DeviceFinding            `json:"devices_without_area"`
	EntitiesWithoutEffectiveArea []EntityFinding            `json:"entities_without_effective_area"`
	SuffixDuplicateEntities      []SuffixDuplicateFinding   `json:"suffix_duplicate_entities"`
	UniqueIDDuplicates           []UniqueIDDuplicateFinding `json:"unique_id_duplicates"`
	GenericMediaPlayers          []MediaPlayerFinding       `json:"generic_media_players"`
	Helpers                      []HelperFinding            `json:"helpers"`

	AreaIDByName map[string]string `json:"area_id_by_name"`
	AreaNameByID map[string]string `json:"area_name_by_id"`
}

// Audit computes organisational statistics over a snapshot without side
// effects.
//
// Classifications that depend on an entity being in use (missing areas,
// generic names, helpers) ignore inactive entities. The duplicate-id and
// unique-id checks are identity-based and run regardless of state.
func Audit(snap *Snapshot) *Report {
	report := &Report{
		GeneratedAt:  time.Now().UTC(),
		AreaIDByName: snap.AreaIDByName(),
		AreaNameByID: snap.AreaNameByID(),
	}

	for _, d := range snap.Devices {
		if d.AreaID != "" {
			continue
		}
		report.DevicesWithoutArea = append(report.DevicesWithoutArea, DeviceFinding{
			DeviceID: d.ID,
			Name:     d.DisplayName(),
		})
	}

	for _, e := range snap.Entities {
		if e.EntityID == "" || !snap.IsActive(e.EntityID) {
			continue
		}
		if snap.EffectiveAreaID(e) != "" {
			continue
		}
		name := e.Name
		if name == "" {
			name = e.OriginalName
		}
		report.EntitiesWithoutEffectiveArea = append(report.EntitiesWithoutEffectiveArea, EntityFinding{
			EntityID: e.EntityID,
			Name:     name,
			DeviceID: e.DeviceID,
		})
	}

	for _, e := range snap.Entities {
		if e.EntityID == "" {
			continue
		}
		base, ok := SuffixDuplicate(e.EntityID)
		if ok && snap.HasEntity(base) {
			report.SuffixDuplicateEntities = append(report.SuffixDuplicateEntities, SuffixDuplicateFinding{
				EntityID:     e.EntityID,
				BaseEntityID: base,
			})
		}
	}

	report.UniqueIDDuplicates = uniqueIDDuplicates(snap.Entities)

	for _, e := range snap.Entities {
		if !strings.HasPrefix(e.EntityID, mediaPlayerPrefix) || !snap.IsActive(e.EntityID) {
			continue
		}
		friendly := snap.entityDisplayName(e)
		if !looksGenericMediaName(friendly) {
			continue
		}
		report.GenericMediaPlayers = append(report.GenericMediaPlayers, MediaPlayerFinding{
			EntityID:        e.EntityID,
			CurrentName:     friendly,
			EffectiveAreaID: snap.EffectiveAreaID(e),
		})
	}

	for _, e := range snap.Entities {
		if !hasHelperPrefix(e.EntityID) || !snap.IsActive(e.EntityID) {
			continue
		}
		report.Helpers = append(report.Helpers, HelperFinding{
			EntityID:        e.EntityID,
			EffectiveAreaID: snap.EffectiveAreaID(e),
		})
	}

	report.Counts = ReportCounts{
		Areas:                        len(snap.Areas),
		Devices:                      len(snap.Devices),
		Entities:                     len(snap.Entities),
		DevicesWithoutArea:           len(report.DevicesWithoutArea),
		EntitiesWithoutEffectiveArea: len(report.EntitiesWithoutEffectiveArea),
		SuffixDuplicateEntities:      len(report.SuffixDuplicateEntities),
		UniqueIDDuplicateGroups:      len(report.UniqueIDDuplicates),
		GenericMediaPlayers:          len(report.GenericMediaPlayers),
	}

	return report
}

// uniqueIDDuplicates groups entities sharing a unique_id, with both the
// groups and their members sorted for deterministic output.
func uniqueIDDuplicates(entities []registry.Entity) []UniqueIDDuplicateFinding {
	byUniqueID := map[string][]string{}
	for _, e := range entities {
		if e.UniqueID != "" && e.EntityID != "" {
			byUniqueID[e.UniqueID] = append(byUniqueID[e.UniqueID], e.EntityID)
		}
	}

	var findings []UniqueIDDuplicateFinding
	for uid, ids := range byUniqueID {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		findings = append(findings, UniqueIDDuplicateFinding{UniqueID: uid, EntityIDs: ids})
	}
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].UniqueID < findings[j].UniqueID
	})
	return findings
}

// hasHelperPrefix reports whether an entity id has a helper-like prefix.
func hasHelperPrefix(entityID string) bool {
	for _, p := range helperPrefixes {
		if strings.HasPrefix(entityID, p) {
			return true
		}
	}
	return false
}
