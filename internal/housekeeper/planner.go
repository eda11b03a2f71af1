package housekeeper

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-housekeeper/internal/registry"
)

// PlanOptions controls one planning run.
type PlanOptions struct {
	// IncludeFallback enables the fallback-area passes: entities that
	// cannot be matched to any area are proposed into FallbackAreaName,
	// creating it first if necessary.
	IncludeFallback bool

	// FallbackAreaName is the name of the catch-all area.
	FallbackAreaName string
}

// planner carries the working state of one planning run.
//
// Passes run in a fixed order and must respect mutations implied by
// earlier passes even though nothing has been applied yet; the planned*
// marker sets are consulted and updated by every pass.
type planner struct {
	snap  *Snapshot
	rules *Ruleset
	opts  PlanOptions

	actions []Action

	plannedEntityArea map[string]bool
	plannedDeviceArea map[string]bool
	plannedRemove     map[string]bool
	plannedHide       map[string]bool

	needsFallback    bool
	fallbackProposed bool

	// Derived indexes, built once up front.
	areaNameByID      map[string]string
	areaIDByNameLower map[string]string
	areaByNameLower   map[string][]registry.Area
	areaTokens        []areaTokenEntry
	sortedEntityIDs   []string
	entitiesByDevice  map[string][]registry.Entity
}

// areaTokenEntry caches an area's tokenized name for token matching.
type areaTokenEntry struct {
	ID     string
	Name   string
	Tokens map[string]bool
}

// BuildPlan runs the full rule pipeline over a snapshot and returns the
// resulting plan: an ordered, deduplicated, idempotent action list with
// ignored proposals filtered out.
//
// Re-running against an unchanged snapshot and ruleset yields an action
// list identical up to the generated IDs, with identical fingerprints in
// identical order. Stable sort keys and first-match-wins rule order are
// what make this hold.
func BuildPlan(snap *Snapshot, rules *Ruleset, prov RuleProvenance, ignored []string, opts PlanOptions) *Plan {
	p := &planner{
		snap:              snap,
		rules:             rules,
		opts:              opts,
		plannedEntityArea: map[string]bool{},
		plannedDeviceArea: map[string]bool{},
		plannedRemove:     map[string]bool{},
		plannedHide:       map[string]bool{},
	}
	p.buildIndexes()

	p.planAreaRenames()
	p.planEntityFilters(p.rules.EntityRemove, ActionRemoveEntity, p.plannedRemove)
	p.planEntityFilters(p.rules.EntityHide, ActionHideEntity, p.plannedHide)
	p.planAreaInheritance()
	p.planDeviceAreaBackfill()
	p.planTokenMatch()
	p.planFallback()
	p.planSuffixDuplicates()
	p.planUniqueIDDuplicates()
	p.planEntityAreaRules()
	p.planDeviceAreaRules()
	p.planHelperKeywords()
	p.planMediaRenames()

	// Suppression runs last: drop actions whose fingerprint is ignored.
	ignoredSet := toSet(ignored)
	visible := make([]Action, 0, len(p.actions))
	for _, a := range p.actions {
		if !ignoredSet[Fingerprint(a)] {
			visible = append(visible, a)
		}
	}

	return &Plan{
		CreatedAt:    time.Now().UTC(),
		Rules:        prov,
		Actions:      visible,
		AreaNameByID: p.areaNameByID,
		IgnoredCount: len(p.actions) - len(visible),
	}
}

// buildIndexes precomputes the lookup structures every pass shares.
func (p *planner) buildIndexes() {
	p.areaNameByID = map[string]string{}
	p.areaIDByNameLower = map[string]string{}
	p.areaByNameLower = map[string][]registry.Area{}
	for _, a := range p.snap.Areas {
		if a.Name != "" {
			key := normalizeName(a.Name)
			p.areaByNameLower[key] = append(p.areaByNameLower[key], a)
		}
		if a.ID == "" || a.Name == "" {
			continue
		}
		p.areaNameByID[a.ID] = a.Name
		p.areaIDByNameLower[normalizeName(a.Name)] = a.ID
		p.areaTokens = append(p.areaTokens, areaTokenEntry{
			ID:     a.ID,
			Name:   a.Name,
			Tokens: Tokenize(a.Name),
		})
	}

	for _, e := range p.snap.Entities {
		if e.EntityID != "" {
			p.sortedEntityIDs = append(p.sortedEntityIDs, e.EntityID)
		}
	}
	sort.Strings(p.sortedEntityIDs)

	p.entitiesByDevice = map[string][]registry.Entity{}
	for _, e := range p.snap.Entities {
		if e.DeviceID != "" {
			p.entitiesByDevice[e.DeviceID] = append(p.entitiesByDevice[e.DeviceID], e)
		}
	}
}

// add appends a new action with a fresh opaque id.
func (p *planner) add(t ActionType, payload Payload, reason string, confidence float64, requiresApproval bool) {
	p.actions = append(p.actions, Action{
		ID:               uuid.NewString(),
		Type:             t,
		Payload:          payload,
		Reason:           reason,
		Confidence:       confidence,
		RequiresApproval: requiresApproval,
	})
}

// planAreaRenames applies area rename rules. A rename only fires when
// the source name resolves to exactly one area and the target name to
// none, which keeps the registry's name-uniqueness invariant intact.
func (p *planner) planAreaRenames() {
	for _, r := range p.rules.AreaRenames {
		src := p.areaByNameLower[normalizeName(r.From)]
		dst := p.areaByNameLower[normalizeName(r.To)]
		if len(src) != 1 || len(dst) != 0 {
			continue
		}
		areaID := src[0].ID
		if areaID == "" {
			continue
		}
		p.add(ActionRenameArea,
			Payload{AreaID: areaID, Name: r.To},
			fmt.Sprintf("Rule: rename area '%s' -> '%s'.", r.From, r.To),
			0.9, r.RequiresApproval)
	}
}

// planEntityFilters emits remove or hide actions for rule-listed literal
// ids first, then regex matches over all entity ids in sorted order.
// Both share the structure; only the action type and marker set differ.
func (p *planner) planEntityFilters(filter FilterRules, actionType ActionType, planned map[string]bool) {
	verb := "removal"
	if actionType == ActionHideEntity {
		verb = "hide"
	}

	for _, id := range filter.IDs {
		if !p.snap.HasEntity(id) || planned[id] {
			continue
		}
		p.add(actionType, p.filterPayload(actionType, id),
			fmt.Sprintf("Rule: explicit entity %s.", verb),
			1.0, true)
		planned[id] = true
	}

	for _, r := range filter.Regex {
		for _, id := range p.sortedEntityIDs {
			if planned[id] || !r.Pattern.MatchString(id) {
				continue
			}
			p.add(actionType, p.filterPayload(actionType, id),
				fmt.Sprintf("Rule: entity_id matches /%s/.", r.Source),
				0.95, r.RequiresApproval)
			planned[id] = true
		}
	}
}

// filterPayload builds the payload for a remove or hide action.
func (p *planner) filterPayload(actionType ActionType, entityID string) Payload {
	if actionType == ActionHideEntity {
		return Payload{EntityID: entityID, HiddenBy: "user"}
	}
	return Payload{EntityID: entityID}
}

// planAreaInheritance assigns each active, area-less entity the area of
// its device when the device has one. This inference is mechanical and
// non-ambiguous, so no approval is required.
func (p *planner) planAreaInheritance() {
	for _, e := range p.snap.Entities {
		if e.EntityID == "" || p.plannedRemove[e.EntityID] {
			continue
		}
		if !p.snap.IsActive(e.EntityID) || e.AreaID != "" || e.DeviceID == "" {
			continue
		}
		device, ok := p.snap.DeviceByID(e.DeviceID)
		if !ok || device.AreaID == "" {
			continue
		}
		p.add(ActionSetEntityArea,
			Payload{EntityID: e.EntityID, AreaID: device.AreaID},
			"Entity has no area; its device has one, so the entity inherits deterministically.",
			1.0, false)
		p.plannedEntityArea[e.EntityID] = true
	}
}

// planDeviceAreaBackfill assigns an area to each area-less device whose
// linked active entities' explicit areas collapse to exactly one value.
// Explicit areas only: inherited ones would be circular here.
func (p *planner) planDeviceAreaBackfill() {
	for _, d := range p.snap.Devices {
		if d.ID == "" || d.AreaID != "" {
			continue
		}
		explicit := map[string]bool{}
		for _, e := range p.entitiesByDevice[d.ID] {
			if e.EntityID == "" || !p.snap.IsActive(e.EntityID) {
				continue
			}
			if e.AreaID != "" {
				explicit[e.AreaID] = true
			}
		}
		if len(explicit) != 1 {
			continue
		}
		var areaID string
		for id := range explicit {
			areaID = id
		}
		p.add(ActionSetDeviceArea,
			Payload{DeviceID: d.ID, AreaID: areaID},
			"Device has no area; all linked active entities agree on exactly one explicit area.",
			0.98, false)
		p.plannedDeviceArea[d.ID] = true
	}
}

// planTokenMatch infers an area for each remaining active, area-less
// entity (whose device is also area-less) by testing which area names'
// token sets are contained in the entity's descriptive tokens. Exactly
// one candidate wins; zero or several leaves the entity for the
// fallback passes.
func (p *planner) planTokenMatch() {
	for _, e := range p.snap.Entities {
		if e.EntityID == "" || p.plannedEntityArea[e.EntityID] || p.plannedRemove[e.EntityID] {
			continue
		}
		if !p.snap.IsActive(e.EntityID) || e.AreaID != "" {
			continue
		}
		if e.DeviceID != "" {
			if device, ok := p.snap.DeviceByID(e.DeviceID); ok && device.AreaID != "" {
				continue
			}
		}

		hay := Tokenize(strings.Join([]string{
			e.EntityID,
			e.Name,
			e.OriginalName,
			p.snap.StatesByEntityID[e.EntityID].FriendlyName(),
		}, " "))

		var matches []areaTokenEntry
		for _, at := range p.areaTokens {
			if tokensSubset(at.Tokens, hay) {
				matches = append(matches, at)
			}
		}

		switch {
		case len(matches) == 1:
			p.add(ActionSetEntityArea,
				Payload{EntityID: e.EntityID, AreaID: matches[0].ID},
				fmt.Sprintf("Token match to area name '%s' from entity metadata.", matches[0].Name),
				0.95, false)
			p.plannedEntityArea[e.EntityID] = true
		case p.opts.IncludeFallback:
			p.needsFallback = true
		}
	}
}

// planFallback creates the fallback area if needed and places every
// remaining active entity without an effective area into it. Placement
// also runs when the area is only about to be created: the payload then
// carries the area name, resolved to an id at apply time after the
// create_area action has run.
func (p *planner) planFallback() {
	if !p.opts.IncludeFallback {
		return
	}

	fallbackID := p.areaIDByNameLower[normalizeName(p.opts.FallbackAreaName)]
	if p.needsFallback && fallbackID == "" {
		p.add(ActionCreateArea,
			Payload{Name: p.opts.FallbackAreaName},
			"Fallback area requested to ensure everything has an effective area.",
			0.6, true)
		p.fallbackProposed = true
	}

	if fallbackID == "" && !p.fallbackProposed {
		return
	}

	for _, e := range p.snap.Entities {
		if e.EntityID == "" || p.plannedEntityArea[e.EntityID] || p.plannedRemove[e.EntityID] {
			continue
		}
		if !p.snap.IsActive(e.EntityID) || p.snap.EffectiveAreaID(e) != "" {
			continue
		}
		payload := Payload{EntityID: e.EntityID, AreaID: fallbackID}
		if fallbackID == "" {
			payload.Name = p.opts.FallbackAreaName
		}
		p.add(ActionSetEntityArea, payload,
			fmt.Sprintf("Fallback: put entity into area '%s'.", p.opts.FallbackAreaName),
			0.6, true)
		p.plannedEntityArea[e.EntityID] = true
	}
}

// planSuffixDuplicates proposes removal of entities whose id is a
// numeric-suffix duplicate of another existing entity.
func (p *planner) planSuffixDuplicates() {
	for _, e := range p.snap.Entities {
		if e.EntityID == "" || p.plannedRemove[e.EntityID] {
			continue
		}
		base, ok := SuffixDuplicate(e.EntityID)
		if !ok || !p.snap.HasEntity(base) {
			continue
		}
		p.add(ActionRemoveEntity,
			Payload{EntityID: e.EntityID},
			fmt.Sprintf("Entity id looks like a suffix duplicate of '%s'.", base),
			0.9, true)
		p.plannedRemove[e.EntityID] = true
	}
}

// planUniqueIDDuplicates proposes hiding all but the lexicographically
// smallest entity of every group sharing a unique_id.
func (p *planner) planUniqueIDDuplicates() {
	for _, group := range uniqueIDDuplicates(p.snap.Entities) {
		kept := group.EntityIDs[0]
		for _, id := range group.EntityIDs[1:] {
			if p.plannedHide[id] || p.plannedRemove[id] {
				continue
			}
			p.add(ActionHideEntity,
				Payload{EntityID: id, HiddenBy: "user"},
				fmt.Sprintf("Duplicate unique_id '%s'. Keeping '%s', hiding '%s'.", group.UniqueID, kept, id),
				0.9, true)
			p.plannedHide[id] = true
		}
	}
}

// planEntityAreaRules applies pattern->area rules to active entities,
// matched against the entity id.
func (p *planner) planEntityAreaRules() {
	for _, r := range p.rules.EntityArea {
		targetAreaID := p.areaIDByNameLower[normalizeName(r.Area)]
		if targetAreaID == "" {
			continue // target area must already exist
		}
		for _, e := range p.snap.Entities {
			if e.EntityID == "" || p.plannedRemove[e.EntityID] {
				continue
			}
			if !p.snap.IsActive(e.EntityID) {
				continue
			}
			if !r.Overwrite && (p.snap.EffectiveAreaID(e) != "" || p.plannedEntityArea[e.EntityID]) {
				continue
			}
			if !r.Pattern.MatchString(e.EntityID) {
				continue
			}
			p.add(ActionSetEntityArea,
				Payload{EntityID: e.EntityID, AreaID: targetAreaID},
				fmt.Sprintf("Rule: entity_id matches /%s/ -> area '%s'.", r.Source, r.Area),
				0.9, r.RequiresApproval)
			p.plannedEntityArea[e.EntityID] = true
		}
	}
}

// planDeviceAreaRules applies pattern->area rules to devices, matched
// against the display name.
func (p *planner) planDeviceAreaRules() {
	for _, r := range p.rules.DeviceArea {
		targetAreaID := p.areaIDByNameLower[normalizeName(r.Area)]
		if targetAreaID == "" {
			continue
		}
		for _, d := range p.snap.Devices {
			if d.ID == "" {
				continue
			}
			if !r.Overwrite && (d.AreaID != "" || p.plannedDeviceArea[d.ID]) {
				continue
			}
			name := d.DisplayName()
			if name == "" || !r.Pattern.MatchString(name) {
				continue
			}
			p.add(ActionSetDeviceArea,
				Payload{DeviceID: d.ID, AreaID: targetAreaID},
				fmt.Sprintf("Rule: device name matches /%s/ -> area '%s'.", r.Source, r.Area),
				0.9, r.RequiresApproval)
			p.plannedDeviceArea[d.ID] = true
		}
	}
}

// planHelperKeywords assigns areas to remaining area-less active
// entities by keyword intersection. Rules are tried in declared order
// and at most one fires per entity.
func (p *planner) planHelperKeywords() {
	if len(p.rules.HelperAreaRules) == 0 {
		return
	}
	for _, e := range p.snap.Entities {
		if e.EntityID == "" || p.plannedEntityArea[e.EntityID] {
			continue
		}
		if !p.snap.IsActive(e.EntityID) || p.snap.EffectiveAreaID(e) != "" {
			continue
		}
		tokens := Tokenize(e.EntityID + " " + e.OriginalName + " " + e.Name)
		for _, r := range p.rules.HelperAreaRules {
			targetAreaID := p.areaIDByNameLower[normalizeName(r.Area)]
			if targetAreaID == "" || !tokensIntersect(r.Keywords, tokens) {
				continue
			}
			p.add(ActionSetEntityArea,
				Payload{EntityID: e.EntityID, AreaID: targetAreaID},
				fmt.Sprintf("Rule: keyword match suggests area '%s'.", r.Area),
				0.85, r.RequiresApproval)
			p.plannedEntityArea[e.EntityID] = true
			break // first match wins
		}
	}
}

// mediaCandidate is one generic-named media player eligible for a rename.
type mediaCandidate struct {
	entityID string
	current  string
}

// planMediaRenames proposes names for active media players with an
// effective area and a generic display name. Candidates grouped by
// (area, base label); groups with more than one member get a stable
// 1-based index sorted by entity id.
func (p *planner) planMediaRenames() {
	grouped := map[string][]mediaCandidate{}
	var groupKeys []string

	for _, e := range p.snap.Entities {
		if !strings.HasPrefix(e.EntityID, mediaPlayerPrefix) || !p.snap.IsActive(e.EntityID) {
			continue
		}
		areaID := p.snap.EffectiveAreaID(e)
		if areaID == "" {
			continue
		}
		current := p.snap.entityDisplayName(e)
		if !looksGenericMediaName(current) {
			continue
		}
		base := mediaBaseLabel(e.EntityID, current)
		key := areaID + "\x00" + base
		if _, seen := grouped[key]; !seen {
			groupKeys = append(groupKeys, key)
		}
		grouped[key] = append(grouped[key], mediaCandidate{entityID: e.EntityID, current: current})
	}

	sort.Strings(groupKeys)
	for _, key := range groupKeys {
		areaID, base, _ := strings.Cut(key, "\x00")
		items := grouped[key]
		sort.Slice(items, func(i, j int) bool { return items[i].entityID < items[j].entityID })

		areaName := p.areaNameByID[areaID]
		if areaName == "" {
			areaName = areaID
		}
		needNumbers := len(items) > 1

		for i, item := range items {
			newName := base + " " + areaName
			if needNumbers {
				newName = fmt.Sprintf("%s %d", newName, i+1)
			}
			p.add(ActionRenameEntity,
				Payload{EntityID: item.entityID, Name: newName},
				fmt.Sprintf("Generic media player name '%s' -> '%s' based on effective area.", item.current, newName),
				0.8, true)
		}
	}
}
