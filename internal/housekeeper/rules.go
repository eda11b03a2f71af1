package housekeeper

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Conventional rule file locations, tried in order after any explicitly
// configured path. These match where the registry host mounts user
// configuration.
var defaultRulesPaths = []string{
	"/config/housekeeper/rules.yaml",
	"/config/housekeeper_rules.yaml",
	"./configs/rules.yaml",
}

// RuleProvenance records where the ruleset came from and anything that
// went wrong loading it. It is embedded in every persisted Plan so a
// reviewer can tell which rules produced it.
type RuleProvenance struct {
	Path        string   `json:"path,omitempty"`
	Error       string   `json:"error,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// AreaRenameRule renames an area, matched by current name
// (case-insensitive).
type AreaRenameRule struct {
	From             string
	To               string
	RequiresApproval bool
}

// RegexRule is a compiled, case-insensitive pattern over entity ids or
// device names.
type RegexRule struct {
	Pattern          *regexp.Regexp
	Source           string // original pattern text, for reasons and diagnostics
	RequiresApproval bool
}

// FilterRules selects entities by literal id or by regex, in that order.
type FilterRules struct {
	IDs   []string
	Regex []RegexRule
}

// AreaPatternRule assigns a target area to entities (matched by id) or
// devices (matched by display name).
type AreaPatternRule struct {
	Pattern          *regexp.Regexp
	Source           string
	Area             string
	Overwrite        bool
	RequiresApproval bool
}

// KeywordRule assigns an area when any keyword appears as a token in an
// entity's id or names. First matching rule wins.
type KeywordRule struct {
	Area             string
	Keywords         map[string]bool
	RequiresApproval bool
}

// Ruleset is the validated, typed rule document the planner consumes.
// A zero Ruleset is valid and plans nothing rule-driven.
type Ruleset struct {
	AreaRenames     []AreaRenameRule
	EntityRemove    FilterRules
	EntityHide      FilterRules
	EntityArea      []AreaPatternRule
	DeviceArea      []AreaPatternRule
	HelperAreaRules []KeywordRule
}

// Raw YAML shapes. requires_approval defaults to true everywhere, so the
// fields are pointers to distinguish "absent" from "false".
type rawRuleDoc struct {
	AreaRenames     []rawAreaRename  `yaml:"area_renames"`
	EntityRemove    rawFilter        `yaml:"entity_remove"`
	EntityHide      rawFilter        `yaml:"entity_hide"`
	EntityArea      []rawAreaPattern `yaml:"entity_area"`
	DeviceArea      []rawAreaPattern `yaml:"device_area"`
	HelperAreaRules []rawHelperKeywd `yaml:"helper_area_rules"`
}

type rawAreaRename struct {
	From             string `yaml:"from"`
	To               string `yaml:"to"`
	RequiresApproval *bool  `yaml:"requires_approval"`
}

type rawFilter struct {
	IDs   []string   `yaml:"ids"`
	Regex []rawRegex `yaml:"regex"`
}

type rawRegex struct {
	Pattern          string `yaml:"pattern"`
	RequiresApproval *bool  `yaml:"requires_approval"`
}

type rawAreaPattern struct {
	Pattern          string `yaml:"pattern"`
	Area             string `yaml:"area"`
	Overwrite        bool   `yaml:"overwrite"`
	RequiresApproval *bool  `yaml:"requires_approval"`
}

type rawHelperKeywd struct {
	Area             string   `yaml:"area"`
	Keywords         []string `yaml:"keywords"`
	RequiresApproval *bool    `yaml:"requires_approval"`
}

// LoadRules loads and validates the rule document.
//
// The explicit path (if any) is tried first, then the conventional
// locations; the first existing file wins. A missing or malformed file
// is never fatal: planning proceeds with an empty ruleset and the
// provenance records what happened. Individually invalid entries (bad
// regex, missing fields) are dropped with a diagnostic rather than
// failing the load.
func LoadRules(explicitPath string) (*Ruleset, RuleProvenance) {
	path := findRulesPath(explicitPath)
	if path == "" {
		return &Ruleset{}, RuleProvenance{Error: "no rules file found"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &Ruleset{}, RuleProvenance{Path: path, Error: err.Error()}
	}

	var raw rawRuleDoc
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return &Ruleset{}, RuleProvenance{Path: path, Error: fmt.Sprintf("parsing rules: %v", err)}
	}

	rules, diags := compileRules(&raw)
	return rules, RuleProvenance{Path: path, Diagnostics: diags}
}

// findRulesPath returns the first existing candidate path, or "".
func findRulesPath(explicitPath string) string {
	candidates := defaultRulesPaths
	if explicitPath != "" {
		candidates = append([]string{explicitPath}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// compileRules validates the raw document into a typed Ruleset,
// collecting a diagnostic for every dropped entry.
func compileRules(raw *rawRuleDoc) (*Ruleset, []string) {
	var diags []string
	rules := &Ruleset{}

	for i, r := range raw.AreaRenames {
		from := strings.TrimSpace(r.From)
		to := strings.TrimSpace(r.To)
		if from == "" || to == "" || from == to {
			diags = append(diags, fmt.Sprintf("area_renames[%d]: needs distinct non-empty from/to", i))
			continue
		}
		rules.AreaRenames = append(rules.AreaRenames, AreaRenameRule{
			From:             from,
			To:               to,
			RequiresApproval: approvalOrDefault(r.RequiresApproval),
		})
	}

	rules.EntityRemove = compileFilter(raw.EntityRemove, "entity_remove", &diags)
	rules.EntityHide = compileFilter(raw.EntityHide, "entity_hide", &diags)

	rules.EntityArea = compileAreaPatterns(raw.EntityArea, "entity_area", &diags)
	rules.DeviceArea = compileAreaPatterns(raw.DeviceArea, "device_area", &diags)

	for i, r := range raw.HelperAreaRules {
		area := strings.TrimSpace(r.Area)
		keywords := map[string]bool{}
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords[k] = true
			}
		}
		if area == "" || len(keywords) == 0 {
			diags = append(diags, fmt.Sprintf("helper_area_rules[%d]: needs area and keywords", i))
			continue
		}
		rules.HelperAreaRules = append(rules.HelperAreaRules, KeywordRule{
			Area:             area,
			Keywords:         keywords,
			RequiresApproval: approvalOrDefault(r.RequiresApproval),
		})
	}

	return rules, diags
}

// compileFilter validates an ids+regex filter block.
func compileFilter(raw rawFilter, section string, diags *[]string) FilterRules {
	out := FilterRules{}
	for _, id := range raw.IDs {
		if id = strings.TrimSpace(id); id != "" {
			out.IDs = append(out.IDs, id)
		}
	}
	for i, r := range raw.Regex {
		rx, err := compileInsensitive(r.Pattern)
		if err != nil {
			*diags = append(*diags, fmt.Sprintf("%s.regex[%d]: %v", section, i, err))
			continue
		}
		out.Regex = append(out.Regex, RegexRule{
			Pattern:          rx,
			Source:           r.Pattern,
			RequiresApproval: approvalOrDefault(r.RequiresApproval),
		})
	}
	return out
}

// compileAreaPatterns validates a pattern->area rule list.
func compileAreaPatterns(raw []rawAreaPattern, section string, diags *[]string) []AreaPatternRule {
	var out []AreaPatternRule
	for i, r := range raw {
		area := strings.TrimSpace(r.Area)
		if r.Pattern == "" || area == "" {
			*diags = append(*diags, fmt.Sprintf("%s[%d]: needs pattern and area", section, i))
			continue
		}
		rx, err := compileInsensitive(r.Pattern)
		if err != nil {
			*diags = append(*diags, fmt.Sprintf("%s[%d]: %v", section, i, err))
			continue
		}
		out = append(out, AreaPatternRule{
			Pattern:          rx,
			Source:           r.Pattern,
			Area:             area,
			Overwrite:        r.Overwrite,
			RequiresApproval: approvalOrDefault(r.RequiresApproval),
		})
	}
	return out
}

// compileInsensitive compiles a pattern case-insensitively.
func compileInsensitive(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	return regexp.Compile("(?i)" + pattern)
}

// approvalOrDefault resolves an optional requires_approval to its
// default of true.
func approvalOrDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}
