package housekeeper

import (
	"regexp"
	"strings"
)

var (
	tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

	// suffixDupRe matches "<base>_<n>" where n >= 2 (single digit 2-9 or
	// any multi-digit number). "_1" is not a duplicate marker.
	suffixDupRe = regexp.MustCompile(`^(.+)_([2-9]|[1-9][0-9]+)$`)
)

// Tokenize lower-cases s and splits it on runs of non-alphanumeric
// characters into a set of tokens.
//
// Example: "Living Room" -> {"living", "room"}.
func Tokenize(s string) map[string]bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return map[string]bool{}
	}
	tokens := map[string]bool{}
	for _, t := range tokenSplitRe.Split(s, -1) {
		if t != "" {
			tokens[t] = true
		}
	}
	return tokens
}

// tokensSubset reports whether every token in sub is present in super.
// An empty sub is never considered a subset; a grouping with no usable
// tokens must not match everything.
func tokensSubset(sub, super map[string]bool) bool {
	if len(sub) == 0 {
		return false
	}
	for t := range sub {
		if !super[t] {
			return false
		}
	}
	return true
}

// tokensIntersect reports whether the two sets share at least one token.
func tokensIntersect(a, b map[string]bool) bool {
	for t := range a {
		if b[t] {
			return true
		}
	}
	return false
}

// SuffixDuplicate reports whether entityID looks like a numeric suffix
// duplicate ("sensor.kitchen_temp_2") and returns the implied base id.
// The caller must still verify that the base id actually exists.
func SuffixDuplicate(entityID string) (base string, ok bool) {
	m := suffixDupRe.FindStringSubmatch(entityID)
	if m == nil {
		return entityID, false
	}
	return m[1], true
}

// normalizeName trims and lower-cases a display name for comparisons.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// genericMediaNames are display names that carry no information about
// what or where the media player is.
var genericMediaNames = map[string]bool{
	"tv":           true,
	"speaker":      true,
	"speakers":     true,
	"chromecast":   true,
	"google cast":  true,
	"google home":  true,
	"media player": true,
	"mediaplayer":  true,
	"nest audio":   true,
	"nest mini":    true,
	"home":         true,
	"default":      true,
	"unknown":      true,
}

// looksGenericMediaName reports whether a media player display name is
// generic: empty, in the fixed generic set, or literally starting with
// "media player".
func looksGenericMediaName(name string) bool {
	n := normalizeName(name)
	if n == "" {
		return true
	}
	return genericMediaNames[n] || strings.HasPrefix(n, "media player")
}

// mediaBaseLabel derives the rename base label for a generic media
// player from substring checks over its id and display name, in
// priority order.
func mediaBaseLabel(entityID, friendly string) string {
	hay := normalizeName(entityID) + " " + normalizeName(friendly)
	switch {
	case strings.Contains(hay, "tv"):
		return "TV"
	case strings.Contains(hay, "speaker"),
		strings.Contains(hay, "sonos"),
		strings.Contains(hay, "nest"):
		return "Speaker"
	case strings.Contains(hay, "beamer"),
		strings.Contains(hay, "projector"):
		return "Beamer"
	default:
		return "Media"
	}
}
