package textparse

import (
	"regexp"
	"strings"
)

// ParsedLocation is the structured result of normalizing a raw event
// location string.
type ParsedLocation struct {
	Room     string
	Building string
}

var (
	roomSalaRe  = regexp.MustCompile(`(?i)\bsala\s+([A-Za-z0-9.\-/]+)\b`)
	roomRoomRe  = regexp.MustCompile(`(?i)\broom\s+([A-Za-z0-9.\-/]+)\b`)
	lastNumeric = regexp.MustCompile(`\b(\d{1,4}[A-Za-z]?)\b`)
)

// buildingAlias maps a regex over the raw location to a canonical
// building name. Declared as data (longest/most-specific pattern
// first) so new buildings are additions, not code changes, per
// spec.md §4.2's "priority mapping (longest match first)".
type buildingAlias struct {
	pattern  *regexp.Regexp
	building string
}

var buildingAliases = []buildingAlias{
	{regexp.MustCompile(`(?i)\bcorp(?:ul)?\s*central\b`), "Corp Central"},
	{regexp.MustCompile(`(?i)\bcorp(?:ul)?\s*[a-z]\b`), ""}, // resolved dynamically, see resolveCorpLetter
	{regexp.MustCompile(`(?i)\bcladire(?:a)?\s*noua\b`), "Clădirea Nouă"},
	{regexp.MustCompile(`(?i)\bpolivalenta\b`), "Sala Polivalentă"},
	{regexp.MustCompile(`(?i)\bcamin(?:ul)?\s*\d+\b`), "Cămin"},
	// The generic institution nickname is ambiguous on its own; it is
	// resolved by looking at the room text (see resolveAmbiguous).
	{regexp.MustCompile(`(?i)\bfacultate(?:a)?\b`), "__ambiguous__"},
}

var corpLetterRe = regexp.MustCompile(`(?i)\bcorp(?:ul)?\s*([a-z])\b`)

// ParseLocation normalizes a raw event location into room/building.
func ParseLocation(raw string) ParsedLocation {
	s := whitespaceRun.ReplaceAllString(strings.TrimSpace(raw), " ")

	room := ""
	switch {
	case roomSalaRe.MatchString(s):
		room = roomSalaRe.FindStringSubmatch(s)[1]
	case roomRoomRe.MatchString(s):
		room = roomRoomRe.FindStringSubmatch(s)[1]
	default:
		if matches := lastNumeric.FindAllString(s, -1); len(matches) > 0 {
			room = matches[len(matches)-1]
		}
	}

	building := resolveBuilding(s, room)

	return ParsedLocation{Room: room, Building: building}
}

func resolveBuilding(s, room string) string {
	var best buildingAlias
	bestLen := -1
	for _, alias := range buildingAliases {
		if loc := alias.pattern.FindStringIndex(s); loc != nil {
			if matchLen := loc[1] - loc[0]; matchLen > bestLen {
				bestLen = matchLen
				best = alias
			}
		}
	}
	if bestLen < 0 {
		return ""
	}
	if best.building == "" {
		if m := corpLetterRe.FindStringSubmatch(s); m != nil {
			return "Corp " + strings.ToUpper(m[1])
		}
		return ""
	}
	if best.building == "__ambiguous__" {
		return resolveAmbiguous(room)
	}
	return best.building
}

// resolveAmbiguous disambiguates the generic institution nickname by
// looking at the room token: a purely numeric room under 100 belongs
// to the main building, higher numbers to the annex, per the
// institution's room numbering scheme.
var leadingDigits = regexp.MustCompile(`^\d+`)

func resolveAmbiguous(room string) string {
	digits := leadingDigits.FindString(room)
	if len(digits) >= 3 {
		return "Anexă"
	}
	return "Corp Central"
}
