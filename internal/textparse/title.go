// Package textparse normalizes the free-form titles and locations
// published by institutional room calendars into structured fields.
// Every function here is pure, total (never errors — falls through to
// pass-through on mismatch) and idempotent: re-running it against its
// own output is a no-op on the fields it already extracted.
package textparse

import (
	"regexp"
	"strings"
)

// ParsedTitle is the structured result of normalizing a raw event
// title.
type ParsedTitle struct {
	Subject      string
	DisplayTitle string
	Professor    string
	GroupDisplay string
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// institutionPrefixes are stripped from the start of a title before
// any other pattern is tried. Declared as data, not code, so a new
// institution's boilerplate can be added without touching parse
// logic.
var institutionPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\[?curs\]?\s*[-:]\s*`),
	regexp.MustCompile(`(?i)^\[?laborator\]?\s*[-:]\s*`),
	regexp.MustCompile(`(?i)^\[?seminar\]?\s*[-:]\s*`),
}

// honorificPatterns match a professor token anchored to a word boundary.
// Longer, qualified patterns are tried first so "Conf. Dr." wins over
// a bare "Dr." match, per the tie-break rule in spec.md §4.2.
var honorificPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(Prof\.?\s*Univ\.?\s*Dr\.?\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+(?:\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+){0,3})\b`),
	regexp.MustCompile(`(?i)\b(Conf\.?\s*Dr\.?\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+(?:\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+){0,3})\b`),
	regexp.MustCompile(`(?i)\b(Lect\.?\s*Dr\.?\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+(?:\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+){0,3})\b`),
	regexp.MustCompile(`(?i)\b(Asist\.?\s*Dr\.?\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+(?:\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+){0,3})\b`),
	regexp.MustCompile(`(?i)\b(Prof\.?\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+(?:\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+){0,3})\b`),
	regexp.MustCompile(`(?i)\b(Dr\.?\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+(?:\s+[A-ZȘȚÎÂĂ][\p{L}.'-]+){0,3})\b`),
}

// yearRe, groupRe and compact extract a group/year token, tried in the
// priority order documented in spec.md §4.2.
var (
	yearRe  = regexp.MustCompile(`(?i)\b(?:year|an(?:ul)?)\s*(\d{1,2})\b`)
	groupRe = regexp.MustCompile(`(?i)\b(?:grupa|group|seria)\s*([A-Za-z0-9]{1,4})\b`)
	compact = regexp.MustCompile(`\b(\d)([A-Za-z])\b`)
)

var titleSeparators = regexp.MustCompile(`\s*[-–|/,]\s*`)

// ParseTitle normalizes a raw event title into its structured fields.
func ParseTitle(raw string) ParsedTitle {
	s := whitespaceRun.ReplaceAllString(strings.TrimSpace(raw), " ")
	for _, prefix := range institutionPrefixes {
		s = prefix.ReplaceAllString(s, "")
	}
	s = strings.TrimSpace(s)

	professor := ""
	for _, re := range honorificPatterns {
		if m := re.FindStringIndex(s); m != nil {
			professor = whitespaceRun.ReplaceAllString(s[m[0]:m[1]], " ")
			s = strings.TrimSpace(s[:m[0]] + " " + s[m[1]:])
			s = whitespaceRun.ReplaceAllString(s, " ")
			break
		}
	}

	group := extractGroup(&s)

	subject := strings.Trim(s, " -–|/,")
	display := subject
	if loc := titleSeparators.FindStringIndex(subject); loc != nil {
		display = strings.TrimSpace(subject[:loc[0]])
	}
	if display == "" {
		display = subject
	}

	return ParsedTitle{
		Subject:      subject,
		DisplayTitle: display,
		Professor:    professor,
		GroupDisplay: group,
	}
}

// extractGroup finds and removes a year/group token from s, returning
// its canonical "Year N • Group X" form (or just one half when only
// one half is present).
func extractGroup(s *string) string {
	text := *s
	var year, group string

	if m := yearRe.FindStringSubmatchIndex(text); m != nil {
		year = text[m[2]:m[3]]
		text = strings.TrimSpace(text[:m[0]] + " " + text[m[1]:])
	}
	if m := groupRe.FindStringSubmatchIndex(text); m != nil {
		group = text[m[2]:m[3]]
		text = strings.TrimSpace(text[:m[0]] + " " + text[m[1]:])
	}
	if year == "" && group == "" {
		if m := compact.FindStringSubmatchIndex(text); m != nil {
			year = text[m[2]:m[3]]
			group = text[m[4]:m[5]]
			text = strings.TrimSpace(text[:m[0]] + " " + text[m[1]:])
		}
	}

	*s = whitespaceRun.ReplaceAllString(text, " ")

	switch {
	case year != "" && group != "":
		return "Year " + year + " • Group " + strings.ToUpper(group)
	case year != "":
		return "Year " + year
	case group != "":
		return "Group " + strings.ToUpper(group)
	default:
		return ""
	}
}
