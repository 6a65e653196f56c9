package render

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/agentworkforce/omisync/internal/conversation"
)

const (
	slugMaxLength = 50
	slugFallback  = "untitled"
	headingDash   = " — "
)

var (
	slugInvalid    = regexp.MustCompile(`[^a-z0-9]+`)
	sectionPattern = regexp.MustCompile(`^(\d{2}:\d{2}) — (.*?) \(omi:([^)]+)\)$`)
	idSeparators   = strings.NewReplacer("/", "-", "\\", "-")
)

// Slugify folds text to a lowercase ASCII slug of at most 50 characters.
func Slugify(text string) string {
	if text == "" {
		return slugFallback
	}
	folder := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	folded, _, err := transform.String(folder, text)
	if err != nil {
		folded = text
	}
	slug := slugInvalid.ReplaceAllString(strings.ToLower(folded), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > slugMaxLength {
		slug = strings.TrimRight(slug[:slugMaxLength], "-")
	}
	if slug == "" {
		return slugFallback
	}
	return slug
}

// LocalTime formats t as HH:MM in loc.
func LocalTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

// LocalDate formats t as YYYY-MM-DD in loc.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// SectionHeading is the aggregate-document heading for conv, also stored in
// the index as the record's heading. It embeds the identity marker that
// rebuild-index relies on.
func SectionHeading(conv conversation.Conversation, loc *time.Location) string {
	return fmt.Sprintf("%s%s%s (omi:%s)", LocalTime(conv.StartedAt, loc), headingDash, conv.Title, conv.ID)
}

// ParseSectionHeading extracts the local start time, title and id from a
// heading produced by SectionHeading.
func ParseSectionHeading(text string) (clock, title, id string, ok bool) {
	match := sectionPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return "", "", "", false
	}
	return match[1], match[2], match[3], true
}

// DetailFilename names the detail document for a finished conversation:
// "<date>T<HHMM>00 - <slug> - <id>.md", from the local completion time.
// Path separators in the id are replaced so the name stays a single path
// element.
func DetailFilename(conv conversation.Conversation, loc *time.Location) string {
	finished := conv.StartedAt
	if conv.FinishedAt != nil {
		finished = *conv.FinishedAt
	}
	local := finished.In(loc)
	return fmt.Sprintf("%sT%s00 - %s - %s.md", local.Format("2006-01-02"), local.Format("1504"), Slugify(conv.Title), idSeparators.Replace(conv.ID))
}

// WikiLink renders an Obsidian link to target, optionally to a heading.
func WikiLink(target, heading string) string {
	if heading == "" {
		return "[[" + target + "]]"
	}
	return "[[" + target + "#" + heading + "]]"
}

var wikiHeadingPattern = regexp.MustCompile(`#(.+?)\]\]`)

// HeadingFromWikiLink returns the heading part of a [[target#heading]] link.
func HeadingFromWikiLink(link string) string {
	match := wikiHeadingPattern.FindStringSubmatch(link)
	if match == nil {
		return ""
	}
	return match[1]
}

func noteName(filename string) string {
	return strings.TrimSuffix(filename, ".md")
}
