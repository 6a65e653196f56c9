package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentworkforce/omisync/internal/conversation"
)

const sourceName = "omi"

// Options carries the per-run inputs shared by all generators.
type Options struct {
	Location    *time.Location
	GeneratedAt time.Time
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o Options) generatedAt() string {
	return o.GeneratedAt.In(o.location()).Format(time.RFC3339)
}

// SortByStart returns a copy of convs ordered by StartedAt ascending. Equal
// start times keep their input order.
func SortByStart(convs []conversation.Conversation) []conversation.Conversation {
	sorted := append([]conversation.Conversation(nil), convs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.Before(sorted[j].StartedAt)
	})
	return sorted
}

func collectPeople(convs []conversation.Conversation) []string {
	seen := map[string]struct{}{}
	people := []string{}
	for _, conv := range convs {
		for _, person := range conv.People() {
			if _, ok := seen[person]; ok {
				continue
			}
			seen[person] = struct{}{}
			people = append(people, person)
		}
	}
	sort.Strings(people)
	return people
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Aggregate renders the per-day document listing every conversation of the
// partition.
func Aggregate(date string, convs []conversation.Conversation, opts Options) (string, error) {
	loc := opts.location()
	sorted := SortByStart(convs)
	fm, err := Frontmatter(map[string]any{
		"date":         date,
		"generated_at": opts.generatedAt(),
		"omi_sync":     true,
		"people":       collectPeople(sorted),
		"source":       sourceName,
		"timezone":     loc.String(),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(fm)
	fmt.Fprintf(&b, "# Omi Raw%s%s\n\n", headingDash, date)
	for _, conv := range sorted {
		fmt.Fprintf(&b, "## %s\n\n", SectionHeading(conv, loc))
		fmt.Fprintf(&b, "- **Started**: %s\n", formatInstant(conv.StartedAt))
		if conv.FinishedAt != nil {
			fmt.Fprintf(&b, "- **Finished**: %s\n", formatInstant(*conv.FinishedAt))
		}
		fmt.Fprintf(&b, "- **Duration**: %d minutes\n", conv.DurationMinutes())
		if conv.Category != "" {
			fmt.Fprintf(&b, "- **Category**: %s\n", conv.Category)
		}
		if conv.Language != "" {
			fmt.Fprintf(&b, "- **Language**: %s\n", conv.Language)
		}
		if conv.Source != "" {
			fmt.Fprintf(&b, "- **Source**: %s\n", conv.Source)
		}
		if geo := conv.Geolocation; geo != nil && geo.Address != nil && *geo.Address != "" {
			fmt.Fprintf(&b, "- **Location**: %s\n", *geo.Address)
		}
		b.WriteString("\n")

		if len(conv.TranscriptSegments) > 0 {
			b.WriteString("<details>\n<summary>Transcript</summary>\n\n")
			for _, seg := range conv.TranscriptSegments {
				fmt.Fprintf(&b, "- **%s**: %s\n", seg.Speaker, seg.Text)
			}
			b.WriteString("\n</details>\n\n")
		}
	}
	return b.String(), nil
}

// Detail renders the standalone note for a notable conversation. conv must
// have finished.
func Detail(conv conversation.Conversation, opts Options) (string, error) {
	if conv.FinishedAt == nil {
		return "", fmt.Errorf("conversation %s has not finished", conv.ID)
	}
	loc := opts.location()
	date := LocalDate(*conv.FinishedAt, loc)
	heading := SectionHeading(conv, loc)
	rawLink := WikiLink(date, heading)

	fm, err := Frontmatter(map[string]any{
		"category":         conv.Category,
		"date":             date,
		"duration_minutes": conv.DurationMinutes(),
		"finished_at":      formatInstant(*conv.FinishedAt),
		"generated_at":     opts.generatedAt(),
		"language":         conv.Language,
		"omi_id":           conv.ID,
		"omi_sync":         true,
		"people":           conv.People(),
		"raw_daily":        WikiLink(date, ""),
		"raw_link":         rawLink,
		"source":           conv.Source,
		"started_at":       formatInstant(conv.StartedAt),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(fm)
	fmt.Fprintf(&b, "# %s\n\n## Summary\n\n", conv.Title)
	if conv.Overview != "" {
		b.WriteString(conv.Overview)
	} else {
		b.WriteString("*No summary available.*")
	}
	b.WriteString("\n\n## Action Items\n\n")
	if len(conv.ActionItems) == 0 {
		b.WriteString("*No action items.*\n")
	}
	for _, item := range conv.ActionItems {
		box := "[ ]"
		if item.Completed {
			box = "[x]"
		}
		fmt.Fprintf(&b, "- %s %s\n", box, item.Description)
	}
	fmt.Fprintf(&b, "\n## Link to Raw\n\n%s\n", rawLink)
	return b.String(), nil
}

// Digest renders the per-day highlights document: notable conversations
// first, then every conversation with links to the aggregate and detail
// documents.
func Digest(date string, convs []conversation.Conversation, notable map[string]bool, opts Options) (string, error) {
	loc := opts.location()
	sorted := SortByStart(convs)
	fm, err := Frontmatter(map[string]any{
		"date":         date,
		"generated_at": opts.generatedAt(),
		"omi_sync":     true,
		"people":       collectPeople(sorted),
		"source":       sourceName,
		"timezone":     loc.String(),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(fm)
	fmt.Fprintf(&b, "# Omi Highlights%s%s\n\n## Notable Events\n\n", headingDash, date)
	wroteNotable := false
	for _, conv := range sorted {
		if !notable[conv.ID] {
			continue
		}
		wroteNotable = true
		fmt.Fprintf(&b, "- %s%s%s\n", LocalTime(conv.StartedAt, loc), headingDash, WikiLink(noteName(DetailFilename(conv, loc)), ""))
	}
	if !wroteNotable {
		b.WriteString("*No notable events.*\n")
	}

	b.WriteString("\n## All Conversations\n\n")
	for _, conv := range sorted {
		fmt.Fprintf(&b, "- %s%s%s → %s", LocalTime(conv.StartedAt, loc), headingDash, conv.Title, WikiLink(date, ""))
		if notable[conv.ID] {
			fmt.Fprintf(&b, " | %s", WikiLink(noteName(DetailFilename(conv, loc)), ""))
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
