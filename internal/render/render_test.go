package render

import (
	"strings"
	"testing"
	"time"

	"github.com/agentworkforce/omisync/internal/conversation"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s failed: %v", name, err)
	}
	return loc
}

func finishedConversation(id, title string, start, end time.Time) conversation.Conversation {
	return conversation.Conversation{
		ID:         id,
		Title:      title,
		StartedAt:  start,
		FinishedAt: &end,
		Language:   "en",
		Source:     "omi",
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"basic", "Hello World", "hello-world"},
		{"special characters", "Meeting: Q1 Planning!", "meeting-q1-planning"},
		{"collapsed spaces", "Too   Many   Spaces", "too-many-spaces"},
		{"unicode folded", "Café Meeting", "cafe-meeting"},
		{"empty", "", "untitled"},
		{"only special", "!!!@@@###", "untitled"},
		{"non latin dropped", "会议 notes", "notes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := Slugify(strings.Repeat("word ", 30))
	if len(long) > 50 || strings.HasSuffix(long, "-") {
		t.Fatalf("expected truncated slug without trailing dash, got %q", long)
	}
}

func TestFrontmatterStableOrdering(t *testing.T) {
	fields := map[string]any{"z_key": "last", "a_key": "first", "date": "2026-01-10", "omi_sync": true, "people": []string{"Alice", "Bob"}}
	first, err := Frontmatter(fields)
	if err != nil {
		t.Fatalf("frontmatter failed: %v", err)
	}
	second, _ := Frontmatter(fields)
	if first != second {
		t.Fatalf("expected identical output")
	}
	if !strings.HasPrefix(first, "---\n") || !strings.HasSuffix(first, "---\n") {
		t.Fatalf("expected --- delimiters, got %q", first)
	}
	if !(strings.Index(first, "a_key") < strings.Index(first, "date") && strings.Index(first, "date") < strings.Index(first, "z_key")) {
		t.Fatalf("expected sorted keys, got %q", first)
	}
	if !strings.Contains(first, "omi_sync: true") || !strings.Contains(first, "- Alice") {
		t.Fatalf("unexpected encoding %q", first)
	}
}

func TestSectionHeadingRoundTrip(t *testing.T) {
	loc := mustLocation(t, "America/New_York")
	conv := finishedConversation("conv_001", "Team Sync", time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 15, 30, 0, 0, time.UTC))
	heading := SectionHeading(conv, loc)
	if heading != "10:00 — Team Sync (omi:conv_001)" {
		t.Fatalf("unexpected heading %q", heading)
	}
	clock, title, id, ok := ParseSectionHeading(heading)
	if !ok || clock != "10:00" || title != "Team Sync" || id != "conv_001" {
		t.Fatalf("unexpected parse: %q %q %q %v", clock, title, id, ok)
	}
	clock, title, id, ok = ParseSectionHeading("18:00 —  (omi:conv_blank)")
	if !ok || clock != "18:00" || title != "" || id != "conv_blank" {
		t.Fatalf("unexpected parse of untitled heading: %q %q %q %v", clock, title, id, ok)
	}
	if _, _, _, ok := ParseSectionHeading("Notable Events"); ok {
		t.Fatalf("expected non-matching heading to be rejected")
	}
	if got := HeadingFromWikiLink(WikiLink("2026-01-10", heading)); got != heading {
		t.Fatalf("expected heading from link, got %q", got)
	}
}

func TestDetailFilenameUsesLocalCompletion(t *testing.T) {
	loc := mustLocation(t, "America/New_York")
	conv := finishedConversation("conv_x", "Late Call: Wrap-up", time.Date(2026, 1, 11, 4, 0, 0, 0, time.UTC), time.Date(2026, 1, 11, 4, 45, 30, 0, time.UTC))
	if got := DetailFilename(conv, loc); got != "2026-01-10T234500 - late-call-wrap-up - conv_x.md" {
		t.Fatalf("unexpected filename %q", got)
	}
}

func TestDetailFilenameKeepsIDInOneElement(t *testing.T) {
	conv := finishedConversation(`x/../..\Notes`, "Therapy", time.Date(2026, 1, 10, 16, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 16, 50, 0, 0, time.UTC))
	got := DetailFilename(conv, time.UTC)
	if got != "2026-01-10T165000 - therapy - x-..-..-Notes.md" {
		t.Fatalf("unexpected filename %q", got)
	}
	if strings.ContainsAny(got, `/\`) {
		t.Fatalf("expected no path separators in %q", got)
	}
}

func TestAggregateSortsByStart(t *testing.T) {
	loc := time.UTC
	later := finishedConversation("c_later", "Later", time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 18, 10, 0, 0, time.UTC))
	earlier := finishedConversation("c_earlier", "Earlier", time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 10, 10, 0, 0, time.UTC))
	tieA := finishedConversation("c_tie_a", "Tie A", time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 12, 5, 0, 0, time.UTC))
	tieB := finishedConversation("c_tie_b", "Tie B", time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 12, 6, 0, 0, time.UTC))

	content, err := Aggregate("2026-01-10", []conversation.Conversation{later, tieB, earlier, tieA}, Options{Location: loc})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	order := []string{"Earlier", "Tie B", "Tie A", "Later"}
	last := -1
	for _, title := range order {
		idx := strings.Index(content, "— "+title+" (omi:")
		if idx < 0 || idx < last {
			t.Fatalf("expected %v order, got:\n%s", order, content)
		}
		last = idx
	}
	if !strings.Contains(content, "# Omi Raw — 2026-01-10") || !strings.Contains(content, "timezone: UTC") {
		t.Fatalf("unexpected header:\n%s", content)
	}
}

func TestAggregateMetadataAndTranscript(t *testing.T) {
	address := "Brooklyn"
	conv := finishedConversation("c1", "Coffee", time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 10, 20, 0, 0, time.UTC))
	conv.Category = "social"
	conv.Geolocation = &conversation.Geolocation{Address: &address}
	conv.TranscriptSegments = []conversation.TranscriptSegment{{Speaker: "SPEAKER_00", Text: "hello"}}
	content, err := Aggregate("2026-01-10", []conversation.Conversation{conv}, Options{})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	for _, want := range []string{
		"- **Started**: 2026-01-10T10:00:00Z",
		"- **Finished**: 2026-01-10T10:20:00Z",
		"- **Duration**: 20 minutes",
		"- **Category**: social",
		"- **Location**: Brooklyn",
		"<summary>Transcript</summary>",
		"- **SPEAKER_00**: hello",
		"- Speaker 0",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in:\n%s", want, content)
		}
	}
}

func TestDetailDocument(t *testing.T) {
	loc := mustLocation(t, "America/New_York")
	conv := finishedConversation("conv_therapy_001", "Therapy Session", time.Date(2026, 1, 10, 16, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 16, 50, 0, 0, time.UTC))
	conv.Overview = "Discussed stress patterns and coping strategies."
	conv.ActionItems = []conversation.ActionItem{
		{Description: "Journal for 10 minutes daily"},
		{Description: "Schedule follow-up", Completed: true},
	}
	generated := time.Date(2026, 1, 10, 22, 0, 0, 0, time.UTC)
	content, err := Detail(conv, Options{Location: loc, GeneratedAt: generated})
	if err != nil {
		t.Fatalf("detail failed: %v", err)
	}
	for _, want := range []string{
		"omi_id: conv_therapy_001",
		"duration_minutes: 50",
		"2026-01-10T17:00:00-05:00",
		"[[2026-01-10#11:00 — Therapy Session (omi:conv_therapy_001)]]",
		"# Therapy Session",
		"## Summary",
		"Discussed stress patterns and coping strategies.",
		"- [ ] Journal for 10 minutes daily",
		"- [x] Schedule follow-up",
		"## Link to Raw",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in:\n%s", want, content)
		}
	}

	conv.ActionItems = nil
	conv.Overview = ""
	content, err = Detail(conv, Options{Location: loc})
	if err != nil {
		t.Fatalf("detail failed: %v", err)
	}
	if !strings.Contains(content, "*No action items.*") || !strings.Contains(content, "*No summary available.*") {
		t.Fatalf("expected placeholders in:\n%s", content)
	}

	conv.FinishedAt = nil
	if _, err := Detail(conv, Options{Location: loc}); err == nil {
		t.Fatalf("expected error for unfinished conversation")
	}
}

func TestDigestListsNotableAndAll(t *testing.T) {
	a := finishedConversation("c_a", "Standup", time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 9, 15, 0, 0, time.UTC))
	b := finishedConversation("c_b", "Chat", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 8, 5, 0, 0, time.UTC))
	content, err := Digest("2026-01-10", []conversation.Conversation{a, b}, map[string]bool{"c_a": true}, Options{})
	if err != nil {
		t.Fatalf("digest failed: %v", err)
	}
	for _, want := range []string{
		"# Omi Highlights — 2026-01-10",
		"- 09:00 — [[2026-01-10T091500 - standup - c_a]]",
		"- 08:00 — Chat → [[2026-01-10]]\n",
		"- 09:00 — Standup → [[2026-01-10]] | [[2026-01-10T091500 - standup - c_a]]",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in:\n%s", want, content)
		}
	}

	empty, err := Digest("2026-01-10", []conversation.Conversation{b}, nil, Options{})
	if err != nil {
		t.Fatalf("digest failed: %v", err)
	}
	if !strings.Contains(empty, "*No notable events.*") {
		t.Fatalf("expected placeholder in:\n%s", empty)
	}
}
