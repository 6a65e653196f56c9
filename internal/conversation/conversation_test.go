package conversation

import (
	"errors"
	"testing"
	"time"
)

const fullPayload = `{
	"id": "conv_therapy_001",
	"started_at": "2026-01-10T16:00:00Z",
	"finished_at": "2026-01-10T16:50:00+00:00",
	"language": "en",
	"source": "omi",
	"structured": {
		"title": "Therapy Session",
		"overview": "Discussed stress patterns.",
		"category": "health",
		"action_items": [
			{"description": "Journal daily", "completed": false},
			{"description": "Schedule follow-up", "completed": true}
		]
	},
	"transcript_segments": [
		{"speaker": "SPEAKER_01", "start": 0, "end": 4.5, "text": "Hi", "is_user": false},
		{"speaker": "SPEAKER_00", "start": 4.5, "end": 9, "text": "Hello", "is_user": true},
		{"speaker": "SPEAKER_01", "start": 9, "end": 12, "text": "How are you?"}
	],
	"geolocation": {"latitude": 40.7, "longitude": -74.0, "address": "New York"}
}`

func TestParseFullPayload(t *testing.T) {
	conv, err := Parse([]byte(fullPayload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if conv.ID != "conv_therapy_001" {
		t.Fatalf("expected id conv_therapy_001, got %q", conv.ID)
	}
	if conv.Title != "Therapy Session" || conv.Category != "health" {
		t.Fatalf("unexpected structured fields: %+v", conv)
	}
	if conv.FinishedAt == nil {
		t.Fatalf("expected finished_at to be parsed")
	}
	if got := conv.DurationMinutes(); got != 50 {
		t.Fatalf("expected 50 minute duration, got %d", got)
	}
	if len(conv.ActionItems) != 2 || !conv.ActionItems[1].Completed {
		t.Fatalf("unexpected action items: %+v", conv.ActionItems)
	}
	if len(conv.TranscriptSegments) != 3 || !conv.TranscriptSegments[1].IsUser {
		t.Fatalf("unexpected transcript segments: %+v", conv.TranscriptSegments)
	}
	if conv.Geolocation == nil || conv.Geolocation.Address == nil || *conv.Geolocation.Address != "New York" {
		t.Fatalf("unexpected geolocation: %+v", conv.Geolocation)
	}
}

func TestParseDefaults(t *testing.T) {
	conv, err := Parse([]byte(`{"id":"c1","started_at":"2026-01-10T14:00:00Z","transcript_segments":[{"text":"hi"}]}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if conv.Title != DefaultTitle {
		t.Fatalf("expected default title, got %q", conv.Title)
	}
	if conv.FinishedAt != nil {
		t.Fatalf("expected nil finished_at, got %v", conv.FinishedAt)
	}
	if conv.Duration() != 0 {
		t.Fatalf("expected zero duration for unfinished conversation")
	}
	if conv.TranscriptSegments[0].Speaker != DefaultSpeaker {
		t.Fatalf("expected default speaker, got %q", conv.TranscriptSegments[0].Speaker)
	}
}

func TestParseRejectsMissingID(t *testing.T) {
	for _, payload := range []string{
		`{"started_at":"2026-01-10T14:00:00Z"}`,
		`{"id":"  ","started_at":"2026-01-10T14:00:00Z"}`,
	} {
		if _, err := Parse([]byte(payload)); !errors.Is(err, ErrMissingID) {
			t.Fatalf("expected ErrMissingID for %s, got %v", payload, err)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"invalid json", `{"id":`},
		{"missing started_at", `{"id":"c1"}`},
		{"bad started_at", `{"id":"c1","started_at":"yesterday"}`},
		{"bad finished_at", `{"id":"c1","started_at":"2026-01-10T14:00:00Z","finished_at":"soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.payload)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestParseTimestampNormalizesToUTC(t *testing.T) {
	want := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2026-01-10T14:00:00Z",
		"2026-01-10T09:00:00-05:00",
		"2026-01-10T14:00:00",
		"2026-01-10T14:00:00.000000",
	} {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Fatalf("parse %q failed: %v", in, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("parse %q: expected %s UTC, got %s", in, want, got)
		}
	}
}

func TestPeopleUniqueSorted(t *testing.T) {
	conv := Conversation{TranscriptSegments: []TranscriptSegment{
		{Speaker: "SPEAKER_02"},
		{Speaker: "SPEAKER_00"},
		{Speaker: "Alice"},
		{Speaker: "SPEAKER_00"},
		{Speaker: "SPEAKER_01"},
	}}
	got := conv.People()
	want := []string{"Alice", "Speaker 0", "Speaker 1", "Speaker 2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if people := (Conversation{}).People(); len(people) != 0 {
		t.Fatalf("expected no people for empty transcript, got %v", people)
	}
}

func TestContentHashTracksContent(t *testing.T) {
	a, err := Parse([]byte(fullPayload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	b, _ := Parse([]byte(fullPayload))
	if a.ContentHash() == "" || a.ContentHash() != b.ContentHash() {
		t.Fatalf("expected stable non-empty hash")
	}
	b.Overview = "changed"
	if a.ContentHash() == b.ContentHash() {
		t.Fatalf("expected hash to change with overview")
	}
}
