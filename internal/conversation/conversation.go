// Package conversation defines the normalized conversation record and the
// parser that turns raw upstream payloads into it.
package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingID = errors.New("conversation id is required")
	ErrMalformed = errors.New("malformed conversation")
)

const (
	DefaultTitle   = "Untitled"
	DefaultSpeaker = "SPEAKER_00"
)

type ActionItem struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

type TranscriptSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	IsUser  bool    `json:"is_user"`
}

type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   *string `json:"address,omitempty"`
}

// Conversation is one observation of an upstream conversation. ID is the
// only identity key; StartedAt and FinishedAt are always UTC.
type Conversation struct {
	ID                 string              `json:"id"`
	StartedAt          time.Time           `json:"started_at"`
	FinishedAt         *time.Time          `json:"finished_at,omitempty"`
	Title              string              `json:"title"`
	Overview           string              `json:"overview"`
	Category           string              `json:"category"`
	Language           string              `json:"language"`
	Source             string              `json:"source"`
	ActionItems        []ActionItem        `json:"action_items"`
	TranscriptSegments []TranscriptSegment `json:"transcript_segments"`
	Geolocation        *Geolocation        `json:"geolocation,omitempty"`
}

// Duration is FinishedAt - StartedAt, or zero when the conversation has not
// finished.
func (c Conversation) Duration() time.Duration {
	if c.FinishedAt == nil {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}

// DurationMinutes truncates Duration to whole minutes.
func (c Conversation) DurationMinutes() int {
	return int(c.Duration() / time.Minute)
}

var speakerPattern = regexp.MustCompile(`^SPEAKER_(\d+)`)

// People returns the unique transcript speakers, sorted, with diarization
// labels like SPEAKER_01 rendered as "Speaker 1".
func (c Conversation) People() []string {
	seen := map[string]struct{}{}
	speakers := make([]string, 0, len(c.TranscriptSegments))
	for _, seg := range c.TranscriptSegments {
		if _, ok := seen[seg.Speaker]; ok {
			continue
		}
		seen[seg.Speaker] = struct{}{}
		speakers = append(speakers, seg.Speaker)
	}
	sort.Strings(speakers)

	people := make([]string, 0, len(speakers))
	for _, speaker := range speakers {
		if match := speakerPattern.FindStringSubmatch(speaker); match != nil {
			n, err := strconv.Atoi(match[1])
			if err == nil {
				people = append(people, fmt.Sprintf("Speaker %d", n))
				continue
			}
		}
		people = append(people, speaker)
	}
	return people
}

// ContentHash is the hex sha256 of the conversation's canonical JSON form.
func (c Conversation) ContentHash() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type rawConversation struct {
	ID                 *string                `json:"id"`
	StartedAt          *string                `json:"started_at"`
	FinishedAt         *string                `json:"finished_at"`
	Language           string                 `json:"language"`
	Source             string                 `json:"source"`
	Structured         *rawStructured         `json:"structured"`
	TranscriptSegments []rawTranscriptSegment `json:"transcript_segments"`
	Geolocation        *Geolocation           `json:"geolocation"`
}

type rawStructured struct {
	Title       *string      `json:"title"`
	Overview    string       `json:"overview"`
	Category    string       `json:"category"`
	ActionItems []ActionItem `json:"action_items"`
}

type rawTranscriptSegment struct {
	Speaker *string `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	IsUser  bool    `json:"is_user"`
}

// Parse decodes one upstream payload. A missing id yields ErrMissingID; any
// other structural problem yields ErrMalformed.
func Parse(data []byte) (Conversation, error) {
	var raw rawConversation
	if err := json.Unmarshal(data, &raw); err != nil {
		return Conversation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.ID == nil || strings.TrimSpace(*raw.ID) == "" {
		return Conversation{}, ErrMissingID
	}
	id := *raw.ID
	if raw.StartedAt == nil || strings.TrimSpace(*raw.StartedAt) == "" {
		return Conversation{}, fmt.Errorf("%w: %s: started_at is required", ErrMalformed, id)
	}
	startedAt, err := ParseTimestamp(*raw.StartedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: %s: started_at: %v", ErrMalformed, id, err)
	}

	conv := Conversation{
		ID:        id,
		StartedAt: startedAt,
		Language:  raw.Language,
		Source:    raw.Source,
		Title:     DefaultTitle,
	}
	if raw.FinishedAt != nil && strings.TrimSpace(*raw.FinishedAt) != "" {
		finishedAt, err := ParseTimestamp(*raw.FinishedAt)
		if err != nil {
			return Conversation{}, fmt.Errorf("%w: %s: finished_at: %v", ErrMalformed, id, err)
		}
		conv.FinishedAt = &finishedAt
	}
	if s := raw.Structured; s != nil {
		if s.Title != nil {
			conv.Title = *s.Title
		}
		conv.Overview = s.Overview
		conv.Category = s.Category
		conv.ActionItems = append([]ActionItem(nil), s.ActionItems...)
	}
	for _, seg := range raw.TranscriptSegments {
		speaker := DefaultSpeaker
		if seg.Speaker != nil {
			speaker = *seg.Speaker
		}
		conv.TranscriptSegments = append(conv.TranscriptSegments, TranscriptSegment{
			Speaker: speaker,
			Start:   seg.Start,
			End:     seg.End,
			Text:    seg.Text,
			IsUser:  seg.IsUser,
		})
	}
	conv.Geolocation = raw.Geolocation
	return conv, nil
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp accepts RFC 3339 instants and zone-less ISO-8601 local
// timestamps, which are taken to be UTC. The result is always UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
