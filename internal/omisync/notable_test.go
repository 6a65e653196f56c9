package omisync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentworkforce/omisync/internal/conversation"
)

var testNotability = NotabilityConfig{
	MinDuration:    25 * time.Minute,
	MinActionItems: 2,
	Keywords:       []string{"therapy", "standup", "1:1"},
}

func TestClassifyRules(t *testing.T) {
	start := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	short := start.Add(10 * time.Minute)
	long := start.Add(25 * time.Minute)
	items := []conversation.ActionItem{{Description: "a"}, {Description: "b"}}

	tests := []struct {
		name      string
		conv      conversation.Conversation
		overrides map[string]bool
		want      Decision
	}{
		{"nothing fires", conversation.Conversation{ID: "1", Title: "Chat", StartedAt: start, FinishedAt: &short}, nil, Decision{}},
		{"duration at threshold", conversation.Conversation{ID: "2", Title: "Chat", StartedAt: start, FinishedAt: &long}, nil, Decision{Notable: true, Rule: RuleDuration}},
		{"action items", conversation.Conversation{ID: "3", Title: "Chat", StartedAt: start, FinishedAt: &short, ActionItems: items}, nil, Decision{Notable: true, Rule: RuleActionItems}},
		{"keyword in title ignores case", conversation.Conversation{ID: "4", Title: "Morning STANDUP", StartedAt: start, FinishedAt: &short}, nil, Decision{Notable: true, Rule: RuleKeyword}},
		{"keyword in overview", conversation.Conversation{ID: "5", Title: "Chat", Overview: "weekly 1:1 with lead", StartedAt: start, FinishedAt: &short}, nil, Decision{Notable: true, Rule: RuleKeyword}},
		{"override false beats every rule", conversation.Conversation{ID: "6", Title: "Therapy", StartedAt: start, FinishedAt: &long, ActionItems: items}, map[string]bool{"6": false}, Decision{Notable: false, Rule: RuleOverride}},
		{"override true with no rule", conversation.Conversation{ID: "7", Title: "Chat", StartedAt: start, FinishedAt: &short}, map[string]bool{"7": true}, Decision{Notable: true, Rule: RuleOverride}},
		{"duration precedes keyword", conversation.Conversation{ID: "8", Title: "Therapy", StartedAt: start, FinishedAt: &long}, nil, Decision{Notable: true, Rule: RuleDuration}},
	}
	classifier := NewClassifier(testNotability)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifier.Classify(tt.conv, tt.overrides); got != tt.want {
				t.Fatalf("Classify() = %+v, want %+v", got, tt.want)
			}
			if got := IsNotable(tt.conv, testNotability, tt.overrides); got != tt.want.Notable {
				t.Fatalf("IsNotable() = %v, want %v", got, tt.want.Notable)
			}
		})
	}
}

func TestClassifierRuleOrder(t *testing.T) {
	got := NewClassifier(testNotability).Rules()
	want := []string{RuleOverride, RuleDuration, RuleActionItems, RuleKeyword}
	if len(got) != len(want) {
		t.Fatalf("Rules() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Rules() = %v, want %v", got, want)
		}
	}
}

func TestCustomRuleChain(t *testing.T) {
	classifier := NewClassifierWithRules(Rule{
		Name:  "category",
		Match: func(c conversation.Conversation) bool { return c.Category == "work" },
	})
	if got := classifier.Classify(conversation.Conversation{ID: "1", Category: "work"}, nil); got != (Decision{Notable: true, Rule: "category"}) {
		t.Fatalf("unexpected decision %+v", got)
	}
	if got := classifier.Classify(conversation.Conversation{ID: "2", Category: "social"}, nil); got.Notable {
		t.Fatalf("unexpected decision %+v", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	if got := LoadOverrides(filepath.Join(dir, "missing.json"), nil); len(got) != 0 {
		t.Fatalf("expected empty map for missing file, got %v", got)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := LoadOverrides(corrupt, nil); len(got) != 0 {
		t.Fatalf("expected empty map for corrupt file, got %v", got)
	}

	valid := filepath.Join(dir, "notable.json")
	if err := os.WriteFile(valid, []byte(`{"conv_a": true, "conv_b": false, "conv_c": "yes"}`), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got := LoadOverrides(valid, nil)
	if len(got) != 2 || !got["conv_a"] || got["conv_b"] {
		t.Fatalf("unexpected overrides %v", got)
	}
	if _, ok := got["conv_b"]; !ok {
		t.Fatalf("expected explicit false override to be kept")
	}
}
