package omisync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/agentworkforce/omisync/internal/conversation"
)

const (
	RuleOverride    = "override"
	RuleDuration    = "duration"
	RuleActionItems = "action_items"
	RuleKeyword     = "keyword"
)

// NotabilityConfig holds the heuristic thresholds.
type NotabilityConfig struct {
	MinDuration    time.Duration
	MinActionItems int
	Keywords       []string
}

// Rule is one named heuristic. Rules are evaluated in order and the first
// match marks the conversation notable.
type Rule struct {
	Name  string
	Match func(conversation.Conversation) bool
}

// Decision records the outcome of classification and which rule produced it.
// Rule is empty when nothing matched.
type Decision struct {
	Notable bool
	Rule    string
}

type Classifier struct {
	rules []Rule
}

// NewClassifier builds the default rule chain: duration, then action items,
// then keywords.
func NewClassifier(cfg NotabilityConfig) *Classifier {
	return NewClassifierWithRules(DefaultRules(cfg)...)
}

func NewClassifierWithRules(rules ...Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

func DefaultRules(cfg NotabilityConfig) []Rule {
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return []Rule{
		{
			Name: RuleDuration,
			Match: func(conv conversation.Conversation) bool {
				return conv.Duration() >= cfg.MinDuration
			},
		},
		{
			Name: RuleActionItems,
			Match: func(conv conversation.Conversation) bool {
				return len(conv.ActionItems) >= cfg.MinActionItems
			},
		},
		{
			Name: RuleKeyword,
			Match: func(conv conversation.Conversation) bool {
				text := strings.ToLower(conv.Title + " " + conv.Overview)
				for _, kw := range keywords {
					if strings.Contains(text, kw) {
						return true
					}
				}
				return false
			},
		},
	}
}

// Rules returns the rule names in evaluation order, overrides first.
func (c *Classifier) Rules() []string {
	names := []string{RuleOverride}
	for _, rule := range c.rules {
		names = append(names, rule.Name)
	}
	return names
}

// Classify consults overrides first; an override is final whichever way it
// points. Otherwise the first matching rule wins.
func (c *Classifier) Classify(conv conversation.Conversation, overrides map[string]bool) Decision {
	if forced, ok := overrides[conv.ID]; ok {
		return Decision{Notable: forced, Rule: RuleOverride}
	}
	for _, rule := range c.rules {
		if rule.Match != nil && rule.Match(conv) {
			return Decision{Notable: true, Rule: rule.Name}
		}
	}
	return Decision{}
}

// IsNotable is Classify with the default rule chain.
func IsNotable(conv conversation.Conversation, cfg NotabilityConfig, overrides map[string]bool) bool {
	return NewClassifier(cfg).Classify(conv, overrides).Notable
}

// LoadOverrides reads the id -> bool overrides file. A missing or unreadable
// file yields an empty map; non-boolean values are ignored.
func LoadOverrides(path string, logger *slog.Logger) map[string]bool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	overrides := map[string]bool{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("cannot read notable overrides", "path", path, "error", err)
		}
		return overrides
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("ignoring corrupt notable overrides", "path", path, "error", err)
		return overrides
	}
	for id, value := range raw {
		if flag, ok := value.(bool); ok {
			overrides[id] = flag
			continue
		}
		logger.Warn("ignoring non-boolean override", "path", path, "omi_id", id)
	}
	return overrides
}
