package omisync

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentworkforce/omisync/internal/conversation"
	"github.com/agentworkforce/omisync/internal/render"
	"github.com/agentworkforce/omisync/internal/statestore"
	"github.com/agentworkforce/omisync/internal/vault"
)

// ErrWriteFailed marks a run aborted because a vault document could not be
// written.
var ErrWriteFailed = errors.New("document write failed")

const StatusDone = "DONE"

type Stats struct {
	Records        int `json:"records"`
	Finalized      int `json:"finalized"`
	Partitions     int `json:"partitions"`
	AggregateFiles int `json:"aggregate_files"`
	DetailFiles    int `json:"detail_files"`
	DigestFiles    int `json:"digest_files"`
	RecordsSkipped int `json:"records_skipped"`
	RecordsChanged int `json:"records_changed"`
	DetailRemoved  int `json:"detail_removed"`
}

type Result struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Stats  Stats  `json:"stats"`
}

type EngineOptions struct {
	Layout          vault.Layout
	Store           *statestore.Store
	Location        *time.Location
	FinalizationLag time.Duration
	Notability      NotabilityConfig
	// Classifier replaces the default rule chain built from Notability.
	Classifier *Classifier
	// Overrides replaces the overrides file when non-nil.
	Overrides map[string]bool
	// StrictRecords aborts the run on the first unparseable record instead
	// of skipping it.
	StrictRecords bool
	Now           func() time.Time
	Logger        *slog.Logger
}

type Engine struct {
	layout     vault.Layout
	store      *statestore.Store
	loc        *time.Location
	lag        time.Duration
	classifier *Classifier
	overrides  map[string]bool
	strict     bool
	now        func() time.Time
	logger     *slog.Logger
}

// NewEngine loads the persisted state and the notable overrides. Both are
// read once here and reused by every Sync call.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Layout.Root() == "" {
		return nil, fmt.Errorf("vault layout is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if opts.FinalizationLag < 0 {
		return nil, fmt.Errorf("finalization lag must not be negative")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = NewClassifier(opts.Notability)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if err := opts.Layout.EnsureSyncDirs(); err != nil {
		return nil, err
	}
	overrides := opts.Overrides
	if overrides == nil {
		overrides = LoadOverrides(opts.Layout.OverridesPath(), logger)
	}
	runState, entries := opts.Store.Load()
	lastRun := "never"
	if runState.LastRunAt != nil {
		lastRun = *runState.LastRunAt
	}
	logger.Debug("loaded sync state", "entries", len(entries), "overrides", len(overrides), "last_run_at", lastRun)

	return &Engine{
		layout:     opts.Layout,
		store:      opts.Store,
		loc:        loc,
		lag:        opts.FinalizationLag,
		classifier: classifier,
		overrides:  overrides,
		strict:     opts.StrictRecords,
		now:        now,
		logger:     logger,
	}, nil
}

type partition struct {
	key   string
	convs []conversation.Conversation
}

// Sync reconciles the vault with raw. Every partition touched by a finalized
// record is regenerated in full. A document write failure stops the run:
// partitions already written keep their index entries, the rest do not, and
// last_run_at is left unchanged.
func (e *Engine) Sync(raw []json.RawMessage) (Result, error) {
	now := e.now().UTC()
	result := Result{RunID: ulid.Make().String()}
	stats := &result.Stats
	logger := e.logger.With("run_id", result.RunID)
	logger.Info("sync started", "records", len(raw), "cutoff", now.Add(-e.lag).Format(time.RFC3339))

	convs, err := e.parse(raw, logger, stats)
	if err != nil {
		return result, err
	}

	finalized := make([]conversation.Conversation, 0, len(convs))
	for _, conv := range convs {
		if IsFinalized(conv, e.lag, now) {
			finalized = append(finalized, conv)
		}
	}
	stats.Finalized = len(finalized)
	unique := Dedup(finalized)

	notable := make(map[string]bool, len(unique))
	for _, conv := range unique {
		decision := e.classifier.Classify(conv, e.overrides)
		notable[conv.ID] = decision.Notable
		if decision.Rule != "" {
			logger.Debug("classified conversation", "omi_id", conv.ID, "notable", decision.Notable, "rule", decision.Rule)
		}
	}

	opts := render.Options{Location: e.loc, GeneratedAt: now}
	for _, part := range e.partition(unique) {
		if err := e.writePartition(part, notable, opts, stats); err != nil {
			logger.Error("partition write failed", "date", part.key, "error", err)
			if saveErr := e.store.Save(); saveErr != nil {
				logger.Error("saving partial index failed", "error", saveErr)
			}
			return result, fmt.Errorf("%w: partition %s: %w", ErrWriteFailed, part.key, err)
		}
		e.commitPartition(part, notable, logger, stats)
		stats.Partitions++
	}

	e.store.SetLastRun(now.In(e.loc).Format(time.RFC3339))
	if err := e.store.Save(); err != nil {
		return result, err
	}
	result.Status = StatusDone
	logger.Info("sync finished",
		"partitions", stats.Partitions,
		"aggregate_files", stats.AggregateFiles,
		"detail_files", stats.DetailFiles,
		"digest_files", stats.DigestFiles,
		"records_skipped", stats.RecordsSkipped,
		"records_changed", stats.RecordsChanged,
	)
	return result, nil
}

func (e *Engine) parse(raw []json.RawMessage, logger *slog.Logger, stats *Stats) ([]conversation.Conversation, error) {
	convs := make([]conversation.Conversation, 0, len(raw))
	for i, data := range raw {
		conv, err := conversation.Parse(data)
		if err != nil {
			if e.strict {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			stats.RecordsSkipped++
			logger.Warn("skipping malformed record", "position", i, "error", err)
			continue
		}
		convs = append(convs, conv)
	}
	stats.Records = len(convs)
	return convs, nil
}

// partition groups convs by the local date they finished on. Partitions are
// returned in date order; records inside keep their arrival order.
func (e *Engine) partition(convs []conversation.Conversation) []partition {
	byKey := map[string]*partition{}
	var keys []string
	for _, conv := range convs {
		if conv.FinishedAt == nil {
			continue
		}
		key := PartitionKeyIn(*conv.FinishedAt, e.loc)
		part, ok := byKey[key]
		if !ok {
			part = &partition{key: key}
			byKey[key] = part
			keys = append(keys, key)
		}
		part.convs = append(part.convs, conv)
	}
	sort.Strings(keys)
	out := make([]partition, 0, len(keys))
	for _, key := range keys {
		out = append(out, *byKey[key])
	}
	return out
}

func (e *Engine) writePartition(part partition, notable map[string]bool, opts render.Options, stats *Stats) error {
	aggregate, err := render.Aggregate(part.key, part.convs, opts)
	if err != nil {
		return err
	}
	if err := e.writeDocument(e.layout.RawRel(part.key), aggregate); err != nil {
		return err
	}
	stats.AggregateFiles++

	for _, conv := range part.convs {
		if !notable[conv.ID] {
			continue
		}
		detail, err := render.Detail(conv, opts)
		if err != nil {
			return err
		}
		if err := e.writeDocument(e.layout.EventRel(render.DetailFilename(conv, e.loc)), detail); err != nil {
			return err
		}
		stats.DetailFiles++
	}

	digest, err := render.Digest(part.key, part.convs, notable, opts)
	if err != nil {
		return err
	}
	if err := e.writeDocument(e.layout.HighlightsRel(part.key), digest); err != nil {
		return err
	}
	stats.DigestFiles++
	return nil
}

func (e *Engine) writeDocument(rel, content string) error {
	abs, err := e.layout.Abs(rel)
	if err != nil {
		return err
	}
	data := []byte(content)
	if vault.Unchanged(abs, data) {
		return nil
	}
	return vault.WriteFileAtomic(abs, data, 0o644)
}

// commitPartition upserts the index entry of every record in a partition
// whose documents are all on disk.
func (e *Engine) commitPartition(part partition, notable map[string]bool, logger *slog.Logger, stats *Stats) {
	for _, conv := range part.convs {
		entry := e.indexEntry(conv, part.key, notable[conv.ID])
		previous, had := e.store.Get(conv.ID)
		if !had || previous.LastContentHash == nil || *previous.LastContentHash != *entry.LastContentHash {
			stats.RecordsChanged++
		}
		if had && previous.DetailPath != nil && (entry.DetailPath == nil || *entry.DetailPath != *previous.DetailPath) {
			if e.removeSuperseded(conv.ID, *previous.DetailPath, logger) {
				stats.DetailRemoved++
			}
		}
		if err := e.store.Put(entry); err != nil {
			logger.Warn("index upsert failed", "omi_id", conv.ID, "error", err)
		}
	}
}

func (e *Engine) indexEntry(conv conversation.Conversation, key string, notable bool) statestore.IndexEntry {
	hash := conv.ContentHash()
	finished := conv.FinishedAt.UTC().Format(time.RFC3339)
	entry := statestore.IndexEntry{
		ID:                 conv.ID,
		PartitionKey:       key,
		Heading:            render.SectionHeading(conv, e.loc),
		LastSeenFinishedAt: &finished,
		LastContentHash:    &hash,
	}
	if notable {
		path := e.layout.EventRel(render.DetailFilename(conv, e.loc))
		entry.DetailPath = &path
	}
	return entry
}

// removeSuperseded deletes a detail document the record no longer maps to,
// but only when the file still belongs to that record.
func (e *Engine) removeSuperseded(id, rel string, logger *slog.Logger) bool {
	abs, err := e.layout.Abs(rel)
	if err != nil {
		logger.Warn("ignoring superseded detail outside vault", "omi_id", id, "path", rel)
		return false
	}
	doc, err := vault.ReadDocument(abs)
	if err != nil {
		return false
	}
	if doc.String("omi_id") != id {
		return false
	}
	if err := vault.RemoveFile(abs); err != nil {
		logger.Warn("removing superseded detail failed", "omi_id", id, "path", rel, "error", err)
		return false
	}
	logger.Info("removed superseded detail", "omi_id", id, "path", rel)
	return true
}
