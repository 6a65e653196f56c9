package omisync

import (
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/agentworkforce/omisync/internal/conversation"
	"github.com/agentworkforce/omisync/internal/render"
	"github.com/agentworkforce/omisync/internal/statestore"
	"github.com/agentworkforce/omisync/internal/vault"
)

// RebuildIndex repopulates store from the documents already in the vault.
// Detail documents are scanned first because their frontmatter is richer;
// aggregate headings only contribute ids nothing else has claimed. When
// several detail documents carry the same id, the one with the latest
// finished_at wins, and the first in name order on a tie. Documents
// that cannot be parsed are skipped. It returns the number of entries
// written.
func RebuildIndex(layout vault.Layout, store *statestore.Store, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	store.Load()

	discovered := map[string]bool{}
	count := 0

	details, err := vault.ListDocuments(layout.EventsDir())
	if err != nil {
		return 0, err
	}
	candidates := map[string]statestore.IndexEntry{}
	for _, path := range details {
		entry, ok := detailEntry(layout, path, logger)
		if !ok {
			continue
		}
		if current, seen := candidates[entry.ID]; seen {
			if !finishedAfter(entry, current) {
				logger.Warn("ignoring older duplicate detail", "omi_id", entry.ID, "path", *entry.DetailPath, "kept", *current.DetailPath)
				continue
			}
			logger.Warn("ignoring older duplicate detail", "omi_id", entry.ID, "path", *current.DetailPath, "kept", *entry.DetailPath)
		}
		candidates[entry.ID] = entry
	}
	for _, id := range slices.Sorted(maps.Keys(candidates)) {
		entry := candidates[id]
		if previous, had := store.Get(id); had {
			entry.LastContentHash = previous.LastContentHash
			if entry.LastSeenFinishedAt == nil {
				entry.LastSeenFinishedAt = previous.LastSeenFinishedAt
			}
		}
		if err := store.Put(entry); err != nil {
			continue
		}
		discovered[id] = true
		count++
	}

	aggregates, err := vault.ListDocuments(layout.RawDir())
	if err != nil {
		return 0, err
	}
	for _, path := range aggregates {
		date := strings.TrimSuffix(filepath.Base(path), vault.DocumentExt)
		if !isDate(date) {
			continue
		}
		doc, err := vault.ReadDocument(path)
		if err != nil {
			logger.Warn("skipping unreadable aggregate", "path", path, "error", err)
			continue
		}
		for _, heading := range doc.Headings {
			if heading.Level != 2 {
				continue
			}
			_, _, id, ok := render.ParseSectionHeading(heading.Text)
			if !ok || discovered[id] {
				continue
			}
			if _, had := store.Get(id); had {
				continue
			}
			if err := store.Put(statestore.IndexEntry{ID: id, PartitionKey: date, Heading: heading.Text}); err != nil {
				continue
			}
			discovered[id] = true
			count++
		}
	}

	if err := store.Save(); err != nil {
		return count, err
	}
	logger.Info("index rebuilt", "entries", count)
	return count, nil
}

func detailEntry(layout vault.Layout, path string, logger *slog.Logger) (statestore.IndexEntry, bool) {
	doc, err := vault.ReadDocument(path)
	if err != nil {
		logger.Warn("skipping unreadable detail", "path", path, "error", err)
		return statestore.IndexEntry{}, false
	}
	id := doc.String("omi_id")
	date := doc.String("date")
	if id == "" || !isDate(date) {
		logger.Warn("skipping detail without identity", "path", path)
		return statestore.IndexEntry{}, false
	}
	rel, err := layout.Rel(path)
	if err != nil {
		return statestore.IndexEntry{}, false
	}
	entry := statestore.IndexEntry{
		ID:           id,
		PartitionKey: date,
		Heading:      render.HeadingFromWikiLink(doc.String("raw_link")),
		DetailPath:   &rel,
	}
	if finished := doc.String("finished_at"); finished != "" {
		entry.LastSeenFinishedAt = &finished
	}
	return entry, true
}

// finishedAfter reports whether a was finished strictly later than b. An
// unparseable timestamp never wins.
func finishedAfter(a, b statestore.IndexEntry) bool {
	if a.LastSeenFinishedAt == nil {
		return false
	}
	at, err := conversation.ParseTimestamp(*a.LastSeenFinishedAt)
	if err != nil {
		return false
	}
	if b.LastSeenFinishedAt == nil {
		return true
	}
	bt, err := conversation.ParseTimestamp(*b.LastSeenFinishedAt)
	if err != nil {
		return true
	}
	return at.After(bt)
}

func isDate(value string) bool {
	_, err := time.Parse(time.DateOnly, value)
	return err == nil
}
