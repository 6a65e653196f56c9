package statestore

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaVersion tags both persisted documents. A document carrying any other
// version is treated as absent.
const SchemaVersion = 1

const (
	stateSchemaURL = "https://schemas.omisync.dev/state.schema.json"
	indexSchemaURL = "https://schemas.omisync.dev/index.schema.json"
)

//go:embed schema/*.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemasErr  error
	stateSchema *jsonschema.Schema
	indexSchema *jsonschema.Schema
)

type stateDocument struct {
	LastCursor    *string `json:"last_cursor"`
	LastRunAt     *string `json:"last_run_at"`
	SchemaVersion int     `json:"schema_version"`
}

type indexDocument struct {
	Entries       map[string]IndexEntry `json:"entries"`
	SchemaVersion int                   `json:"schema_version"`
}

func loadSchemas() error {
	schemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for url, file := range map[string]string{
			stateSchemaURL: "schema/state.schema.json",
			indexSchemaURL: "schema/index.schema.json",
		} {
			raw, err := schemaFS.ReadFile(file)
			if err != nil {
				schemasErr = err
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				schemasErr = fmt.Errorf("parse %s: %w", file, err)
				return
			}
			if err := compiler.AddResource(url, doc); err != nil {
				schemasErr = fmt.Errorf("add %s: %w", file, err)
				return
			}
		}
		if stateSchema, schemasErr = compiler.Compile(stateSchemaURL); schemasErr != nil {
			return
		}
		indexSchema, schemasErr = compiler.Compile(indexSchemaURL)
	})
	return schemasErr
}

func validate(schema *jsonschema.Schema, data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}

// encodeJSON is the single serialization used for persisted state: two-space
// indentation, sorted map keys, struct fields in declaration order, trailing
// newline.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeState(state RunState) ([]byte, error) {
	return encodeJSON(stateDocument{
		LastCursor:    state.LastCursor,
		LastRunAt:     state.LastRunAt,
		SchemaVersion: SchemaVersion,
	})
}

func encodeIndex(entries map[string]IndexEntry) ([]byte, error) {
	if entries == nil {
		entries = map[string]IndexEntry{}
	}
	return encodeJSON(indexDocument{Entries: entries, SchemaVersion: SchemaVersion})
}

func decodeState(data []byte) (RunState, error) {
	if err := loadSchemas(); err != nil {
		return RunState{}, err
	}
	if err := validate(stateSchema, data); err != nil {
		return RunState{}, fmt.Errorf("state document: %w", err)
	}
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return RunState{}, err
	}
	return RunState{LastCursor: doc.LastCursor, LastRunAt: doc.LastRunAt}, nil
}

func decodeIndex(data []byte) (map[string]IndexEntry, error) {
	if err := loadSchemas(); err != nil {
		return nil, err
	}
	if err := validate(indexSchema, data); err != nil {
		return nil, fmt.Errorf("index document: %w", err)
	}
	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	entries := make(map[string]IndexEntry, len(doc.Entries))
	for id, entry := range doc.Entries {
		entry.ID = id
		entries[id] = entry
	}
	return entries, nil
}
