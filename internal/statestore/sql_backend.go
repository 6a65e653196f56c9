package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	stateTableName      = "omisync_state"
	stateDocumentKey    = "state"
	indexDocumentKey    = "index"
	sqlOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type sqlDialect struct {
	driver      string
	createTable string
	upsert      string
	selectDocs  string
}

var postgresDialect = sqlDialect{
	driver: "postgres",
	createTable: `
		CREATE TABLE IF NOT EXISTS %s (
			state_key TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	upsert: `
		INSERT INTO %s (state_key, document, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (state_key)
		DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()`,
	selectDocs: "SELECT state_key, document FROM %s WHERE state_key IN ($1, $2)",
}

var sqliteDialect = sqlDialect{
	driver: "sqlite",
	createTable: `
		CREATE TABLE IF NOT EXISTS %s (
			state_key TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	upsert: `
		INSERT INTO %s (state_key, document, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (state_key)
		DO UPDATE SET document = excluded.document, updated_at = CURRENT_TIMESTAMP`,
	selectDocs: "SELECT state_key, document FROM %s WHERE state_key IN (?, ?)",
}

// SQLBackend stores both documents as rows of a single key/document table.
// Save writes them in one transaction.
type SQLBackend struct {
	dsn       string
	tableName string
	dialect   sqlDialect
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresBackend(dsn string) (*SQLBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &SQLBackend{
		dsn:       dsn,
		tableName: stateTableName,
		dialect:   postgresDialect,
		openDB:    sql.Open,
	}, nil
}

// NewSQLiteBackend opens (creating if needed) the database file at path in
// WAL mode.
func NewSQLiteBackend(path string) (*SQLBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &SQLBackend{
		dsn:       path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		tableName: stateTableName,
		dialect:   sqliteDialect,
		openDB:    sql.Open,
	}, nil
}

func (b *SQLBackend) Load() (*Snapshot, error) {
	if b == nil {
		return nil, nil
	}
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(b.dialect.selectDocs, quoteIdentifier(b.tableName))
	rows, err := b.db.QueryContext(ctx, query, stateDocumentKey, indexDocumentKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshot *Snapshot
	for rows.Next() {
		var key, document string
		if err := rows.Scan(&key, &document); err != nil {
			return nil, err
		}
		if snapshot == nil {
			snapshot = &Snapshot{}
		}
		switch key {
		case stateDocumentKey:
			snapshot.State = []byte(document)
		case indexDocumentKey:
			snapshot.Index = []byte(document)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (b *SQLBackend) Save(snapshot *Snapshot) error {
	if b == nil || snapshot == nil {
		return nil
	}
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(b.dialect.upsert, quoteIdentifier(b.tableName))
	for _, doc := range []struct {
		key  string
		data []byte
	}{
		{indexDocumentKey, snapshot.Index},
		{stateDocumentKey, snapshot.State},
	} {
		if doc.data == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, query, doc.key, string(doc.data)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (b *SQLBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLBackend) ensureReady() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		db, err := b.openDB(b.dialect.driver, b.dsn)
		if err != nil {
			b.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(b.dialect.createTable, quoteIdentifier(b.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			b.initErr = err
			return
		}
		b.db = db
	})
	return b.initErr
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
