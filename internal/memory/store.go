// Package memory is the reference engine.MemoryStore implementation: sqlite
// for conversation persistence, bleve for full-text search, fsnotify for
// noticing .json records written by another process into a data directory
// (DataWatcher reports the changed paths; it does not load them into the
// Store), and a cron sweep for housekeeping. None of this is imported by
// internal/engine directly — it is consumed only through the MemoryStore,
// Embedder interfaces the engine already defines.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/engine"
)

// Store is the sqlite-backed engine.MemoryStore. Full-text search is
// delegated to an embedded Index (bleve); semantic search does a linear
// cosine scan, which is fine at reference-implementation scale.
type Store struct {
	db     *sql.DB
	index  *Index
	dbPath string
}

// Open opens (creating if needed) a sqlite database at dbPath and a bleve
// index alongside it, matching teacher's indexer.NewDB/NewBM25Index pairing.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging memory database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("initializing memory schema: %w", err)
	}

	index, err := OpenIndex(dbPath + ".bleve")
	if err != nil {
		return nil, fmt.Errorf("opening memory search index: %w", err)
	}
	s.index = index

	return s, nil
}

func (s *Store) Close() error {
	if err := s.index.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		messages   TEXT NOT NULL,
		summary    TEXT NOT NULL DEFAULT '',
		embedding  TEXT NOT NULL DEFAULT '',
		tags       TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Save implements engine.MemoryStore.Save. A record with no ID is treated
// as new; a missing embedding is left for the caller's Embedder to fill in
// before the next Save (the store itself has no Embedder access — spec
// §6 "save may enrich the record with an embedding" is the caller's job,
// not the store's).
func (s *Store) Save(ctx context.Context, record engine.ConversationRecord) (engine.ConversationRecord, error) {
	now := time.Now()
	if record.ID == "" {
		record.ID = uuid.NewString()
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	messagesJSON, err := json.Marshal(record.Messages)
	if err != nil {
		return engine.ConversationRecord{}, fmt.Errorf("marshaling messages: %w", err)
	}
	embeddingJSON, err := json.Marshal(record.Embedding)
	if err != nil {
		return engine.ConversationRecord{}, fmt.Errorf("marshaling embedding: %w", err)
	}
	tagsJSON, err := json.Marshal(record.Tags)
	if err != nil {
		return engine.ConversationRecord{}, fmt.Errorf("marshaling tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, messages, summary, embedding, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			messages = excluded.messages,
			summary = excluded.summary,
			embedding = excluded.embedding,
			tags = excluded.tags,
			updated_at = excluded.updated_at
	`, record.ID, record.Title, string(messagesJSON), record.Summary, string(embeddingJSON), string(tagsJSON),
		record.CreatedAt.Unix(), record.UpdatedAt.Unix())
	if err != nil {
		return engine.ConversationRecord{}, fmt.Errorf("saving conversation: %w", err)
	}

	if err := s.index.IndexRecord(record); err != nil {
		return engine.ConversationRecord{}, fmt.Errorf("indexing conversation: %w", err)
	}
	return record, nil
}

func (s *Store) Load(ctx context.Context, id string) (engine.ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, messages, summary, embedding, tags, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)
	return scanRecord(row)
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]engine.ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, messages, summary, embedding, tags, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Search implements keyword search via the bleve index, then hydrates full
// records from sqlite in result order.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]engine.ConversationRecord, error) {
	ids, err := s.index.Search(query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching conversations: %w", err)
	}
	out := make([]engine.ConversationRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// SemanticSearch scores every record with a non-empty embedding by cosine
// similarity to queryEmbedding and returns the top limit. A reference
// implementation at this scale has no need for an ANN index.
func (s *Store) SemanticSearch(ctx context.Context, queryEmbedding []float32, limit int) ([]engine.ConversationRecord, error) {
	all, err := s.List(ctx, 100000, 0)
	if err != nil {
		return nil, err
	}

	type scored struct {
		rec   engine.ConversationRecord
		score float32
	}
	var candidates []scored
	for _, rec := range all {
		if len(rec.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{rec, cosineSimilarity(queryEmbedding, rec.Embedding)})
	}
	for i := 0; i < len(candidates)-1; i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].score > candidates[i].score {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}
	out := make([]engine.ConversationRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = candidates[i].rec
	}
	return out, nil
}

// Delete removes a conversation record from both sqlite and the search
// index. Not part of engine.MemoryStore (the interface has no delete
// operation); used by the housekeeping sweep only.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return s.index.Delete(id)
}

func (s *Store) Stats(ctx context.Context) (engine.MemoryStoreStats, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		return engine.MemoryStoreStats{}, fmt.Errorf("counting conversations: %w", err)
	}
	var totalBytes int64
	if fi, err := os.Stat(s.dbPath); err == nil {
		totalBytes = fi.Size()
	}
	return engine.MemoryStoreStats{RecordCount: count, TotalBytes: totalBytes}, nil
}

func scanRecord(row *sql.Row) (engine.ConversationRecord, error) {
	var rec engine.ConversationRecord
	var messagesJSON, embeddingJSON, tagsJSON string
	var createdAt, updatedAt int64
	err := row.Scan(&rec.ID, &rec.Title, &messagesJSON, &rec.Summary, &embeddingJSON, &tagsJSON, &createdAt, &updatedAt)
	if err != nil {
		return engine.ConversationRecord{}, err
	}
	return hydrateRecord(rec, messagesJSON, embeddingJSON, tagsJSON, createdAt, updatedAt)
}

func scanRecords(rows *sql.Rows) ([]engine.ConversationRecord, error) {
	var out []engine.ConversationRecord
	for rows.Next() {
		var rec engine.ConversationRecord
		var messagesJSON, embeddingJSON, tagsJSON string
		var createdAt, updatedAt int64
		if err := rows.Scan(&rec.ID, &rec.Title, &messagesJSON, &rec.Summary, &embeddingJSON, &tagsJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		hydrated, err := hydrateRecord(rec, messagesJSON, embeddingJSON, tagsJSON, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, hydrated)
	}
	return out, rows.Err()
}

func hydrateRecord(rec engine.ConversationRecord, messagesJSON, embeddingJSON, tagsJSON string, createdAt, updatedAt int64) (engine.ConversationRecord, error) {
	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		return engine.ConversationRecord{}, fmt.Errorf("unmarshaling messages: %w", err)
	}
	if embeddingJSON != "" {
		if err := json.Unmarshal([]byte(embeddingJSON), &rec.Embedding); err != nil {
			return engine.ConversationRecord{}, fmt.Errorf("unmarshaling embedding: %w", err)
		}
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
			return engine.ConversationRecord{}, fmt.Errorf("unmarshaling tags: %w", err)
		}
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return rec, nil
}

func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (sqrt(normA) * sqrt(normB)))
}

func sqrt(f float64) float64 {
	if f <= 0 {
		return 0
	}
	x := f
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + f/x)
	}
	return x
}

