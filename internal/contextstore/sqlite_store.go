package contextstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"crawshaw.io/sqlite"
	"github.com/tidwall/gjson"

	"github.com/memphora/memphora-mcp/internal/vector"
)

// SQLiteMemoryStore is a MemoryStore backed by a single SQLite connection.
// A crawshaw connection is not safe for concurrent use, so every method
// holds mu.
type SQLiteMemoryStore struct {
	mu     sync.Mutex
	conn   *sqlite.Conn
	dbPath string
}

// NewSQLiteMemoryStore creates an uninitialised store.
func NewSQLiteMemoryStore() *SQLiteMemoryStore {
	return &SQLiteMemoryStore{}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories (user_id, created_at);`,
}

// Initialize opens the database at dbPath and creates the schema.
func (s *SQLiteMemoryStore) Initialize(dbPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dbPath = dbPath

	conn, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_READWRITE)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	for _, q := range schema {
		if err := exec(conn, q); err != nil {
			conn.Close()
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	s.conn = conn
	return nil
}

func exec(conn *sqlite.Conn, query string) error {
	stmt, err := conn.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Reset()

	_, err = stmt.Step()
	return err
}

// Close closes the underlying connection.
func (s *SQLiteMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Insert stores rec with its encoded embedding, replacing any record with
// the same ID.
func (s *SQLiteMemoryStore) Insert(rec Record, embedding []byte) error {
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", rec.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotInitialized
	}

	stmt, err := s.conn.Prepare(`
	INSERT OR REPLACE INTO memories (id, user_id, content, metadata, embedding, created_at)
	VALUES (?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, rec.ID)
	stmt.BindText(2, rec.UserID)
	stmt.BindText(3, rec.Content)
	stmt.BindText(4, string(metaJSON))
	stmt.BindBytes(5, embedding)
	stmt.BindInt64(6, rec.CreatedAt.UnixNano())

	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("failed to insert memory %s: %w", rec.ID, err)
	}
	return nil
}

// Search scores every record of userID against queryEmbedding.
func (s *SQLiteMemoryStore) Search(userID string, queryEmbedding []float32, limit int, minSimilarity float64) ([]ScoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrNotInitialized
	}

	stmt, err := s.conn.Prepare(`
	SELECT id, user_id, content, metadata, created_at, embedding FROM memories
	WHERE user_id = ?
	ORDER BY created_at DESC, rowid DESC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare search statement: %w", err)
	}
	defer stmt.Reset()
	stmt.BindText(1, userID)

	var results []ScoredRecord
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("failed to execute search statement: %w", err)
		}
		if !hasRow {
			break
		}

		rec := scanRecord(stmt)
		embeddingBytes := make([]byte, stmt.ColumnLen(5))
		stmt.ColumnBytes(5, embeddingBytes)

		stored, err := vector.BytesToFloat32Slice(embeddingBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", rec.ID, err)
		}

		// Zero-magnitude vectors (text without tokens) never match.
		similarity, err := vector.CosineSimilarity(queryEmbedding, stored)
		if err != nil || similarity < minSimilarity {
			continue
		}
		results = append(results, ScoredRecord{Record: rec, Similarity: similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// List returns the user's records, newest first.
func (s *SQLiteMemoryStore) List(userID string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrNotInitialized
	}

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	stmt, err := s.conn.Prepare(`
	SELECT id, user_id, content, metadata, created_at FROM memories
	WHERE user_id = ?
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?;`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare list statement: %w", err)
	}
	defer stmt.Reset()
	stmt.BindText(1, userID)
	stmt.BindInt64(2, int64(limit))

	records := make([]Record, 0)
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("failed to execute list statement: %w", err)
		}
		if !hasRow {
			break
		}
		records = append(records, scanRecord(stmt))
	}
	return records, nil
}

// Delete removes the record id owned by userID.
func (s *SQLiteMemoryStore) Delete(userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return false, ErrNotInitialized
	}

	stmt, err := s.conn.Prepare(`DELETE FROM memories WHERE id = ? AND user_id = ?;`)
	if err != nil {
		return false, fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer stmt.Reset()
	stmt.BindText(1, id)
	stmt.BindText(2, userID)

	if _, err := stmt.Step(); err != nil {
		return false, fmt.Errorf("failed to delete memory %s: %w", id, err)
	}
	return s.conn.Changes() > 0, nil
}

// Stats counts the user's records per category and reports the oldest and
// newest creation times. Records without a category count as "general".
func (s *SQLiteMemoryStore) Stats(userID string) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return Stats{}, ErrNotInitialized
	}

	stmt, err := s.conn.Prepare(`SELECT metadata, created_at FROM memories WHERE user_id = ?;`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to prepare stats statement: %w", err)
	}
	defer stmt.Reset()
	stmt.BindText(1, userID)

	stats := Stats{Categories: make(map[string]int)}
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return Stats{}, fmt.Errorf("failed to execute stats statement: %w", err)
		}
		if !hasRow {
			break
		}

		category := "general"
		if c := gjson.Get(stmt.ColumnText(0), "category"); c.Type == gjson.String && c.Str != "" {
			category = c.Str
		}
		stats.Categories[category]++
		stats.Total++

		created := time.Unix(0, stmt.ColumnInt64(1)).UTC()
		if stats.Oldest.IsZero() || created.Before(stats.Oldest) {
			stats.Oldest = created
		}
		if created.After(stats.Newest) {
			stats.Newest = created
		}
	}
	return stats, nil
}

// scanRecord reads id, user_id, content, metadata and created_at from the
// first five columns.
func scanRecord(stmt *sqlite.Stmt) Record {
	rec := Record{
		ID:        stmt.ColumnText(0),
		UserID:    stmt.ColumnText(1),
		Content:   stmt.ColumnText(2),
		CreatedAt: time.Unix(0, stmt.ColumnInt64(4)).UTC(),
	}
	if md := gjson.Parse(stmt.ColumnText(3)); md.IsObject() {
		if m, ok := md.Value().(map[string]interface{}); ok && len(m) > 0 {
			rec.Metadata = m
		}
	}
	return rec
}
