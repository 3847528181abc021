package memstub

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"crawshaw.io/sqlite"
)

// storedRecord is one row of the memories table.
type storedRecord struct {
	ID        string                 `json:"id"`
	Memory    string                 `json:"memory"`
	UserID    string                 `json:"user_id"`
	Category  string                 `json:"category"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt string                 `json:"created_at"`
	Score     *float64               `json:"score,omitempty"`
}

// store keeps records in a private in-memory SQLite database.
type store struct {
	mu       sync.Mutex
	conn     *sqlite.Conn
	embedder *Embedder
}

func openStore(embedder *Embedder) (*store, error) {
	conn, err := sqlite.OpenConn(":memory:", sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	s := &store{conn: conn, embedder: embedder}
	if err := s.exec(`
	CREATE TABLE IF NOT EXISTS memories (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		memory TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return s, nil
}

func (s *store) exec(query string) error {
	stmt, err := s.conn.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Reset()

	_, err = stmt.Step()
	return err
}

func (s *store) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// insert appends a record and returns it.
func (s *store) insert(id, userID, category, memory string, metadata map[string]interface{}, at time.Time) (storedRecord, error) {
	var metaJSON string
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return storedRecord{}, fmt.Errorf("failed to encode metadata: %w", err)
		}
		metaJSON = string(b)
	}

	embedding, err := encodeVector(s.embedder.Embed(memory))
	if err != nil {
		return storedRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := s.conn.Prepare(`
	INSERT INTO memories (id, user_id, category, memory, metadata, embedding, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return storedRecord{}, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, id)
	stmt.BindText(2, userID)
	stmt.BindText(3, category)
	stmt.BindText(4, memory)
	stmt.BindText(5, metaJSON)
	stmt.BindBytes(6, embedding)
	stmt.BindInt64(7, at.UnixNano())

	if _, err := stmt.Step(); err != nil {
		return storedRecord{}, fmt.Errorf("failed to insert memory: %w", err)
	}

	return storedRecord{
		ID:        id,
		Memory:    memory,
		UserID:    userID,
		Category:  category,
		Metadata:  metadata,
		CreatedAt: at.UTC().Format(time.RFC3339Nano),
	}, nil
}

type scanned struct {
	rec       storedRecord
	embedding []float32
}

// scan returns the user's records in category in insertion order.
func (s *store) scan(userID, category string, withEmbeddings bool) ([]scanned, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := s.conn.Prepare(`
	SELECT id, memory, metadata, embedding, created_at FROM memories
	WHERE user_id = ? AND category = ?
	ORDER BY seq ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Reset()

	stmt.BindText(1, userID)
	stmt.BindText(2, category)

	var out []scanned
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("failed to execute select statement: %w", err)
		}
		if !hasRow {
			break
		}

		rec := storedRecord{
			ID:        stmt.ColumnText(0),
			Memory:    stmt.ColumnText(1),
			UserID:    userID,
			Category:  category,
			CreatedAt: time.Unix(0, stmt.ColumnInt64(4)).UTC().Format(time.RFC3339Nano),
		}
		if meta := stmt.ColumnText(2); meta != "" {
			if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", rec.ID, err)
			}
		}

		item := scanned{rec: rec}
		if withEmbeddings {
			buf := make([]byte, stmt.ColumnLen(3))
			stmt.ColumnBytes(3, buf)
			vec, err := decodeVector(buf)
			if err != nil {
				return nil, fmt.Errorf("failed to decode embedding for %s: %w", rec.ID, err)
			}
			item.embedding = vec
		}
		out = append(out, item)
	}
	return out, nil
}

// list returns a page of the user's records in insertion order.
func (s *store) list(userID, category string, limit, offset int) ([]storedRecord, error) {
	rows, err := s.scan(userID, category, false)
	if err != nil {
		return nil, err
	}

	records := make([]storedRecord, 0, len(rows))
	for i, r := range rows {
		if i < offset {
			continue
		}
		if limit > 0 && len(records) >= limit {
			break
		}
		records = append(records, r.rec)
	}
	return records, nil
}

// search ranks the user's records by cosine similarity to query and returns
// at most limit records that share at least one token with it.
func (s *store) search(query, userID, category string, limit int) ([]storedRecord, error) {
	rows, err := s.scan(userID, category, true)
	if err != nil {
		return nil, err
	}

	q := s.embedder.Embed(query)
	results := make([]storedRecord, 0, len(rows))
	for _, r := range rows {
		sim, err := CosineSimilarity(q, r.embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate similarity for %s: %w", r.rec.ID, err)
		}
		if sim <= 0 {
			continue
		}
		rec := r.rec
		score := sim
		rec.Score = &score
		results = append(results, rec)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].Score > *results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// count returns the number of stored records.
func (s *store) count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := s.conn.Prepare(`SELECT COUNT(*) FROM memories;`)
	if err != nil {
		return 0, err
	}
	defer stmt.Reset()

	if _, err := stmt.Step(); err != nil {
		return 0, err
	}
	return int(stmt.ColumnInt64(0)), nil
}
