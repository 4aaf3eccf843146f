package sparse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, no CGO
)

// sqliteIndex implements Index using SQLite's FTS5 extension. WAL mode
// gives concurrent multi-process readers while a single writer holds
// the connection pool, mirroring the store-package precedent for
// multi-process safety.
type sqliteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	cfg    Config
	vocab  *Vocabulary
	stop   map[string]struct{}
	closed bool

	docTerms map[uint32][]uint32
	df       map[uint32]int
	docLen   map[uint32]int
	totalLen int64
	docCount int
}

func validateSQLiteFTSIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='fts_content'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'fts_content' missing")
	}
	return nil
}

// NewSQLiteIndex creates or opens a SQLite FTS5-backed sparse index.
// An empty path opens an in-memory database.
func NewSQLiteIndex(path string, cfg Config) (*sqliteIndex, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sparse: create directory: %w", err)
		}
		if validErr := validateSQLiteFTSIntegrity(path); validErr != nil {
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("sparse: corrupted at %s, cannot remove: %w", path, removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sparse: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sparse: set pragma %q: %w", p, err)
		}
	}

	idx := &sqliteIndex{
		db:       db,
		path:     path,
		cfg:      cfg,
		vocab:    NewVocabulary(cfg.TokenizerVersion),
		stop:     BuildStopWordSet(cfg.StopWords),
		docTerms: make(map[uint32][]uint32),
		df:       make(map[uint32]int),
		docLen:   make(map[uint32]int),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sparse: init schema: %w", err)
	}
	return idx, nil
}

func (s *sqliteIndex) initSchema() error {
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqliteIndex) tokenize(text string) []string {
	return FilterStopWords(Tokenize(text, s.cfg.MinTokenLength), s.stop)
}

func (s *sqliteIndex) Add(ctx context.Context, docID uint32, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sparse: index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sparse: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("sparse: delete existing doc: %w", err)
	}

	tokens := s.tokenize(text)
	processed := strings.Join(tokens, " ")
	if _, err := tx.ExecContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`, docID, processed); err != nil {
		return fmt.Errorf("sparse: insert doc %d: %w", docID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sparse: commit: %w", err)
	}

	if _, exists := s.docLen[docID]; exists {
		s.removeBookkeepingLocked(docID)
	}
	seen := make(map[uint32]bool, len(tokens))
	terms := make([]uint32, 0, len(tokens))
	for _, tok := range tokens {
		id := s.vocab.IDFor(tok)
		if !seen[id] {
			seen[id] = true
			terms = append(terms, id)
			s.df[id]++
		}
	}
	s.docTerms[docID] = terms
	s.docLen[docID] = len(tokens)
	s.totalLen += int64(len(tokens))
	s.docCount++

	return nil
}

func (s *sqliteIndex) removeBookkeepingLocked(docID uint32) {
	terms, ok := s.docTerms[docID]
	if !ok {
		return
	}
	for _, t := range terms {
		s.df[t]--
		if s.df[t] <= 0 {
			delete(s.df, t)
		}
	}
	s.totalLen -= int64(s.docLen[docID])
	s.docCount--
	delete(s.docLen, docID)
	delete(s.docTerms, docID)
}

func (s *sqliteIndex) Remove(ctx context.Context, docID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sparse: index is closed")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("sparse: delete doc %d: %w", docID, err)
	}
	s.removeBookkeepingLocked(docID)
	return nil
}

func (s *sqliteIndex) EmbedQuery(text string) SparseVector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[uint32]float32)
	for _, tok := range s.tokenize(text) {
		if id, ok := s.vocab.Lookup(tok); ok {
			counts[id]++
		}
	}
	sv := SparseVector{Indices: make([]uint32, 0, len(counts)), Values: make([]float32, 0, len(counts))}
	for id, v := range counts {
		sv.Indices = append(sv.Indices, id)
		sv.Values = append(sv.Values, v)
	}
	return sv
}

// Query uses FTS5's built-in bm25() ranking, which hardcodes k1=1.2,
// b=0.75 rather than honoring Config.K1/B; the sqlite backend trades
// tunable BM25 parameters for FTS5's indexing and WAL durability.
func (s *sqliteIndex) Query(ctx context.Context, text string, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("sparse: index is closed")
	}

	tokens := s.tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	matchQuery := strings.Join(tokens, " ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_content) as score
		FROM fts_content
		WHERE fts_content MATCH ?
		ORDER BY score
		LIMIT ?
	`, matchQuery, k)
	if err != nil {
		return nil, fmt.Errorf("sparse: fts5 query: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var docID uint32
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, fmt.Errorf("sparse: scan row: %w", err)
		}
		// bm25() returns negative values, lower (more negative) is a
		// better match; negate so higher Score is better everywhere.
		out = append(out, Result{DocID: docID, Score: -score})
	}
	return out, rows.Err()
}

func (s *sqliteIndex) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	avg := 0.0
	if s.docCount > 0 {
		avg = float64(s.totalLen) / float64(s.docCount)
	}
	return Stats{DocCount: s.docCount, TermCount: s.vocab.Size(), AvgDocLength: avg}
}

func (s *sqliteIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vocab.Save(path + ".vocab")
}

func (s *sqliteIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vocab, err := LoadVocabulary(path+".vocab", s.cfg.TokenizerVersion)
	if err != nil {
		return err
	}
	s.vocab = vocab
	return nil
}

func (s *sqliteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Index = (*sqliteIndex)(nil)
