package sparse

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Vocabulary maps terms to stable u32 indices, persisted per collection
// so sparse vectors stay interpretable across restarts. TokenizerVersion
// gates reuse: a mismatch means the persisted term ids cannot be trusted
// against the current tokenizer and the vocabulary must be rebuilt.
type Vocabulary struct {
	mu               sync.RWMutex
	terms            map[string]uint32
	next             uint32
	TokenizerVersion int
}

// NewVocabulary creates an empty vocabulary for the given tokenizer
// version.
func NewVocabulary(tokenizerVersion int) *Vocabulary {
	return &Vocabulary{
		terms:            make(map[string]uint32),
		TokenizerVersion: tokenizerVersion,
	}
}

// IDFor returns the stable id for term, assigning a new one if unseen.
func (v *Vocabulary) IDFor(term string) uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id, ok := v.terms[term]; ok {
		return id
	}
	id := v.next
	v.terms[term] = id
	v.next++
	return id
}

// Lookup returns the id for term without assigning one.
func (v *Vocabulary) Lookup(term string) (uint32, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	id, ok := v.terms[term]
	return id, ok
}

// Size returns the number of distinct terms.
func (v *Vocabulary) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.terms)
}

type vocabularySnapshot struct {
	Terms            map[string]uint32
	Next             uint32
	TokenizerVersion int
}

// Save persists the vocabulary via a temp-file-then-rename write.
func (v *Vocabulary) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sparse: create vocabulary directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("sparse: create temp vocabulary file: %w", err)
	}

	snap := vocabularySnapshot{Terms: v.terms, Next: v.next, TokenizerVersion: v.TokenizerVersion}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sparse: encode vocabulary: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sparse: close vocabulary file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// LoadVocabulary reads a persisted vocabulary. If wantVersion does not
// match the persisted TokenizerVersion, it returns ErrTokenizerVersionMismatch
// so the caller can rebuild instead of trusting stale term ids.
func LoadVocabulary(path string, wantVersion int) (*Vocabulary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sparse: open vocabulary file: %w", err)
	}
	defer file.Close()

	var snap vocabularySnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("sparse: decode vocabulary: %w", err)
	}

	if snap.TokenizerVersion != wantVersion {
		return nil, ErrTokenizerVersionMismatch{Persisted: snap.TokenizerVersion, Current: wantVersion}
	}

	return &Vocabulary{terms: snap.Terms, next: snap.Next, TokenizerVersion: snap.TokenizerVersion}, nil
}

// ErrTokenizerVersionMismatch signals that a persisted vocabulary was
// built under a different tokenizer and must be rebuilt rather than reused.
type ErrTokenizerVersionMismatch struct {
	Persisted int
	Current   int
}

func (e ErrTokenizerVersionMismatch) Error() string {
	return fmt.Sprintf("sparse: tokenizer_version mismatch: persisted=%d current=%d", e.Persisted, e.Current)
}
