package sparse

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// nativeIndex is a hand-rolled BM25 index: inverted postings keyed by
// vocabulary term id, maintained entirely in memory and persisted as a
// single gob snapshot.
type nativeIndex struct {
	mu     sync.RWMutex
	cfg    Config
	vocab  *Vocabulary
	stop   map[string]struct{}
	closed bool

	// postings[term][docID] = term frequency in that document.
	postings map[uint32]map[uint32]int
	docLen   map[uint32]int
	docTerms map[uint32][]uint32 // term ids present in each doc, for Remove
	totalLen int64
	docCount int
}

// NewNativeIndex constructs an empty native BM25 index.
func NewNativeIndex(cfg Config) *nativeIndex {
	return &nativeIndex{
		cfg:      cfg,
		vocab:    NewVocabulary(cfg.TokenizerVersion),
		stop:     BuildStopWordSet(cfg.StopWords),
		postings: make(map[uint32]map[uint32]int),
		docLen:   make(map[uint32]int),
		docTerms: make(map[uint32][]uint32),
	}
}

func (n *nativeIndex) tokenize(text string) []string {
	tokens := Tokenize(text, n.cfg.MinTokenLength)
	return FilterStopWords(tokens, n.stop)
}

func (n *nativeIndex) Add(ctx context.Context, docID uint32, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("sparse: index is closed")
	}

	if _, exists := n.docLen[docID]; exists {
		n.removeLocked(docID)
	}

	tokens := n.tokenize(text)
	freq := make(map[uint32]int, len(tokens))
	for _, tok := range tokens {
		id := n.vocab.IDFor(tok)
		freq[id]++
	}

	terms := make([]uint32, 0, len(freq))
	for id, f := range freq {
		if n.postings[id] == nil {
			n.postings[id] = make(map[uint32]int)
		}
		n.postings[id][docID] = f
		terms = append(terms, id)
	}

	n.docTerms[docID] = terms
	n.docLen[docID] = len(tokens)
	n.totalLen += int64(len(tokens))
	n.docCount++

	return nil
}

func (n *nativeIndex) Remove(ctx context.Context, docID uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("sparse: index is closed")
	}
	n.removeLocked(docID)
	return nil
}

func (n *nativeIndex) removeLocked(docID uint32) {
	terms, ok := n.docTerms[docID]
	if !ok {
		return
	}
	for _, t := range terms {
		delete(n.postings[t], docID)
		if len(n.postings[t]) == 0 {
			delete(n.postings, t)
		}
	}
	n.totalLen -= int64(n.docLen[docID])
	n.docCount--
	delete(n.docLen, docID)
	delete(n.docTerms, docID)
}

func (n *nativeIndex) EmbedQuery(text string) SparseVector {
	n.mu.RLock()
	defer n.mu.RUnlock()

	tokens := n.tokenize(text)
	counts := make(map[uint32]float32)
	for _, tok := range tokens {
		if id, ok := n.vocab.Lookup(tok); ok {
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

func (n *nativeIndex) avgDocLen() float64 {
	if n.docCount == 0 {
		return 0
	}
	return float64(n.totalLen) / float64(n.docCount)
}

// idf uses the BM25 form log(1 + (N-df+0.5)/(df+0.5)), which stays
// positive even for a term present in more than half the corpus; the
// clamp at zero is only a guard.
func (n *nativeIndex) idf(df int) float64 {
	if n.docCount == 0 {
		return 0
	}
	v := math.Log(1.0 + (float64(n.docCount)-float64(df)+0.5)/(float64(df)+0.5))
	if v < 0 {
		return 0
	}
	return v
}

func (n *nativeIndex) Query(ctx context.Context, text string, k int) ([]Result, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return nil, fmt.Errorf("sparse: index is closed")
	}

	tokens := n.tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	avgdl := n.avgDocLen()
	scores := make(map[uint32]float64)
	for _, tok := range tokens {
		id, ok := n.vocab.Lookup(tok)
		if !ok {
			continue
		}
		plist := n.postings[id]
		if len(plist) == 0 {
			continue
		}
		idf := n.idf(len(plist))
		for docID, f := range plist {
			dl := float64(n.docLen[docID])
			denom := float64(f) + n.cfg.K1*(1-n.cfg.B+n.cfg.B*dl/avgdl)
			scores[docID] += idf * (float64(f) * (n.cfg.K1 + 1) / denom)
		}
	}

	results := make([]Result, 0, len(scores))
	for docID, score := range scores {
		results = append(results, Result{DocID: docID, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (n *nativeIndex) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Stats{
		DocCount:     n.docCount,
		TermCount:    n.vocab.Size(),
		AvgDocLength: n.avgDocLen(),
	}
}

type nativeSnapshot struct {
	Postings map[uint32]map[uint32]int
	DocLen   map[uint32]int
	DocTerms map[uint32][]uint32
	TotalLen int64
	DocCount int
}

func (n *nativeIndex) Save(path string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sparse: create directory: %w", err)
	}
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("sparse: create temp index file: %w", err)
	}

	snap := nativeSnapshot{
		Postings: n.postings,
		DocLen:   n.docLen,
		DocTerms: n.docTerms,
		TotalLen: n.totalLen,
		DocCount: n.docCount,
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sparse: encode index: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sparse: close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("sparse: rename index file: %w", err)
	}

	return n.vocab.Save(path + ".vocab")
}

func (n *nativeIndex) Load(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sparse: open index file: %w", err)
	}
	defer file.Close()

	var snap nativeSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("sparse: decode index: %w", err)
	}

	vocab, err := LoadVocabulary(path+".vocab", n.cfg.TokenizerVersion)
	if err != nil {
		return err
	}

	n.postings = snap.Postings
	n.docLen = snap.DocLen
	n.docTerms = snap.DocTerms
	n.totalLen = snap.TotalLen
	n.docCount = snap.DocCount
	n.vocab = vocab
	return nil
}

func (n *nativeIndex) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

var _ Index = (*nativeIndex)(nil)
