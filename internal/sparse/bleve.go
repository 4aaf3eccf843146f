package sparse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	vectorizerTokenizerName = "vectorizer_tokenizer"
	vectorizerStopName      = "vectorizer_stop"
	vectorizerAnalyzerName  = "vectorizer_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(vectorizerTokenizerName, vectorizerTokenizerConstructor)
	_ = registry.RegisterTokenFilter(vectorizerStopName, vectorizerStopFilterConstructor)
}

// bleveDocument is the structure indexed into Bleve.
type bleveDocument struct {
	Content string `json:"content"`
}

// bleveIndex wraps Bleve's full-text engine. Bleve's own BM25-style
// scoring drives ranking; this backend keeps a parallel Vocabulary and
// df/doc_count/avg_doc_len ledger so EmbedQuery and Stats honor the same
// contract as the native backend, since Bleve does not expose those
// directly.
type bleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
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

// validateBleveIntegrity checks for the corruption signature Bleve's
// on-disk metadata exhibits after a crash mid-write.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}
	return nil
}

func isBleveCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveIndex creates or opens a Bleve-backed sparse index. An empty
// path creates an in-memory index. A corrupted on-disk index is cleared
// and rebuilt rather than left unusable.
func NewBleveIndex(path string, cfg Config) (*bleveIndex, error) {
	indexMapping, err := createVectorizerMapping()
	if err != nil {
		return nil, fmt.Errorf("sparse: create bleve mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sparse: create directory: %w", err)
		}
		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("sparse_bleve_index_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("sparse: corrupted index at %s, cannot remove: %w", path, removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isBleveCorruptionError(err) {
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("sparse: cannot clear corrupted index: %w", removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("sparse: create/open bleve index: %w", err)
	}

	return &bleveIndex{
		index:    idx,
		path:     path,
		cfg:      cfg,
		vocab:    NewVocabulary(cfg.TokenizerVersion),
		stop:     BuildStopWordSet(cfg.StopWords),
		docTerms: make(map[uint32][]uint32),
		df:       make(map[uint32]int),
		docLen:   make(map[uint32]int),
	}, nil
}

func createVectorizerMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(vectorizerAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     vectorizerTokenizerName,
		"token_filters": []string{lowercase.Name, vectorizerStopName},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	im.DefaultAnalyzer = vectorizerAnalyzerName
	return im, nil
}

func (b *bleveIndex) docKey(docID uint32) string { return strconv.FormatUint(uint64(docID), 10) }

func (b *bleveIndex) tokenize(text string) []string {
	return FilterStopWords(Tokenize(text, b.cfg.MinTokenLength), b.stop)
}

func (b *bleveIndex) Add(ctx context.Context, docID uint32, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("sparse: index is closed")
	}

	if _, exists := b.docLen[docID]; exists {
		b.removeLocked(docID)
	}

	tokens := b.tokenize(text)
	seen := make(map[uint32]bool, len(tokens))
	terms := make([]uint32, 0, len(tokens))
	for _, tok := range tokens {
		id := b.vocab.IDFor(tok)
		if !seen[id] {
			seen[id] = true
			terms = append(terms, id)
			b.df[id]++
		}
	}

	b.docTerms[docID] = terms
	b.docLen[docID] = len(tokens)
	b.totalLen += int64(len(tokens))
	b.docCount++

	if err := b.index.Index(b.docKey(docID), bleveDocument{Content: text}); err != nil {
		return fmt.Errorf("sparse: index document %d: %w", docID, err)
	}
	return nil
}

func (b *bleveIndex) Remove(ctx context.Context, docID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("sparse: index is closed")
	}
	b.removeLocked(docID)
	return b.index.Delete(b.docKey(docID))
}

func (b *bleveIndex) removeLocked(docID uint32) {
	terms, ok := b.docTerms[docID]
	if !ok {
		return
	}
	for _, t := range terms {
		b.df[t]--
		if b.df[t] <= 0 {
			delete(b.df, t)
		}
	}
	b.totalLen -= int64(b.docLen[docID])
	b.docCount--
	delete(b.docLen, docID)
	delete(b.docTerms, docID)
}

func (b *bleveIndex) EmbedQuery(text string) SparseVector {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[uint32]float32)
	for _, tok := range b.tokenize(text) {
		if id, ok := b.vocab.Lookup(tok); ok {
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

func (b *bleveIndex) Query(ctx context.Context, text string, k int) ([]Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("sparse: index is closed")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	q := bleve.NewMatchQuery(text)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = k

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sparse: bleve search: %w", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, Result{DocID: uint32(id), Score: hit.Score})
	}
	return out, nil
}

func (b *bleveIndex) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	avg := 0.0
	if b.docCount > 0 {
		avg = float64(b.totalLen) / float64(b.docCount)
	}
	return Stats{DocCount: b.docCount, TermCount: b.vocab.Size(), AvgDocLength: avg}
}

// Save persists only the parallel vocabulary; the df/doc-length ledger
// is not saved, and Load leaves it unchanged. Bleve's on-disk index
// writes itself as documents are indexed.
func (b *bleveIndex) Save(path string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.vocab.Save(path + ".vocab")
}

func (b *bleveIndex) Load(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vocab, err := LoadVocabulary(path+".vocab", b.cfg.TokenizerVersion)
	if err != nil {
		return err
	}
	b.vocab = vocab
	return nil
}

func (b *bleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ Index = (*bleveIndex)(nil)

func vectorizerTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &vectorizerTokenizer{}, nil
}

// vectorizerTokenizer adapts Tokenize to Bleve's analysis.Tokenizer.
type vectorizerTokenizer struct{}

func (t *vectorizerTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := Tokenize(text, 1)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	lowerText := strings.ToLower(text)

	for _, token := range tokens {
		start := strings.Index(lowerText[offset:], token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

func vectorizerStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &vectorizerStopFilter{stopWords: BuildStopWordSet(DefaultStopWords)}, nil
}

// vectorizerStopFilter drops stop words after lowercasing.
type vectorizerStopFilter struct {
	stopWords map[string]struct{}
}

func (f *vectorizerStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, stop := f.stopWords[term]; !stop {
			result = append(result, token)
		}
	}
	return result
}
