package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// LineChunker splits file content into overlapping line-window chunks.
// It is intentionally language-agnostic: no tree-sitter grammar, no
// symbol extraction — just a sliding window over lines, which is
// enough for BM25/dense retrieval over arbitrary ingested text and
// keeps the ingestion path dependency-free for unsupported languages.
type LineChunker struct {
	maxChunkChars int
	overlapChars  int
}

// NewLineChunker builds a LineChunker. maxChunkChars/overlapChars
// default to DefaultMaxChunkTokens/DefaultOverlapTokens converted via
// TokensPerChar when zero.
func NewLineChunker(maxChunkChars, overlapChars int) *LineChunker {
	if maxChunkChars <= 0 {
		maxChunkChars = DefaultMaxChunkTokens * TokensPerChar
	}
	if overlapChars <= 0 {
		overlapChars = DefaultOverlapTokens * TokensPerChar
	}
	return &LineChunker{maxChunkChars: maxChunkChars, overlapChars: overlapChars}
}

// Chunk splits file into chunks of up to maxChunkChars, breaking on
// paragraph boundaries (blank lines) where possible and falling back
// to a hard line-window split for files without them. Every chunk
// carries Metadata["source_file"] and Metadata["chunk_hash"] so the
// watcher's hash-check/stale-deletion contract (spec §4.10) has
// something to key on.
func (c *LineChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	lines := strings.Split(string(file.Content), "\n")

	// A paragraph longer than maxChunkChars (or a file with no blank
	// lines at all) is cut into line windows of at most maxChunkChars.
	var groups [][]string
	for _, g := range groupByParagraph(lines) {
		var cur []string
		n := 0
		for _, l := range g {
			if len(cur) > 0 && n+len(l)+1 > c.maxChunkChars {
				groups = append(groups, cur)
				cur, n = nil, 0
			}
			cur = append(cur, l)
			n += len(l) + 1
		}
		groups = append(groups, cur)
	}

	var chunks []*Chunk
	startLine := 1
	var buf strings.Builder
	bufStart := startLine
	lineNo := startLine

	flush := func(endLine int) {
		content := buf.String()
		if strings.TrimSpace(content) == "" {
			buf.Reset()
			return
		}
		chunks = append(chunks, newChunk(file, content, bufStart, endLine))
		buf.Reset()
	}

	for _, group := range groups {
		groupText := strings.Join(group, "\n")
		if buf.Len() > 0 && buf.Len()+len(groupText) > c.maxChunkChars {
			flush(lineNo - 1)
			overlap := tailChars(buf.String(), c.overlapChars)
			buf.Reset()
			buf.WriteString(overlap)
			bufStart = lineNo - strings.Count(overlap, "\n")
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(groupText)
		lineNo += len(group)
	}
	flush(lineNo - 1)

	if len(chunks) == 0 {
		content := string(file.Content)
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, newChunk(file, content, 1, len(lines)))
		}
	}
	return chunks, nil
}

// SupportedExtensions reports none specifically: LineChunker is the
// fallback chunker used for any file a language-specific chunker
// doesn't claim.
func (c *LineChunker) SupportedExtensions() []string {
	return nil
}

func newChunk(file *FileInput, content string, startLine, endLine int) *Chunk {
	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])
	return &Chunk{
		ID:          hash[:16],
		FilePath:    file.Path,
		Content:     content,
		ContentType: classifyContentType(file.Path),
		Language:    file.Language,
		StartLine:   startLine,
		EndLine:     endLine,
		Metadata: map[string]string{
			"source_file": file.Path,
			"chunk_hash":  hash,
		},
	}
}

func classifyContentType(path string) ContentType {
	switch {
	case strings.HasSuffix(path, ".md") || strings.HasSuffix(path, ".mdx"):
		return ContentTypeMarkdown
	case strings.HasSuffix(path, ".go") || strings.HasSuffix(path, ".py") ||
		strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".ts") ||
		strings.HasSuffix(path, ".rs") || strings.HasSuffix(path, ".java"):
		return ContentTypeCode
	default:
		return ContentTypeText
	}
}

// groupByParagraph splits lines into runs separated by blank lines,
// each run kept intact so a chunk boundary never splits a paragraph
// unless the paragraph itself exceeds maxChunkChars (handled by the
// caller's overflow check).
func groupByParagraph(lines []string) [][]string {
	var groups [][]string
	var cur []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if len(cur) > 0 {
				groups = append(groups, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, l)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// tailChars returns the last n characters of s, trimmed to a line
// boundary so the overlap reads as whole lines.
func tailChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	tail := s[len(s)-n:]
	if idx := strings.Index(tail, "\n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return tail
}

var _ Chunker = (*LineChunker)(nil)
