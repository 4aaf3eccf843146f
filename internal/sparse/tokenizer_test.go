package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_LowercasesAndSplitsOnPunctuation(t *testing.T) {
	tokens := Tokenize("Hello, World! foo-bar", 2)
	assert.Equal(t, []string{"hello", "world", "foo", "bar"}, tokens)
}

func TestTokenize_SplitsCamelCase(t *testing.T) {
	tokens := Tokenize("getUserById", 1)
	assert.Equal(t, []string{"get", "user", "by", "id"}, tokens)
}

func TestTokenize_SplitsSnakeCase(t *testing.T) {
	tokens := Tokenize("avg_doc_len", 1)
	assert.Equal(t, []string{"avg", "doc", "len"}, tokens)
}

func TestTokenize_DropsShortTokens(t *testing.T) {
	tokens := Tokenize("a an I be", 2)
	assert.Equal(t, []string{"an", "be"}, tokens)
}

func TestTokenize_UnicodeWords(t *testing.T) {
	tokens := Tokenize("café résumé", 2)
	assert.Equal(t, []string{"café", "résumé"}, tokens)
}

func TestFilterStopWords(t *testing.T) {
	stop := BuildStopWordSet([]string{"the", "a"})
	out := FilterStopWords([]string{"the", "quick", "a", "fox"}, stop)
	assert.Equal(t, []string{"quick", "fox"}, out)
}
