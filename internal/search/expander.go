package search

import "strings"

// Expander generates deterministic rule-based query variants for
// stage 2 of the pipeline (spec §4.11): a synonym table expansion of
// the normalized query, used only for dense retrieval. Variants never
// exceed maxExpansions additional terms per query word.
type Expander struct {
	synonyms      map[string][]string
	maxExpansions int
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithCustomSynonyms merges additional synonym mappings over the
// defaults, letting a deployment layer in a domain-specific lexicon.
func WithCustomSynonyms(synonyms map[string][]string) ExpanderOption {
	return func(e *Expander) {
		for k, v := range synonyms {
			e.synonyms[k] = append(e.synonyms[k], v...)
		}
	}
}

// NewExpander creates an Expander seeded with DefaultSynonyms.
func NewExpander(maxExpansions int, opts ...ExpanderOption) *Expander {
	if maxExpansions <= 0 {
		maxExpansions = 3
	}
	e := &Expander{synonyms: make(map[string][]string), maxExpansions: maxExpansions}
	for k, v := range DefaultSynonyms {
		e.synonyms[k] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the original normalized query followed by up to
// maxExpansions variants per query term, each substituting one synonym
// for one term so every variant stays close to the original query's
// intent. The total is not capped: a query with several expandable
// terms yields more than maxExpansions+1 variants. Variants are
// deduplicated and are used only for dense retrieval.
func (e *Expander) Expand(query string) []string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return []string{query}
	}

	variants := []string{query}
	seen := map[string]bool{query: true}

	for i, term := range terms {
		syns := e.synonyms[strings.ToLower(term)]
		added := 0
		for _, syn := range syns {
			if added >= e.maxExpansions {
				break
			}
			rewritten := make([]string, len(terms))
			copy(rewritten, terms)
			rewritten[i] = syn
			variant := strings.Join(rewritten, " ")
			if !seen[variant] {
				seen[variant] = true
				variants = append(variants, variant)
				added++
			}
		}
	}
	return variants
}
