package search

// DefaultSynonyms maps common query terms to their domain equivalents,
// bridging the vocabulary gap between how a query is phrased and how
// ingested content is worded. Callers append their own domain lexicon
// via WithCustomSynonyms; this table only covers generic terms that
// show up across most ingested corpora.
var DefaultSynonyms = map[string][]string{
	"error":      {"exception", "failure", "fault"},
	"exception":  {"error", "failure"},
	"config":     {"configuration", "settings", "options"},
	"doc":        {"document", "documentation"},
	"docs":       {"documentation", "guide"},
	"start":      {"begin", "launch", "init"},
	"stop":       {"halt", "shutdown", "terminate"},
	"delete":     {"remove", "erase", "drop"},
	"create":     {"add", "new", "insert"},
	"update":     {"modify", "edit", "change"},
	"fast":       {"quick", "speed", "performance"},
	"slow":       {"latency", "delay"},
	"bug":        {"issue", "defect", "problem"},
	"guide":      {"tutorial", "walkthrough", "howto"},
	"setup":      {"install", "configure", "provision"},
	"login":      {"sign in", "authenticate", "auth"},
}
