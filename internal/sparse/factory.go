package sparse

import "fmt"

// Backend names match config.SearchConfig.SparseBackend.
const (
	BackendNative = "native"
	BackendBleve  = "bleve"
	BackendSQLite = "sqlite"
)

// New constructs the sparse Index for the requested backend. path is a
// directory/file location for on-disk backends; an empty path selects
// an in-memory index (used by bleve and sqlite; native is always
// in-memory until Save is called).
func New(backend, path string, cfg Config) (Index, error) {
	switch backend {
	case "", BackendNative:
		return NewNativeIndex(cfg), nil
	case BackendBleve:
		return NewBleveIndex(path, cfg)
	case BackendSQLite:
		return NewSQLiteIndex(path, cfg)
	default:
		return nil, fmt.Errorf("sparse: unknown backend %q", backend)
	}
}
