package router

import "strings"

// OpKind classifies a logical operation as a read or a write for routing
// purposes (spec §4.12). The router never inspects payloads beyond the
// operation name.
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
)

func (k OpKind) String() string {
	if k == OpWrite {
		return "write"
	}
	return "read"
}

// Operation names for the protocol-agnostic surface of spec §6.1. Wire
// adapters (MCP tools, HTTP handlers, gRPC methods) map onto these names
// before calling the router.
const (
	OpCreateCollection = "create_collection"
	OpGetCollection     = "get_collection"
	OpListCollections   = "list_collections"
	OpDeleteCollection  = "delete_collection"
	OpUpdateConfig      = "update_config"
	OpListEmpty         = "list_empty"
	OpCleanupEmpty      = "cleanup_empty"

	OpInsertBatch = "insert_batch"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpDeleteBatch = "delete_batch"
	OpGet         = "get"
	OpList        = "list"
	OpCount       = "count"
	OpScroll      = "scroll"

	OpSearchDense           = "search_dense"
	OpSearchSparse          = "search_sparse"
	OpSearchHybrid          = "search_hybrid"
	OpSearchText            = "search_text"
	OpSearchMultiCollection = "search_multi_collection"
	OpRecommend             = "recommend"

	OpEmbed      = "embed"
	OpEmbedBatch = "embed_batch"

	OpSnapshotCreate  = "snapshot_create"
	OpSnapshotList    = "snapshot_list"
	OpSnapshotRestore = "snapshot_restore"
	OpStorageVerify   = "storage_verify"
	OpClusterRebalance = "cluster_rebalance"
)

// writePrefixes are the operation-name stems spec §6.1 fixes as Write:
// "all insert*/update*/delete*/create*/drop*/cleanup*/restore/rebalance".
var writePrefixes = []string{"insert", "update", "delete", "create", "drop", "cleanup"}

// Classify reports whether operation is a Read or a Write. It is a pure
// name match — the router never looks at request payloads.
func Classify(operation string) OpKind {
	for _, prefix := range writePrefixes {
		if strings.HasPrefix(operation, prefix) {
			return OpWrite
		}
	}
	if strings.Contains(operation, "restore") || strings.Contains(operation, "rebalance") {
		return OpWrite
	}
	return OpRead
}
