package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_WritePrefixes(t *testing.T) {
	writes := []string{
		OpInsertBatch, OpUpdate, OpDelete, OpDeleteBatch,
		OpCreateCollection, OpDeleteCollection, OpCleanupEmpty,
		OpSnapshotRestore, OpClusterRebalance,
	}
	for _, op := range writes {
		assert.Equal(t, OpWrite, Classify(op), "expected %s to classify as write", op)
	}
}

func TestClassify_ReadEverythingElse(t *testing.T) {
	reads := []string{
		OpGetCollection, OpListCollections, OpListEmpty,
		OpGet, OpList, OpCount, OpScroll,
		OpSearchDense, OpSearchSparse, OpSearchHybrid, OpSearchText,
		OpSearchMultiCollection, OpRecommend,
		OpEmbed, OpEmbedBatch,
		OpSnapshotCreate, OpSnapshotList, OpStorageVerify,
	}
	for _, op := range reads {
		assert.Equal(t, OpRead, Classify(op), "expected %s to classify as read", op)
	}
}

func TestOpKind_String(t *testing.T) {
	assert.Equal(t, "read", OpRead.String())
	assert.Equal(t, "write", OpWrite.String())
}
