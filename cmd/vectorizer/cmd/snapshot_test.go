package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSnapshotList_NoSnapshotsDir(t *testing.T) {
	// Given: a data dir with no snapshots directory at all
	withTempDataDir(t)

	// When: listing snapshots for a collection
	err := runSnapshotList("nope")

	// Then: it reports there are none instead of erroring
	require.NoError(t, err)
}

func TestRunSnapshotCreate_MissingLiveArchive(t *testing.T) {
	// Given: a data dir with no live archive for the collection
	withTempDataDir(t)

	// When: creating a snapshot of it
	err := runSnapshotCreate("nope")

	// Then: it fails instead of snapshotting nothing
	require.Error(t, err)
}

func TestRunSnapshotRestore_RequiresID(t *testing.T) {
	// Given: a data dir
	withTempDataDir(t)

	// When: restoring without passing --id
	err := runSnapshotRestore("nope", "", false)

	// Then: it rejects the call up front
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--id is required")
}

func TestRunSnapshotRestore_MissingSnapshot(t *testing.T) {
	// Given: a data dir with no snapshot under the requested id
	withTempDataDir(t)

	// When: restoring from an id that was never created
	err := runSnapshotRestore("nope", "20260101-000000", false)

	// Then: it fails rather than restoring nothing
	require.Error(t, err)
}
