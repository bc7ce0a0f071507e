package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valyx/valog/pkg/vlog"
)

func TestFreshStoreReturnsZeroPointer(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "ckpt"))
	require.NoError(t, err)
	defer store.Close()

	ptr, err := store.Pointer()
	require.NoError(t, err)
	assert.Equal(t, vlog.WalPointer{}, ptr)
}

func TestPointerSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt")
	store, err := Open(path)
	require.NoError(t, err)

	want := vlog.WalPointer{LogID: 7, Offset: 4096}
	require.NoError(t, store.Advance(want))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	ptr, err := reopened.Pointer()
	require.NoError(t, err)
	assert.Equal(t, want, ptr)
}

func TestAdvanceOverwrites(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "ckpt"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Advance(vlog.WalPointer{LogID: 1, Offset: 12}))
	require.NoError(t, store.Advance(vlog.WalPointer{LogID: 2, Offset: 900}))

	ptr, err := store.Pointer()
	require.NoError(t, err)
	assert.Equal(t, vlog.WalPointer{LogID: 2, Offset: 900}, ptr)
}

func TestForkEdgesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt")
	store, err := Open(path)
	require.NoError(t, err)

	edges, err := store.Forks()
	require.NoError(t, err)
	assert.Empty(t, edges)

	want := map[uint64]uint64{2: 1, 3: 1, 4: 2}
	require.NoError(t, store.SaveForks(want))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	edges, err = reopened.Forks()
	require.NoError(t, err)
	assert.Equal(t, want, edges)
}
