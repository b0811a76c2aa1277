package overlay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackvault/model"
)

func TestRegistryAddUpdateRemove(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	r.Add(OptimisticTrack{LocalID: "local-1", AlbumID: 7, Title: "a", IsUploading: true})
	r.Flush()

	entry, ok := r.Get("local-1")
	require.True(t, ok)
	assert.True(t, entry.IsUploading)
	assert.Equal(t, 0, entry.UploadProgress)

	r.Update("local-1", func(t *OptimisticTrack) { t.UploadProgress = 42 })
	r.Flush()

	entry, ok = r.Get("local-1")
	require.True(t, ok)
	assert.Equal(t, 42, entry.UploadProgress)

	r.Remove("local-1")
	r.Flush()

	_, ok = r.Get("local-1")
	assert.False(t, ok)
}

func TestRegistryUpdateUnknownIDIsNoop(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	r.Update("missing", func(t *OptimisticTrack) { t.UploadProgress = 99 })
	r.Remove("missing")
	r.Flush()

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestForAlbumOrdersByCreation(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	base := time.Now()
	r.Add(OptimisticTrack{LocalID: "b", AlbumID: 1, CreatedAt: base.Add(time.Second)})
	r.Add(OptimisticTrack{LocalID: "a", AlbumID: 1, CreatedAt: base})
	r.Add(OptimisticTrack{LocalID: "other", AlbumID: 2, CreatedAt: base})
	r.Flush()

	entries := r.ForAlbum(1)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].LocalID)
	assert.Equal(t, "b", entries[1].LocalID)
}

func TestMergedAppendsOverlayAfterServerTracks(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	r.Add(OptimisticTrack{LocalID: "local-x", AlbumID: 1, Title: "uploading", IsUploading: true, CreatedAt: time.Now()})
	r.Flush()

	server := []*model.Track{
		{ID: 10, AlbumID: 1, Title: "first", TrackNumber: 1},
		{ID: 11, AlbumID: 1, Title: "second", TrackNumber: 2},
	}

	views := r.Merged(1, server)
	require.Len(t, views, 3)
	assert.Equal(t, "10", views[0].ID)
	assert.Equal(t, "11", views[1].ID)
	assert.Equal(t, "local-x", views[2].ID)
	assert.True(t, views[2].IsUploading)
}

func TestNewLocalIDPrefix(t *testing.T) {
	id := NewLocalID()
	assert.Contains(t, id, "local-")
	assert.NotEqual(t, NewLocalID(), id)
}
