package tracklist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackvault/model"
)

type fakeGateway struct {
	mu           sync.Mutex
	deleted      []int64
	deleteRemote []bool
	orders       [][]model.TrackOrder
	orderErr     error
	deleteErr    error
}

func (g *fakeGateway) DeleteTrack(ctx context.Context, albumID, trackID int64, alsoDeleteRemote bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deleted = append(g.deleted, trackID)
	g.deleteRemote = append(g.deleteRemote, alsoDeleteRemote)
	return nil
}

func (g *fakeGateway) UpdateTrackOrder(ctx context.Context, albumID int64, orders []model.TrackOrder) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orderErr != nil {
		return g.orderErr
	}
	g.orders = append(g.orders, orders)
	return nil
}

func mkTrack(id int64, title string, number int) *model.Track {
	return &model.Track{ID: id, AlbumID: 1, Title: title, TrackNumber: number}
}

func titles(tracks []*model.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Title
	}
	return out
}

func newTestController(gw *fakeGateway, opts ...Option) *Controller {
	tracks := []*model.Track{mkTrack(10, "a", 1), mkTrack(11, "b", 2), mkTrack(12, "c", 3)}
	opts = append([]Option{WithDeleteWindow(time.Millisecond)}, opts...)
	return NewController(1, true, tracks, gw, opts...)
}

func TestDeleteRemovesAndRenumbers(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(gw)

	err := c.Delete(context.Background(), "11", false)
	require.NoError(t, err)

	remaining := c.Tracks()
	assert.Equal(t, []string{"a", "c"}, titles(remaining))
	assert.Equal(t, 1, remaining[0].TrackNumber)
	assert.Equal(t, 2, remaining[1].TrackNumber)
	assert.Equal(t, []int64{11}, gw.deleted)
	assert.Equal(t, []bool{false}, gw.deleteRemote)
	assert.Empty(t, c.DeletingID())
}

func TestDeletePassesRemoteFlag(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(gw)

	require.NoError(t, c.Delete(context.Background(), "12", true))
	assert.Equal(t, []bool{true}, gw.deleteRemote)
}

func TestDeleteSyncsCursorBeforeWindow(t *testing.T) {
	gw := &fakeGateway{}
	var synced [][]string
	c := newTestController(gw, WithCursorSync(func(tracks []*model.Track) {
		synced = append(synced, titles(tracks))
	}))

	require.NoError(t, c.Delete(context.Background(), "11", false))

	// The first resync already excludes the deleted track.
	require.NotEmpty(t, synced)
	assert.Equal(t, []string{"a", "c"}, synced[0])
}

func TestDeleteUnknownTrack(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(gw)

	err := c.Delete(context.Background(), "999", false)
	assert.ErrorIs(t, err, ErrTrackNotFound)
	assert.Empty(t, gw.deleted)
}

func TestGuestCannotMutate(t *testing.T) {
	gw := &fakeGateway{}
	c := NewController(1, false, []*model.Track{mkTrack(10, "a", 1)}, gw, WithDeleteWindow(time.Millisecond))

	assert.ErrorIs(t, c.Delete(context.Background(), "10", false), ErrReadOnly)
	assert.ErrorIs(t, c.Reorder(context.Background(), 0, 0), ErrReadOnly)
	assert.ErrorIs(t, c.Insert(mkTrack(11, "b", 2)), ErrReadOnly)
	assert.False(t, c.CanDrag("10"))

	// 网关从未被调用
	assert.Empty(t, gw.deleted)
	assert.Empty(t, gw.orders)
}

func TestDeleteCancelledDuringWindow(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(gw, WithDeleteWindow(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := c.Delete(ctx, "11", false)
	assert.ErrorIs(t, err, context.Canceled)

	// The track survives and the busy marker is cleared.
	assert.Equal(t, []string{"a", "b", "c"}, titles(c.Tracks()))
	assert.Empty(t, c.DeletingID())
	assert.Empty(t, gw.deleted)
}

func TestReorderDuringDeleteWindowSurvives(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(gw, WithDeleteWindow(150*time.Millisecond))

	// Move "c" to the front while "b" is still inside its exit window.
	go func() {
		time.Sleep(30 * time.Millisecond)
		if err := c.Reorder(context.Background(), 2, 0); err != nil {
			t.Error(err)
		}
	}()

	require.NoError(t, c.Delete(context.Background(), "11", false))

	remaining := c.Tracks()
	assert.Equal(t, []string{"c", "a"}, titles(remaining))
	assert.Equal(t, 1, remaining[0].TrackNumber)
	assert.Equal(t, 2, remaining[1].TrackNumber)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, []int64{11}, gw.deleted)
	require.Len(t, gw.orders, 1)
}

func TestDeleteResyncsFinalOrderAfterWindow(t *testing.T) {
	gw := &fakeGateway{}
	var synced [][]string
	c := newTestController(gw, WithCursorSync(func(tracks []*model.Track) {
		synced = append(synced, titles(tracks))
	}))

	require.NoError(t, c.Delete(context.Background(), "11", false))

	// Excluded from the cursor before the window, confirmed after it.
	require.Len(t, synced, 2)
	assert.Equal(t, []string{"a", "c"}, synced[0])
	assert.Equal(t, []string{"a", "c"}, synced[1])
}

func TestReorderMovesAndRenumbers(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(gw)

	require.NoError(t, c.Reorder(context.Background(), 2, 0))

	assert.Equal(t, []string{"c", "a", "b"}, titles(c.Tracks()))
	for i, track := range c.Tracks() {
		assert.Equal(t, i+1, track.TrackNumber)
	}

	require.Len(t, gw.orders, 1)
	assert.Equal(t, []model.TrackOrder{{ID: 12, Order: 1}, {ID: 10, Order: 2}, {ID: 11, Order: 3}}, gw.orders[0])
}

func TestReorderRollsBackOnGatewayFailure(t *testing.T) {
	gw := &fakeGateway{orderErr: errors.New("db down")}
	var synced [][]string
	c := newTestController(gw, WithCursorSync(func(tracks []*model.Track) {
		synced = append(synced, titles(tracks))
	}))

	err := c.Reorder(context.Background(), 0, 2)
	assert.ErrorIs(t, err, ErrReorderRejected)

	// Original order and numbering restored.
	restored := c.Tracks()
	assert.Equal(t, []string{"a", "b", "c"}, titles(restored))
	for i, track := range restored {
		assert.Equal(t, i+1, track.TrackNumber)
	}

	// The cursor saw the optimistic order, then the rollback.
	require.Len(t, synced, 2)
	assert.Equal(t, []string{"b", "c", "a"}, synced[0])
	assert.Equal(t, []string{"a", "b", "c"}, synced[1])
}

func TestReorderOutOfRange(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(gw)

	assert.Error(t, c.Reorder(context.Background(), -1, 0))
	assert.Error(t, c.Reorder(context.Background(), 0, 3))
	assert.Empty(t, gw.orders)
}

func TestProcessingTrackCannotBeDragged(t *testing.T) {
	gw := &fakeGateway{}
	busy := mkTrack(20, "busy", 1)
	busy.Processing = true
	c := NewController(1, true, []*model.Track{busy, mkTrack(21, "ok", 2)}, gw, WithDeleteWindow(time.Millisecond))

	assert.False(t, c.CanDrag("20"))
	assert.True(t, c.CanDrag("21"))
	assert.ErrorIs(t, c.Reorder(context.Background(), 0, 1), ErrTrackBusy)
}

func TestInsertAppendsAtEnd(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(gw)

	require.NoError(t, c.Insert(mkTrack(13, "d", 0)))

	tracks := c.Tracks()
	assert.Equal(t, []string{"a", "b", "c", "d"}, titles(tracks))
	assert.Equal(t, 4, tracks[3].TrackNumber)
}
