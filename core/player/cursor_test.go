package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced manually so elapsed time is deterministic.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func items(ids ...string) []Item {
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i] = Item{TrackID: id, AlbumID: 1, Title: "track " + id}
	}
	return out
}

func TestPlayStartsAtRequestedTrack(t *testing.T) {
	clock := newFakeClock()
	c := NewCursorAt(clock.now)

	c.Play("b", 1, items("a", "b", "c"))

	current, ok := c.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "b", current.TrackID)
	assert.True(t, c.IsPlaying())
	assert.Equal(t, int64(1), c.ActiveAlbum())
	assert.Zero(t, c.CurrentTime())
}

func TestPlayFallsBackToFirstTrack(t *testing.T) {
	c := NewCursorAt(newFakeClock().now)

	c.Play("missing", 1, items("a", "b"))

	current, ok := c.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "a", current.TrackID)
}

func TestPlayEmptyPlaylist(t *testing.T) {
	c := NewCursorAt(newFakeClock().now)

	c.Play("a", 1, nil)

	_, ok := c.CurrentTrack()
	assert.False(t, ok)
	assert.False(t, c.IsPlaying())
}

func TestNextWrapsAround(t *testing.T) {
	c := NewCursorAt(newFakeClock().now)
	c.Play("c", 1, items("a", "b", "c"))

	next, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, "a", next.TrackID)
}

func TestPreviousWrapsAround(t *testing.T) {
	c := NewCursorAt(newFakeClock().now)
	c.Play("a", 1, items("a", "b", "c"))

	prev, ok := c.Previous()
	require.True(t, ok)
	assert.Equal(t, "c", prev.TrackID)
}

func TestPreviousRestartsAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	c := NewCursorAt(clock.now)
	c.Play("b", 1, items("a", "b", "c"))

	clock.advance(4 * time.Second)
	require.InDelta(t, 4.0, c.CurrentTime(), 0.001)

	prev, ok := c.Previous()
	require.True(t, ok)
	assert.Equal(t, "b", prev.TrackID)
	assert.Zero(t, c.CurrentTime())
}

func TestPreviousMovesBackWithinThreshold(t *testing.T) {
	clock := newFakeClock()
	c := NewCursorAt(clock.now)
	c.Play("b", 1, items("a", "b", "c"))

	clock.advance(2 * time.Second)

	prev, ok := c.Previous()
	require.True(t, ok)
	assert.Equal(t, "a", prev.TrackID)
}

func TestPauseAndResumeKeepPosition(t *testing.T) {
	clock := newFakeClock()
	c := NewCursorAt(clock.now)
	c.Play("a", 1, items("a"))

	clock.advance(10 * time.Second)
	c.Pause()
	assert.False(t, c.IsPlaying())

	// 暂停期间时间不再累计
	clock.advance(30 * time.Second)
	assert.InDelta(t, 10.0, c.CurrentTime(), 0.001)

	c.Resume()
	clock.advance(5 * time.Second)
	assert.True(t, c.IsPlaying())
	assert.InDelta(t, 15.0, c.CurrentTime(), 0.001)
}

func TestSeekMovesPosition(t *testing.T) {
	clock := newFakeClock()
	c := NewCursorAt(clock.now)
	c.Play("a", 1, items("a"))

	c.Seek(42.5)
	assert.InDelta(t, 42.5, c.CurrentTime(), 0.001)

	clock.advance(time.Second)
	assert.InDelta(t, 43.5, c.CurrentTime(), 0.001)
}

func TestUpdatePlaylistKeepsCurrentTrack(t *testing.T) {
	clock := newFakeClock()
	c := NewCursorAt(clock.now)
	c.Play("b", 1, items("a", "b", "c"))
	clock.advance(20 * time.Second)

	// The current track moved to the front; playback is undisturbed.
	c.UpdatePlaylist(items("b", "a", "c"))

	current, ok := c.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "b", current.TrackID)
	assert.True(t, c.IsPlaying())
	assert.InDelta(t, 20.0, c.CurrentTime(), 0.001)
}

func TestUpdatePlaylistPausesWhenTrackVanishes(t *testing.T) {
	clock := newFakeClock()
	c := NewCursorAt(clock.now)
	c.Play("c", 1, items("a", "b", "c"))
	clock.advance(8 * time.Second)

	c.UpdatePlaylist(items("a", "b"))

	assert.False(t, c.IsPlaying())
	current, ok := c.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "b", current.TrackID)
	assert.InDelta(t, 8.0, c.CurrentTime(), 0.001)
}

func TestUpdatePlaylistToEmpty(t *testing.T) {
	c := NewCursorAt(newFakeClock().now)
	c.Play("a", 1, items("a"))

	c.UpdatePlaylist(nil)

	_, ok := c.CurrentTrack()
	assert.False(t, ok)
	assert.False(t, c.IsPlaying())
}

func TestDurationReadsCurrentItem(t *testing.T) {
	c := NewCursorAt(newFakeClock().now)
	d := 203.4
	c.Play("a", 1, []Item{{TrackID: "a", Duration: &d}, {TrackID: "b"}})

	assert.InDelta(t, 203.4, c.Duration(), 0.001)

	c.Next()
	assert.Zero(t, c.Duration())
}
