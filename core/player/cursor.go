package player

import (
	"sync"
	"time"
)

// restartThreshold: Previous restarts the current track instead of moving
// back once playback is more than this far in.
const restartThreshold = 3 * time.Second

// Item is one entry of the active playlist. The playlist is a projection of
// an album's track list, not an alias; it must be explicitly resynchronized
// when the backing list mutates.
type Item struct {
	TrackID     string   `json:"trackId"`
	AlbumID     int64    `json:"albumId"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	PlaybackURL string   `json:"playbackUrl,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
}

// Cursor is the single "now playing" pointer into the active playlist.
// One instance per player session; the audio engine itself is external.
type Cursor struct {
	mu       sync.Mutex
	playlist []Item
	index    int
	albumID  int64 // album backing the active playlist, 0 when none
	playing  bool

	startedAt time.Time
	elapsed   time.Duration
	now       func() time.Time
}

// NewCursor returns an empty cursor.
func NewCursor() *Cursor {
	return &Cursor{index: -1, now: time.Now}
}

// NewCursorAt returns a cursor with an injected clock.
func NewCursorAt(now func() time.Time) *Cursor {
	return &Cursor{index: -1, now: now}
}

// Play loads a playlist and starts the given track. If the track is not in
// the playlist the first entry is played instead.
func (c *Cursor) Play(trackID string, albumID int64, playlist []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.playlist = append([]Item(nil), playlist...)
	c.albumID = albumID
	c.index = 0
	for i, item := range c.playlist {
		if item.TrackID == trackID {
			c.index = i
			break
		}
	}
	if len(c.playlist) == 0 {
		c.index = -1
		c.playing = false
		return
	}
	c.restartLocked()
}

// Pause stops the clock, keeping position.
func (c *Cursor) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.elapsed += c.now().Sub(c.startedAt)
	c.playing = false
}

// Resume continues from the paused position.
func (c *Cursor) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing || c.index < 0 {
		return
	}
	c.startedAt = c.now()
	c.playing = true
}

// Next advances to the following track, wrapping at the end.
func (c *Cursor) Next() (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.playlist) == 0 {
		return Item{}, false
	}
	c.index = (c.index + 1) % len(c.playlist)
	c.restartLocked()
	return c.playlist[c.index], true
}

// Previous moves to the preceding track, wrapping at the start. If more than
// three seconds of the current track have elapsed, the current track restarts
// instead.
func (c *Cursor) Previous() (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.playlist) == 0 {
		return Item{}, false
	}
	if c.elapsedLocked() > restartThreshold {
		c.restartLocked()
		return c.playlist[c.index], true
	}
	c.index = (c.index - 1 + len(c.playlist)) % len(c.playlist)
	c.restartLocked()
	return c.playlist[c.index], true
}

// Seek moves the playback position within the current track.
func (c *Cursor) Seek(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 {
		return
	}
	c.elapsed = time.Duration(seconds * float64(time.Second))
	c.startedAt = c.now()
}

// UpdatePlaylist replaces the active playlist, re-resolving the current
// index by track identifier. If the current track is no longer present the
// cursor pauses and clamps to the nearest remaining position rather than
// pointing at a dangling index.
func (c *Cursor) UpdatePlaylist(newPlaylist []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var currentID string
	if c.index >= 0 && c.index < len(c.playlist) {
		currentID = c.playlist[c.index].TrackID
	}

	c.playlist = append([]Item(nil), newPlaylist...)

	if currentID != "" {
		for i, item := range c.playlist {
			if item.TrackID == currentID {
				c.index = i
				return
			}
		}
	}

	// Current track vanished from its own playlist.
	if c.playing {
		c.elapsed += c.now().Sub(c.startedAt)
		c.playing = false
	}
	if len(c.playlist) == 0 {
		c.index = -1
		return
	}
	if c.index >= len(c.playlist) {
		c.index = len(c.playlist) - 1
	}
	if c.index < 0 {
		c.index = -1
	}
}

// ActiveAlbum returns the album whose track list backs the playlist.
func (c *Cursor) ActiveAlbum() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.albumID
}

// CurrentTrack returns the item under the cursor.
func (c *Cursor) CurrentTrack() (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 || c.index >= len(c.playlist) {
		return Item{}, false
	}
	return c.playlist[c.index], true
}

// IsPlaying reports whether the clock is running.
func (c *Cursor) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// CurrentTime is the playback position in seconds.
func (c *Cursor) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked().Seconds()
}

// Duration is the current track's duration in seconds, 0 when unknown.
func (c *Cursor) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 || c.index >= len(c.playlist) {
		return 0
	}
	if d := c.playlist[c.index].Duration; d != nil {
		return *d
	}
	return 0
}

// Playlist returns a copy of the active playlist.
func (c *Cursor) Playlist() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.playlist...)
}

func (c *Cursor) elapsedLocked() time.Duration {
	if c.playing {
		return c.elapsed + c.now().Sub(c.startedAt)
	}
	return c.elapsed
}

func (c *Cursor) restartLocked() {
	c.elapsed = 0
	c.startedAt = c.now()
	c.playing = true
}
