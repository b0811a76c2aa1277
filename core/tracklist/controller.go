package tracklist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trackvault/config"
	"trackvault/logger"
	"trackvault/model"
)

var (
	// ErrReadOnly is returned for every mutation attempted on a guest view.
	// The refusal happens here, before any gateway call.
	ErrReadOnly = errors.New("tracklist: read-only view")

	// ErrReorderRejected means persistence of a new order failed; the local
	// list and cursor were rolled back to the pre-reorder snapshot.
	ErrReorderRejected = errors.New("tracklist: reorder rejected")

	// ErrTrackBusy means the track cannot be dragged or deleted right now
	// (still processing, uploading, or mid-delete).
	ErrTrackBusy = errors.New("tracklist: track busy")

	// ErrTrackNotFound means the identifier is not in this list.
	ErrTrackNotFound = errors.New("tracklist: track not found")
)

// Gateway is the persistence boundary for structural list mutations.
type Gateway interface {
	DeleteTrack(ctx context.Context, albumID, trackID int64, alsoDeleteRemote bool) error
	UpdateTrackOrder(ctx context.Context, albumID int64, orders []model.TrackOrder) error
}

// Controller owns the canonical in-memory order of one album's track list.
// The playback cursor is resynchronized synchronously on every structural
// change while this album is the active playlist.
type Controller struct {
	mu         sync.Mutex
	albumID    int64
	canEdit    bool
	tracks     []*model.Track
	deletingID string

	gateway      Gateway
	syncCursor   func(tracks []*model.Track)
	deleteWindow time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithCursorSync installs the cursor resync hook, invoked with the current
// order after every structural change.
func WithCursorSync(sync func(tracks []*model.Track)) Option {
	return func(c *Controller) { c.syncCursor = sync }
}

// WithDeleteWindow overrides the exit-animation window.
func WithDeleteWindow(d time.Duration) Option {
	return func(c *Controller) { c.deleteWindow = d }
}

// NewController builds a controller over the album's server-sourced tracks.
// canEdit is false for guests viewing a shared album; every mutating call is
// then refused.
func NewController(albumID int64, canEdit bool, tracks []*model.Track, gateway Gateway, opts ...Option) *Controller {
	c := &Controller{
		albumID:      albumID,
		canEdit:      canEdit,
		tracks:       append([]*model.Track(nil), tracks...),
		gateway:      gateway,
		deleteWindow: config.DeleteWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CanEdit reports whether this view may mutate the list.
func (c *Controller) CanEdit() bool { return c.canEdit }

// AlbumID returns the backing album.
func (c *Controller) AlbumID() int64 { return c.albumID }

// Tracks returns a snapshot of the current order.
func (c *Controller) Tracks() []*model.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*model.Track(nil), c.tracks...)
}

// DeletingID returns the track currently in its exit window, if any.
func (c *Controller) DeletingID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deletingID
}

// CanDrag reports whether the track may be drag-reordered: owner view only,
// and not while the track is processing or being deleted.
func (c *Controller) CanDrag(id string) bool {
	if !c.canEdit {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deletingID == id {
		return false
	}
	for _, t := range c.tracks {
		if t.CanonicalID() == id {
			return !t.Processing
		}
	}
	return false
}

// Insert appends a freshly persisted track at the end of the list. The
// gateway assigned its number at creation; the local order mirrors it.
func (c *Controller) Insert(t *model.Track) error {
	if !c.canEdit {
		return ErrReadOnly
	}

	c.mu.Lock()
	c.tracks = append(c.tracks, t)
	c.renumberLocked()
	snapshot := append([]*model.Track(nil), c.tracks...)
	c.mu.Unlock()

	c.resync(snapshot)
	return nil
}

// Delete marks the track as deleting, holds it through the exit window so
// the view can animate, then removes it and persists the deletion. The
// cursor's playlist is resynchronized to exclude the track before the
// removal completes, so the cursor never references a dangling index.
func (c *Controller) Delete(ctx context.Context, id string, alsoDeleteRemote bool) error {
	if !c.canEdit {
		return ErrReadOnly
	}

	c.mu.Lock()
	if c.deletingID == id {
		c.mu.Unlock()
		return ErrTrackBusy
	}
	var target *model.Track
	for _, t := range c.tracks {
		if t.CanonicalID() == id {
			target = t
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		return ErrTrackNotFound
	}
	c.deletingID = id
	c.mu.Unlock()

	// Exclude the track from the cursor first.
	c.mu.Lock()
	remaining := make([]*model.Track, 0, len(c.tracks)-1)
	for _, t := range c.tracks {
		if t.CanonicalID() != id {
			remaining = append(remaining, t)
		}
	}
	c.mu.Unlock()
	c.resync(remaining)

	// Exit window: the track stays in the model while the view animates.
	select {
	case <-time.After(c.deleteWindow):
	case <-ctx.Done():
		c.mu.Lock()
		c.deletingID = ""
		c.mu.Unlock()
		return ctx.Err()
	}

	// A reorder or insert may have landed during the window; drop the track
	// from the current order, not from the pre-window snapshot.
	c.mu.Lock()
	kept := make([]*model.Track, 0, len(c.tracks))
	for _, t := range c.tracks {
		if t.CanonicalID() != id {
			kept = append(kept, t)
		}
	}
	c.tracks = kept
	c.renumberLocked()
	c.deletingID = ""
	final := append([]*model.Track(nil), c.tracks...)
	c.mu.Unlock()
	c.resync(final)

	if err := c.gateway.DeleteTrack(ctx, c.albumID, target.ID, alsoDeleteRemote); err != nil {
		return fmt.Errorf("tracklist: persisting delete: %w", err)
	}
	return nil
}

// Reorder moves one element from fromIndex to toIndex, keeping the relative
// order of everything else. Applied optimistically and synced to the cursor
// before persisting; a gateway failure rolls both back.
func (c *Controller) Reorder(ctx context.Context, fromIndex, toIndex int) error {
	if !c.canEdit {
		return ErrReadOnly
	}

	c.mu.Lock()
	if fromIndex < 0 || fromIndex >= len(c.tracks) || toIndex < 0 || toIndex >= len(c.tracks) {
		c.mu.Unlock()
		return fmt.Errorf("tracklist: move %d -> %d out of range", fromIndex, toIndex)
	}
	moved := c.tracks[fromIndex]
	if moved.Processing || c.deletingID == moved.CanonicalID() {
		c.mu.Unlock()
		return ErrTrackBusy
	}

	// Snapshot for rollback, including the original numbers.
	snapshot := make([]*model.Track, len(c.tracks))
	numbers := make([]int, len(c.tracks))
	for i, t := range c.tracks {
		snapshot[i] = t
		numbers[i] = t.TrackNumber
	}

	c.tracks = append(c.tracks[:fromIndex], c.tracks[fromIndex+1:]...)
	rest := append([]*model.Track(nil), c.tracks[toIndex:]...)
	c.tracks = append(c.tracks[:toIndex], moved)
	c.tracks = append(c.tracks, rest...)
	c.renumberLocked()

	orders := make([]model.TrackOrder, len(c.tracks))
	for i, t := range c.tracks {
		orders[i] = model.TrackOrder{ID: t.ID, Order: i + 1}
	}
	applied := append([]*model.Track(nil), c.tracks...)
	c.mu.Unlock()

	c.resync(applied)

	if err := c.gateway.UpdateTrackOrder(ctx, c.albumID, orders); err != nil {
		c.mu.Lock()
		c.tracks = snapshot
		for i, t := range c.tracks {
			t.TrackNumber = numbers[i]
		}
		restored := append([]*model.Track(nil), c.tracks...)
		c.mu.Unlock()

		c.resync(restored)
		logger.Warn("Reorder persistence failed, rolled back",
			logger.Int64("albumId", c.albumID),
			logger.ErrorField(err),
		)
		return fmt.Errorf("%w: %v", ErrReorderRejected, err)
	}
	return nil
}

// renumberLocked keeps persisted numbers dense: 1..n in list order.
func (c *Controller) renumberLocked() {
	for i, t := range c.tracks {
		t.TrackNumber = i + 1
	}
}

func (c *Controller) resync(tracks []*model.Track) {
	if c.syncCursor != nil {
		c.syncCursor(tracks)
	}
}
