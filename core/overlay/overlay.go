package overlay

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trackvault/model"
)

// OptimisticTrack is a track that exists locally (mid-upload) but has not
// been confirmed by persistence yet. The transient upload fields never reach
// storage.
type OptimisticTrack struct {
	LocalID        string
	AlbumID        int64
	Title          string
	Artist         string
	FileName       string
	IsUploading    bool
	UploadProgress int // 0-100
	CreatedAt      time.Time
}

// NewLocalID generates a temporary track identifier. Once the track is
// persisted the canonical server ID replaces it; callers treat that as a
// replacement, not a rename.
func NewLocalID() string {
	return "local-" + uuid.NewString()
}

// View converts the entry to the shared list representation.
func (t OptimisticTrack) View() model.TrackView {
	artist := t.Artist
	if artist == "" {
		artist = model.DefaultArtist
	}
	return model.TrackView{
		ID:             t.LocalID,
		Title:          t.Title,
		Artist:         artist,
		Processing:     true,
		Source:         model.SourceLocal,
		IsUploading:    t.IsUploading,
		UploadProgress: t.UploadProgress,
		CreatedAt:      t.CreatedAt,
	}
}

// Registry is the process-wide optimistic track store. One instance is
// constructed at startup and handed to every consumer. All mutations are
// posted to a single apply goroutine, so a mutation issued from inside a
// read pass is deferred instead of racing it; mutations apply in FIFO order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]OptimisticTrack

	tasks chan func()
	done  chan struct{}
}

// NewRegistry starts the apply loop.
func NewRegistry() *Registry {
	r := &Registry{
		entries: make(map[string]OptimisticTrack),
		tasks:   make(chan func(), 64),
		done:    make(chan struct{}),
	}
	go r.applyLoop()
	return r
}

func (r *Registry) applyLoop() {
	for {
		select {
		case task := <-r.tasks:
			task()
		case <-r.done:
			return
		}
	}
}

// Close stops the apply loop. Pending mutations are dropped.
func (r *Registry) Close() {
	close(r.done)
}

func (r *Registry) post(task func()) {
	select {
	case r.tasks <- task:
	case <-r.done:
	}
}

// Add registers an optimistic track. Adding a duplicate ID overwrites.
func (r *Registry) Add(t OptimisticTrack) {
	r.post(func() {
		r.mu.Lock()
		r.entries[t.LocalID] = t
		r.mu.Unlock()
	})
}

// Update applies a partial mutation to the entry, if it still exists.
func (r *Registry) Update(id string, apply func(*OptimisticTrack)) {
	r.post(func() {
		r.mu.Lock()
		if entry, ok := r.entries[id]; ok {
			apply(&entry)
			r.entries[id] = entry
		}
		r.mu.Unlock()
	})
}

// Remove drops the entry. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	r.post(func() {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
	})
}

// Get returns a snapshot of one entry.
func (r *Registry) Get(id string) (OptimisticTrack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// ForAlbum returns this album's optimistic entries, oldest first.
func (r *Registry) ForAlbum(albumID int64) []OptimisticTrack {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []OptimisticTrack
	for _, entry := range r.entries {
		if entry.AlbumID == albumID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Merged is the displayed list for an album: server tracks followed by this
// album's overlay entries. The registry does no identifier reconciliation;
// the upload flow removes an entry before its canonical track can appear in
// a server-sourced list.
func (r *Registry) Merged(albumID int64, server []*model.Track) []model.TrackView {
	views := make([]model.TrackView, 0, len(server))
	for _, t := range server {
		views = append(views, model.ViewOf(t))
	}
	for _, entry := range r.ForAlbum(albumID) {
		views = append(views, entry.View())
	}
	return views
}

// Flush blocks until every mutation posted before the call has applied.
func (r *Registry) Flush() {
	applied := make(chan struct{})
	r.post(func() { close(applied) })
	select {
	case <-applied:
	case <-r.done:
	}
}
