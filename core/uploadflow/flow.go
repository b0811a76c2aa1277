package uploadflow

import (
	"context"
	"fmt"
	"io"
	"time"

	"trackvault/core/archive"
	"trackvault/core/overlay"
	"trackvault/core/poller"
	"trackvault/logger"
	"trackvault/model"
)

// PersistenceError means the archive accepted the file but the track record
// could not be created. Surfaced distinctly from a transport failure: the
// user now has an orphaned remote file.
type PersistenceError struct {
	PlaybackURL string
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("uploadflow: track persisted remotely at %s but record creation failed: %v", e.PlaybackURL, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store persists new track records.
type Store interface {
	CreateTrack(ctx context.Context, t *model.Track) (*model.Track, error)
}

// Request describes one file upload into an album.
type Request struct {
	AlbumID     int64
	UserID      int64
	Title       string
	Artist      string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Flow orchestrates the upload pipeline: optimistic overlay entry, signed
// target, direct transport with progress, record persistence, then
// readiness polling.
type Flow struct {
	signer   *archive.Signer
	uploader *archive.Uploader
	registry *overlay.Registry
	store    Store
	poller   *poller.Poller
	creds    func() model.ArchiveCredentials
}

// New wires a Flow. creds returns the caller's current signing keys.
func New(signer *archive.Signer, uploader *archive.Uploader, registry *overlay.Registry, store Store, p *poller.Poller, creds func() model.ArchiveCredentials) *Flow {
	return &Flow{
		signer:   signer,
		uploader: uploader,
		registry: registry,
		store:    store,
		poller:   p,
		creds:    creds,
	}
}

// Upload runs the pipeline end to end. The overlay entry is removed on every
// exit path: on success exactly when the canonical record exists, on failure
// so the aborted upload disappears from the view.
func (f *Flow) Upload(ctx context.Context, req Request) (*model.Track, error) {
	target, err := f.signer.IssueUploadTarget(archive.FileMetadata{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Title:       req.Title,
		Artist:      req.Artist,
	}, f.creds())
	if err != nil {
		return nil, err
	}

	localID := overlay.NewLocalID()
	f.registry.Add(overlay.OptimisticTrack{
		LocalID:     localID,
		AlbumID:     req.AlbumID,
		Title:       req.Title,
		Artist:      req.Artist,
		FileName:    req.FileName,
		IsUploading: true,
		CreatedAt:   time.Now(),
	})

	result, err := f.uploader.Upload(ctx, req.Body, req.Size, target, func(percent int) {
		f.registry.Update(localID, func(t *overlay.OptimisticTrack) {
			t.UploadProgress = percent
		})
	})
	if err != nil {
		f.registry.Remove(localID)
		return nil, err
	}

	artist := req.Artist
	if artist == "" {
		artist = model.DefaultArtist
	}
	track := &model.Track{
		AlbumID:     req.AlbumID,
		UserID:      req.UserID,
		Title:       req.Title,
		Artist:      artist,
		FileName:    req.FileName,
		PlaybackURL: result.PlaybackURL,
		Processing:  true,
		Source:      model.SourceArchive,
	}

	created, err := f.store.CreateTrack(ctx, track)
	if err != nil {
		f.registry.Remove(localID)
		return nil, &PersistenceError{PlaybackURL: result.PlaybackURL, Err: err}
	}

	// The canonical record exists; drop the optimistic entry before any
	// server-sourced list can include both.
	f.registry.Remove(localID)

	f.poller.Register(poller.Entry{
		TrackID:     created.ID,
		PlaybackURL: created.PlaybackURL,
		CreatedAt:   created.CreatedAt,
	})

	logger.Info("Track uploaded",
		logger.Int64("trackId", created.ID),
		logger.Int64("albumId", req.AlbumID),
		logger.String("identifier", result.Identifier),
	)
	return created, nil
}
