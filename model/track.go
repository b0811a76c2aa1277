package model

import (
	"strconv"
	"time"
)

// TrackSource identifies where a track's audio lives.
type TrackSource string

const (
	SourceLocal   TrackSource = "local"   // optimistic, still uploading from this session
	SourceArchive TrackSource = "archive" // stored at the remote archive
)

// DefaultArtist is used when a track is created without an artist.
const DefaultArtist = "Unknown Artist"

// Track represents one playable audio item inside an album.
type Track struct {
	ID          int64       `json:"id" gorm:"primaryKey"`
	AlbumID     int64       `json:"albumId" gorm:"index"`
	UserID      int64       `json:"userId" gorm:"index"`
	Title       string      `json:"title"`
	Artist      string      `json:"artist"`
	FileName    string      `json:"fileName"`
	PlaybackURL string      `json:"playbackUrl"` // empty until the upload completed
	TrackNumber int         `json:"trackNumber"` // 1-based, dense within an album
	Duration    *float64    `json:"duration"`    // seconds; nil means unknown, distinct from zero
	Processing  bool        `json:"processing"`  // true until the archive confirms the file is retrievable
	Source      TrackSource `json:"source" gorm:"type:varchar(16)"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// CanonicalID is the string identity used by the list controller and the
// playback cursor. Optimistic tracks carry a locally generated ID instead.
func (t *Track) CanonicalID() string {
	return strconv.FormatInt(t.ID, 10)
}

// TrackOrder pairs a track with its new persisted order.
type TrackOrder struct {
	ID    int64 `json:"id"`
	Order int   `json:"order"`
}

// TrackView is what album track listings return: a persisted track or an
// optimistic overlay entry, under one shape.
type TrackView struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Artist         string      `json:"artist"`
	TrackNumber    int         `json:"trackNumber"`
	PlaybackURL    string      `json:"playbackUrl,omitempty"`
	Duration       *float64    `json:"duration"`
	Processing     bool        `json:"processing"`
	Source         TrackSource `json:"source"`
	IsUploading    bool        `json:"isUploading,omitempty"`
	UploadProgress int         `json:"uploadProgress,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// ViewOf converts a persisted track to its list representation.
func ViewOf(t *Track) TrackView {
	return TrackView{
		ID:          t.CanonicalID(),
		Title:       t.Title,
		Artist:      t.Artist,
		TrackNumber: t.TrackNumber,
		PlaybackURL: t.PlaybackURL,
		Duration:    t.Duration,
		Processing:  t.Processing,
		Source:      t.Source,
		CreatedAt:   t.CreatedAt,
	}
}
