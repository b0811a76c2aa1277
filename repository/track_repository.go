package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trackvault/logger"
	"trackvault/model"
)

// TrackRepository defines the interface for track data operations. It is
// the persistence gateway behind the list controller and the upload flow:
// deletes renumber the remaining tracks contiguously, order updates are
// atomic, and unknown identifiers are treated as no-ops.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) (*model.Track, error)
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	GetTracksByAlbumID(ctx context.Context, albumID int64) ([]*model.Track, error)
	GetProcessingTracks(ctx context.Context) ([]*model.Track, error)
	DeleteTrack(ctx context.Context, albumID, trackID int64) (bool, error)
	UpdateTrackOrder(ctx context.Context, albumID int64, orders []model.TrackOrder) error
	SetTrackDuration(ctx context.Context, albumID, trackID int64, seconds float64) error
	SetProcessing(ctx context.Context, trackID int64, processing bool) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	db *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{db: db}
}

const trackColumns = `id, album_id, user_id, title, artist, file_name, playback_url, track_number, duration, processing, source, created_at, updated_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	err := row.Scan(&track.ID, &track.AlbumID, &track.UserID, &track.Title, &track.Artist,
		&track.FileName, &track.PlaybackURL, &track.TrackNumber, &track.Duration,
		&track.Processing, &track.Source, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return track, nil
}

// CreateTrack adds a new track at the end of its album: the track number is
// the current count plus one, and the track starts in processing state.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, track *model.Track) (*model.Track, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx for CreateTrack: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks WHERE album_id = ?`, track.AlbumID).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count album tracks: %w", err)
	}

	if track.Artist == "" {
		track.Artist = model.DefaultArtist
	}
	track.TrackNumber = count + 1
	track.Processing = true
	now := time.Now()
	track.CreatedAt = now
	track.UpdatedAt = now

	res, err := tx.ExecContext(ctx, `INSERT INTO tracks (album_id, user_id, title, artist, file_name, playback_url, track_number, duration, processing, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		track.AlbumID, track.UserID, track.Title, track.Artist, track.FileName,
		track.PlaybackURL, track.TrackNumber, track.Duration, track.Processing, track.Source, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit CreateTrack: %w", err)
	}

	track.ID = id
	logger.Info("Track created", logger.Int64("trackId", id), logger.String("title", track.Title))
	return track, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	track, err := scanTrack(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetTracksByAlbumID retrieves the album's tracks in list order.
func (r *mysqlTrackRepository) GetTracksByAlbumID(ctx context.Context, albumID int64) ([]*model.Track, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE album_id = ? ORDER BY track_number ASC`, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for album %d: %w", albumID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetTracksByAlbumID: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetTracksByAlbumID: %w", err)
	}

	return tracks, nil
}

// GetProcessingTracks returns every track still waiting on the archive,
// oldest first. Used to rebuild the polling queue after a restart.
func (r *mysqlTrackRepository) GetProcessingTracks(ctx context.Context) ([]*model.Track, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE processing = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query processing tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetProcessingTracks: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetProcessingTracks: %w", err)
	}

	return tracks, nil
}

// DeleteTrack removes the track and renumbers the remainder 1..n in one
// transaction. Deleting an identifier that is not in the album reports
// false without error, so a stale delete after a concurrent reorder is
// harmless.
func (r *mysqlTrackRepository) DeleteTrack(ctx context.Context, albumID, trackID int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx for DeleteTrack: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE id = ? AND album_id = ?`, trackID, albumID)
	if err != nil {
		return false, fmt.Errorf("failed to execute DeleteTrack: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for DeleteTrack: %w", err)
	}
	if affected == 0 {
		return false, tx.Commit()
	}

	if err := renumberAlbumTracks(ctx, tx, albumID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit DeleteTrack: %w", err)
	}

	logger.Info("Track deleted", logger.Int64("trackId", trackID), logger.Int64("albumId", albumID))
	return true, nil
}

// renumberAlbumTracks rewrites track numbers densely, 1-based, in the
// current order. Runs inside the caller's transaction.
func renumberAlbumTracks(ctx context.Context, tx *sql.Tx, albumID int64) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tracks WHERE album_id = ? ORDER BY track_number ASC`, albumID)
	if err != nil {
		return fmt.Errorf("failed to query tracks for renumbering: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan track id for renumbering: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tracks for renumbering: %w", err)
	}

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE tracks SET track_number = ?, updated_at = ? WHERE id = ?`, i+1, time.Now(), id); err != nil {
			return fmt.Errorf("failed to renumber track %d: %w", id, err)
		}
	}
	return nil
}

// UpdateTrackOrder applies a full new order in one transaction. Unknown
// identifiers in the payload are skipped, not errors.
func (r *mysqlTrackRepository) UpdateTrackOrder(ctx context.Context, albumID int64, orders []model.TrackOrder) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx for UpdateTrackOrder: %w", err)
	}
	defer tx.Rollback()

	for _, o := range orders {
		if _, err := tx.ExecContext(ctx, `UPDATE tracks SET track_number = ?, updated_at = ? WHERE id = ? AND album_id = ?`,
			o.Order, time.Now(), o.ID, albumID); err != nil {
			return fmt.Errorf("failed to update order for track %d: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit UpdateTrackOrder: %w", err)
	}
	return nil
}

// SetTrackDuration records the track's duration in seconds.
func (r *mysqlTrackRepository) SetTrackDuration(ctx context.Context, albumID, trackID int64, seconds float64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE tracks SET duration = ?, updated_at = ? WHERE id = ? AND album_id = ?`,
		seconds, time.Now(), trackID, albumID)
	if err != nil {
		return fmt.Errorf("failed to execute SetTrackDuration for track %d: %w", trackID, err)
	}
	return nil
}

// SetProcessing flips the track's processing flag.
func (r *mysqlTrackRepository) SetProcessing(ctx context.Context, trackID int64, processing bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE tracks SET processing = ?, updated_at = ? WHERE id = ?`,
		processing, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to execute SetProcessing for track %d: %w", trackID, err)
	}
	return nil
}
