package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trackvault/logger"
	"trackvault/model"
)

// AlbumRepository 定义专辑相关的数据库操作接口
// 所有修改操作都带用户ID条件，归属检查发生在任何副作用之前
type AlbumRepository interface {
	CreateAlbum(ctx context.Context, album *model.Album) (int64, error)
	GetAlbumByID(ctx context.Context, id int64) (*model.Album, error)
	GetAlbumsByUserID(ctx context.Context, userID int64) ([]*model.Album, error)
	UpdateAlbum(ctx context.Context, album *model.Album) error
	DeleteAlbum(ctx context.Context, id, userID int64) error
	RestoreAlbum(ctx context.Context, album *model.Album, tracks []*model.Track) error
}

// MySQLAlbumRepository MySQL实现的专辑仓库
type MySQLAlbumRepository struct {
	db *sql.DB
}

// NewMySQLAlbumRepository 创建新的MySQL专辑仓库实例
func NewMySQLAlbumRepository(db *sql.DB) *MySQLAlbumRepository {
	return &MySQLAlbumRepository{db: db}
}

const albumColumns = `id, user_id, title, artist, description, release_date, cover_path, is_public, created_at, updated_at`

// CreateAlbum 创建新专辑
func (r *MySQLAlbumRepository) CreateAlbum(ctx context.Context, album *model.Album) (int64, error) {
	now := time.Now()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO albums (user_id, title, artist, description, release_date, cover_path, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		album.UserID, album.Title, album.Artist, album.Description,
		album.ReleaseDate, album.CoverPath, album.IsPublic, now, now,
	)
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// GetAlbumByID 根据ID获取专辑信息
func (r *MySQLAlbumRepository) GetAlbumByID(ctx context.Context, id int64) (*model.Album, error) {
	album := &model.Album{}
	err := r.db.QueryRowContext(ctx, `SELECT `+albumColumns+` FROM albums WHERE id = ?`, id).Scan(
		&album.ID, &album.UserID, &album.Title, &album.Artist, &album.Description,
		&album.ReleaseDate, &album.CoverPath, &album.IsPublic, &album.CreatedAt, &album.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return album, nil
}

// GetAlbumsByUserID 获取用户的所有专辑
func (r *MySQLAlbumRepository) GetAlbumsByUserID(ctx context.Context, userID int64) ([]*model.Album, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+albumColumns+` FROM albums WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var albums []*model.Album
	for rows.Next() {
		album := &model.Album{}
		err := rows.Scan(
			&album.ID, &album.UserID, &album.Title, &album.Artist, &album.Description,
			&album.ReleaseDate, &album.CoverPath, &album.IsPublic, &album.CreatedAt, &album.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		albums = append(albums, album)
	}

	return albums, rows.Err()
}

// UpdateAlbum 更新专辑信息，仅限所有者
func (r *MySQLAlbumRepository) UpdateAlbum(ctx context.Context, album *model.Album) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE albums
		SET title = ?, artist = ?, description = ?, release_date = ?, cover_path = ?, is_public = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		album.Title, album.Artist, album.Description, album.ReleaseDate,
		album.CoverPath, album.IsPublic, time.Now(), album.ID, album.UserID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteAlbum 删除专辑并级联删除其歌曲
// 调用方负责在删除前将完整快照写入回收站
func (r *MySQLAlbumRepository) DeleteAlbum(ctx context.Context, id, userID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx for DeleteAlbum: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM albums WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE album_id = ?`, id); err != nil {
		return fmt.Errorf("failed to cascade delete tracks for album %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit DeleteAlbum: %w", err)
	}

	logger.Info("Album deleted", logger.Int64("albumId", id))
	return nil
}

// RestoreAlbum 将回收站中的专辑快照连同歌曲一并写回，保留原ID
func (r *MySQLAlbumRepository) RestoreAlbum(ctx context.Context, album *model.Album, tracks []*model.Track) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx for RestoreAlbum: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO albums (id, user_id, title, artist, description, release_date, cover_path, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		album.ID, album.UserID, album.Title, album.Artist, album.Description,
		album.ReleaseDate, album.CoverPath, album.IsPublic, album.CreatedAt, now,
	); err != nil {
		return fmt.Errorf("failed to restore album %d: %w", album.ID, err)
	}

	for _, t := range tracks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tracks (id, album_id, user_id, title, artist, file_name, playback_url, track_number, duration, processing, source, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.AlbumID, t.UserID, t.Title, t.Artist, t.FileName, t.PlaybackURL,
			t.TrackNumber, t.Duration, t.Processing, t.Source, t.CreatedAt, now,
		); err != nil {
			return fmt.Errorf("failed to restore track %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit RestoreAlbum: %w", err)
	}

	logger.Info("Album restored from trash", logger.Int64("albumId", album.ID))
	return nil
}
