package model

import "time"

// Album 表示一张专辑，归属于单个用户
type Album struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	UserID      int64      `json:"userId" gorm:"index"`
	Title       string     `json:"title"`
	Artist      string     `json:"artist"`
	Description string     `json:"description"`
	ReleaseDate *time.Time `json:"releaseDate"`
	CoverPath   string     `json:"coverPath"`
	IsPublic    bool       `json:"isPublic"` // shareable by ID without authentication
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// AlbumWithTracks 包含专辑信息和其包含的歌曲
type AlbumWithTracks struct {
	Album  Album       `json:"album"`
	Tracks []TrackView `json:"tracks"`
}

// TotalDuration sums the known track durations in seconds. Tracks whose
// duration is still unknown contribute zero.
func TotalDuration(tracks []*Track) float64 {
	var total float64
	for _, t := range tracks {
		if t.Duration != nil {
			total += *t.Duration
		}
	}
	return total
}
