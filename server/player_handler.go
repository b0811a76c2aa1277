package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"trackvault/cache"
	"trackvault/core/player"
	"trackvault/core/tracklist"
	"trackvault/logger"
	"trackvault/model"

	"github.com/gorilla/mux"
)

// playerSession 每个用户一个播放会话：一个播放游标加上按专辑缓存的列表控制器
type playerSession struct {
	userID int64
	cursor *player.Cursor

	mu          sync.Mutex
	controllers map[int64]*tracklist.Controller
}

type sessionManager struct {
	mu     sync.Mutex
	byUser map[int64]*playerSession
}

func newSessionManager() *sessionManager {
	return &sessionManager{byUser: make(map[int64]*playerSession)}
}

func (m *sessionManager) session(userID int64) *playerSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		s = &playerSession{
			userID:      userID,
			cursor:      player.NewCursor(),
			controllers: make(map[int64]*tracklist.Controller),
		}
		m.byUser[userID] = s
	}
	return s
}

// peekController 返回已存在的控制器，不触发装载
func (m *sessionManager) peekController(userID, albumID int64) (*tracklist.Controller, bool) {
	m.mu.Lock()
	s, ok := m.byUser[userID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.controllers[albumID]
	return c, ok
}

// dropController 使某专辑的控制器失效，下次访问时从数据库重建
func (m *sessionManager) dropController(userID, albumID int64) {
	m.mu.Lock()
	s, ok := m.byUser[userID]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.controllers, albumID)
	s.mu.Unlock()
}

func toPlayerItems(tracks []*model.Track) []player.Item {
	items := make([]player.Item, 0, len(tracks))
	for _, t := range tracks {
		items = append(items, player.Item{
			TrackID:     t.CanonicalID(),
			AlbumID:     t.AlbumID,
			Title:       t.Title,
			Artist:      t.Artist,
			PlaybackURL: t.PlaybackURL,
			Duration:    t.Duration,
		})
	}
	return items
}

// syncQueueCache 将当前播放队列写入Redis，失败只记日志
func syncQueueCache(userID int64, items []player.Item) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queue := make([]cache.QueueItem, len(items))
	for i, item := range items {
		queue[i] = cache.QueueItem{
			TrackID:     item.TrackID,
			AlbumID:     item.AlbumID,
			Title:       item.Title,
			Artist:      item.Artist,
			PlaybackURL: item.PlaybackURL,
			Duration:    item.Duration,
			Position:    i,
		}
	}
	if err := cache.ReplaceQueue(ctx, userID, queue); err != nil {
		logger.Warn("Failed to sync queue cache", logger.Int64("userId", userID), logger.ErrorField(err))
	}
}

// listController 返回用户对某专辑的列表控制器，不存在时从数据库装载。
// 游客（非所有者）得到只读控制器。
func (h *APIHandler) listController(ctx context.Context, userID, albumID int64) (*tracklist.Controller, error) {
	s := h.sessions.session(userID)

	s.mu.Lock()
	if c, ok := s.controllers[albumID]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	album, err := h.albumRepo.GetAlbumByID(ctx, albumID)
	if err != nil {
		return nil, err
	}
	if album == nil {
		return nil, tracklist.ErrTrackNotFound
	}

	tracks, err := h.trackRepo.GetTracksByAlbumID(ctx, albumID)
	if err != nil {
		return nil, err
	}

	canEdit := album.UserID == userID
	cursor := s.cursor
	controller := tracklist.NewController(albumID, canEdit, tracks, &listGateway{h: h},
		tracklist.WithCursorSync(func(tracks []*model.Track) {
			if cursor.ActiveAlbum() == albumID {
				items := toPlayerItems(tracks)
				cursor.UpdatePlaylist(items)
				syncQueueCache(userID, items)
			}
			h.hub.Broadcast(userID, Event{Type: EventPlaylistUpdated, AlbumID: albumID})
		}),
	)

	s.mu.Lock()
	// Another request may have built one meanwhile; keep the first.
	if existing, ok := s.controllers[albumID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.controllers[albumID] = controller
	s.mu.Unlock()
	return controller, nil
}

// listGateway 桥接列表控制器与持久层：删除后在后台尽力删除远端文件
type listGateway struct {
	h *APIHandler
}

func (g *listGateway) DeleteTrack(ctx context.Context, albumID, trackID int64, alsoDeleteRemote bool) error {
	var playbackURL string
	if alsoDeleteRemote {
		track, err := g.h.trackRepo.GetTrackByID(ctx, trackID)
		if err == nil && track != nil {
			playbackURL = track.PlaybackURL
		}
	}

	deleted, err := g.h.trackRepo.DeleteTrack(ctx, albumID, trackID)
	if err != nil {
		return err
	}
	g.h.poller.Forget(trackID)

	// Remote deletion never blocks or fails the local one.
	if deleted && alsoDeleteRemote && playbackURL != "" {
		go func() {
			access, secret := g.h.cfg.ArchiveCredentials()
			creds := model.ArchiveCredentials{AccessKey: access, SecretKey: secret}
			deleteURL, headers, err := g.h.signer.SignDelete(playbackURL, creds)
			if err != nil {
				logger.Warn("Failed to sign remote delete", logger.Int64("trackId", trackID), logger.ErrorField(err))
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := g.h.uploader.Delete(ctx, deleteURL, headers); err != nil {
				logger.Warn("Remote delete failed", logger.Int64("trackId", trackID), logger.ErrorField(err))
			}
		}()
	}
	return nil
}

func (g *listGateway) UpdateTrackOrder(ctx context.Context, albumID int64, orders []model.TrackOrder) error {
	return g.h.trackRepo.UpdateTrackOrder(ctx, albumID, orders)
}

// playerState 播放器状态响应
type playerState struct {
	TrackID  string        `json:"trackId,omitempty"`
	AlbumID  int64         `json:"albumId"`
	Playing  bool          `json:"playing"`
	Position float64       `json:"position"`
	Duration float64       `json:"duration"`
	Playlist []player.Item `json:"playlist"`
}

func stateOf(c *player.Cursor) playerState {
	state := playerState{
		AlbumID:  c.ActiveAlbum(),
		Playing:  c.IsPlaying(),
		Position: c.CurrentTime(),
		Duration: c.Duration(),
		Playlist: c.Playlist(),
	}
	if item, ok := c.CurrentTrack(); ok {
		state.TrackID = item.TrackID
	}
	return state
}

// PlayerStateHandler 返回当前播放状态
func (h *APIHandler) PlayerStateHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	s := h.sessions.session(userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stateOf(s.cursor))
}

// PlayerControlHandler 处理播放控制命令
// URL: /api/player/{action}，action 为 play/pause/resume/next/previous/seek
func (h *APIHandler) PlayerControlHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	s := h.sessions.session(userID)
	action := mux.Vars(r)["action"]

	switch action {
	case "play":
		var req struct {
			TrackID string `json:"trackId"`
			AlbumID int64  `json:"albumId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		// 私有专辑只有所有者能播放
		album, err := h.albumRepo.GetAlbumByID(r.Context(), req.AlbumID)
		if err != nil {
			logger.Error("Failed to get album for playback",
				logger.Int64("albumId", req.AlbumID), logger.ErrorField(err))
			http.Error(w, "Failed to get album", http.StatusInternalServerError)
			return
		}
		if album == nil || (album.UserID != userID && !album.IsPublic) {
			http.Error(w, "Album not found", http.StatusNotFound)
			return
		}
		tracks, err := h.trackRepo.GetTracksByAlbumID(r.Context(), req.AlbumID)
		if err != nil {
			logger.Error("Failed to load tracks for playback",
				logger.Int64("albumId", req.AlbumID), logger.ErrorField(err))
			http.Error(w, "Failed to load album tracks", http.StatusInternalServerError)
			return
		}
		if len(tracks) == 0 {
			http.Error(w, "Album has no tracks", http.StatusNotFound)
			return
		}
		items := toPlayerItems(tracks)
		s.cursor.Play(req.TrackID, req.AlbumID, items)
		syncQueueCache(userID, items)

	case "pause":
		s.cursor.Pause()

	case "resume":
		s.cursor.Resume()

	case "next":
		if _, ok := s.cursor.Next(); !ok {
			http.Error(w, "Playlist is empty", http.StatusConflict)
			return
		}

	case "previous":
		if _, ok := s.cursor.Previous(); !ok {
			http.Error(w, "Playlist is empty", http.StatusConflict)
			return
		}

	case "seek":
		var req struct {
			Position float64 `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		s.cursor.Seek(req.Position)

	default:
		http.Error(w, "Unknown player action", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stateOf(s.cursor))
}

// PlayerQueueHandler 返回Redis中缓存的播放队列
func (h *APIHandler) PlayerQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	queue, err := cache.GetQueue(r.Context(), userID)
	if err != nil {
		logger.Error("Failed to read queue cache", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to get queue", http.StatusInternalServerError)
		return
	}
	if queue == nil {
		queue = []cache.QueueItem{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"queue": queue})
}
