package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"trackvault/cache"
	"trackvault/config"
	"trackvault/logger"
	"trackvault/model"

	"github.com/gorilla/mux"
)

// GetUserAlbumsHandler 获取用户的所有专辑
func (h *APIHandler) GetUserAlbumsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	albums, err := h.albumRepo.GetAlbumsByUserID(r.Context(), userID)
	if err != nil {
		logger.Error("Failed to get user albums",
			logger.Int64("userId", userID),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get albums", http.StatusInternalServerError)
		return
	}
	if albums == nil {
		albums = []*model.Album{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(albums)
}

// CreateAlbumHandler 创建新专辑
func (h *APIHandler) CreateAlbumHandler(w http.ResponseWriter, r *http.Request) {
	var album model.Album
	if err := json.NewDecoder(r.Body).Decode(&album); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	album.UserID = userID

	if album.Title == "" {
		http.Error(w, "Album title is required", http.StatusBadRequest)
		return
	}

	id, err := h.albumRepo.CreateAlbum(r.Context(), &album)
	if err != nil {
		logger.Error("Failed to create album",
			logger.Int64("userId", userID),
			logger.String("title", album.Title),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to create album", http.StatusInternalServerError)
		return
	}

	album.ID = id
	logger.Info("Album created",
		logger.Int64("albumId", id),
		logger.String("title", album.Title),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(album)
}

// GetAlbumHandler 获取专辑及其歌曲列表
// 返回的歌曲列表已经合并了乐观层中还在上传的条目
func (h *APIHandler) GetAlbumHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	albumID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}

	album, err := h.albumRepo.GetAlbumByID(r.Context(), albumID)
	if err != nil {
		logger.Error("Failed to get album", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to get album", http.StatusInternalServerError)
		return
	}
	if album == nil {
		http.Error(w, "Album not found", http.StatusNotFound)
		return
	}

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if album.UserID != userID && !album.IsPublic {
		http.Error(w, "Album not found", http.StatusNotFound)
		return
	}

	tracks, err := h.trackRepo.GetTracksByAlbumID(r.Context(), albumID)
	if err != nil {
		logger.Error("Failed to get album tracks", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to get album tracks", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.AlbumWithTracks{
		Album:  *album,
		Tracks: h.registry.Merged(albumID, tracks),
	})
}

// UpdateAlbumHandler 更新专辑信息，仅限所有者
func (h *APIHandler) UpdateAlbumHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	albumID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}

	var album model.Album
	if err := json.NewDecoder(r.Body).Decode(&album); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	album.ID = albumID
	album.UserID = userID

	if err := h.albumRepo.UpdateAlbum(r.Context(), &album); err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Album not found", http.StatusNotFound)
			return
		}
		logger.Error("Failed to update album", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to update album", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(album)
}

// DeleteAlbumHandler 删除专辑：先把完整快照放入回收站，再级联删除
func (h *APIHandler) DeleteAlbumHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	albumID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	album, err := h.albumRepo.GetAlbumByID(r.Context(), albumID)
	if err != nil {
		logger.Error("Failed to get album", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to delete album", http.StatusInternalServerError)
		return
	}
	if album == nil || album.UserID != userID {
		http.Error(w, "Album not found", http.StatusNotFound)
		return
	}

	tracks, err := h.trackRepo.GetTracksByAlbumID(r.Context(), albumID)
	if err != nil {
		logger.Error("Failed to snapshot album tracks", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to delete album", http.StatusInternalServerError)
		return
	}

	// 快照必须先落回收站，删除才可撤销
	entry := cache.TrashEntry{Album: *album, Tracks: tracks, DeletedAt: time.Now()}
	if err := cache.PushTrash(r.Context(), userID, entry, config.TrashLimit); err != nil {
		logger.Error("Failed to push album to trash", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to delete album", http.StatusInternalServerError)
		return
	}

	if err := h.albumRepo.DeleteAlbum(r.Context(), albumID, userID); err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Album not found", http.StatusNotFound)
			return
		}
		logger.Error("Failed to delete album", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to delete album", http.StatusInternalServerError)
		return
	}

	for _, t := range tracks {
		h.poller.Forget(t.ID)
	}
	h.sessions.dropController(userID, albumID)
	h.hub.Broadcast(userID, Event{Type: EventPlaylistUpdated, AlbumID: albumID})

	w.WriteHeader(http.StatusNoContent)
}

// GetTrashHandler 列出回收站中的专辑快照
func (h *APIHandler) GetTrashHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := cache.ListTrash(r.Context(), userID)
	if err != nil {
		logger.Error("Failed to list trash", logger.Int64("userId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to list trash", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []cache.TrashEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"trash": entries})
}

// RestoreTrashHandler 从回收站恢复专辑及其歌曲
func (h *APIHandler) RestoreTrashHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	albumID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entry, err := cache.TakeTrash(r.Context(), userID, albumID)
	if err != nil {
		logger.Error("Failed to take trash entry", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to restore album", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "Album not found in trash", http.StatusNotFound)
		return
	}

	if err := h.albumRepo.RestoreAlbum(r.Context(), &entry.Album, entry.Tracks); err != nil {
		logger.Error("Failed to restore album", logger.Int64("albumId", albumID), logger.ErrorField(err))
		// Put the snapshot back so the restore can be retried.
		if pushErr := cache.PushTrash(r.Context(), userID, *entry, config.TrashLimit); pushErr != nil {
			logger.Error("Failed to re-queue trash entry", logger.Int64("albumId", albumID), logger.ErrorField(pushErr))
		}
		http.Error(w, "Failed to restore album", http.StatusInternalServerError)
		return
	}

	logger.Info("Album restored", logger.Int64("albumId", albumID), logger.Int("tracks", len(entry.Tracks)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.AlbumWithTracks{
		Album:  entry.Album,
		Tracks: h.registry.Merged(albumID, entry.Tracks),
	})
}

// SharedAlbumHandler 公开专辑的只读视图，无需认证
func (h *APIHandler) SharedAlbumHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	albumID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}

	album, err := h.albumRepo.GetAlbumByID(r.Context(), albumID)
	if err != nil {
		logger.Error("Failed to get shared album", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to get album", http.StatusInternalServerError)
		return
	}
	if album == nil || !album.IsPublic {
		http.Error(w, "Album not found", http.StatusNotFound)
		return
	}

	tracks, err := h.trackRepo.GetTracksByAlbumID(r.Context(), albumID)
	if err != nil {
		logger.Error("Failed to get shared album tracks", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to get album tracks", http.StatusInternalServerError)
		return
	}

	views := make([]model.TrackView, 0, len(tracks))
	for _, t := range tracks {
		views = append(views, model.ViewOf(t))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.AlbumWithTracks{Album: *album, Tracks: views})
}
