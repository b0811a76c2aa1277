package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"trackvault/config"
	"trackvault/core/poller"
	"trackvault/core/tracklist"
	"trackvault/logger"
	"trackvault/model"

	"github.com/gorilla/mux"
)

// GetAlbumTracksHandler 获取专辑歌曲列表，合并乐观层条目
func (h *APIHandler) GetAlbumTracksHandler(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "Failed to get album", http.StatusInternalServerError)
		return
	}
	if album == nil || (album.UserID != userID && !album.IsPublic) {
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
	json.NewEncoder(w).Encode(h.registry.Merged(albumID, tracks))
}

// DeleteTrackHandler 删除专辑中的一首歌
// 请求体可带 {"deleteFromArchive": true} 同时删除远端文件；
// 远端删除尽力而为，永远不会让本地删除失败
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	albumID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}
	trackID := vars["track_id"]

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		DeleteFromArchive bool `json:"deleteFromArchive"`
	}
	// Body is optional; an empty body means local delete only.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.DeleteFromArchive = false
	}

	controller, err := h.listController(r.Context(), userID, albumID)
	if err != nil {
		if errors.Is(err, tracklist.ErrTrackNotFound) {
			http.Error(w, "Album not found", http.StatusNotFound)
			return
		}
		logger.Error("Failed to load track list", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to load track list", http.StatusInternalServerError)
		return
	}

	if err := controller.Delete(r.Context(), trackID, req.DeleteFromArchive); err != nil {
		switch {
		case errors.Is(err, tracklist.ErrReadOnly):
			http.Error(w, "Shared albums are read-only", http.StatusForbidden)
		case errors.Is(err, tracklist.ErrTrackNotFound):
			http.Error(w, "Track not found", http.StatusNotFound)
		case errors.Is(err, tracklist.ErrTrackBusy):
			http.Error(w, "Track is already being deleted", http.StatusConflict)
		default:
			logger.Error("Failed to delete track",
				logger.Int64("albumId", albumID),
				logger.String("trackId", trackID),
				logger.ErrorField(err),
			)
			http.Error(w, "Failed to delete track", http.StatusInternalServerError)
		}
		return
	}

	logger.Info("Track deleted",
		logger.Int64("albumId", albumID),
		logger.String("trackId", trackID),
		logger.Bool("deleteFromArchive", req.DeleteFromArchive),
	)
	w.WriteHeader(http.StatusNoContent)
}

// ReorderTracksHandler 调整歌曲顺序
// 拖拽移动用 {"from": 2, "to": 0}；也接受完整顺序 {"trackOrders": [{id, order}]}。
// 持久化失败时本地顺序回滚并返回409
func (h *APIHandler) ReorderTracksHandler(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		From        int                `json:"from"`
		To          int                `json:"to"`
		TrackOrders []model.TrackOrder `json:"trackOrders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	controller, err := h.listController(r.Context(), userID, albumID)
	if err != nil {
		if errors.Is(err, tracklist.ErrTrackNotFound) {
			http.Error(w, "Album not found", http.StatusNotFound)
			return
		}
		logger.Error("Failed to load track list", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to load track list", http.StatusInternalServerError)
		return
	}

	if len(req.TrackOrders) > 0 {
		h.applyTrackOrders(w, r, userID, albumID, controller, req.TrackOrders)
		return
	}

	if err := controller.Reorder(r.Context(), req.From, req.To); err != nil {
		switch {
		case errors.Is(err, tracklist.ErrReadOnly):
			http.Error(w, "Shared albums are read-only", http.StatusForbidden)
		case errors.Is(err, tracklist.ErrTrackBusy):
			http.Error(w, "Track is busy", http.StatusConflict)
		case errors.Is(err, tracklist.ErrReorderRejected):
			http.Error(w, "Reorder rejected, order restored", http.StatusConflict)
		default:
			http.Error(w, "Invalid move", http.StatusBadRequest)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.registry.Merged(albumID, controller.Tracks()))
}

// applyTrackOrders 直接落库一份完整顺序，之后控制器从数据库重建
func (h *APIHandler) applyTrackOrders(w http.ResponseWriter, r *http.Request, userID, albumID int64, controller *tracklist.Controller, orders []model.TrackOrder) {
	if !controller.CanEdit() {
		http.Error(w, "Shared albums are read-only", http.StatusForbidden)
		return
	}

	if err := h.trackRepo.UpdateTrackOrder(r.Context(), albumID, orders); err != nil {
		logger.Error("Failed to update track order",
			logger.Int64("albumId", albumID),
			logger.ErrorField(err),
		)
		http.Error(w, "Reorder rejected, order restored", http.StatusConflict)
		return
	}

	h.sessions.dropController(userID, albumID)
	h.hub.Broadcast(userID, Event{Type: EventPlaylistUpdated, AlbumID: albumID})

	tracks, err := h.trackRepo.GetTracksByAlbumID(r.Context(), albumID)
	if err != nil {
		logger.Error("Failed to reload tracks after reorder", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to reload tracks", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.registry.Merged(albumID, tracks))
}

// ProbeTrackHandler 立即探测一首处理中的歌曲是否可播放
// POST /api/tracks/probe {"trackId": 42} -> {"ready": true}
func (h *APIHandler) ProbeTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		TrackID     int64  `json:"trackId"`
		PlaybackURL string `json:"playbackUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	track, err := h.trackRepo.GetTrackByID(r.Context(), req.TrackID)
	if err != nil {
		logger.Error("Failed to get track", logger.Int64("trackId", req.TrackID), logger.ErrorField(err))
		http.Error(w, "Failed to get track", http.StatusInternalServerError)
		return
	}
	if track == nil || track.UserID != userID {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	locator := track.PlaybackURL
	if req.PlaybackURL != "" {
		locator = req.PlaybackURL
	}

	ready := !track.Processing || h.poller.IsChecked(track.ID)
	if !ready {
		probe := poller.DefaultProbe(&http.Client{Timeout: config.ProbeTimeout})
		ok, probeErr := probe(r.Context(), locator)
		if probeErr != nil {
			// Inconclusive probe: old enough tracks are assumed ready.
			ok = time.Since(track.CreatedAt) >= config.ProcessingFallback
		}
		if ok {
			if err := h.trackRepo.SetProcessing(r.Context(), track.ID, false); err != nil {
				logger.Error("Failed to mark track ready", logger.Int64("trackId", track.ID), logger.ErrorField(err))
				http.Error(w, "Failed to update track", http.StatusInternalServerError)
				return
			}
			h.poller.Forget(track.ID)
			h.hub.Broadcast(track.UserID, Event{Type: EventTrackReady, TrackID: track.ID, AlbumID: track.AlbumID})
			ready = true
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}

// SetTrackDurationHandler 客户端读到音频元数据后回填时长
// PATCH /api/albums/{id}/tracks/{track_id}/duration {"duration": 203.4}
func (h *APIHandler) SetTrackDurationHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	albumID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}
	trackID, err := strconv.ParseInt(vars["track_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Duration float64 `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Duration < 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	album, err := h.albumRepo.GetAlbumByID(r.Context(), albumID)
	if err != nil {
		logger.Error("Failed to get album", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to get album", http.StatusInternalServerError)
		return
	}
	if album == nil || album.UserID != userID {
		http.Error(w, "Album not found", http.StatusNotFound)
		return
	}

	if err := h.trackRepo.SetTrackDuration(r.Context(), albumID, trackID, req.Duration); err != nil {
		logger.Error("Failed to set track duration",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to set track duration", http.StatusInternalServerError)
		return
	}

	// 时长变了，缓存的列表和播放队列重建一次
	h.sessions.dropController(userID, albumID)
	h.hub.Broadcast(userID, Event{Type: EventPlaylistUpdated, AlbumID: albumID})
	w.WriteHeader(http.StatusNoContent)
}
