package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"trackvault/core/archive"
	"trackvault/core/uploadflow"
	"trackvault/logger"
	"trackvault/model"

	"github.com/gorilla/mux"
)

// SignUploadHandler 为客户端直传签发上传目标
// POST /api/upload/sign {"title": ..., "artist": ..., "fileName": ..., "contentType": ...}
// 密钥缺失时立即拒绝，不发起任何远端调用
func (h *APIHandler) SignUploadHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := GetUserIDFromContext(r.Context()); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title       string `json:"title"`
		Artist      string `json:"artist"`
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.FileName == "" {
		http.Error(w, "Title and fileName are required", http.StatusBadRequest)
		return
	}

	access, secret := h.cfg.ArchiveCredentials()
	target, err := h.signer.IssueUploadTarget(archive.FileMetadata{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Title:       req.Title,
		Artist:      req.Artist,
	}, model.ArchiveCredentials{AccessKey: access, SecretKey: secret})
	if err != nil {
		if errors.Is(err, archive.ErrCredentialsMissing) {
			http.Error(w, "Archive credentials are not configured", http.StatusForbidden)
			return
		}
		logger.Error("Failed to issue upload target", logger.ErrorField(err))
		http.Error(w, "Failed to sign upload", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(target)
}

// UploadTrackHandler 接收音频文件并通过直传管线送入归档
// Expected multipart form fields:
// - trackFile: the audio file
// - title: track title
// - artist: track artist (optional)
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
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
	if album == nil || album.UserID != userID {
		http.Error(w, "Album not found", http.StatusNotFound)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max memory
		http.Error(w, fmt.Sprintf("Failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}

	trackFile, trackHeader, err := r.FormFile("trackFile")
	if err != nil {
		http.Error(w, "Missing 'trackFile' in form", http.StatusBadRequest)
		return
	}
	defer trackFile.Close()

	title := r.FormValue("title")
	if title == "" {
		http.Error(w, "Missing 'title' in form", http.StatusBadRequest)
		return
	}
	artist := r.FormValue("artist")

	contentType := trackHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	created, err := h.flow.Upload(r.Context(), uploadflow.Request{
		AlbumID:     albumID,
		UserID:      userID,
		Title:       title,
		Artist:      artist,
		FileName:    trackHeader.Filename,
		ContentType: contentType,
		Size:        trackHeader.Size,
		Body:        trackFile,
	})
	if err != nil {
		var uploadErr *archive.UploadError
		var persistErr *uploadflow.PersistenceError
		switch {
		case errors.Is(err, archive.ErrCredentialsMissing):
			http.Error(w, "Archive credentials are not configured", http.StatusForbidden)
		case errors.As(err, &uploadErr):
			logger.Error("Archive rejected upload",
				logger.Int("status", uploadErr.StatusCode),
				logger.String("title", title),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":          "Archive rejected the upload",
				"providerStatus": uploadErr.StatusCode,
				"providerBody":   uploadErr.Body,
			})
		case errors.As(err, &persistErr):
			logger.Error("Track record creation failed after upload",
				logger.String("playbackUrl", persistErr.PlaybackURL),
				logger.ErrorField(err),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":       "File uploaded but track record creation failed",
				"playbackUrl": persistErr.PlaybackURL,
			})
		default:
			logger.Error("Upload failed", logger.String("title", title), logger.ErrorField(err))
			http.Error(w, "Upload failed", http.StatusInternalServerError)
		}
		return
	}

	// 已有活动控制器时把新歌插到末尾，否则直接广播
	if controller, ok := h.sessions.peekController(userID, albumID); ok {
		if err := controller.Insert(created); err != nil {
			logger.Warn("Failed to insert track into live list", logger.Int64("trackId", created.ID), logger.ErrorField(err))
		}
	} else {
		h.hub.Broadcast(userID, Event{Type: EventPlaylistUpdated, AlbumID: albumID})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Track uploaded successfully",
		"trackId": created.ID,
		"track":   model.ViewOf(created),
	})
}

// UploadCoverHandler 处理专辑封面上传
func (h *APIHandler) UploadCoverHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// 设置最大文件大小为10MB
	const maxFileSize = 10 << 20
	if err := r.ParseMultipartForm(maxFileSize); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	albumID, err := strconv.ParseInt(r.FormValue("albumId"), 10, 64)
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
	if album == nil || album.UserID != userID {
		http.Error(w, "Album not found", http.StatusNotFound)
		return
	}

	file, header, err := r.FormFile("cover")
	if err != nil {
		http.Error(w, "Failed to get cover file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > maxFileSize {
		http.Error(w, "File too large", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		http.Error(w, "Only image files are allowed", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxFileSize))
	if err != nil {
		http.Error(w, "Failed to read cover file", http.StatusInternalServerError)
		return
	}

	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	name := fmt.Sprintf("album-%d%s", albumID, ext)

	coverPath, err := h.covers.PutCover(r.Context(), name, data, contentType)
	if err != nil {
		logger.Error("Failed to store cover", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to save cover file", http.StatusInternalServerError)
		return
	}

	album.CoverPath = coverPath
	if err := h.albumRepo.UpdateAlbum(r.Context(), album); err != nil {
		logger.Error("Failed to update album cover path", logger.Int64("albumId", albumID), logger.ErrorField(err))
		http.Error(w, "Failed to update album", http.StatusInternalServerError)
		return
	}

	logger.Info("Cover uploaded", logger.Int64("albumId", albumID), logger.String("path", coverPath))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"coverPath": coverPath})
}
