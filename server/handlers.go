package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"trackvault/config"
	"trackvault/core/archive"
	"trackvault/core/auth"
	"trackvault/core/overlay"
	"trackvault/core/poller"
	"trackvault/core/uploadflow"
	"trackvault/repository"
	"trackvault/storage"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	trackRepo repository.TrackRepository
	userRepo  repository.UserRepository
	albumRepo repository.AlbumRepository
	registry  *overlay.Registry
	poller    *poller.Poller
	flow      *uploadflow.Flow
	signer    *archive.Signer
	uploader  *archive.Uploader
	covers    *storage.CoverStore
	hub       *EventHub
	sessions  *sessionManager
	cfg       *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	userRepo repository.UserRepository,
	albumRepo repository.AlbumRepository,
	registry *overlay.Registry,
	p *poller.Poller,
	flow *uploadflow.Flow,
	signer *archive.Signer,
	uploader *archive.Uploader,
	covers *storage.CoverStore,
	hub *EventHub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo: trackRepo,
		userRepo:  userRepo,
		albumRepo: albumRepo,
		registry:  registry,
		poller:    p,
		flow:      flow,
		signer:    signer,
		uploader:  uploader,
		covers:    covers,
		hub:       hub,
		sessions:  newSessionManager(),
		cfg:       cfg,
	}
}

// AuthMiddleware is a middleware function that checks for a valid JWT token
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Get the Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		// Check if the header has the correct format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		// Parse and validate the token
		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Add user info to the request context
		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)

		// Call the next handler with the updated context
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value("username").(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}
