package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trackvault/cache"
	"trackvault/config"
	"trackvault/core/archive"
	"trackvault/core/auth"
	"trackvault/core/overlay"
	"trackvault/core/poller"
	"trackvault/core/uploadflow"
	"trackvault/db"
	"trackvault/logger"
	"trackvault/model"
	"trackvault/repository"
	"trackvault/storage"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})
	auth.SetSecret(cfg.JWTSecret)

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Minute, // direct uploads stream through the request body
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseDB()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	// Initialize database schema
	if err := db.InitSchema(); err != nil {
		logger.Fatal("Failed to initialize database schema", logger.ErrorField(err))
	}

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()
	cache.Use(db.RedisClient)
	logger.Info("Successfully connected to Redis")

	// 归档密钥支持热更新
	stopWatch, err := cfg.Watch(".env")
	if err != nil {
		logger.Warn("Credential hot-reload disabled", logger.ErrorField(err))
	} else {
		defer stopWatch()
	}

	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	userRepo := repository.NewMySQLUserRepository(db.DB)
	albumRepo := repository.NewMySQLAlbumRepository(db.DB)

	hub := NewEventHub()
	registry := overlay.NewRegistry()
	defer registry.Close()

	readiness := poller.New(trackRepo, poller.WithOnReady(func(trackID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		track, err := trackRepo.GetTrackByID(ctx, trackID)
		if err != nil || track == nil {
			return
		}
		hub.Broadcast(track.UserID, Event{Type: EventTrackReady, TrackID: trackID, AlbumID: track.AlbumID})
	}))

	signer := archive.NewSigner()
	uploader := archive.NewUploader(nil)
	flow := uploadflow.New(signer, uploader, registry, trackRepo, readiness, func() model.ArchiveCredentials {
		access, secret := cfg.ArchiveCredentials()
		return model.ArchiveCredentials{AccessKey: access, SecretKey: secret}
	})
	covers := storage.NewCoverStore(cfg)

	// 初始化处理器
	apiHandler := NewAPIHandler(trackRepo, userRepo, albumRepo, registry, readiness, flow, signer, uploader, covers, hub, cfg)

	// 后台轮询处理中的歌曲
	pollCtx, stopPoll := context.WithCancel(context.Background())
	defer stopPoll()
	go readiness.Run(pollCtx)

	// 把数据库里遗留的处理中歌曲重新排进轮询队列
	if pending, err := trackRepo.GetProcessingTracks(context.Background()); err != nil {
		logger.Warn("Failed to reload processing tracks", logger.ErrorField(err))
	} else {
		for _, t := range pending {
			readiness.Register(poller.Entry{TrackID: t.ID, PlaybackURL: t.PlaybackURL, CreatedAt: t.CreatedAt})
		}
		if len(pending) > 0 {
			logger.Info("Re-registered processing tracks", logger.Int("count", len(pending)))
		}
	}

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)

	// 专辑相关的API端点
	router.HandleFunc("/api/albums", apiHandler.AuthMiddleware(apiHandler.GetUserAlbumsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/albums", apiHandler.AuthMiddleware(apiHandler.CreateAlbumHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/albums/{id}", apiHandler.AuthMiddleware(apiHandler.GetAlbumHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/albums/{id}", apiHandler.AuthMiddleware(apiHandler.UpdateAlbumHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/albums/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteAlbumHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/albums/{id}/tracks", apiHandler.AuthMiddleware(apiHandler.GetAlbumTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/albums/{id}/tracks", apiHandler.AuthMiddleware(apiHandler.UploadTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/albums/{id}/tracks/order", apiHandler.AuthMiddleware(apiHandler.ReorderTracksHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/albums/{id}/tracks/{track_id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/albums/{id}/tracks/{track_id}/duration", apiHandler.AuthMiddleware(apiHandler.SetTrackDurationHandler)).Methods(http.MethodPatch)

	// 上传相关的API端点
	router.HandleFunc("/api/upload/sign", apiHandler.AuthMiddleware(apiHandler.SignUploadHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/upload/cover", apiHandler.AuthMiddleware(apiHandler.UploadCoverHandler)).Methods(http.MethodPost)

	// 就绪探测
	router.HandleFunc("/api/tracks/probe", apiHandler.AuthMiddleware(apiHandler.ProbeTrackHandler)).Methods(http.MethodPost)

	// 回收站
	router.HandleFunc("/api/trash", apiHandler.AuthMiddleware(apiHandler.GetTrashHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/trash/{id}/restore", apiHandler.AuthMiddleware(apiHandler.RestoreTrashHandler)).Methods(http.MethodPost)

	// 公开分享的专辑（只读，无需认证）
	router.HandleFunc("/api/shared/{id}", apiHandler.SharedAlbumHandler).Methods(http.MethodGet)

	// 播放器会话
	router.HandleFunc("/api/player/state", apiHandler.AuthMiddleware(apiHandler.PlayerStateHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/player/queue", apiHandler.AuthMiddleware(apiHandler.PlayerQueueHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/player/{action}", apiHandler.AuthMiddleware(apiHandler.PlayerControlHandler)).Methods(http.MethodPost)

	// 状态推送
	router.HandleFunc("/ws/events", hub.HandleEvents)

	// 封面等静态文件由MinIO提供
	router.PathPrefix("/static/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, "/static/")
		client := storage.GetMinioClient()
		if client == nil {
			http.Error(w, "MinIO client not available", http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		object, err := client.GetObject(ctx, cfg.MinioBucket, objectPath, minio.GetObjectOptions{})
		if err != nil {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		defer object.Close()

		var contentType string
		if strings.HasPrefix(objectPath, "covers/") {
			contentType = "image/jpeg"
		} else {
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000") // 缓存一年

		if _, err := io.Copy(w, object); err != nil {
			logger.Warn("Error serving file from MinIO", logger.ErrorField(err))
		}
	})

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}
