package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"

	"trackvault/config"
	"trackvault/core/archive"
	"trackvault/core/overlay"
	"trackvault/core/poller"
	"trackvault/core/uploadflow"
	"trackvault/db"
	"trackvault/model"
	"trackvault/repository"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	uploadAlbumID int64
	uploadUserID  int64
	uploadTitle   string
	uploadArtist  string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "从命令行直传一个音频文件",
	Long:  `把本地音频文件通过直传管线送入归档并登记到指定专辑，显示传输进度。`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("无法连接数据库: %v", err)
		}
		defer db.CloseDB()

		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			log.Fatalf("无法打开文件: %v", err)
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil {
			log.Fatalf("无法读取文件信息: %v", err)
		}

		title := uploadTitle
		if title == "" {
			name := filepath.Base(path)
			title = name[:len(name)-len(filepath.Ext(name))]
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		trackRepo := repository.NewMySQLTrackRepository(db.DB)
		registry := overlay.NewRegistry()
		defer registry.Close()
		readiness := poller.New(trackRepo)

		flow := uploadflow.New(archive.NewSigner(), archive.NewUploader(nil), registry, trackRepo, readiness, func() model.ArchiveCredentials {
			access, secret := cfg.ArchiveCredentials()
			return model.ArchiveCredentials{AccessKey: access, SecretKey: secret}
		})

		bar := progressbar.DefaultBytes(fi.Size(), "uploading")
		body := io.TeeReader(f, bar)

		track, err := flow.Upload(context.Background(), uploadflow.Request{
			AlbumID:     uploadAlbumID,
			UserID:      uploadUserID,
			Title:       title,
			Artist:      uploadArtist,
			FileName:    filepath.Base(path),
			ContentType: contentType,
			Size:        fi.Size(),
			Body:        body,
		})
		if err != nil {
			log.Fatalf("上传失败: %v", err)
		}

		fmt.Printf("\n上传完成: track %d\n", track.ID)
		fmt.Printf("播放地址: %s\n", track.PlaybackURL)
		fmt.Println("归档处理中，稍后可用 probe 接口确认就绪。")
	},
}

func init() {
	uploadCmd.Flags().Int64Var(&uploadAlbumID, "album", 0, "目标专辑ID")
	uploadCmd.Flags().Int64Var(&uploadUserID, "user", 0, "上传用户ID")
	uploadCmd.Flags().StringVar(&uploadTitle, "title", "", "标题（默认取文件名）")
	uploadCmd.Flags().StringVar(&uploadArtist, "artist", "", "艺术家")
	uploadCmd.MarkFlagRequired("album")
	uploadCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(uploadCmd)
}
