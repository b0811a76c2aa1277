package cmd

import (
	"context"
	"fmt"
	"log"

	"trackvault/cache"
	"trackvault/config"
	"trackvault/db"
	"trackvault/repository"

	"github.com/spf13/cobra"
)

var (
	trashUserID  int64
	trashRestore int64
)

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "查看或恢复回收站中的专辑",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.ConnectRedis(cfg); err != nil {
			log.Fatalf("无法连接Redis: %v", err)
		}
		defer db.CloseRedis()
		cache.Use(db.RedisClient)

		ctx := context.Background()

		if trashRestore != 0 {
			if err := db.ConnectDB(cfg); err != nil {
				log.Fatalf("无法连接数据库: %v", err)
			}
			defer db.CloseDB()

			entry, err := cache.TakeTrash(ctx, trashUserID, trashRestore)
			if err != nil {
				log.Fatalf("读取回收站失败: %v", err)
			}
			if entry == nil {
				log.Fatalf("回收站中没有专辑 %d", trashRestore)
			}

			albumRepo := repository.NewMySQLAlbumRepository(db.DB)
			if err := albumRepo.RestoreAlbum(ctx, &entry.Album, entry.Tracks); err != nil {
				log.Fatalf("恢复失败: %v", err)
			}
			fmt.Printf("已恢复专辑 %d（%d 首歌）\n", entry.Album.ID, len(entry.Tracks))
			return
		}

		entries, err := cache.ListTrash(ctx, trashUserID)
		if err != nil {
			log.Fatalf("读取回收站失败: %v", err)
		}
		if len(entries) == 0 {
			fmt.Println("回收站为空")
			return
		}
		for _, e := range entries {
			fmt.Printf("%d\t%s\t%d 首歌\t删除于 %s\n",
				e.Album.ID, e.Album.Title, len(e.Tracks), e.DeletedAt.Format("2006-01-02 15:04:05"))
		}
	},
}

func init() {
	trashCmd.Flags().Int64Var(&trashUserID, "user", 0, "用户ID")
	trashCmd.Flags().Int64Var(&trashRestore, "restore", 0, "要恢复的专辑ID")
	trashCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(trashCmd)
}
