package cmd

import (
	"trackvault/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动TrackVault服务器",
	Long:  `启动TrackVault音乐库的HTTP服务器，提供API服务和状态推送`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
