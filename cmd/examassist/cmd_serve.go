package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"examassist/internal/models"
	"examassist/internal/web"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动本地界面和后台服务",
		Long: `启动本地界面和后台服务，只监听 127.0.0.1。

浏览器打开显示的地址即可保存密钥、输入考试页面并开始解答；
其他进程可以通过 POST /api/message 发送消息。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			snapshot := cfg.Snapshot()
			if port == 0 {
				port = snapshot.Port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := web.NewServer(cfg, st, models.NewClient(snapshot))
			fmt.Fprintf(cmd.OutOrStdout(), "请在浏览器中打开 http://127.0.0.1:%d\n", port)
			if err := server.Run(ctx, port); err != nil {
				return fmt.Errorf("启动服务器失败: %w", err)
			}
			slog.Info("服务器已关闭")
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "监听端口，默认取配置文件")

	return cmd
}
