package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"examassist/internal/config"
	"examassist/internal/logging"
	"examassist/internal/store"
)

// globalOptions 所有子命令共享的参数
type globalOptions struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "examassist",
		Short: "考试答题助手",
		Long: `考试答题助手：扫描考试页面上的选择题，分组交给通义千问作答，
再把答案标注到每道题的题干后面。

serve 启动本地界面和后台；answer 在命令行里处理一个页面；
key 管理 DashScope API 密钥。`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(cmd.ErrOrStderr(), opts.verbose)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./config.json", "配置文件路径")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "输出调试日志")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newAnswerCommand(opts))
	cmd.AddCommand(newKeyCommand(opts))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

// loadConfig 加载并验证配置
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg := config.New(o.configPath)
	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	var errs []error
	for _, e := range cfg.Validate() {
		errs = append(errs, e)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("配置无效: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// openStore 打开配置指定的数据目录
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.Snapshot().DataDir)
	if err != nil {
		return nil, fmt.Errorf("打开数据存储失败: %w", err)
	}
	return st, nil
}
