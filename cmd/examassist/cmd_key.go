package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"examassist/internal/models"
	"examassist/internal/store"
)

// pinger 测试 API 连接
type pinger interface {
	Ping(ctx context.Context, apiKey string) error
}

func newKeyCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "管理 DashScope API 密钥",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <api-key>",
			Short: "保存密钥（必须以 sk- 开头）",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(opts, func(st *store.Store) error {
					key := strings.TrimSpace(args[0])
					if err := st.SaveAPIKey(cmd.Context(), key); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "API密钥已保存: %s\n", store.MaskAPIKey(key))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "显示已保存的密钥（脱敏）",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(opts, func(st *store.Store) error {
					key, err := st.APIKey(cmd.Context())
					if errors.Is(err, store.ErrMissingAPIKey) {
						fmt.Fprintln(cmd.OutOrStdout(), "尚未设置API密钥")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), store.MaskAPIKey(key))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "删除已保存的密钥",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(opts, func(st *store.Store) error {
					if err := st.ClearAPIKey(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "API密钥已清除")
					return nil
				})
			},
		},
		newKeyTestCommand(opts, nil),
	)

	return cmd
}

// newKeyTestCommand p 为空时使用配置中的模型客户端
func newKeyTestCommand(opts *globalOptions, p pinger) *cobra.Command {
	return &cobra.Command{
		Use:   "test [api-key]",
		Short: "测试 API 连接，不传参数时使用已保存的密钥",
		Args:  cobra.MaximumNArgs(1),
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

			var key string
			if len(args) == 1 {
				key = strings.TrimSpace(args[0])
				if err := store.ValidateAPIKey(key); err != nil {
					return err
				}
			} else if key, err = st.APIKey(cmd.Context()); err != nil {
				return err
			}

			if p == nil {
				p = models.NewClient(cfg.Snapshot())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "正在验证API连接...")
			if err := p.Ping(cmd.Context(), key); err != nil {
				return fmt.Errorf("API连接测试失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API密钥有效，连接正常")
			return nil
		},
	}
}

func withStore(opts *globalOptions, fn func(st *store.Store) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	return fn(st)
}
