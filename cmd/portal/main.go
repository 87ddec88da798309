package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hiremote_portal/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd 根命令，不带子命令时等同于 serve
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "portal",
		Short:         "Hiremote operations portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(false)
		},
	}
	root.AddCommand(newServeCmd(), newSeedCmd(), newHashPasswordCmd())
	return root
}

// ==================== serve ====================

func newServeCmd() *cobra.Command {
	var skipSeed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(skipSeed)
		},
	}
	cmd.Flags().BoolVar(&skipSeed, "skip-seed", false, "do not create the default accounts on start")
	return cmd
}

func serve(skipSeed bool) error {
	cfg, l, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer l.Sync()

	if cfg.UsingDefaultSecret() {
		l.Warn("HIREMOTE_SECRET 未设置，正在使用开发密钥，请勿用于生产环境")
	}

	deps, err := initDependencies(cfg, l, db)
	if err != nil {
		return err
	}

	if _, err := initSchema(context.Background(), deps, !skipSeed); err != nil {
		return fmt.Errorf("数据库初始化失败: %w", err)
	}

	return runServer(deps)
}

// ==================== seed ====================

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the default stores and accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer l.Sync()

			deps, err := initDependencies(cfg, l, db)
			if err != nil {
				return err
			}
			res, err := initSchema(cmd.Context(), deps, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d account(s)\n", res.Seeded)
			return nil
		},
	}
}

// ==================== hash-password ====================

func newHashPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash, or reset a user's password with --email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				hash, err := service.HashPassword(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			}

			cfg, l, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer l.Sync()

			deps, err := initDependencies(cfg, l, db)
			if err != nil {
				return err
			}
			if _, err := initSchema(cmd.Context(), deps, false); err != nil {
				return err
			}
			if err := deps.Services.Auth.ChangePassword(cmd.Context(), email, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "update the password of this account")
	return cmd
}
