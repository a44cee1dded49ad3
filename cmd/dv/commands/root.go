package commands

import (
	"fmt"
	"log/slog"
	"os"

	"dagvault/pkg/app"
	"dagvault/pkg/config"

	"github.com/spf13/cobra"
)

// noAppAnnotation 标记不需要组装 App 的命令 (init / mh)
const noAppAnnotation = "dv/no-app"

var (
	cfgFile  string
	repoPath string
	debug    bool

	// 全局应用实例，供子命令使用
	DV *app.App
)

var rootCmd = &cobra.Command{
	Use:           "dv",
	Short:         "DagVault: content-addressed Merkle DAG block store",
	SilenceUsage:  true,
	SilenceErrors: false,
	// PersistentPreRunE 在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
		if needsNoApp(cmd) {
			return nil
		}

		var err error
		DV, err = app.NewApp(cmd.Context(), repoPath)
		if err != nil {
			return fmt.Errorf("failed to initialize dagvault: %w\n(Did you run 'dv init'?)", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return nil
		}
		err := DV.Close()
		DV = nil
		return err
	},
}

func needsNoApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[noAppAnnotation] == "true" {
			return true
		}
	}
	return false
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dv/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", "", "repository root (default $DV_REPO_PATH, $IPFS_PATH or $HOME/.dagvault)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}
