package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"dagvault/pkg/config"
	"dagvault/pkg/storage/disk"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:         "init",
	Short:       "Initialize a DagVault repository",
	Long:        `Create the block store layout (<repo>/blocks) at the resolved repository root.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noAppAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		root := config.ResolveRoot(repoPath)

		// 1. 检查是否已存在
		if _, err := os.Stat(filepath.Join(root, "blocks")); err == nil {
			fmt.Fprintf(out, "⚠️  DagVault repository already exists in %s\n", root)
			return nil
		}

		// 2. 创建目录结构
		if _, err := disk.NewAdapter(root); err != nil {
			return fmt.Errorf("failed to create repo directory: %w", err)
		}

		fmt.Fprintf(out, "✅ Initialized empty DagVault repository in %s\n", root)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
