package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"dagvault/pkg/meta"

	"github.com/spf13/cobra"
)

var errNoMeta = errors.New("metadata database is disabled (set meta.driver)")

var nameCmd = &cobra.Command{
	Use:   "name",
	Short: "Manage mutable names pointing at DAG roots",
}

var nameSetCmd = &cobra.Command{
	Use:   "set <name> <hash>",
	Short: "Point a name at a stored root",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return fmt.Errorf("app not initialized")
		}
		if DV.Repository == nil {
			return errNoMeta
		}
		ctx := cmd.Context()
		name := args[0]

		// 1. 目标必须已经存在
		hash, err := DV.ResolveHash(ctx, args[1])
		if err != nil {
			return fmt.Errorf("invalid hash '%s': %w", args[1], err)
		}
		ok, err := DV.Store.Has(ctx, hash)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("block %s not found in store", hash)
		}

		// 2. 读取当前版本用于 CAS
		var version int64
		current, err := DV.Repository.GetName(ctx, name)
		switch {
		case err == nil:
			version = current.Version
		case errors.Is(err, meta.ErrNameNotFound):
		default:
			return err
		}

		// 3. 原子更新
		if err := DV.Repository.UpdateName(ctx, name, hash, version); err != nil {
			return fmt.Errorf("failed to update name %s: %w", name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s -> %s\n", name, hash)
		return nil
	},
}

var nameGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print the root a name points at",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return fmt.Errorf("app not initialized")
		}
		if DV.Repository == nil {
			return errNoMeta
		}
		n, err := DV.Repository.GetName(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		root, err := n.RootHash()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), root)
		return nil
	},
}

var nameLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return fmt.Errorf("app not initialized")
		}
		if DV.Repository == nil {
			return errNoMeta
		}
		names, err := DV.Repository.ListNames(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, n := range names {
			root, err := n.RootHash()
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\tv%d\t%s\n", n.Name, root, n.Version, n.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

func init() {
	nameCmd.AddCommand(nameSetCmd, nameGetCmd, nameLsCmd)
	rootCmd.AddCommand(nameCmd)
}
