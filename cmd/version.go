package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/gredis/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := meta.GetInfo()

		fmt.Fprintf(cmd.OutOrStdout(), "gredis %s speaking %s\ncommit %s built %s with %s for %s\n",
			info.Version, info.Protocol, info.Commit, info.BuildTime, info.GoVersion, info.Platform)

		return nil
	},
}
