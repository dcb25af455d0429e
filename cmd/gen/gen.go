package gen

import (
	"github.com/spf13/cobra"
)

// RootCmd groups the generators for gredis documentation.
var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate gredis documentation",
	Long:  `Generate gredis documentation, such as man pages for every command`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
	RootCmd.AddCommand(MarkdownCmd)
}
