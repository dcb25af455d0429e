package gen

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/gredis/internal/meta"
)

var (
	docsDir string
)

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate a man page for every gredis command",
	RunE: func(cmd *cobra.Command, args []string) error {
		header := &doc.GenManHeader{
			Section: "1",
			Manual:  "gredis Manual",
			Source:  meta.UserAgent(),
		}

		return generate(cmd, "man pages", func(root *cobra.Command) error {
			return doc.GenManTree(root, header, docsDir)
		})
	},
}

var MarkdownCmd = &cobra.Command{
	Use:   "markdown",
	Short: "Generate a markdown page for every gredis command",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generate(cmd, "markdown docs", func(root *cobra.Command) error {
			return doc.GenMarkdownTree(root, docsDir)
		})
	},
}

// generate creates docsDir when missing and runs gen over the whole command
// tree.
func generate(cmd *cobra.Command, what string, gen func(root *cobra.Command) error) error {
	if err := os.MkdirAll(docsDir, 0750); err != nil {
		return err
	}

	root := cmd.Root()
	root.DisableAutoGenTag = true

	fmt.Fprintf(cmd.OutOrStdout(), "Writing gredis %s to %s\n", what, docsDir)

	return gen(root)
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVar(&docsDir, "dir", "docs", "the directory to write the generated files to")

	// For bash-completion
	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}
}
