package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// newDocsCmd generates reference pages for the whole command tree.
func newDocsCmd() *cobra.Command {
	var dir, format string
	cmd := &cobra.Command{
		Use:    "gen-docs",
		Short:  "Generate reference documentation for appifi",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			root := cmd.Root()
			root.DisableAutoGenTag = true
			switch format {
			case "man":
				return doc.GenManTree(root, &doc.GenManHeader{
					Title:   "APPIFI",
					Section: "1",
					Source:  "appifi " + version,
				}, dir)
			case "markdown":
				return doc.GenMarkdownTree(root, dir)
			case "yaml":
				return doc.GenYamlTree(root, dir)
			default:
				return fmt.Errorf("unknown format %q (use man, markdown or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "docs", "output directory")
	cmd.Flags().StringVar(&format, "format", "man", "output format: man, markdown or yaml")
	return cmd
}
