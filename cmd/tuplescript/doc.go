package main

import (
	"github.com/Comcast/tuplescript/interpreters/tuplescript"
	"github.com/Comcast/tuplescript/tools"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newDocCommand() *cobra.Command {
	var (
		css    []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Print the reference for tuplescript's builtins as HTML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs := tuplescript.Builtins()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(docs)
			}
			return tools.RenderBuiltinsPage(docs, cmd.OutOrStdout(), css)
		},
	}

	cmd.Flags().StringArrayVar(&css, "css", nil, "stylesheet to link (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the docs as JSON instead")

	return cmd
}
