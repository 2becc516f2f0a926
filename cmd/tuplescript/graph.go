package main

import (
	"fmt"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/tools"

	"github.com/spf13/cobra"
)

func newGraphCommand() *cobra.Command {
	var (
		src       = &source{}
		format    string
		values    bool
		maxValue  int
		highlight []string
		png       string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Draw the meta links among stored tuples",
		Long: `graph renders tuples as nodes, grouped by owner, with an edge from
each meta tuple to its target.  Targets that don't exist and meta
tuples that point nowhere are marked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &tools.GraphOpts{
				ShowValues: values,
				MaxValue:   maxValue,
			}
			for _, s := range highlight {
				r, err := parseRef(s)
				if err != nil {
					return exitError(ExitUsage, "highlight", err)
				}
				opts.Highlight = append(opts.Highlight, r)
			}

			ts, err := src.load(cmd.Context())
			if err != nil {
				return err
			}

			if png != "" {
				filename, err := tools.PNG(ts, png, opts)
				if err != nil {
					return exitError(ExitUsage, "png", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), filename)
				return err
			}

			return render(format, ts, cmd, opts)
		},
	}

	src.addFlags(cmd)
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "dot", "dot or mermaid")
	f.BoolVar(&values, "values", true, "show literal values")
	f.IntVar(&maxValue, "max-value", 32, "truncate values longer than this")
	f.StringArrayVar(&highlight, "highlight", nil, "OWNER:KEY to highlight (repeatable)")
	f.StringVar(&png, "png", "", "write BASENAME.dot and BASENAME.png with Graphviz instead")

	return cmd
}

func render(format string, ts []*core.Tuple, cmd *cobra.Command, opts *tools.GraphOpts) error {
	switch format {
	case "dot":
		return tools.Dot(ts, cmd.OutOrStdout(), opts)
	case "mermaid":
		return tools.Mermaid(ts, cmd.OutOrStdout(), opts)
	default:
		return exitError(ExitUsage, fmt.Sprintf("unknown format %q", format), nil)
	}
}
