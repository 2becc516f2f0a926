package main

import (
	"fmt"

	"github.com/Comcast/tuplescript/config"
	"github.com/Comcast/tuplescript/interpreters/tuplescript"
	"github.com/Comcast/tuplescript/tools"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newCheckCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "check [files]",
		Short: "Parse scripts and report the tuples they mention",
		Long: `check parses scripts without running them.  For tuplescript files,
it reports the addresses each script reads, writes, deletes, links,
views, and subscribes to, and the functions it defines.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configFile != "" {
				var err error
				if cfg, err = config.Load(configFile); err != nil {
					return exitError(ExitUsage, "configuration", err)
				}
			}

			interps := standardInterpreters(cfg)
			acc := make([]*tools.ScriptAnalysis, 0, len(args))
			for _, filename := range args {
				t, err := compile(cmd.Context(), interps, filename)
				if err != nil {
					return err
				}
				if p, is := t.prog.(*tuplescript.Program); is {
					acc = append(acc, tools.Analyze(p))
				} else {
					acc = append(acc, &tools.ScriptAnalysis{Name: filename})
				}
			}

			js, err := json.MarshalIndent(acc, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", js)
			return err
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "configuration file")

	return cmd
}
