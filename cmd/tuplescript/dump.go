package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/sio"
	"github.com/Comcast/tuplescript/storage"
	"github.com/Comcast/tuplescript/tuples"

	"github.com/spf13/cobra"
)

// source is where dump and graph get their tuples.
type source struct {
	storage string
	state   string
}

func (s *source) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.storage, "storage", "", `storage backend: "bolt:PATH" or "sqlite:PATH"`)
	cmd.Flags().StringVar(&s.state, "state", "", "JSON state file")
}

func (s *source) load(ctx context.Context) ([]*core.Tuple, error) {
	var (
		st  storage.Storage
		err error
	)
	switch {
	case s.storage != "" && s.state != "":
		return nil, exitError(ExitUsage, "give --storage or --state but not both", nil)
	case s.state != "":
		st = sio.NewJSONStore(s.state, "")
	case s.storage != "":
		if st, err = storage.Parse(s.storage); err != nil {
			return nil, exitError(ExitUsage, "storage", err)
		}
	default:
		return nil, exitError(ExitUsage, "need --storage or --state", nil)
	}

	if err = storage.OpenRetrying(ctx, st, OpenTimeout); err != nil {
		return nil, exitError(ExitUsage, "open", err)
	}
	defer st.Close(ctx)

	ts, err := st.Load(ctx)
	if err != nil {
		return nil, exitError(ExitUsage, "load", err)
	}
	tuples.SortTuples(ts)
	return ts, nil
}

func newDumpCommand() *cobra.Command {
	src := &source{}
	var owner int

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the tuples in a storage backend or state file as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := src.load(cmd.Context())
			if err != nil {
				return err
			}
			if owner != core.AnyOwner {
				acc := ts[:0]
				for _, t := range ts {
					if t.Owner == owner {
						acc = append(acc, t)
					}
				}
				ts = acc
			}
			return sio.WriteTuples(cmd.OutOrStdout(), ts)
		},
	}

	src.addFlags(cmd)
	cmd.Flags().IntVar(&owner, "owner", core.AnyOwner, "only this owner's tuples")

	return cmd
}

// parseRef parses "OWNER:KEY".
func parseRef(s string) (core.Ref, error) {
	i := strings.Index(s, ":")
	if i < 0 {
		return core.Ref{}, fmt.Errorf("%q isn't OWNER:KEY", s)
	}
	owner, err := strconv.Atoi(s[:i])
	if err != nil {
		return core.Ref{}, fmt.Errorf("%q: bad owner: %w", s, err)
	}
	return core.Ref{Owner: owner, Key: s[i+1:]}, nil
}
