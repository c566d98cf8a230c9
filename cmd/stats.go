package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/spf13/cobra"
)

func newStatsCommand() *cobra.Command {
	var targets []string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show engagement stats for platforms that support them",
		RunE: func(cmd *cobra.Command, args []string) error {
			logutil.SetVerbose(verbose)

			dispatcher, err := buildDispatcher(configFlag)
			if err != nil {
				return err
			}

			names := normalizeTargets(targets)
			if len(names) == 0 {
				names = dispatcher.Names()
			}
			if len(names) == 0 {
				return errors.New("no platforms configured")
			}

			out := cmd.OutOrStdout()
			shown := 0
			for _, name := range names {
				poster, ok := dispatcher.Adapter(name)
				if !ok {
					continue
				}
				provider, ok := poster.(syndicate.StatsProvider)
				if !ok {
					logutil.Debugf("%s does not expose stats", name)
					continue
				}
				stats, err := provider.Stats(cmd.Context())
				if err != nil {
					fmt.Fprintf(out, "%s: error: %v\n", name, err)
					shown++
					continue
				}
				fmt.Fprintf(out, "%s:\n", name)
				for _, key := range sortedKeys(stats) {
					fmt.Fprintf(out, "  %s: %v\n", key, stats[key])
				}
				shown++
			}

			if shown == 0 {
				return errors.New("none of the selected platforms expose stats")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&targets, "target", "t", nil, "Platforms to query (default: all configured)")
	return cmd
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
