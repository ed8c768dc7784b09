package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPathCmd() *cobra.Command {
	var policy string

	cmd := &cobra.Command{
		Use:   "path <from> <to>",
		Short: "Show the ring segments a move would traverse",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := client.Path(cmd.Context(), args[0], args[1], policy)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !p.Resolved() {
				fmt.Fprintf(out, "%s -> %s: not on the ring\n", p.From, p.To)
				return nil
			}
			ids := make([]string, len(p.Segments))
			for i, s := range p.Segments {
				ids[i] = s.ID
			}
			fmt.Fprintf(out, "%s -> %s (%s, %s -> %s): %d segments\n",
				p.From, p.To, p.Policy, p.FromAnchor, p.ToAnchor, len(p.Segments))
			if len(ids) > 0 {
				fmt.Fprintln(out, strings.Join(ids, " "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "Direction policy: shortest, clockwise, counter-clockwise")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "List learned travel-time statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := client.Stats(cmd.Context(), prefix)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(stats) == 0 {
				fmt.Fprintln(out, "No statistics recorded.")
				return nil
			}
			keys := make([]string, 0, len(stats))
			for k := range stats {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tMEAN_MS\tSTD_MS\tCOUNT")
			for _, k := range keys {
				s := stats[k]
				fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%d\n", k, s.Mean, s.Std, s.Count)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix filter, e.g. od: or container:")
	return cmd
}
