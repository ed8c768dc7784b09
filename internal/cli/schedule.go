package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/me/ringflow/pkg/model"
	"github.com/spf13/cobra"
)

func newScheduleCmd() *cobra.Command {
	var maxSlots int

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run one scheduling round and print its decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := client.Schedule(cmd.Context(), maxSlots)
			if err != nil {
				return err
			}
			return printSchedule(cmd.OutOrStdout(), sched)
		},
	}

	cmd.Flags().IntVar(&maxSlots, "max", 0, "Slots to fill this round (0 = server default)")
	return cmd
}

func printSchedule(w io.Writer, sched *model.Schedule) error {
	fmt.Fprintf(w, "Round %s: %d ready, %d deferred\n", sched.RoundID, len(sched.Ready), len(sched.Deferred))
	rows := sched.Ordered()
	if len(rows) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tFROM\tTO\tDECISION\tSCORE\tETA\tREASON")
	for _, r := range rows {
		eta := "-"
		if r.ETA > 0 {
			eta = time.UnixMilli(r.ETA).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\t%s\n", r.Code, r.From, r.To, r.Decision, r.Score, eta, r.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, code := range sched.Faulted {
		fmt.Fprintf(w, "Faulted: %s\n", code)
	}
	return nil
}

func newCompleteCmd() *cobra.Command {
	var (
		report CompletionReport
		at     string
	)

	cmd := &cobra.Command{
		Use:   "complete <instruction-code>",
		Short: "Report a finished instruction so travel times are learned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report.Code = args[0]
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --time: %w", err)
				}
				report.Time = &ts
			}
			if err := client.Complete(cmd.Context(), report); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completion of %s recorded.\n", report.Code)
			return nil
		},
	}

	cmd.Flags().StringVar(&report.Container, "container", "", "Container code")
	cmd.Flags().StringVar(&report.From, "from", "", "Origin location")
	cmd.Flags().StringVar(&report.To, "to", "", "Destination location")
	cmd.Flags().StringVar(&at, "time", "", "Finish time, RFC 3339 (default: now)")
	return cmd
}
