package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/me/ringflow/pkg/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSubmitCmd() *cobra.Command {
	var (
		req      model.InstructionRequest
		priority int
		file     string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an instruction, or a batch from a YAML file",
		Example: `  ringctl submit --code T1 --container C1 --from IN1 --to G05 --priority 2
  ringctl submit --file batch.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				return submitBatch(cmd, file)
			}
			if cmd.Flags().Changed("priority") {
				req.Priority = &priority
			}
			in, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s (%s -> %s, priority %d)\n", in.Code, in.From, in.To, in.Priority)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Code, "code", "", "Instruction code")
	cmd.Flags().StringVar(&req.Container, "container", "", "Container code")
	cmd.Flags().StringVar(&req.From, "from", "", "Origin location")
	cmd.Flags().StringVar(&req.To, "to", "", "Destination location")
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority (higher runs first)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file holding a list of instructions")
	return cmd
}

func submitBatch(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read batch: %w", err)
	}
	var reqs []model.InstructionRequest
	if err := yaml.Unmarshal(data, &reqs); err != nil {
		return fmt.Errorf("parse batch %s: %w", path, err)
	}
	if len(reqs) == 0 {
		return fmt.Errorf("batch %s holds no instructions", path)
	}

	res, err := client.SubmitBatch(cmd.Context(), reqs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted %d instructions\n", res.Accepted)
	return nil
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <instruction-code>",
		Short: "Cancel a waiting instruction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Instruction %s cancelled.\n", res.Code)
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every waiting instruction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the waiting pool without --yes")
			}
			msg, err := client.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm clearing the pool")
	return cmd
}

func newWaitingCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "waiting",
		Short: "List waiting instructions, highest priority first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := client.Waiting(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No waiting instructions.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tCONTAINER\tFROM\tTO\tPRIORITY\tFAULT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", e.Code, e.Container, e.From, e.To, e.Priority, e.Fault)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to list")
	return cmd
}
