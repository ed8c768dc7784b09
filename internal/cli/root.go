package cli

import (
	"log/slog"
	"os"

	"github.com/me/ringflow/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking RINGFLOW_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("RINGFLOW_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the ringctl CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ringctl",
		Short: "ringctl controls a RingFlow scheduling server",
		Long:  "ringctl submits, cancels and schedules conveyor instructions on a RingFlow server and reports completions.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "RingFlow server URL (or RINGFLOW_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newCancelCmd(),
		newClearCmd(),
		newWaitingCmd(),
		newScheduleCmd(),
		newCompleteCmd(),
		newPathCmd(),
		newStatsCmd(),
	)

	return root
}
