package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/trellis/cmd/trellis/commands"
	"github.com/teranos/trellis/logger"
)

var rootCmd = &cobra.Command{
	Use:   "trellis",
	Short: "trellis - Real-time task and goal graph sync server",
	Long: `trellis - Real-time task and goal graph sync server.

trellis keeps hierarchical task/goal graphs in sync across every connected
client, recomputes progress as tasks and links change, and persists each
graph to the configured storage backend.

Available commands:
  server - Start the WebSocket sync server
  graph  - Inspect or reset a stored graph
  am     - Manage trellis configuration ("I am")
  db     - Show or apply database migrations
  version

Examples:
  trellis server              # Start the sync server
  trellis graph show --user u1 --graph g1
  trellis am show             # Show current configuration`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 'am show' output is piped into files; keep stdout clean
		if cmd.Name() == "show" && cmd.Parent() != nil && cmd.Parent().Name() == "am" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.Initialize(false, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.GraphCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
