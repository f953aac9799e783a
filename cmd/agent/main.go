// Command agent answers natural-language questions about esports players
// and teams by generating, repairing and summarising SQL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agent",
		Short: "Esports stats agent: question → SQL → summary",
		Long: `Answers questions about esports players and teams.

Each question is routed either to a fresh database lookup (name resolution,
SQL generation, execution with up to three corrections) or to a follow-up
answer built from the session's previous results.

Examples:
  agent serve                                 # HTTP API on $PORT
  agent ask -q "How many kills does Ax1Le have?"
  agent ask -s my-session -q "Is that a lot?"
  agent names cloud                           # fuzzy-filter reference names
  agent schema                                # schema description fed to the model
  agent exec "SELECT name FROM teams"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(
		serveCmd(),
		askCmd(),
		namesCmd(),
		schemaCmd(),
		execCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
