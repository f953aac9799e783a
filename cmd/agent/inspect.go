package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Divas-Gupta30/esports-agent/internal/resolver"
	"github.com/Divas-Gupta30/esports-agent/internal/storage"
)

func namesCmd() *cobra.Command {
	var set string

	cmd := &cobra.Command{
		Use:   "names [filter]",
		Short: "List reference player and team names",
		Long: `List the canonical player and team names the resolver matches against.

An optional filter narrows the list with fuzzy subsequence matching,
best matches first. With a filter, the resolver's similarity score for
each name is shown as well.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sets []string
			switch set {
			case "all":
				sets = []string{storage.Players, storage.Teams}
			case storage.Players, storage.Teams:
				sets = []string{set}
			default:
				return fmt.Errorf("--set must be players, teams or all")
			}
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}

			ctx := context.Background()
			a, err := newBaseApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, s := range sets {
				names, err := a.store.Names(ctx, s)
				if err != nil {
					return err
				}
				names = resolver.Filter(filter, names)

				fmt.Println(color.CyanString("%s (%d)", s, len(names)))
				fmt.Println(strings.Repeat("─", 40))
				for _, n := range names {
					if filter == "" {
						fmt.Println("  " + n)
						continue
					}
					fmt.Printf("  %-30s %s\n", n, color.New(color.Faint).Sprintf("%3d", resolver.Score(filter, n)))
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&set, "set", "all", "players, teams or all")
	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema description given to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newBaseApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			schema, err := a.store.DescribeSchema(ctx)
			if err != nil {
				return err
			}
			fmt.Print(schema)
			return nil
		},
	}
}

func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run raw SQL and print the rows as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newBaseApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.store.Query(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if len(rows) == 1 {
				return enc.Encode(rows[0])
			}
			return enc.Encode(map[string]any{"results": rows})
		},
	}
}
