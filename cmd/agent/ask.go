package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Divas-Gupta30/esports-agent/internal/graph"
)

func askCmd() *cobra.Command {
	var (
		question  string
		sessionID string
		showSQL   bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and print the summary",
		Long: `Answer one question and print the summary.

Reuse a session id to ask follow-up questions against earlier results.
The session id is printed after every answer.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if question == "" {
				question = strings.Join(args, " ")
			}
			if strings.TrimSpace(question) == "" {
				return fmt.Errorf("provide a question with -q or as arguments")
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.RunTurn(ctx, question, sessionID)
			if errors.Is(err, graph.ErrRetryExhausted) {
				fmt.Fprintln(os.Stderr, color.YellowString("No summary generated: the query could not be repaired."))
				fmt.Fprintln(os.Stderr, color.New(color.Faint).Sprintf("session: %s", sessionID))
				return err
			}
			if err != nil {
				return err
			}

			fmt.Println(color.GreenString(res.Summary))
			if showSQL && res.SQLQuery != "" {
				fmt.Println(color.New(color.Faint).Sprintf("sql: %s", res.SQLQuery))
			}
			fmt.Println(color.New(color.Faint).Sprintf("session: %s", res.SessionID))
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "question to ask")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (new session when empty)")
	cmd.Flags().BoolVar(&showSQL, "sql", false, "print the executed SQL")
	return cmd
}
