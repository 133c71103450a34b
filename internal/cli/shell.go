package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
)

func newShellCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively in one session",
		Long: "Runs commands in a single process so the offline identity provider " +
			"and posted offers stay available between commands. Type exit to quit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if _, err := app.Session(ctx); err != nil {
				return err
			}
			refresher := app.Refresher()
			go refresher.Start(ctx)
			defer refresher.Stop()

			for {
				line, err := app.prompt("cardswap> ")
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}

				words, err := splitWords(line)
				if err != nil {
					fmt.Fprintln(out, "error:", err)
					continue
				}
				if len(words) == 0 {
					continue
				}
				if words[0] == "exit" || words[0] == "quit" {
					return nil
				}
				if words[0] == "shell" {
					fmt.Fprintln(out, "already in the shell")
					continue
				}

				sub := NewRootCommand(app)
				sub.SetArgs(words)
				if err := sub.ExecuteContext(ctx); err != nil {
					fmt.Fprintln(out, "error:", describe(err))
				}
			}
		},
	}
}

// splitWords splits a command line the way a POSIX shell would, honoring
// quotes and backslash escapes. Control operators are rejected rather than
// silently cutting the line short.
func splitWords(line string) ([]string, error) {
	parser := shellwords.NewParser()
	words, err := parser.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if parser.Position >= 0 {
		return nil, fmt.Errorf("unexpected %q, quote it to pass it literally", line[parser.Position])
	}
	return words, nil
}
