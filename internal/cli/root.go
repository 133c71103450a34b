package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cardswap/cardswap/internal/config"
	"github.com/cardswap/cardswap/internal/session"
	"github.com/cardswap/cardswap/internal/validation"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "cardswap",
		Short:         "Buy and sell credit card referral offers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.out)
	root.SetIn(app.in)

	root.AddCommand(
		newListingsCommand(app),
		newFacetsCommand(app),
		newOfferCommand(app),
		newSignUpCommand(app),
		newLoginCommand(app),
		newLogoutCommand(app),
		newWhoAmICommand(app),
		newSessionCommand(app),
		newNegotiateCommand(app),
		newBuyCommand(app),
		newMigrateCommand(app),
		newShellCommand(app),
	)
	return root
}

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: failed to load configuration:", err)
		return 1
	}

	logger := newLogger(os.Stderr, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	app, err := NewApp(ctx, cfg, logger, os.Stdout, os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer app.Close()

	root := NewRootCommand(app)
	root.SetArgs(os.Args[1:])
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		return 1
	}
	return 0
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	var ae *session.AuthError
	if errors.As(err, &ae) {
		return ae.Message()
	}
	var ve *validation.Error
	if errors.As(err, &ve) {
		parts := make([]string, 0, len(ve.Fields))
		for _, f := range ve.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return "invalid input: " + strings.Join(parts, "; ")
	}
	return err.Error()
}
