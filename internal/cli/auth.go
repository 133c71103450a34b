package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cardswap/cardswap/internal/auth"
	"github.com/cardswap/cardswap/internal/callback"
	"github.com/cardswap/cardswap/internal/config"
	"github.com/cardswap/cardswap/internal/handlers"
	"github.com/cardswap/cardswap/internal/identity"
	"github.com/cardswap/cardswap/internal/session"
	"github.com/cardswap/cardswap/internal/wizard"
	"github.com/spf13/cobra"
)

func newSignUpCommand(app *App) *cobra.Command {
	var (
		req         identity.SignUpRequest
		askPassword bool
		noWait      bool
	)

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := app.Session(ctx)
			if err != nil {
				return err
			}

			if askPassword {
				if req.Password, err = app.prompt("Password: "); err != nil {
					return err
				}
			}

			// The offline provider mails confirmation links to the loopback
			// listener, so it has to be up before the mail goes out.
			var srv *callback.Server
			if app.cfg.Identity.Mode == config.IdentityMemory && !noWait {
				var stop func()
				if srv, stop, err = startCallback(app); err != nil {
					return err
				}
				defer stop()
			}

			user, err := m.SignUp(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Account created for %s. Check your email to confirm it.\n", user.Email)
			if srv == nil {
				return nil
			}

			fmt.Fprintln(out, "Waiting for the confirmation link to be opened...")
			waitCtx, cancel := context.WithTimeout(ctx, app.cfg.Server.RedirectWait)
			defer cancel()
			if _, err := srv.Wait(waitCtx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Email confirmed. You can now log in.")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Email, "email", "", "email address")
	f.StringVar(&req.Profile.Name, "name", "", "full name")
	f.StringVar(&req.Profile.Phone, "phone", "", "phone number")
	f.StringVar(&req.Profile.Country, "country", "", "country")
	f.StringVar(&req.Profile.City, "city", "", "city")
	f.BoolVar(&askPassword, "password", false, "also set a password")
	f.BoolVar(&noWait, "no-wait", false, "do not wait for the confirmation link")
	return cmd
}

type loginOptions struct {
	email    string
	code     string
	password bool
	oauth    string
	link     bool
}

func newLoginCommand(app *App) *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with an emailed code, a password or an OAuth provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := app.Session(ctx)
			if err != nil && m.State().Status != session.Failed {
				return err
			}

			switch {
			case opts.oauth != "":
				return loginWithRedirect(ctx, app, m, cmd.OutOrStdout(), func() (string, error) {
					return m.BeginOAuthLogin(ctx, opts.oauth)
				})
			case opts.password:
				return loginWithPassword(ctx, app, m, cmd.OutOrStdout(), opts.email)
			default:
				return loginWithCode(ctx, app, m, cmd.OutOrStdout(), opts)
			}
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.email, "email", "", "email address")
	f.StringVar(&opts.code, "code", "", "a code you already received")
	f.BoolVar(&opts.password, "password", false, "sign in with a password")
	f.StringVar(&opts.oauth, "oauth", "", "sign in with google, github or apple")
	f.BoolVar(&opts.link, "link", false, "wait for the magic link instead of typing the code")
	cmd.MarkFlagsMutuallyExclusive("password", "oauth", "link", "code")
	return cmd
}

func loginWithCode(ctx context.Context, app *App, m *session.Manager, out io.Writer, opts loginOptions) error {
	email := opts.email
	var err error
	if email == "" {
		if email, err = app.prompt("Email: "); err != nil {
			return err
		}
	}

	// A code from an earlier run is verified directly.
	if opts.code != "" {
		sess, err := m.VerifyLoginCode(ctx, email, opts.code)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Signed in as %s\n", sess.User.Email)
		return nil
	}

	if opts.link {
		// Hosted providers send links without a PKCE challenge, so the
		// listener could not redeem them.
		if app.cfg.Identity.Mode != config.IdentityMemory {
			return fmt.Errorf("--link needs IDENTITY_MODE=%s; enter the emailed code instead", config.IdentityMemory)
		}
		return loginWithRedirect(ctx, app, m, out, func() (string, error) {
			if err := m.RequestLoginCode(ctx, email); err != nil {
				return "", err
			}
			return "", nil
		})
	}

	dialog := wizard.NewLogin(m)
	defer dialog.Dismiss()

	if err := dialog.SubmitEmail(ctx, email); err != nil {
		return err
	}
	fmt.Fprintf(out, "We sent a sign-in code to %s.\n", dialog.Email())

	for {
		code, err := app.prompt("Code (or \"resend\"): ")
		if err != nil {
			return err
		}
		if code == "resend" {
			if err := dialog.Resend(ctx); err != nil {
				fmt.Fprintln(out, describe(err))
			}
			continue
		}

		sess, err := dialog.SubmitCode(ctx, code)
		if err == nil {
			fmt.Fprintf(out, "Signed in as %s\n", sess.User.Email)
			return nil
		}

		var ae *session.AuthError
		if errors.As(err, &ae) && ae.Reason == session.ReasonInvalidCredentials && dialog.Step() == wizard.StepEnterCode {
			fmt.Fprintln(out, ae.Message())
			continue
		}
		return err
	}
}

func loginWithPassword(ctx context.Context, app *App, m *session.Manager, out io.Writer, email string) error {
	var err error
	if email == "" {
		if email, err = app.prompt("Email: "); err != nil {
			return err
		}
	}
	password, err := app.prompt("Password: ")
	if err != nil {
		return err
	}

	sess, err := m.LoginWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Signed in as %s\n", sess.User.Email)
	return nil
}

// loginWithRedirect starts the callback listener, runs begin, shows the
// returned URL if any and waits until the redirect signs the user in.
func loginWithRedirect(ctx context.Context, app *App, m *session.Manager, out io.Writer, begin func() (string, error)) error {
	srv, stop, err := startCallback(app)
	if err != nil {
		return err
	}
	defer stop()

	states, cancel := m.Subscribe()
	defer cancel()

	link, err := begin()
	if err != nil {
		return err
	}
	if link != "" {
		fmt.Fprintf(out, "Open this link to continue:\n%s\n", link)
		if qr, err := auth.MagicLinkQR(link); err == nil {
			fmt.Fprintln(out, qr)
		}
	} else {
		fmt.Fprintln(out, "Open the link in the email we sent you.")
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, app.cfg.Server.RedirectWait)
	defer cancelWait()

	res, err := srv.Wait(waitCtx)
	if err != nil {
		if res.Kind == handlers.CallbackFailed {
			return m.RedirectFailed(err)
		}
		return err
	}
	if res.Kind != handlers.CallbackSignedIn {
		return fmt.Errorf("unexpected redirect: %s", res.Kind)
	}

	// The provider pushes the session; wait until the manager applied it.
	for {
		select {
		case st, ok := <-states:
			if !ok {
				return fmt.Errorf("session manager closed")
			}
			if st.IsAuthenticated() {
				fmt.Fprintf(out, "Signed in as %s\n", st.Session.User.Email)
				return nil
			}
		case <-waitCtx.Done():
			return waitCtx.Err()
		}
	}
}

// startCallback binds the callback listener. The returned func stops it.
func startCallback(app *App) (*callback.Server, func(), error) {
	srv := app.CallbackServer()
	if err := srv.Start(); err != nil {
		return nil, nil, err
	}
	return srv, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func newLogoutCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app.Session(cmd.Context())
			if err != nil {
				return err
			}
			wasSignedIn := m.State().IsAuthenticated()
			if err := m.Logout(cmd.Context()); err != nil {
				return err
			}
			if wasSignedIn {
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
			}
			return nil
		},
	}
}

func newWhoAmICommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app.Session(cmd.Context())
			if err != nil && m.State().Status != session.Failed {
				return err
			}
			printState(cmd.OutOrStdout(), m.State())
			return nil
		},
	}
}

func printState(out io.Writer, st session.State) {
	switch {
	case !st.Resolved:
		fmt.Fprintln(out, "status: checking")
	case st.IsAuthenticated():
		u := st.Session.User
		fmt.Fprintf(out, "status: %s\nemail:  %s\nname:   %s\nplace:  %s, %s\nexpires: %s\n",
			st.Status, u.Email, u.Profile.Name, u.Profile.City, u.Profile.Country,
			st.Session.ExpiresAt.Local().Format(time.DateTime))
	case st.Err != nil:
		fmt.Fprintf(out, "status: %s\nreason: %s (%s)\n", st.Status, st.Err.Reason, st.Err.Message())
	default:
		fmt.Fprintf(out, "status: %s\n", st.Status)
	}
	if st.PendingConfirmation != "" {
		fmt.Fprintf(out, "pending confirmation: %s\n", st.PendingConfirmation)
	}
}

func newSessionCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect the session",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print every session change and keep the session fresh until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := app.Session(ctx)
			if err != nil && m.State().Status != session.Failed {
				return err
			}

			refresher := app.Refresher()
			go refresher.Start(ctx)
			defer refresher.Stop()

			states, cancel := m.Subscribe()
			defer cancel()

			out := cmd.OutOrStdout()
			for {
				select {
				case st, ok := <-states:
					if !ok {
						return nil
					}
					fmt.Fprintf(out, "--- v%d %s\n", st.Version, time.Now().Format(time.TimeOnly))
					printState(out, st)
				case <-ctx.Done():
					return nil
				}
			}
		},
	})
	return cmd
}
