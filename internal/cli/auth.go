package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/dagent/internal/api"
	"github.com/yolodolo42/dagent/internal/auth"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the Data Agent server",
		Long: `Sign in with email and password, or through Google or GitHub.

  dagent login --email you@example.com
  dagent login --oauth github`,
		Args: cobra.NoArgs,
		RunE: runWithApp(runLogin),
	}
	cmd.Flags().String("email", "", "Account email (will prompt if not provided)")
	cmd.Flags().String("oauth", "", "Sign in through a provider: google or github")
	cmd.Flags().Bool("remember", true, "Keep the session on disk between runs")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE:  runWithApp(runLogout),
	}
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE:  runWithApp(runRegister),
	}
	cmd.Flags().String("username", "", "Display name (will prompt if not provided)")
	cmd.Flags().String("email", "", "Account email (will prompt if not provided)")
	return cmd
}

func newResetPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Change your password",
		Long: `Change your password. The server ends every session of the account,
so you need to log in again afterwards.`,
		Args: cobra.NoArgs,
		RunE: runWithApp(runResetPassword),
	}
	cmd.Flags().String("email", "", "Account email (defaults to the signed-in account)")
	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE:  runWithApp(runWhoami),
	}
}

func init() {
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newResetPasswordCmd())
	rootCmd.AddCommand(newWhoamiCmd())
}

func runLogin(cmd *cobra.Command, _ []string, a *app) error {
	out := cmd.OutOrStdout()
	remember, _ := cmd.Flags().GetBool("remember")

	if provider, _ := cmd.Flags().GetString("oauth"); provider != "" {
		provider = strings.ToLower(provider)
		fmt.Fprintf(out, "Starting %s sign-in...\n", provider)
		if err := a.authenticator().withOutput(out).LoginOAuth(cmd.Context(), provider, remember); err != nil {
			return err
		}
		return printSignedIn(out, a)
	}

	p := newPrompter(cmd)
	email, _ := cmd.Flags().GetString("email")
	if email == "" {
		var err error
		if email, err = p.Line("Email: "); err != nil {
			return err
		}
	}
	email = strings.TrimSpace(email)
	if err := auth.ValidateEmail(email); err != nil {
		return err
	}

	password, err := p.Secret("Password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password is required")
	}

	if err := a.authenticator().Login(cmd.Context(), email, password, remember); err != nil {
		return err
	}
	return printSignedIn(out, a)
}

func printSignedIn(out io.Writer, a *app) error {
	who := "your account"
	if c, err := a.auth.Claims(); err == nil {
		who = firstNonEmpty(c.Username, c.Email, who)
	}
	fmt.Fprintf(out, "✓ Signed in as %s\n", who)
	return nil
}

func runLogout(cmd *cobra.Command, _ []string, a *app) error {
	out := cmd.OutOrStdout()

	err := a.client.Logout(cmd.Context())
	if err != nil {
		// Tokens are gone locally either way.
		a.log.Warn("server logout failed", "error", err)
	}
	if a.cache != nil {
		if perr := a.cache.Purge(cmd.Context()); perr != nil {
			a.log.Warn("failed to purge history cache", "error", perr)
		}
	}

	fmt.Fprintln(out, "Signed out.")
	if err != nil && !api.IsNotLoggedIn(err) {
		fmt.Fprintf(out, "Note: the server could not be reached (%v); the local session was removed.\n", err)
	}
	return nil
}

func runRegister(cmd *cobra.Command, _ []string, a *app) error {
	out := cmd.OutOrStdout()
	p := newPrompter(cmd)

	username, _ := cmd.Flags().GetString("username")
	email, _ := cmd.Flags().GetString("email")
	var err error
	if username == "" {
		if username, err = p.Line("Username: "); err != nil {
			return err
		}
	}
	if username = strings.TrimSpace(username); username == "" {
		return errors.New("username is required")
	}
	if email == "" {
		if email, err = p.Line("Email: "); err != nil {
			return err
		}
	}
	email = strings.TrimSpace(email)
	if err := auth.ValidateEmail(email); err != nil {
		return err
	}

	password, err := p.Secret("Password: ")
	if err != nil {
		return err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	confirm, err := p.Secret("Confirm password: ")
	if err != nil {
		return err
	}
	if confirm != password {
		return errors.New("passwords do not match")
	}

	if err := a.client.Register(cmd.Context(), api.RegisterRequest{Username: username, Email: email, Password: password}); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Account created. Run `dagent login` to sign in.")
	return nil
}

func runResetPassword(cmd *cobra.Command, _ []string, a *app) error {
	out := cmd.OutOrStdout()
	p := newPrompter(cmd)

	email, _ := cmd.Flags().GetString("email")
	if email == "" {
		if c, err := a.auth.Claims(); err == nil {
			email = c.Email
		}
	}
	var err error
	if email == "" {
		if email, err = p.Line("Email: "); err != nil {
			return err
		}
	}
	email = strings.TrimSpace(email)
	if err := auth.ValidateEmail(email); err != nil {
		return err
	}

	oldPassword, err := p.Secret("Current password: ")
	if err != nil {
		return err
	}
	newPassword, err := p.Secret("New password: ")
	if err != nil {
		return err
	}
	confirm, err := p.Secret("Confirm new password: ")
	if err != nil {
		return err
	}
	if err := auth.ValidatePasswordChange(oldPassword, newPassword, confirm); err != nil {
		return err
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}

	err = a.client.ResetPassword(cmd.Context(), api.ResetPasswordRequest{
		Email:       email,
		OldPassword: oldPassword,
		NewPassword: newPassword,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Password changed. Please log in again.")
	return nil
}

func runWhoami(cmd *cobra.Command, _ []string, a *app) error {
	out := cmd.OutOrStdout()
	if err := a.requireLogin(); err != nil {
		return err
	}

	server := firstNonEmpty(a.auth.Store().Server(), a.cfg.Server)
	c, err := a.auth.Claims()
	if err != nil {
		// Opaque tokens, e.g. from DAGENT_ACCESS_TOKEN.
		fmt.Fprintf(out, "Signed in (token details unavailable)\nServer:   %s\n", server)
		return nil
	}

	fmt.Fprintf(out, "Username: %s\n", firstNonEmpty(c.Username, "-"))
	fmt.Fprintf(out, "Email:    %s\n", firstNonEmpty(c.Email, "-"))
	if c.LoginID != 0 {
		fmt.Fprintf(out, "User ID:  %d\n", c.LoginID)
	}
	if exp := c.ExpiresAt(); !exp.IsZero() {
		fmt.Fprintf(out, "Expires:  %s\n", exp.Local().Format(time.DateTime))
	}
	fmt.Fprintf(out, "Server:   %s\n", server)
	return nil
}

// authenticator signs in through the app's client and token manager. It
// backs both the login command and the first-run wizard.
type authenticator struct {
	a   *app
	out io.Writer
}

func (a *app) authenticator() authenticator {
	return authenticator{a: a, out: io.Discard}
}

func (x authenticator) withOutput(w io.Writer) authenticator {
	x.out = w
	return x
}

func (x authenticator) Login(ctx context.Context, email, password string, remember bool) error {
	if err := x.a.auth.Store().SetRemember(remember); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	_, err := x.a.client.Login(ctx, api.LoginRequest{Email: email, Password: password, RememberMe: remember})
	if err != nil {
		return err
	}
	return x.a.auth.Store().SetServer(x.a.cfg.Server)
}

func (x authenticator) LoginOAuth(ctx context.Context, provider string, remember bool) error {
	if provider != api.OAuthGoogle && provider != api.OAuthGitHub {
		return fmt.Errorf("unsupported provider %q: use %s or %s", provider, api.OAuthGoogle, api.OAuthGitHub)
	}
	flow := auth.OAuthFlow{
		AuthURL: func(fromURL string) string { return x.a.client.OAuthURL(provider, fromURL) },
		Out:     x.out,
	}
	if err := x.a.auth.LoginWithOAuth(ctx, flow, remember); err != nil {
		return err
	}
	return x.a.auth.Store().SetServer(x.a.cfg.Server)
}

// prompter reads answers from the command's input. Secrets are read
// without echo when the input is a terminal.
type prompter struct {
	in  io.Reader
	r   *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{in: in, r: bufio.NewReader(in), out: cmd.OutOrStdout()}
}

func (p *prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *prompter) Secret(label string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return p.Line(label)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
