package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/dagent/internal/setup"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the sign-in wizard",
	Long: `Run the interactive sign-in wizard.

The wizard runs automatically the first time dagent starts without a
session. Use this command after 'dagent logout' to sign in again or to
switch accounts.`,
	RunE: runWithApp(func(cmd *cobra.Command, _ []string, a *app) error {
		if !setup.IsInteractive() {
			setup.PrintEnvInstructions()
			return fmt.Errorf("setup requires an interactive terminal")
		}

		if a.auth.LoggedIn() {
			fmt.Fprintln(cmd.OutOrStdout(), "Already signed in. Run 'dagent logout' first to switch accounts.")
			return nil
		}

		result, err := setup.RunWizard(a.cfg.DataDir, a.cfg.Server, a.authenticator())
		if err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}

		if result == nil || result.Cancelled {
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), "\nSetup complete! Run 'dagent' to start.")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
