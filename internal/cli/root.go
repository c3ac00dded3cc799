package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yolodolo42/dagent/internal/agent"
	"github.com/yolodolo42/dagent/internal/api"
	"github.com/yolodolo42/dagent/internal/auth"
	"github.com/yolodolo42/dagent/internal/cache"
	"github.com/yolodolo42/dagent/internal/config"
	"github.com/yolodolo42/dagent/internal/setup"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "dagent",
		Short: "Terminal client for the Data Agent assistant",
		Long: `dagent is a terminal client for the Data Agent assistant.

Chat about your databases, point the agent at a connection, database,
schema or table with @mentions, and browse past conversations.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			// Check if sign-in is needed
			if setup.NeedsSetup(a.cfg.DataDir) {
				if !setup.IsInteractive() {
					setup.PrintEnvInstructions()
					return fmt.Errorf("sign-in required: run dagent login or set %s", auth.EnvAccessToken)
				}

				result, err := setup.RunWizard(a.cfg.DataDir, a.cfg.Server, a.authenticator())
				if err != nil {
					return fmt.Errorf("setup failed: %w", err)
				}

				// If user cancelled setup, exit cleanly
				if result == nil || result.Cancelled {
					return nil
				}
			}

			return RunREPL(a)
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dagent/config.yaml)")
	rootCmd.PersistentFlags().String("server", config.DefaultServer, "Data Agent API base URL")
	rootCmd.PersistentFlags().String("model", config.DefaultModel, "Chat model (empty for the server default)")
	_ = viper.BindPFlag(config.KeyServer, rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag(config.KeyModel, rootCmd.PersistentFlags().Lookup("model"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := config.DataDir()
		cobra.CheckErr(err)

		if err := os.MkdirAll(configDir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config directory: %v\n", err)
		}

		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Silently ignore missing config file - it's optional
	_ = viper.ReadInConfig()
}

// app bundles what every command needs: resolved config, logger, token
// manager, API client and the optional history cache.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	auth    *auth.Manager
	client  *api.Client
	cache   *cache.Store
	logFile *os.File
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &app{cfg: cfg}
	a.log, a.logFile = openLogger(cfg)

	a.auth, err = auth.NewManager(cfg.DataDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	a.client, err = api.New(cfg.Server,
		api.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		api.WithTokens(a.auth),
		api.WithLogger(a.log),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.CacheEnabled {
		a.cache, err = cache.Open(cfg.CachePath())
		if err != nil {
			// History still works online without the cache.
			a.log.Warn("history cache disabled", "path", cfg.CachePath(), "error", err)
			a.cache = nil
		}
	}
	return a, nil
}

// openLogger writes diagnostics to the data dir so they never land on the
// TUI. It falls back to stderr when the file cannot be opened.
func openLogger(cfg *config.Config) (*slog.Logger, *os.File) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	f, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		logger.Warn("could not open log file", "path", cfg.LogPath(), "error", err)
		return logger, nil
	}
	logger := slog.New(slog.NewTextHandler(f, opts))
	slog.SetDefault(logger)
	return logger, f
}

// newAgent builds a chat agent bound to the app's client and cache.
func (a *app) newAgent() (*agent.Agent, error) {
	opts := []agent.Option{
		agent.WithLogger(a.log),
		agent.WithSessionLog(a.cfg.DataDir),
		agent.WithModel(a.cfg.Model),
	}
	if a.cache != nil {
		opts = append(opts, agent.WithCache(a.cache))
	}
	return agent.New(a.client, opts...)
}

func (a *app) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// requireLogin fails early with a hint when no usable session exists.
func (a *app) requireLogin() error {
	if !a.auth.LoggedIn() {
		return fmt.Errorf("%w: run `dagent login` first", auth.ErrNotLoggedIn)
	}
	return nil
}

// runWithApp adapts a command body that needs an app.
func runWithApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

