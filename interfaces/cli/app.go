// Package cli provides the mutaflow command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mutaflow"
	domainconfig "github.com/felixgeelhaar/mutaflow/domain/config"
	"github.com/felixgeelhaar/mutaflow/infrastructure/config"
	"github.com/felixgeelhaar/mutaflow/infrastructure/logging"
)

// Version information set at build time.
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
	strictEnv  bool
	logLevel   string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "mutaflow",
		Short: "Approval workflow for staff mutation requests",
		Long: `mutaflow runs the approval chain of staff mutation requests: the line
manager, the regional directorate (DGR), the verification committee (CVR) and
the final authority (DNCF) each decide in turn, with a mandatory comment.

Every status change goes through one transition engine driven by a role
policy table, and every decision is recorded once per role.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to configuration file (defaults to built-in in-memory setup)")
	app.root.PersistentFlags().BoolVar(&app.strictEnv, "strict-env", false, "Fail on unset environment variables in the configuration")
	app.root.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Override the configured log level")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newServeCmd(),
		app.newStatusesCmd(),
		app.newPolicyCmd(),
		app.newQueueCmd(),
		app.newHistoryCmd(),
		app.newVerifyCmd(),
		app.newTokenCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// loadConfig reads the configuration named by --config, or the defaults,
// and initializes logging from it.
func (a *App) loadConfig() (*domainconfig.ServiceConfig, error) {
	cfg := domainconfig.Default()
	if a.configPath != "" {
		opts := []config.LoaderOption{config.WithValidation(true)}
		if a.strictEnv {
			opts = append(opts, config.WithStrictEnv(true))
		}
		loaded, err := config.NewLoaderWithOptions(opts...).LoadFile(a.configPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		cfg = loaded
	}

	level := cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	logging.Init(logging.Config{Level: level, Format: cfg.Logging.Format, Output: a.stderr})
	return cfg, nil
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "mutaflow version %s\n", mutaflow.Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
