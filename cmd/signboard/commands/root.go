package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/signboard/internal/bus"
	"github.com/dyluth/signboard/internal/client"
	"github.com/dyluth/signboard/internal/config"
	"github.com/dyluth/signboard/internal/printer"
	"github.com/dyluth/signboard/pkg/signboard"
)

var versionString = "dev"

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// Connector opens the bus described by a validated configuration.
type Connector func(cfg *config.Config) (bus.Bus, error)

func openBus(cfg *config.Config) (bus.Bus, error) {
	return bus.Open(cfg.Bus)
}

// app carries the state shared by one CLI invocation.
type app struct {
	configPath     string
	configExplicit bool // --config was given on the command line
	session        string
	connect        Connector
	printer        *printer.Printer
	code           int
	reported       bool // an error message has already been printed
}

// Execute runs the CLI against os.Args and returns the process exit code.
func Execute() int {
	return Run(context.Background(), os.Args[1:], openBus, os.Stdout, os.Stderr)
}

// Run executes one CLI invocation with args and returns its exit code:
// the response code from the host, or 1 for usage and configuration errors.
func Run(ctx context.Context, args []string, connect Connector, stdout, stderr io.Writer) int {
	a := &app{
		connect: connect,
		printer: printer.New(stdout, stderr),
	}

	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !a.reported {
			// Cobra's own errors, such as an unknown subcommand
			fmt.Fprintf(stderr, "Error: %v\n\n%s", err, rootCmd.UsageString())
		}
		return signboard.CodeFailure
	}
	return a.code
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "signboard",
		Short: "Signboard - control on-screen signboards from the terminal",
		Long: `Signboard sends commands to a running signboard host over the local
message bus and prints the host's reply.

The exit code is the reply code: 0 success, 1 invalid command,
2 unknown id, 3 host not running.`,
		Version: versionString,
		// No subcommand is a usage error
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Flags().Changed("config") {
				a.configExplicit = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.usageError(cmd, "a command is required")
		},
		// Enable strict flag parsing - unknown flags will cause an error
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return a.usageError(cmd, err.Error())
	})

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath(), "Path to the signboard config file")
	rootCmd.PersistentFlags().StringVar(&a.session, "session", "", "Session name (overrides config and SIGNBOARD_SESSION)")

	rootCmd.AddCommand(
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newDeleteAllCmd(a),
		newHideAllCmd(a),
		newShowAllCmd(a),
		newListCmd(a),
	)
	return rootCmd
}

// send loads configuration, delivers cmd to the host and prints the reply.
func (a *app) send(ctx context.Context, cmd signboard.Command) error {
	if a.configExplicit {
		if _, err := os.Stat(a.configPath); errors.Is(err, os.ErrNotExist) {
			a.printer.Warning("config file %s not found, using defaults", a.configPath)
		}
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		a.reported = true
		return a.printer.Error("Invalid configuration", err.Error(), []string{
			fmt.Sprintf("Check %s or the SIGNBOARD_* environment variables", a.configPath),
		})
	}
	if a.session != "" {
		cfg.Session = a.session
		if err := cfg.Validate(); err != nil {
			a.reported = true
			return a.printer.Error("Invalid session", err.Error(), nil)
		}
	}

	b, err := a.connect(cfg)
	if err != nil {
		// A bus that cannot be reached means no host can answer
		a.code = a.printer.Response(signboard.ResponseFor(&signboard.UnreachableError{Cause: err}))
		return nil
	}
	defer b.Close()

	a.code = a.printer.Response(client.New(b, cfg.Session).Send(ctx, cmd))
	return nil
}

// usageError prints the error and the command's usage to stderr.
func (a *app) usageError(cmd *cobra.Command, msg string) error {
	a.reported = true
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n\n%s", msg, cmd.UsageString())
	return fmt.Errorf("%s", msg)
}

// joinText rebuilds the signboard text from the remaining arguments.
func joinText(args []string) string {
	return strings.Join(args, " ")
}

func defaultConfigPath() string {
	if path := os.Getenv("SIGNBOARD_CONFIG"); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "signboard", "signboard.yml")
}
