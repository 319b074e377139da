package terminal

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/de-tools/waste-atlas/pkg/runtime/app"
	"github.com/de-tools/waste-atlas/pkg/runtime/terminal/commands"
	"github.com/de-tools/waste-atlas/pkg/runtime/terminal/export"
	"github.com/de-tools/waste-atlas/pkg/services/config"
	"github.com/de-tools/waste-atlas/pkg/services/scanner"
	"github.com/spf13/cobra"
)

// CLI represents the command-line interface
type CLI struct {
	opts       Options
	reporter   *export.Reporter
	rootCmd    *cobra.Command
	configPath string
	app        *app.App
}

// Options contain configuration for the CLI
type Options struct {
	Output io.Writer
	// Logs receives structured logs (default: stderr)
	Logs io.Writer
	// Config skips loading the configuration file when set.
	Config *config.Config
	// Connector and Clients override the wiring, see app.Options.
	Connector scanner.Connector
	Clients   config.Registry
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logs == nil {
		opts.Logs = os.Stderr
	}

	cli := &CLI{
		opts:     opts,
		reporter: export.NewReporter(opts.Output),
	}

	cli.rootCmd = cli.newRootCmd()
	return cli
}

func (cli *CLI) Execute() error {
	return cli.ExecuteContext(context.Background())
}

// ExecuteContext runs the selected command and releases the application
// afterwards, whether or not the command failed.
func (cli *CLI) ExecuteContext(ctx context.Context) error {
	err := cli.rootCmd.ExecuteContext(ctx)
	return errors.Join(err, cli.close())
}

// SetArgs overrides os.Args, mainly for tests.
func (cli *CLI) SetArgs(args []string) {
	cli.rootCmd.SetArgs(args)
}

// App wires the application on first use. Commands that never touch it, such
// as token issuing, do not open the database.
func (cli *CLI) App(ctx context.Context) (*app.App, error) {
	if cli.app != nil {
		return cli.app, nil
	}

	cfg, err := cli.Config()
	if err != nil {
		return nil, err
	}

	logger := app.NewLogger(cfg.LogLevel, cli.opts.Logs)
	a, err := app.New(logger.WithContext(ctx), cfg, logger, app.Options{
		Connector: cli.opts.Connector,
		Clients:   cli.opts.Clients,
	})
	if err != nil {
		return nil, err
	}
	cli.app = a
	return a, nil
}

func (cli *CLI) Config() (*config.Config, error) {
	if cli.opts.Config != nil {
		return cli.opts.Config, nil
	}
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return nil, err
	}
	cli.opts.Config = cfg
	return cfg, nil
}

func (cli *CLI) Reporter() *export.Reporter {
	return cli.reporter
}

func (cli *CLI) close() error {
	if cli.app == nil {
		return nil
	}
	err := cli.app.Close()
	cli.app = nil
	return err
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "waste-atlas",
		Short:         "Cloud waste audit tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(cli.opts.Output)
	cmd.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "",
		"Path to the configuration file (default is ./waste-atlas.yaml)")

	cmd.AddCommand(commands.NewAuditCmd(cli))
	cmd.AddCommand(commands.NewInventoryCmd(cli))
	cmd.AddCommand(commands.NewFindingsCmd(cli))
	cmd.AddCommand(commands.NewClientsCmd(cli))
	cmd.AddCommand(commands.NewTokenCmd(cli))

	return cmd
}
