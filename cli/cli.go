// Package cli provides the command-line interface for the supplies ledger.
// It exports Run() and RunWithHooks() to allow extension by wrapper projects.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zot/supplies/internal/config"
	"github.com/zot/supplies/internal/logging"
)

// Version is reported by the version command and the MCP handshake.
var Version = "0.1.0"

// Hooks allows extending the CLI with additional commands.
type Hooks struct {
	// Commands are added to the root command.
	Commands []*cobra.Command

	// CustomVersion returns version info to append (optional).
	CustomVersion func() string
}

// Run executes the CLI with the given arguments.
// Returns exit code (0 = success, non-zero = error).
func Run(args []string) int {
	return RunWithHooks(args, nil)
}

// RunWithHooks executes CLI with extension hooks.
func RunWithHooks(args []string, hooks *Hooks) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(os.Stdin, os.Stdout, os.Stderr, hooks)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// cliState is shared by the commands of one root command.
type cliState struct {
	overrides config.Overrides
	hooks     *Hooks
	log       *zap.Logger
}

// NewRootCommand builds the supplies command tree reading from in and
// writing to out and errOut.
func NewRootCommand(in io.Reader, out, errOut io.Writer, hooks *Hooks) *cobra.Command {
	st := &cliState{hooks: hooks}

	root := &cobra.Command{
		Use:   "supplies",
		Short: "Office supplies ledger",
		Long: `supplies tracks daily tea, samosa and snack quantities.

Run without a command to start the HTTP and WebSocket server.
Records are kept in the storage slot "officeSupplyRecords".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st.log != nil {
				_ = st.log.Sync()
			}
		},
		RunE: st.runServe,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	st.overrides.Register(root.PersistentFlags())

	root.AddCommand(
		st.serveCommand(),
		st.mcpCommand(),
		st.listCommand(),
		st.addCommand(),
		st.updateCommand(),
		st.deleteCommand(),
		st.exportCommand(),
		st.importCommand(),
		st.versionCommand(),
	)
	if hooks != nil {
		root.AddCommand(hooks.Commands...)
	}
	return root
}

// open loads the configuration, builds the logger and opens the ledger.
func (st *cliState) open() (*App, error) {
	cfg, err := config.Load(st.overrides)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	st.log = log
	return Open(cfg, log)
}

// withApp opens the ledger, runs fn and closes the ledger.
func (st *cliState) withApp(fn func(*App) error) error {
	app, err := st.open()
	if err != nil {
		return err
	}
	return errors.Join(fn(app), app.Close())
}
