package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/kr/internal/config"
	"github.com/Paintersrp/kr/internal/runtime"
	"github.com/Paintersrp/kr/internal/runtime/process"
)

const flagDryRun = "dry-run"

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{runtime: process.New(), notify: sdNotify}

	root := &cobra.Command{
		Use:   "kr [flags] <command>",
		Short: "Run a command and restart it when it crashes",
		Long: `kr runs a command, waits for it to exit and restarts it after a crash.

Restarts stop once the command crashes more often than allowed within a
sliding window (4 per minute unless --per-minute or --per-hour is set).
The command line is split on whitespace; quoting is not interpreted.`,
		Example: `  kr "node server.js"
  kr --per-hour 10 --delay 5 -- ./worker --queue jobs`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper(cmd.Flags())
			if err != nil {
				return err
			}
			run, err := config.Load(v, strings.Join(args, " "))
			if err != nil {
				return err
			}

			dryRun, _ := cmd.Flags().GetBool(flagDryRun)
			if dryRun {
				out, err := run.YAML()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			return ctx.supervise(cmd, run)
		},
	}

	flags := root.Flags()
	config.RegisterFlags(flags)
	flags.Bool(flagDryRun, false, "Print the resolved configuration as YAML and exit without running the command")
	// Everything after the command belongs to the command.
	flags.SetInterspersed(false)

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
//
// No signal handling is installed: interrupting kr terminates it, and a
// terminal interrupt reaches the child through the foreground process group.
func Execute() {
	root := NewRootCmd()
	if err := root.ExecuteContext(stdcontext.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	runtime runtime.Runtime
	notify  notifyFunc
}
