/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package cmd parses the command line and drives one project.Session to
// completion. There is exactly one command: tsrun has no subcommands.
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/go-tsrun/tsrun/internal/logging"
	"github.com/go-tsrun/tsrun/project"
	"github.com/spf13/cobra"
)

// Options is the parsed, validated command line. Execute's RunE closure
// translates a cobra.Command's flags into this before building a session.
type Options struct {
	project.Options
	Verbose bool
	Quiet   bool
}

var opts Options

var rootCmd = &cobra.Command{
	Use:   "tsrun [flags] -- command [args...]",
	Short: "Run a TypeScript/JavaScript program with on-demand compilation",
	Long: `tsrun compiles TypeScript and JavaScript on demand and supervises the
child process running it, restarting on source changes.

It does not bundle, does not precompile, and does not type-check; it only
makes the gap between "source changed" and "new code running" as small as
a debounce window.`,
	Args:                  cobra.ArbitraryArgs,
	DisableFlagsInUseLine: true,
	RunE:                  run,
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().BoolVarP(&opts.Commands, "commands", "c", false, "read stdin for control commands (rs = restart)")
	rootCmd.Flags().BoolVarP(&opts.Watch, "watch", "w", true, "restart on source changes")
	rootCmd.Flags().BoolVarP(&opts.Supervise, "supervise", "s", false, "after child exit, do not shut down; await next restart")
	rootCmd.Flags().BoolVar(&opts.SWC, "swc", false, "use the per-file backend instead of the group-build backend")
	rootCmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress info-level logging")

	// Flags meant for the child (esbuild flags, node flags, whatever the
	// user's own command expects) must not fail parsing here.
	rootCmd.FParseErrWhitelist.UnknownFlags = true
}

// Execute runs the root command. Called once from main.
func Execute() int {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

// exitCode is set by run's signal/Shutdown wiring and read back by Execute
// once rootCmd.Execute returns. A Controller's Shutdown calls exit(code)
// synchronously from whichever goroutine detected the terminal condition
// (a signal, or the child exiting in non-supervise mode), so run blocks on
// a channel it closes over rather than returning until that happens.
var exitCode int

func run(cmd *cobra.Command, args []string) error {
	opts.UserArgv = args

	log := logging.New(opts.Verbose, opts.Quiet)

	sess, err := project.New(opts.Options, log)
	if err != nil {
		log.Error("starting session: %v", err)
		exitCode = 1
		return nil
	}

	done := make(chan struct{})
	sess.Controller.SetExit(func(code int) {
		exitCode = code
		close(done)
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutting down…")
		sess.Controller.Shutdown(0)
	}()

	sess.Start()

	<-done
	return nil
}
