// Command jobshell is an interactive, job-controlling command-line shell.
//
// It implements a lexer/parser/expander pipeline over POSIX-flavored
// command syntax (pipes, redirections, quoting, parameter/tilde/pathname
// expansion), a pipeline launcher built on fork/exec/pipe/setpgid/
// tcsetpgrp, and the job-control bookkeeping that lets background jobs,
// fg/bg, and Ctrl-Z/Ctrl-C behave the way a real terminal shell's users
// expect.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ngrant/jobshell/pkg/shell"
)

func main() {
	// The re-exec shim must be checked before any flag parsing: it is an
	// internal dispatch path this binary uses on itself (see
	// pkg/shell/reexec.go), never something a user types.
	if len(os.Args) > 1 && os.Args[1] == "__jobshell_exec__" {
		os.Exit(shell.RunReexecShim(os.Args[2:]))
	}

	var (
		command = pflag.StringP("command", "c", "", "run a single command string instead of starting a REPL")
		verbose = pflag.BoolP("verbose", "v", false, "enable verbose diagnostic logging to stderr")
		version = pflag.Bool("version", false, "print version information and exit")
	)
	pflag.Parse()

	if *version {
		fmt.Println("jobshell 0.1.0")
		return
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	interactive := *command == "" && isatty.IsTerminal(os.Stdin.Fd())
	if interactive {
		fmt.Fprintln(os.Stderr, strings.Repeat("-", termWidth()))
	}

	s := shell.New(shell.Options{
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Logger:      logger,
		Interactive: interactive,
	})

	var err error
	switch {
	case *command != "":
		err = s.Run(strings.NewReader(*command + "\n"))
	default:
		err = s.Run(os.Stdin)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "jobshell: %v\n", err)
		os.Exit(1)
	}
	os.Exit(s.LastStatus)
}

// newLogger builds the structured logger used for internal diagnostics
// (reaper activity, job-table transitions) -- never for command output,
// which always goes through the shell's own Stdout/Stderr.
func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// termWidth reports the controlling terminal's column count, falling back
// to a conservative default when stdout isn't a terminal (piped output,
// `-c` mode) or the ioctl fails.
func termWidth() int {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return 80
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
