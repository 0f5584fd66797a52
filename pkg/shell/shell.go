// Package shell implements the interactive, job-controlling core of a
// POSIX-like command line: a lexer/parser/expander pipeline, a pipeline
// launcher built on fork/exec/pipe/dup2/setpgid/tcsetpgrp, and the
// job-control bookkeeping (background jobs, fg/bg, SIGCHLD-driven reaping)
// that makes Ctrl-Z and Ctrl-C behave the way users expect from a real
// terminal shell.
//
// Shell instances are not safe for concurrent use from multiple goroutines
// beyond the background SIGCHLD reaper the executor itself starts.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chzyer/readline"
	"go.uber.org/zap"
)

// Shell is one REPL session: its variable table, job table, and the I/O
// streams builtins and the executor write to.
type Shell struct {
	Vars *VarStore
	Jobs *JobTable

	Stdout io.Writer
	Stderr io.Writer

	LastStatus int // $?
	LastBgPID  int // $!

	log        *zap.Logger
	interactive bool
	rl         *readline.Instance

	builtins   map[string]BuiltinFunc
	reaperOnce sync.Once

	// ioWG tracks in-flight goroutines copying a foreground child's output
	// into a non-*os.File Stdout/Stderr (see fileOrPipe in exec_unix.go).
	// RunPipeline waits on it before returning a foreground pipeline's
	// status, so an embedder reading s.Stdout synchronously after RunPipeline
	// returns sees every byte the pipeline wrote.
	ioWG sync.WaitGroup
}

// BuiltinFunc is a builtin command's implementation. args excludes the
// command name itself; the return value becomes $?.
type BuiltinFunc func(s *Shell, args []string) int

// Options configures a new Shell.
type Options struct {
	Stdout      io.Writer
	Stderr      io.Writer
	Logger      *zap.Logger
	Interactive bool
}

// New constructs a Shell with its variable store, job table, and builtin
// registry initialized. It does not start the REPL; call Run for that.
func New(opts Options) *Shell {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Shell{
		Vars:        NewVarStore(),
		Jobs:        NewJobTable(),
		Stdout:      opts.Stdout,
		Stderr:      opts.Stderr,
		log:         opts.Logger,
		interactive: opts.Interactive,
	}
	s.registerBuiltins()
	return s
}

// Run starts the shell's read-eval-print loop using readline for input when
// interactive, falling back to a plain line scanner over r otherwise (e.g.
// `jobshell -c '...'` or a piped script). Run returns nil on a clean `exit`
// and a non-nil error only for unrecoverable input failures.
func (s *Shell) Run(r io.Reader) error {
	if s.interactive {
		return s.runInteractive()
	}
	return s.runScript(r)
}

func (s *Shell) runInteractive() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initializing line editor: %w", err)
	}
	defer rl.Close()
	s.rl = rl

	for {
		rl.SetPrompt(s.prompt())
		line, err := rl.Readline()
		switch err {
		case readline.ErrInterrupt:
			continue
		case io.EOF:
			return nil
		case nil:
		default:
			return err
		}

		if err := s.ExecuteLine(line); err == ErrExit {
			return nil
		}
	}
}

func (s *Shell) runScript(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := s.ExecuteLine(sc.Text()); err == ErrExit {
			return nil
		}
	}
	return sc.Err()
}

// ExecuteLine lexes, parses, expands, and runs a single input line,
// updating LastStatus. ErrExit is returned verbatim so callers can
// distinguish a graceful `exit` from any other outcome; all other errors
// (syntax errors, job-control failures) are reported to Stderr and
// swallowed so the REPL keeps going, matching an interactive shell's
// tolerance for bad input.
func (s *Shell) ExecuteLine(line string) error {
	tokens, err := Lex(line)
	if err != nil {
		fmt.Fprintf(s.Stderr, "jobshell: %v\n", err)
		s.LastStatus = 2
		return nil
	}

	pipeline, err := Parse(tokens)
	if err != nil {
		fmt.Fprintf(s.Stderr, "jobshell: %v\n", err)
		s.LastStatus = 2
		return nil
	}

	if len(pipeline.Stages) == 0 {
		return nil
	}

	status, err := s.RunPipeline(pipeline)
	s.LastStatus = status
	if err == ErrExit {
		return ErrExit
	}
	if err != nil {
		fmt.Fprintf(s.Stderr, "jobshell: %v\n", err)
	}
	return nil
}

func (s *Shell) prompt() string {
	if s.LastStatus != 0 {
		return fmt.Sprintf("jobshell[%d]$ ", s.LastStatus)
	}
	return "jobshell$ "
}
