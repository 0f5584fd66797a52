package shell

import (
	"fmt"
	"io"
	"os"
)

// RunReexecShim is the entry point cmd/jobshell dispatches to when it
// detects the hidden reexecSentinel argument (see exec_unix.go). It runs
// entirely in a freshly exec'd child process: a builtin invoked here can
// read the environment inherited from the parent shell but can never
// mutate the parent's in-memory VarStore or job table, exactly the
// isolation a non-final pipeline stage needs.
//
// argv is os.Args[2:]: argv[0] is the stage kind tag, the rest is the
// stage's expanded argument vector (argv[1] the command name).
func RunReexecShim(argv []string) int {
	if len(argv) < 1 {
		return 2
	}
	kind := stageKind(argv[0])
	rest := argv[1:]

	switch kind {
	case stageNoop:
		drainStdin()
		return 0

	case stageNotFound:
		fmt.Fprintf(os.Stderr, "jobshell: %s: command not found\n", rest[0])
		drainStdin()
		return 127

	case stageNotExec:
		fmt.Fprintf(os.Stderr, "jobshell: %s: Permission denied\n", rest[0])
		drainStdin()
		return 126

	case stageBuiltin:
		if len(rest) == 0 {
			return 0
		}
		return runBuiltinStandalone(rest[0], rest[1:])

	default:
		return 2
	}
}

// drainStdin consumes and discards this process's stdin so an upstream
// pipeline stage never blocks writing into a synthesized diagnostic stage
// that otherwise produces no output of its own.
func drainStdin() {
	io.Copy(io.Discard, os.Stdin)
}

// runBuiltinStandalone constructs a throwaway Shell backed by the process
// environment and runs a single builtin in it. Variable mutations
// (export/unset/cd) apply only to this process, which exits immediately
// afterward -- the isolation a builtin used mid-pipeline requires.
func runBuiltinStandalone(name string, args []string) int {
	s := New(Options{Stdout: os.Stdout, Stderr: os.Stderr})
	fn, ok := s.builtins[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "jobshell: %s: not a builtin\n", name)
		return 2
	}
	if wd, err := os.Getwd(); err == nil {
		s.Vars.Set("PWD", wd, true)
	}
	return fn(s, args)
}
