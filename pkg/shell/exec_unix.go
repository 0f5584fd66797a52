//go:build linux || darwin

package shell

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// reexecSentinel is the hidden first argument this binary recognizes as
// "run this stage out-of-process through the shim", used for the stages the
// pipeline launcher cannot exec directly: a builtin in a forked pipeline (any
// stage of a multi-stage or background pipeline, where it runs in its own
// process, unable to mutate shell state, the same as any external command
// would), a stage with no command words (redirections only), and
// synthesizing a real exit-127/126 pipeline member for an unresolved or
// non-executable command name. Grounded
// on the re-exec-self pattern used for isolated child setup in process
// supervisors.
const reexecSentinel = "__jobshell_exec__"

// startReaper launches the single goroutine responsible for reaping every
// child of this process. signal.Notify (rather than a real SIGCHLD handler)
// delivers on an ordinary goroutine, so the reaping work here runs with the
// full Go runtime available -- no async-signal-safety constraints.
//
// reaperOnce lives on the Shell, not as a package variable: signal.Notify
// registers a process-wide SIGCHLD listener, but each Shell instance (one
// per embedding process in the common case, several when a host process
// constructs more than one) must still feed its own wait4 loop to reap its
// own children into its own job table.
func (s *Shell) startReaper() {
	s.reaperOnce.Do(func() {
		ch := make(chan os.Signal, 8)
		signal.Notify(ch, syscall.SIGCHLD)
		go func() {
			for range ch {
				s.reapAvailable()
			}
		}()
	})
}

func (s *Shell) reapAvailable() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if err != nil || pid <= 0 {
			return
		}
		s.log.Debug("reaped child", zap.Int("pid", pid), zap.Uint32("wait_status", uint32(ws)))

		switch {
		case ws.Exited() || ws.Signaled():
			status := exitStatus(ws)
			if job, done := s.Jobs.MarkExited(pid, status); done {
				// Only a background job's completion is announced here: a
				// foreground pipeline's caller (waitForeground) is the one
				// synchronously regaining control and reports its own status
				// directly, matching real shells' silence on `cmd` finishing
				// versus the async "[1]+  Done" line for `cmd &`. Read through
				// IsBackground, not job.Background directly: fg/bg can flip it
				// from a different goroutine than this reaper.
				if s.Jobs.IsBackground(job.ID) {
					fmt.Fprintf(s.Stderr, "%s\n", color.YellowString("[%d]+  Done                    %s", job.ID, job.Command))
				}
				s.log.Debug("job done", zap.Int("job_id", job.ID), zap.Int("status", status))
				s.Jobs.Remove(job.ID)
			}
		case ws.Stopped():
			if job, ok := s.Jobs.MarkStopped(pgidOf(pid)); ok && s.Jobs.IsBackground(job.ID) {
				fmt.Fprintf(s.Stderr, "\n%s\n", color.YellowString("[%d]+  Stopped                 %s", job.ID, job.Command))
			}
		case ws.Continued():
			s.Jobs.MarkRunning(pgidOf(pid))
		}
	}
}

func pgidOf(pid int) int {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return pid
	}
	return pgid
}

func exitStatus(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}

// RunPipeline launches a fully parsed pipeline: it expands every stage's
// words, resolves redirections, forks one process per stage connected by
// pipes, and either waits for the pipeline in the foreground (reclaiming
// the controlling terminal afterward) or registers it as a background job.
func (s *Shell) RunPipeline(p *Pipeline) (int, error) {
	s.startReaper()

	if len(p.Stages) == 1 && !p.Background {
		if status, handled, err := s.runForegroundBuiltin(p.Stages[0]); handled {
			if p.Negate {
				status = negateStatus(status)
			}
			return status, err
		}
	}

	procs, pgid, err := s.startStages(p.Stages, p.Background)
	if err != nil {
		return 1, err
	}
	command := renderCommand(p)

	pids := make([]int, len(procs))
	for i, c := range procs {
		pids[i] = c.Process.Pid
	}
	job := s.Jobs.Add(pgid, pids, command, p.Background)

	if p.Background {
		s.LastBgPID = pgid
		fmt.Fprintf(s.Stderr, "[%d] %d\n", job.ID, pgid)
		return 0, nil
	}

	status := s.waitForeground(job)
	s.reclaimTerminal()
	s.ioWG.Wait()
	if p.Negate {
		status = negateStatus(status)
	}
	return status, nil
}

func negateStatus(status int) int {
	if status == 0 {
		return 1
	}
	return 0
}

func renderCommand(p *Pipeline) string {
	// Reconstructing exact source text is unnecessary for the job-table
	// display; the first stage's argv0 is enough to identify the job, which
	// is what real job-control shells show in abbreviated "jobs" output.
	if len(p.Stages) == 0 || len(p.Stages[0].Args) == 0 {
		return "(builtin)"
	}
	return p.Stages[0].Args[0].Raw()
}

// runForegroundBuiltin handles the common case of a single-stage, foreground
// pipeline whose command word names a builtin: it runs directly in this
// process (no fork) so the builtin can mutate shell state (cd, export,
// unset, exit). A stage with no command words at all (a bare assignment
// and/or redirections) is handled here as well. handled is false for
// anything else, letting the caller fall through to the general fork/exec
// path.
func (s *Shell) runForegroundBuiltin(stage Stage) (status int, handled bool, err error) {
	if len(stage.Args) == 0 {
		// A bare assignment with no command (`FOO=bar`) is a genuine shell
		// variable assignment and persists, unlike an assignment scoped to
		// an external command's own environment (see stageEnv).
		for _, a := range stage.Assignments {
			val := s.ExpandWords([]Word{a.Value})
			s.Vars.Set(a.Name, joinArgs(val), false)
		}
		_, cleanup, rerr := s.openRedirects(stage.Redirs)
		if rerr != nil {
			fmt.Fprintf(s.Stderr, "jobshell: %v\n", rerr)
			return 1, true, nil
		}
		cleanup()
		return 0, true, nil
	}

	args := s.ExpandWords(stage.Args)
	name := args[0]
	fn, ok := s.builtins[name]
	if !ok {
		return 0, false, nil
	}

	for _, a := range stage.Assignments {
		val := s.ExpandWords([]Word{a.Value})
		s.Vars.Set(a.Name, joinArgs(val), false)
	}

	files, cleanup, rerr := s.openRedirects(stage.Redirs)
	if rerr != nil {
		fmt.Fprintf(s.Stderr, "jobshell: %v\n", rerr)
		return 1, true, nil
	}
	defer cleanup()

	prevOut, prevErr := s.Stdout, s.Stderr
	if files.stdout != nil {
		s.Stdout = files.stdout
	}
	if files.stderr != nil {
		s.Stderr = files.stderr
	}
	status = fn(s, args[1:])
	s.Stdout, s.Stderr = prevOut, prevErr

	if name == "exit" {
		return status, true, ErrExit
	}
	return status, true, nil
}

// stageEnv builds the environment an external command's own process should
// see: the process environment -- which already reflects every exported
// variable, since VarStore.Set/Export mirror exports via os.Setenv --
// overridden by this one stage's leading assignments (`FOO=bar cmd`). Those
// assignments must reach only this child's environment and never the
// shell's persistent variable table, the POSIX "simple command" scoping a
// bare `FOO=bar` (no command) does not share.
func (s *Shell) stageEnv(stage Stage) []string {
	env := os.Environ()
	if len(stage.Assignments) == 0 {
		return env
	}

	overrides := make(map[string]string, len(stage.Assignments))
	for _, a := range stage.Assignments {
		val := s.ExpandWords([]Word{a.Value})
		overrides[a.Name] = joinArgs(val)
	}

	out := make([]string, 0, len(env)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range env {
		name := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			name = kv[:i]
		}
		if v, ok := overrides[name]; ok {
			out = append(out, name+"="+v)
			seen[name] = true
			continue
		}
		out = append(out, kv)
	}
	for name, v := range overrides {
		if !seen[name] {
			out = append(out, name+"="+v)
		}
	}
	return out
}

func joinArgs(args []string) string {
	if len(args) == 0 {
		return ""
	}
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

// startStages builds one *exec.Cmd per stage, wires pipes between
// consecutive stages, and starts them all under a single new process group.
// Every child gets SysProcAttr.Setpgid so its own fork+exec establishes
// group membership; the parent redundantly calls unix.Setpgid on the first
// child's pid immediately after Start, closing the startup race where the
// parent might try to tcsetpgrp before the child's own setpgid has run.
func (s *Shell) startStages(stages []Stage, background bool) ([]*exec.Cmd, int, error) {
	cmds := make([]*exec.Cmd, len(stages))
	var pipes []io.Closer

	var stdin io.Reader = os.Stdin
	pgid := 0

	for i, stage := range stages {
		argv, path, kind := s.resolveStage(stage)
		env := s.stageEnv(stage)

		var cmd *exec.Cmd
		if kind == stageExternal {
			cmd = exec.Command(path, argv...)
			cmd.Env = env
		} else {
			// Builtins mid-pipeline and not-found/not-executable diagnostics
			// run via the self re-exec shim so they occupy a real pipeline
			// member with their own process group membership.
			self, serr := os.Executable()
			if serr != nil {
				self = os.Args[0]
			}
			reexecArgs := append([]string{reexecSentinel, string(kind)}, argv...)
			cmd = exec.Command(self, reexecArgs...)
			cmd.Env = env
		}

		cmd.Stdin = stdin

		errFile, errCleanup, eerr := s.stderrFile(background)
		if eerr != nil {
			closeAll(pipes)
			return nil, 0, fmt.Errorf("wiring stderr: %w", eerr)
		}
		cmd.Stderr = errFile

		var outCleanup func()
		if i == len(stages)-1 {
			var outFile *os.File
			var oerr error
			outFile, outCleanup, oerr = s.stdoutFile(background)
			if oerr != nil {
				closeAll(pipes)
				return nil, 0, fmt.Errorf("wiring stdout: %w", oerr)
			}
			cmd.Stdout = outFile
		} else {
			pr, pw, perr := os.Pipe()
			if perr != nil {
				closeAll(pipes)
				return nil, 0, fmt.Errorf("creating pipe: %w", perr)
			}
			cmd.Stdout = pw
			stdin = pr
			pipes = append(pipes, pw, pr)
		}

		_, redirCleanup, err := s.openRedirectsCmd(stage.Redirs, cmd)
		if err != nil {
			closeAll(pipes)
			return nil, 0, err
		}

		cmd.SysProcAttr = &syscall.SysProcAttr{
			Setpgid:    true,
			Pgid:       pgid,
			Foreground: !background && s.interactive,
			Ctty:       ttyFD(),
		}

		startErr := cmd.Start()
		redirCleanup() // the child has its own fd by now; the parent's copy must go
		errCleanup()
		if outCleanup != nil {
			outCleanup()
		}
		if startErr != nil {
			closeAll(pipes)
			return nil, 0, fmt.Errorf("starting %s: %w", argv0(argv), startErr)
		}

		if i == 0 {
			pgid = cmd.Process.Pid
			_ = unix.Setpgid(cmd.Process.Pid, pgid)
			if !background && s.interactive {
				_ = unix.IoctlSetPointerInt(int(os.Stdin.Fd()), unix.TIOCSPGRP, pgid)
			}
		} else {
			_ = unix.Setpgid(cmd.Process.Pid, pgid)
		}

		cmds[i] = cmd
	}

	// Every pipe fd has now been inherited by the two stages on either side
	// of it; the parent's copies must be closed so a reader sees EOF once
	// its upstream writer exits, instead of blocking on a write end this
	// process is still holding open.
	closeAll(pipes)

	return cmds, pgid, nil
}

// stdoutFile and stderrFile give an *exec.Cmd a real file descriptor to
// write into even when the Shell was constructed with an arbitrary
// io.Writer (e.g. a test's bytes.Buffer, or an embedder's own log sink)
// rather than *os.Stdout/*os.Stderr. When the configured writer already is
// an *os.File its fd is used directly; otherwise an OS pipe carries the
// child's output to a goroutine that copies it into the writer. Only a
// foreground stage's copier is counted in ioWG.
func (s *Shell) stdoutFile(background bool) (*os.File, func(), error) {
	return s.fileOrPipe(s.Stdout, background)
}

func (s *Shell) stderrFile(background bool) (*os.File, func(), error) {
	return s.fileOrPipe(s.Stderr, background)
}

func (s *Shell) fileOrPipe(w io.Writer, background bool) (*os.File, func(), error) {
	if f, ok := w.(*os.File); ok {
		return f, func() {}, nil
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	if !background {
		s.ioWG.Add(1)
	}
	go func() {
		if !background {
			defer s.ioWG.Done()
		}
		io.Copy(w, pr)
		pr.Close()
	}()
	return pw, func() { pw.Close() }, nil
}

func argv0(argv []string) string {
	if len(argv) == 0 {
		return "?"
	}
	return argv[0]
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		c.Close()
	}
}

// ttyFD returns the controlling terminal's file descriptor for
// SysProcAttr.Ctty, defaulting to stdin's fd as real shells do.
func ttyFD() int {
	return int(os.Stdin.Fd())
}

type stageKind string

const (
	stageExternal stageKind = "x"
	stageBuiltin  stageKind = "b"
	stageNotFound stageKind = "n"
	stageNotExec  stageKind = "p"
	// stageNoop is a stage with no command words at all -- e.g. a bare
	// redirection as a pipeline stage (`cmd | > out.txt`). Its redirections
	// still apply (the parent opens them on the cmd before Start), it just
	// has nothing to exec; the re-exec shim drains its stdin and exits 0.
	stageNoop stageKind = "z"
)

// resolveStage expands a stage's argv and classifies how it must run:
// directly as an external binary, through the re-exec shim as an isolated
// builtin, or through the shim purely to synthesize the right exit code
// for a missing or unexecutable command.
func (s *Shell) resolveStage(stage Stage) (argv []string, path string, kind stageKind) {
	argv = s.ExpandWords(stage.Args)
	if len(argv) == 0 {
		return argv, "", stageNoop
	}

	if _, ok := s.builtins[argv[0]]; ok {
		return argv, "", stageBuiltin
	}

	p, ok := s.LookupPath(argv[0])
	if !ok {
		return argv, "", stageNotFound
	}
	if !isExecutableFile(p) {
		return argv, "", stageNotExec
	}
	return argv, p, stageExternal
}

// waitForeground blocks until job is Done or Stopped, relying entirely on
// the SIGCHLD reaper goroutine to do the actual wait4 call and update the
// job table; this function only observes that table, always through
// JobTable's own locked accessors since the reaper mutates the same *Job
// concurrently.
func (s *Shell) waitForeground(job *Job) int {
	for {
		state, status, ok := s.Jobs.StateOf(job.ID)
		if !ok {
			return job.Status
		}
		switch state {
		case JobDone:
			s.Jobs.Remove(job.ID)
			return status
		case JobStopped:
			// The reaper suppresses its own Stopped notification for
			// foreground jobs (see reapAvailable) so this is the only place
			// that prints it, exactly once, as control returns to the REPL.
			fmt.Fprintf(s.Stderr, "\n%s\n", color.YellowString("[%d]+  Stopped                 %s", job.ID, job.Command))
			return 0
		}

		// Register before the next state transition so MarkExited/MarkStopped
		// racing with this check cannot fire the wait channel before we start
		// listening on it.
		ch := s.Jobs.WaitForChange(job.ID)
		state, _, ok = s.Jobs.StateOf(job.ID)
		if ok && state == JobRunning {
			<-ch
		}
	}
}

// reclaimTerminal restores the shell's own process group as the terminal's
// foreground group after a foreground pipeline finishes or stops, the
// invariant that keeps Ctrl-C/Ctrl-Z routed to the shell again afterward.
func (s *Shell) reclaimTerminal() {
	if !s.interactive {
		return
	}
	self := unix.Getpgrp()
	_ = unix.IoctlSetPointerInt(int(os.Stdin.Fd()), unix.TIOCSPGRP, self)
}

type redirFiles struct {
	stdin  *os.File
	stdout *os.File
	stderr *os.File
}

// openRedirects opens a stage's redirection targets for the in-process
// builtin fast path, where Stdout/Stderr are plain io.Writer fields on
// Shell rather than an *exec.Cmd's Stdin/Stdout/Stderr.
func (s *Shell) openRedirects(redirs []Redirect) (redirFiles, func(), error) {
	var rf redirFiles
	var opened []*os.File
	cleanup := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, r := range redirs {
		target := s.ExpandWords([]Word{r.Target})
		name := joinArgs(target)

		var f *os.File
		var err error
		switch r.Kind {
		case RedirRead:
			f, err = os.Open(name)
		case RedirWriteTrunc:
			f, err = os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		case RedirWriteAppend:
			f, err = os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		}
		if err != nil {
			cleanup()
			return redirFiles{}, func() {}, fmt.Errorf("%s: %w", name, err)
		}
		opened = append(opened, f)

		switch r.Fd {
		case 0:
			rf.stdin = f
		case 1:
			rf.stdout = f
		case 2:
			rf.stderr = f
		}
	}
	return rf, cleanup, nil
}

// openRedirectsCmd applies a stage's redirections directly to an *exec.Cmd,
// overriding the pipe wiring startStages already set up on Stdin/Stdout.
func (s *Shell) openRedirectsCmd(redirs []Redirect, cmd *exec.Cmd) (redirFiles, func(), error) {
	rf, cleanup, err := s.openRedirects(redirs)
	if err != nil {
		return rf, cleanup, err
	}
	if rf.stdin != nil {
		cmd.Stdin = rf.stdin
	}
	if rf.stdout != nil {
		cmd.Stdout = rf.stdout
	}
	if rf.stderr != nil {
		cmd.Stderr = rf.stderr
	}
	return rf, cleanup, nil
}

// resumeJob sends SIGCONT to a stopped job's process group and marks it
// Running again, the mechanism behind both fg and bg.
func resumeJob(s *Shell, job *Job) error {
	if err := unix.Kill(-job.PGID, unix.SIGCONT); err != nil && err != unix.ESRCH {
		return err
	}
	s.Jobs.MarkRunning(job.PGID)
	return nil
}

// claimForeground hands the controlling terminal to pgid, the step `fg`
// needs before waiting on a job so the resumed process group can read from
// and be signaled by the terminal again.
func claimForeground(pgid int) error {
	return unix.IoctlSetPointerInt(int(os.Stdin.Fd()), unix.TIOCSPGRP, pgid)
}
