package shell

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (s *Shell) registerBuiltins() {
	s.builtins = map[string]BuiltinFunc{
		"cd":     builtinCd,
		"export": builtinExport,
		"unset":  builtinUnset,
		"jobs":   builtinJobs,
		"fg":     builtinFg,
		"bg":     builtinBg,
		"exit":   builtinExit,
		"type":   builtinType,
	}
}

// IsBuiltin reports whether name is one of the shell's builtin commands,
// used by `type`.
func (s *Shell) IsBuiltin(name string) bool {
	_, ok := s.builtins[name]
	return ok
}

func builtinCd(s *Shell, args []string) int {
	var target string
	switch len(args) {
	case 0:
		home, ok := s.Vars.Get("HOME")
		if !ok || home == "" {
			fmt.Fprintln(s.Stderr, "cd: HOME not set")
			return 1
		}
		target = home
	case 1:
		target = args[0]
	default:
		fmt.Fprintln(s.Stderr, "cd: too many arguments")
		return 1
	}

	if err := os.Chdir(target); err != nil {
		fmt.Fprintf(s.Stderr, "cd: %s: %v\n", target, err)
		return 1
	}
	if wd, err := os.Getwd(); err == nil {
		s.Vars.Set("PWD", wd, true)
	}
	return 0
}

func builtinExport(s *Shell, args []string) int {
	if len(args) == 0 {
		for _, v := range s.Vars.Enumerate() {
			if v.Exported {
				fmt.Fprintf(s.Stdout, "export %s=%s\n", v.Name, v.Value)
			}
		}
		return 0
	}
	for _, a := range args {
		if name, value, ok := strings.Cut(a, "="); ok {
			s.Vars.Set(name, value, true)
		} else {
			s.Vars.Export(a)
		}
	}
	return 0
}

func builtinUnset(s *Shell, args []string) int {
	for _, name := range args {
		s.Vars.Unset(name)
	}
	return 0
}

func builtinJobs(s *Shell, args []string) int {
	for _, j := range s.Jobs.All() {
		fmt.Fprintf(s.Stdout, "[%d]+  %-20s %s\n", j.ID, j.State, j.Command)
	}
	return 0
}

func builtinFg(s *Shell, args []string) int {
	job, ok := resolveJobArg(s, args)
	if !ok {
		fmt.Fprintln(s.Stderr, "fg: no such job")
		return 1
	}
	fmt.Fprintln(s.Stderr, job.Command)
	s.Jobs.SetBackground(job.ID, false)
	if err := resumeJob(s, job); err != nil {
		fmt.Fprintf(s.Stderr, "fg: %v\n", err)
		return 1
	}
	if !s.interactive {
		return 0
	}
	_ = claimForeground(job.PGID)
	status := s.waitForeground(job)
	s.reclaimTerminal()
	return status
}

func builtinBg(s *Shell, args []string) int {
	job, ok := resolveJobArg(s, args)
	if !ok {
		fmt.Fprintln(s.Stderr, "bg: no such job")
		return 1
	}
	s.Jobs.SetBackground(job.ID, true)
	if err := resumeJob(s, job); err != nil {
		fmt.Fprintf(s.Stderr, "bg: %v\n", err)
		return 1
	}
	fmt.Fprintf(s.Stderr, "[%d]+ %s &\n", job.ID, job.Command)
	return 0
}

func resolveJobArg(s *Shell, args []string) (*Job, bool) {
	if len(args) == 0 {
		return s.Jobs.Current()
	}
	spec := strings.TrimPrefix(args[0], "%")
	id, err := strconv.Atoi(spec)
	if err != nil {
		return nil, false
	}
	return s.Jobs.Lookup(id)
}

func builtinExit(s *Shell, args []string) int {
	if len(args) > 0 {
		if code, err := strconv.Atoi(args[0]); err == nil {
			return code
		}
	}
	return s.LastStatus
}

func builtinType(s *Shell, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(s.Stderr, "type: usage: type NAME")
		return 1
	}
	name := args[0]
	if s.IsBuiltin(name) {
		fmt.Fprintf(s.Stdout, "%s is a shell builtin\n", name)
		return 0
	}
	if path, ok := s.LookupPath(name); ok {
		fmt.Fprintf(s.Stdout, "%s is %s\n", name, path)
		return 0
	}
	fmt.Fprintf(s.Stdout, "%s: not found\n", name)
	return 1
}
