package shell

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultPath = "/usr/bin:/bin"

// LookupPath resolves a command word to an executable path: a
// bare name is searched across the colon-separated directories of PATH
// (defaulting to /usr/bin:/bin), verbatim paths (those containing a '/')
// are used as-is without a search.
func (s *Shell) LookupPath(name string) (string, bool) {
	if strings.ContainsRune(name, '/') {
		// Only existence is checked here; resolveStage checks the
		// executable bit afterwards, so for a verbatim path it can tell
		// "no such file" (127) from "found but not executable" (126). A
		// PATH search below accepts executable files only, so a name found
		// in PATH only as a non-executable file is reported as not found.
		if _, err := os.Stat(name); err != nil {
			return "", false
		}
		return name, true
	}

	path, _ := s.Vars.Get("PATH")
	if path == "" {
		path = defaultPath
	}

	for _, dir := range strings.Split(path, string(os.PathListSeparator)) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if isExecutableFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode()&0111 != 0
}
