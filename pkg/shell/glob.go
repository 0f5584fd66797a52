package shell

import (
	"os"
	"sort"
	"strings"
)

// hasGlobMeta reports whether any glob-eligible rune of pattern is a glob
// metacharacter (*, ?, or [set]).
func hasGlobMeta(pattern []rune, eligible []bool) bool {
	for i, r := range pattern {
		if eligible[i] && (r == '*' || r == '?' || r == '[') {
			return true
		}
	}
	return false
}

// globExpand resolves a single pathname pattern against the filesystem.
// Only the final path component is glob-matched; everything up to the last
// literal '/' names the directory searched. If the pattern matches nothing,
// nil is returned and the caller retains the unexpanded pattern (NOCHECK,
// NOCHECK). Matches are sorted lexicographically.
func globExpand(pattern string, eligible []bool) []string {
	runes := []rune(pattern)

	lastSlash := -1
	for i, r := range runes {
		if r == '/' {
			lastSlash = i
		}
	}

	dir := "."
	base := runes
	baseEligible := eligible
	prefix := ""
	if lastSlash >= 0 {
		dir = string(runes[:lastSlash])
		if dir == "" {
			dir = "/"
		}
		base = runes[lastSlash+1:]
		baseEligible = eligible[lastSlash+1:]
		prefix = dir + "/"
		if dir == "/" {
			prefix = "/"
		}
	}

	if !hasGlobMeta(base, baseEligible) {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	allowHidden := len(base) > 0 && base[0] == '.'

	var matches []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") && !allowHidden {
			continue
		}
		if matchGlob(base, baseEligible, []rune(name)) {
			matches = append(matches, prefix+name)
		}
	}
	sort.Strings(matches)
	return matches
}

func matchGlob(pattern []rune, eligible []bool, name []rune) bool {
	return matchAt(pattern, eligible, 0, name, 0)
}

func matchAt(pattern []rune, eligible []bool, pi int, name []rune, ni int) bool {
	if pi == len(pattern) {
		return ni == len(name)
	}

	if !eligible[pi] {
		return ni < len(name) && name[ni] == pattern[pi] && matchAt(pattern, eligible, pi+1, name, ni+1)
	}

	switch pattern[pi] {
	case '*':
		for k := ni; k <= len(name); k++ {
			if matchAt(pattern, eligible, pi+1, name, k) {
				return true
			}
		}
		return false

	case '?':
		return ni < len(name) && matchAt(pattern, eligible, pi+1, name, ni+1)

	case '[':
		end := findBracketEnd(pattern, eligible, pi)
		if end < 0 {
			return ni < len(name) && name[ni] == '[' && matchAt(pattern, eligible, pi+1, name, ni+1)
		}
		if ni >= len(name) || !matchBracket(pattern[pi+1:end], name[ni]) {
			return false
		}
		return matchAt(pattern, eligible, end+1, name, ni+1)

	default:
		return ni < len(name) && name[ni] == pattern[pi] && matchAt(pattern, eligible, pi+1, name, ni+1)
	}
}

// findBracketEnd returns the index of the ']' closing the bracket expression
// that starts at pi (pattern[pi] == '['), or -1 if there is none (in which
// case '[' is treated as a literal character).
func findBracketEnd(pattern []rune, eligible []bool, pi int) int {
	for j := pi + 1; j < len(pattern); j++ {
		if eligible[j] && pattern[j] == ']' && j > pi+1 {
			return j
		}
	}
	return -1
}

// matchBracket implements a bracket class: a set of literal
// characters with an optional leading '!' negation.
func matchBracket(set []rune, ch rune) bool {
	negate := false
	if len(set) > 0 && set[0] == '!' {
		negate = true
		set = set[1:]
	}
	found := false
	for _, r := range set {
		if r == ch {
			found = true
			break
		}
	}
	if negate {
		return !found
	}
	return found
}
