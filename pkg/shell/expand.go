package shell

import (
	"os"
	"os/user"
	"strconv"
	"strings"
)

// ExpandWord turns one lexed Word into zero or more argv strings, applying
// the three-stage pipeline: tilde expansion, then parameter
// expansion, then pathname (glob) expansion. Tilde and parameter results are
// never themselves glob patterns — only characters the user typed outside
// of quotes remain eligible for globbing.
func (s *Shell) ExpandWord(w Word) []string {
	text, eligible := s.expandTildeAndParams(w)
	pattern := string(text)

	if !hasGlobMeta(text, eligible) {
		return []string{pattern}
	}

	matches := globExpand(pattern, eligible)
	if matches == nil {
		return []string{pattern}
	}
	return matches
}

// ExpandWords expands a slice of Words in order, flattening each Word's
// glob results into the result argv.
func (s *Shell) ExpandWords(ws []Word) []string {
	var out []string
	for _, w := range ws {
		out = append(out, s.ExpandWord(w)...)
	}
	return out
}

// expandTildeAndParams walks a Word's segments left to right, performing
// tilde expansion on a leading unquoted "~" and parameter expansion on every
// unquoted or double-quoted segment. It returns the resulting rune stream
// alongside a parallel glob-eligibility mask: true only for runes the user
// wrote literally outside of any quoting, which is what makes them subject
// to pathname expansion afterward.
func (s *Shell) expandTildeAndParams(w Word) (text []rune, eligible []bool) {
	segs := make([]WordSegment, len(w))
	copy(segs, w)

	if len(segs) > 0 && segs[0].Quote == Unquoted && strings.HasPrefix(segs[0].Text, "~") {
		rest := segs[0].Text[1:]
		userPart, tail := rest, ""
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			userPart, tail = rest[:idx], rest[idx:]
		}
		if home, ok := resolveHome(userPart); ok {
			text = append(text, []rune(home)...)
			for range home {
				eligible = append(eligible, false)
			}
			segs[0].Text = tail
		}
	}

	for _, seg := range segs {
		switch seg.Quote {
		case Quoted:
			for _, r := range seg.Text {
				text = append(text, r)
				eligible = append(eligible, false)
			}
		default: // Unquoted, DoubleQuoted
			s.expandParamsInto(seg.Text, seg.Quote == Unquoted, &text, &eligible)
		}
	}
	return text, eligible
}

// expandParamsInto scans src for $NAME, ${NAME}, and the special parameters
// $?, $$, $!, appending the substitution (never glob-eligible) or, for any
// other rune, the rune itself (glob-eligible only when literalEligible is
// set, i.e. the enclosing segment was unquoted).
func (s *Shell) expandParamsInto(src string, literalEligible bool, text *[]rune, eligible *[]bool) {
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		if runes[i] != '$' || i+1 >= len(runes) {
			*text = append(*text, runes[i])
			*eligible = append(*eligible, literalEligible)
			i++
			continue
		}

		next := runes[i+1]
		switch {
		case next == '?' || next == '$' || next == '!':
			val := s.specialParam(next)
			*text = append(*text, []rune(val)...)
			for range val {
				*eligible = append(*eligible, false)
			}
			i += 2

		case next == '{':
			end := i + 2
			for end < len(runes) && runes[end] != '}' {
				end++
			}
			if end >= len(runes) {
				// No closing brace: treat "${" literally rather than erroring,
				// matching the lexer's tolerance of malformed input elsewhere.
				*text = append(*text, runes[i])
				*eligible = append(*eligible, literalEligible)
				i++
				continue
			}
			name := string(runes[i+2 : end])
			val, _ := s.Vars.Get(name)
			*text = append(*text, []rune(val)...)
			for range val {
				*eligible = append(*eligible, false)
			}
			i = end + 1

		case isNameStart(next):
			end := i + 1
			for end < len(runes) && isNameRune(runes[end]) {
				end++
			}
			name := string(runes[i+1 : end])
			val, _ := s.Vars.Get(name)
			*text = append(*text, []rune(val)...)
			for range val {
				*eligible = append(*eligible, false)
			}
			i = end

		default:
			*text = append(*text, runes[i])
			*eligible = append(*eligible, literalEligible)
			i++
		}
	}
}

func (s *Shell) specialParam(name rune) string {
	switch name {
	case '?':
		return strconv.Itoa(s.LastStatus)
	case '$':
		return strconv.Itoa(os.Getpid())
	case '!':
		if s.LastBgPID == 0 {
			return ""
		}
		return strconv.Itoa(s.LastBgPID)
	}
	return ""
}

func isNameStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNameRune(r rune) bool {
	return isNameStart(r) || (r >= '0' && r <= '9')
}

// resolveHome implements the username portion of tilde expansion: a
// bare "~" resolves to $HOME (falling back to the OS user database), and
// "~user" resolves to that user's home directory.
func resolveHome(userName string) (string, bool) {
	if userName == "" {
		if home, ok := os.LookupEnv("HOME"); ok && home != "" {
			return home, true
		}
		if u, err := user.Current(); err == nil && u.HomeDir != "" {
			return u.HomeDir, true
		}
		return "", false
	}
	u, err := user.Lookup(userName)
	if err != nil || u.HomeDir == "" {
		return "", false
	}
	return u.HomeDir, true
}
