package shell

import "regexp"

// Assignment is a NAME=WORD pair appearing before the first command word of
// a stage.
type Assignment struct {
	Name  string
	Value Word
}

// RedirKind distinguishes the three open modes a redirection can request.
type RedirKind int

const (
	RedirRead RedirKind = iota
	RedirWriteTrunc
	RedirWriteAppend
)

// Redirect is a parsed, not-yet-resolved redirection: the target word still
// needs expansion before it names a real file.
type Redirect struct {
	Fd     int // target file descriptor (0 for <, 1 for > and >>)
	Kind   RedirKind
	Target Word
}

// Stage is one command in a pipeline: assignments, an argument vector
// (still as unexpanded Words), and redirections, in the order parsed so
// "last writer wins" can be resolved positionally at execution time.
type Stage struct {
	Assignments []Assignment
	Args        []Word
	Redirs      []Redirect
}

// Pipeline is the parser's top-level output.
type Pipeline struct {
	Stages   []Stage
	Negate   bool
	Background bool
}

var assignmentRE = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

// splitAssignment reports whether a lexed word is of the form NAME=VALUE
// and, if so, returns the name and the Word holding everything after '='
// (re-segmented so the value keeps its original per-rune quoting).
func splitAssignment(w Word) (name string, value Word, ok bool) {
	raw := w.Raw()
	m := assignmentRE.FindStringSubmatchIndex(raw)
	if m == nil {
		return "", nil, false
	}
	name = raw[m[2]:m[3]]
	valueStart := len(name) + 1
	value = sliceWord(w, valueStart)
	return name, value, true
}

// sliceWord returns the suffix of w starting at rune offset `from`,
// preserving per-segment quoting.
func sliceWord(w Word, from int) Word {
	var out Word
	pos := 0
	for _, seg := range w {
		segLen := len([]rune(seg.Text))
		if pos+segLen <= from {
			pos += segLen
			continue
		}
		start := 0
		if pos < from {
			start = from - pos
		}
		runes := []rune(seg.Text)
		out = append(out, WordSegment{Text: string(runes[start:]), Quote: seg.Quote})
		pos += segLen
	}
	return out
}

// Parse consumes a token stream and produces a Pipeline plan per the
// grammar:
//
//	pipeline   := [ "!" ] stage ( "|" stage )* [ "&" ]
//	stage      := assignment* ( word | redirect )+
//	assignment := NAME "=" WORD
//	redirect   := ( "<" | ">" | ">>" ) word
func Parse(tokens []Token) (*Pipeline, error) {
	p := &Pipeline{}
	i := 0

	if i < len(tokens) && tokens[i].Type == TokBang {
		p.Negate = true
		i++
	}

	if i == len(tokens) {
		// Nothing left to parse (a bare "!" or an empty line). Treat as a
		// zero-stage pipeline: no action, status 0.
		return p, nil
	}

	for {
		stage, n, err := parseStage(tokens[i:])
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, stage)
		i += n

		if i == len(tokens) {
			return p, nil
		}

		switch tokens[i].Type {
		case TokPipe:
			i++
			if i == len(tokens) {
				return nil, ErrEmptyStage
			}
			continue
		case TokAmp:
			p.Background = true
			i++
			if i != len(tokens) {
				return nil, ErrMisplacedBackground
			}
			return p, nil
		case TokBang:
			return nil, ErrMisplacedBang
		default:
			return nil, ErrEmptyStage
		}
	}
}

// parseStage consumes tokens until the next unconsumed `|`, `&`, or EOF,
// returning the stage and how many tokens it consumed.
func parseStage(tokens []Token) (Stage, int, error) {
	var stage Stage
	inAssignments := true
	i := 0

	for i < len(tokens) {
		tok := tokens[i]

		switch tok.Type {
		case TokPipe, TokAmp:
			if len(stage.Args) == 0 && len(stage.Redirs) == 0 {
				return Stage{}, 0, ErrEmptyStage
			}
			return stage, i, nil

		case TokBang:
			return Stage{}, 0, ErrMisplacedBang

		case TokLess, TokGreat, TokDGreat:
			inAssignments = false
			if i+1 >= len(tokens) || tokens[i+1].Type != TokWord {
				return Stage{}, 0, ErrMissingRedirTarget
			}
			target := tokens[i+1].Word
			var r Redirect
			switch tok.Type {
			case TokLess:
				r = Redirect{Fd: 0, Kind: RedirRead, Target: target}
			case TokGreat:
				r = Redirect{Fd: 1, Kind: RedirWriteTrunc, Target: target}
			case TokDGreat:
				r = Redirect{Fd: 1, Kind: RedirWriteAppend, Target: target}
			}
			stage.Redirs = append(stage.Redirs, r)
			i += 2

		case TokWord:
			if inAssignments {
				if name, value, ok := splitAssignment(tok.Word); ok {
					stage.Assignments = append(stage.Assignments, Assignment{Name: name, Value: value})
					i++
					continue
				}
				inAssignments = false
			}
			stage.Args = append(stage.Args, tok.Word)
			i++
		}
	}

	if len(stage.Args) == 0 && len(stage.Redirs) == 0 && len(stage.Assignments) == 0 {
		return Stage{}, 0, ErrEmptyStage
	}

	return stage, i, nil
}
