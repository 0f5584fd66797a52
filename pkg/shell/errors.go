package shell

import "errors"

// ErrExit is returned by RunPipeline (and passed on by ExecuteLine) when the
// exit builtin runs in the shell process, to signal that the shell's REPL
// should terminate gracefully. Run translates it into a clean return rather
// than surfacing it to the user as a command failure.
var ErrExit = errors.New("exit")

// Lexer and parser errors.
var (
	ErrUnterminatedQuote   = errors.New("unterminated quote")
	ErrTrailingEscape      = errors.New("unescaped trailing backslash")
	ErrEmptyStage          = errors.New("syntax error: empty command before '|'")
	ErrMissingRedirTarget  = errors.New("syntax error: missing filename for redirection")
	ErrMisplacedBackground = errors.New("syntax error: '&' must be the final token")
	ErrMisplacedAssignment = errors.New("syntax error: assignment after command word")
	ErrMisplacedBang       = errors.New("syntax error: '!' must be the first token")
)
