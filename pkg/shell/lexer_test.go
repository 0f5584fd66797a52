package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexWords(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"simple", "echo hello world", []string{"echo", "hello", "world"}},
		{"extra spaces", "  echo   hi  ", []string{"echo", "hi"}},
		{"single quoted", `echo 'hello world'`, []string{"echo", "hello world"}},
		{"double quoted", `echo "hello world"`, []string{"echo", "hello world"}},
		{"escaped space", `echo hello\ world`, []string{"echo", "hello world"}},
		{"adjacent quotes", `echo foo'bar'"baz"`, []string{"echo", "foobarbaz"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tokens, err := Lex(tc.line)
			require.NoError(t, err)

			var words []string
			for _, tok := range tokens {
				if tok.Type == TokWord {
					words = append(words, tok.Word.Raw())
				}
			}
			assert.Equal(t, tc.want, words)
		})
	}
}

func TestLexOperators(t *testing.T) {
	tokens, err := Lex("cat file.txt | grep foo >> out.log &")
	require.NoError(t, err)

	var types []TokenType
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []TokenType{
		TokWord, TokWord, TokPipe, TokWord, TokWord, TokDGreat, TokWord, TokAmp,
	}, types)
}

func TestLexOperatorInsideQuotesIsLiteral(t *testing.T) {
	tokens, err := Lex(`echo "a|b" '>c'`)
	require.NoError(t, err)

	require.Len(t, tokens, 3)
	assert.Equal(t, "a|b", tokens[1].Word.Raw())
	assert.Equal(t, ">c", tokens[2].Word.Raw())
}

func TestLexQuoteProvenance(t *testing.T) {
	tokens, err := Lex(`"$HOME"'lit'bare`)
	require.NoError(t, err)
	require.Len(t, tokens, 1)

	word := tokens[0].Word
	require.Len(t, word, 3)
	assert.Equal(t, DoubleQuoted, word[0].Quote)
	assert.Equal(t, Quoted, word[1].Quote)
	assert.Equal(t, Unquoted, word[2].Quote)
}

func TestLexUnterminatedQuote(t *testing.T) {
	_, err := Lex(`echo "unterminated`)
	assert.ErrorIs(t, err, ErrUnterminatedQuote)

	_, err = Lex(`echo 'unterminated`)
	assert.ErrorIs(t, err, ErrUnterminatedQuote)
}

func TestLexTrailingEscape(t *testing.T) {
	_, err := Lex(`echo foo\`)
	assert.ErrorIs(t, err, ErrTrailingEscape)
}

func TestLexBangOperator(t *testing.T) {
	tokens, err := Lex("! true")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, TokBang, tokens[0].Type)
	assert.Equal(t, "true", tokens[1].Word.Raw())
}

func TestLexEmptyLine(t *testing.T) {
	tokens, err := Lex("")
	require.NoError(t, err)
	assert.Empty(t, tokens)

	tokens, err = Lex("   ")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}
