package shell

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShell(t *testing.T) *Shell {
	t.Helper()
	return New(Options{})
}

func expandOne(t *testing.T, s *Shell, line string) []string {
	t.Helper()
	tokens, err := Lex(line)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	return s.ExpandWord(tokens[0].Word)
}

func TestExpandPlainWord(t *testing.T) {
	s := newTestShell(t)
	assert.Equal(t, []string{"hello"}, expandOne(t, s, "hello"))
}

func TestExpandParameterBare(t *testing.T) {
	s := newTestShell(t)
	s.Vars.Set("NAME", "world", false)
	assert.Equal(t, []string{"helloworld"}, expandOne(t, s, "hello$NAME"))
}

func TestExpandParameterBraced(t *testing.T) {
	s := newTestShell(t)
	s.Vars.Set("NAME", "world", false)
	assert.Equal(t, []string{"helloworld!"}, expandOne(t, s, "hello${NAME}!"))
}

func TestExpandParameterUnsetIsEmpty(t *testing.T) {
	s := newTestShell(t)
	assert.Equal(t, []string{""}, expandOne(t, s, "$JOBSHELL_TOTALLY_UNSET"))
}

func TestExpandSingleQuotedIsLiteral(t *testing.T) {
	s := newTestShell(t)
	s.Vars.Set("NAME", "world", false)
	assert.Equal(t, []string{"$NAME"}, expandOne(t, s, `'$NAME'`))
}

func TestExpandDoubleQuotedStillExpandsParams(t *testing.T) {
	s := newTestShell(t)
	s.Vars.Set("NAME", "world", false)
	assert.Equal(t, []string{"hello world"}, expandOne(t, s, `"hello $NAME"`))
}

func TestExpandSpecialParams(t *testing.T) {
	s := newTestShell(t)
	s.LastStatus = 7
	s.LastBgPID = 4242

	assert.Equal(t, []string{"7"}, expandOne(t, s, "$?"))
	assert.Equal(t, []string{"4242"}, expandOne(t, s, "$!"))
}

func TestExpandLastBgPidEmptyWhenNoBackgroundJob(t *testing.T) {
	s := newTestShell(t)
	assert.Equal(t, []string{""}, expandOne(t, s, "$!"))
}

func TestExpandTildeBare(t *testing.T) {
	s := newTestShell(t)
	home, ok := os.LookupEnv("HOME")
	require.True(t, ok)
	assert.Equal(t, []string{home}, expandOne(t, s, "~"))
}

func TestExpandTildeWithPathSuffix(t *testing.T) {
	s := newTestShell(t)
	home, ok := os.LookupEnv("HOME")
	require.True(t, ok)
	assert.Equal(t, []string{home + "/docs"}, expandOne(t, s, "~/docs"))
}

func TestExpandGlobMatchesFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	s := newTestShell(t)
	got := expandOne(t, s, filepath.Join(dir, "*.txt"))
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
	}, got)
}

func TestExpandGlobNoMatchKeepsPatternLiteral(t *testing.T) {
	dir := t.TempDir()
	s := newTestShell(t)
	pattern := filepath.Join(dir, "*.nomatch")
	assert.Equal(t, []string{pattern}, expandOne(t, s, pattern))
}

func TestExpandGlobSkipsHiddenFilesByDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible"), nil, 0644))

	s := newTestShell(t)
	got := expandOne(t, s, filepath.Join(dir, "*"))
	assert.Equal(t, []string{filepath.Join(dir, "visible")}, got)
}

func TestExpandGlobQuotedMetacharIsLiteral(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0644))

	s := newTestShell(t)
	literal := filepath.Join(dir, "*")
	got := expandOne(t, s, filepath.Join(dir, `"*"`))
	assert.Equal(t, []string{literal}, got)
}
