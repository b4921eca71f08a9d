package sessionrag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openclaw/internal/clawerr"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session-a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
	return path
}

func TestParseFileStringContent(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"message","message":{"role":"user","content":"hello"},"timestamp":"2026-03-01T10:00:00Z"}`,
		`{"type":"message","message":{"role":"assistant","content":"hi there"}}`,
	)
	tr, err := ParseFile(path, "session-a", 0)
	require.NoError(t, err)
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "user", tr.Messages[0].Role)
	assert.Equal(t, "hello", tr.Messages[0].Content)
	assert.False(t, tr.Messages[0].Timestamp.IsZero())
	assert.Equal(t, 0, tr.Skipped)
}

func TestParseFilePartListContent(t *testing.T) {
	path := writeTranscript(t,
		`{"message":{"role":"assistant","content":[{"type":"text","text":"part one"},{"type":"tool_use","text":"ignored"},{"type":"text","text":"part two"}]}}`,
	)
	tr, err := ParseFile(path, "s", 0)
	require.NoError(t, err)
	require.Len(t, tr.Messages, 1)
	assert.Equal(t, "part one\npart two", tr.Messages[0].Content)
}

func TestParseFileTopLevelRole(t *testing.T) {
	path := writeTranscript(t,
		`{"role":"user","content":"top level shape"}`,
	)
	tr, err := ParseFile(path, "s", 0)
	require.NoError(t, err)
	require.Len(t, tr.Messages, 1)
	assert.Equal(t, "top level shape", tr.Messages[0].Content)
}

func TestParseFileSkipsNonMessages(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"summary","content":"session summary"}`,
		`{"message":{"role":"system","content":"prompt"}}`,
		`{"message":{"role":"user","content":"real message"}}`,
		``,
	)
	tr, err := ParseFile(path, "s", 0)
	require.NoError(t, err)
	require.Len(t, tr.Messages, 1)
	assert.Equal(t, 0, tr.Skipped, "non-message records are not malformed")
}

func TestParseFileCountsMalformedLines(t *testing.T) {
	path := writeTranscript(t,
		`{"message":{"role":"user","content":"good"}}`,
		`{not json at all`,
		`{"message":{"role":"assistant","content":"also good"}}`,
	)
	tr, err := ParseFile(path, "s", 5)
	require.NoError(t, err)
	assert.Len(t, tr.Messages, 2)
	assert.Equal(t, 1, tr.Skipped)
}

func TestParseFileQuarantine(t *testing.T) {
	lines := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		lines = append(lines, fmt.Sprintf(`{broken line %d`, i))
	}
	path := writeTranscript(t, lines...)

	_, err := ParseFile(path, "s", 20)
	require.Error(t, err)
	var parseErr *clawerr.ParseError
	assert.ErrorAs(t, err, &parseErr)
}
