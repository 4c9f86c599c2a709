package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymize(t *testing.T) {
	in := "login luke@force.com token eyJhbGciOiJIUzI1NiJ9.e30.x user_id=42"
	out := Anonymize(in)

	assert.NotContains(t, out, "luke@force.com")
	assert.NotContains(t, out, "eyJhbGci")
	assert.Contains(t, out, "[REDACTED_EMAIL]")
	assert.Contains(t, out, "[REDACTED_TOKEN]")
	assert.Contains(t, out, "user_id=[USER_ID]")
}

func TestLogger_ErrorWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Error("store", "query failed for user_id=7", errors.New("boom"), "table", "posts")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "store", entry["module"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "posts", entry["table"])
	assert.Equal(t, "query failed for user_id=[USER_ID]", entry["msg"])
}

func TestLogger_DebugSuppressedAtInfo(t *testing.T) {
	SetLevel("info")
	defer SetLevel("info")

	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	l.Debug("cache", "miss")
	assert.Zero(t, buf.Len())

	SetLevel("debug")
	l.Debug("cache", "miss")
	assert.NotZero(t, buf.Len())
}
