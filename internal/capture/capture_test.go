package capture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureDisabledByDefault(t *testing.T) {
	Disable()
	assert.False(t, Enabled())
	assert.Empty(t, WriteBlob("callback", "json", []byte("{}")))
}

func TestWriteJSONAndBlob(t *testing.T) {
	dir := t.TempDir()
	Enable(dir)
	t.Cleanup(Disable)

	path := WriteJSON("dispatch-fans", map[string]int{"a": 1})
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(path, filepath.Join(dir, sessionID)))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "dispatch-fans-"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	blob := WriteBlob("callback", "json", []byte("{not json"))
	require.NotEmpty(t, blob)
	assert.NotEqual(t, path, blob)

	data, err = os.ReadFile(blob)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}
