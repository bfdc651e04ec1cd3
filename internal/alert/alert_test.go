package alert

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureFailsWithNoSink(t *testing.T) {
	m := New(nil)
	assert.False(t, m.Configure(Config{}))
}

func TestConfigureLogFileOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.log")
	m := New(nil)
	ok := m.Configure(Config{LogFilePath: path, FilterName: "hostlookup", RuleName: "Lookup: "})
	require.True(t, ok)

	m.AlertEntry("evil.example", 100, "00112233-4455-6677-8899-aabbccddeeff", "{}", "")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"alert_subtype": "hostlookup"`)
	assert.Contains(t, string(data), `"score": 100`)
	assert.True(t, len(data) > 0 && data[len(data)-1] == '\n')
}

func TestConfigureRedisWithoutListOrChannelFails(t *testing.T) {
	m := New(nil)
	ok := m.Configure(Config{RedisSocketPath: "/tmp/redis.sock"})
	assert.False(t, ok)
}

func TestFormatLogUsesDefaultTagsWhenOverrideEmpty(t *testing.T) {
	m := New(nil)
	m.Configure(Config{LogFilePath: filepath.Join(t.TempDir(), "a.log"), DefaultTags: `["x"]`})
	line := m.FormatLog("e", 10, "id", "{}", "")
	assert.Contains(t, line, `"tags": ["x"]`)
}

func TestFormatLogUsesOverrideTagsWhenNonEmpty(t *testing.T) {
	m := New(nil)
	m.Configure(Config{LogFilePath: filepath.Join(t.TempDir(), "a.log"), DefaultTags: `["x"]`})
	line := m.FormatLog("e", 10, "id", "{}", `["y"]`)
	assert.Contains(t, line, `"tags": ["y"]`)
}

func TestAlertEquivalentToAlertOfFormatLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	m := New(nil)
	require.True(t, m.Configure(Config{LogFilePath: path}))

	m.AlertEntry("entry", 50, "id", "{}", "")
	direct, err := os.ReadFile(path)
	require.NoError(t, err)

	os.Remove(path)
	require.True(t, m.Configure(Config{LogFilePath: path}))
	m.Alert(m.FormatLog("entry", 50, "id", "{}", ""))
	viaFormat, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(direct), string(viaFormat))
}

func TestRotateReopensFileWithoutLosingWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	m := New(nil)
	require.True(t, m.Configure(Config{LogFilePath: path}))

	m.AlertEntry("first", 10, "id", "{}", "")
	require.NoError(t, m.Rotate())
	m.AlertEntry("second", 20, "id", "{}", "")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
	assert.Contains(t, string(data), "second")
}

func TestEmptyAlertLineIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	m := New(nil)
	require.True(t, m.Configure(Config{LogFilePath: path}))
	m.Alert("")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}
