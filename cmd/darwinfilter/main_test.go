package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advens/darwin-go/internal/classifier/buffer"
	"github.com/advens/darwin-go/internal/classifier/hostlookup"
	"github.com/advens/darwin-go/internal/classifier/useragent"
	"github.com/advens/darwin-go/internal/classifier/yara"
	"github.com/advens/darwin-go/internal/core"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestBuildClassifierHostlookup(t *testing.T) {
	db := writeFile(t, "hosts.txt", "evil.example\n")
	c, stop, err := buildClassifier("hostlookup", &core.Config{Database: db})
	require.NoError(t, err)
	assert.Nil(t, stop)
	assert.EqualValues(t, hostlookup.FilterCode, c.FilterCode())
}

func TestBuildClassifierUseragent(t *testing.T) {
	tokens := writeFile(t, "tokens.csv", "curl,1\nUNK,2\n")
	model := writeFile(t, "model.json", `{"tokens": {"1": [0, 0, 0, 0, 0.9, 0, 0, 0]}}`)
	c, stop, err := buildClassifier("useragent", &core.Config{
		TokenMapPath: tokens,
		ModelPath:    model,
		MaxTokens:    10,
	})
	require.NoError(t, err)
	assert.Nil(t, stop)
	assert.EqualValues(t, useragent.FilterCode, c.FilterCode())
}

func TestBuildClassifierYara(t *testing.T) {
	rules := writeFile(t, "rules.txt", "eicar:EICAR-TEST\n")
	fastmode := true
	c, stop, err := buildClassifier("yara", &core.Config{
		RuleFileList: []string{rules},
		Fastmode:     &fastmode,
		TimeoutSec:   5,
	})
	require.NoError(t, err)
	assert.Nil(t, stop)
	assert.EqualValues(t, yara.FilterCode, c.FilterCode())
}

func TestBuildClassifierBuffer(t *testing.T) {
	c, stop, err := buildClassifier("buffer", &core.Config{
		RedisSocketPath: "/tmp/redis.sock",
		InputFormat: []core.InputFormatEntry{
			{Name: "ip", Type: "string"},
			{Name: "hostname", Type: "string"},
			{Name: "os", Type: "string"},
			{Name: "proto", Type: "string"},
			{Name: "port", Type: "string"},
		},
		Outputs: []core.OutputConfig{{
			FilterType:       "fsofa",
			FilterSocketPath: "/tmp/sofa.sock",
			IntervalSec:      60,
			RedisListName:    "darwin_sofa",
			RequiredLogLines: 5,
		}},
	})
	require.NoError(t, err)
	require.NotNil(t, stop)
	defer stop()
	assert.EqualValues(t, buffer.FilterCode, c.FilterCode())
}

func TestBuildClassifierBufferRequiresRedis(t *testing.T) {
	_, _, err := buildClassifier("buffer", &core.Config{})
	assert.Error(t, err)
}

func TestBuildClassifierUnknown(t *testing.T) {
	_, _, err := buildClassifier("nonsense", &core.Config{})
	assert.Error(t, err)
}
