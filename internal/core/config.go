// Package core wires the rest of the daemon together: CLI argument
// parsing, JSON configuration loading, PID file lifecycle, signal
// handling, and the top-level run loop shared by every filter binary.
// Grounded on cmd/broker/main.go's CLI-to-component-wiring shape and
// pkg/common/config.go's struct-with-json-tags convention (the
// teacher's own LoadConfig is a stub; Darwin's actually decodes).
package core

import (
	"fmt"
	"os"

	"github.com/advens/darwin-go/internal/darwinjson"
)

// Config is the JSON configuration document for one filter instance,
// matching spec.md §6's common-keys table plus filter-specific keys.
type Config struct {
	RedisSocketPath       string `json:"redis_socket_path,omitempty"`
	AlertRedisListName    string `json:"alert_redis_list_name,omitempty"`
	AlertRedisChannelName string `json:"alert_redis_channel_name,omitempty"`
	LogFilePath           string `json:"log_file_path,omitempty"`

	// Hostlookup
	Database string `json:"database,omitempty"`
	DBType   string `json:"db_type,omitempty"`

	// Useragent
	TokenMapPath string `json:"token_map_path,omitempty"`
	ModelPath    string `json:"model_path,omitempty"`
	MaxTokens    int    `json:"max_tokens,omitempty"`

	// Yara
	RuleFileList []string `json:"rule_file_list,omitempty"`
	Fastmode     *bool    `json:"fastmode,omitempty"`
	TimeoutSec   uint32   `json:"timeout,omitempty"`

	// Buffer
	InputFormat []InputFormatEntry `json:"input_format,omitempty"`
	Outputs     []OutputConfig     `json:"outputs,omitempty"`
}

// InputFormatEntry describes one named, typed field the buffer filter
// expects in its aggregated input.
type InputFormatEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// OutputConfig describes one downstream sink the buffer filter may
// flush an aggregated batch to.
type OutputConfig struct {
	FilterType       string `json:"filter_type"`
	FilterSocketPath string `json:"filter_socket_path"`
	IntervalSec      uint32 `json:"interval"`
	RedisListName    string `json:"redis_list_name"`
	RequiredLogLines int    `json:"required_log_lines"`
}

// LoadConfig reads and decodes a filter's JSON configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg Config
	if err := darwinjson.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return &cfg, nil
}
