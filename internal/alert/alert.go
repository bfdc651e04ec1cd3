// Package alert implements the filter's alert manager: formatting a
// single-line JSON alert and delivering it to a log file and/or Redis,
// with bounded retries and rotate-on-signal support. Grounded in
// semantics on original_source/samples/base/AlertManager.cpp; the
// retry-budget shape for file writes borrows from
// pkg/broker/reliability/dlq.go's retry-with-backoff idiom (adapted,
// not imported — the alert manager only ever needs one fixed-delay,
// bounded-retry strategy). Redis delivery uses
// github.com/redis/go-redis/v9 over a Unix socket.
package alert

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/advens/darwin-go/internal/darwinerr"
	"github.com/advens/darwin-go/internal/darwinlog"
)

const (
	// fileWriteRetries is spec.md's N=3 retry budget for file writes.
	fileWriteRetries = 3
	// fileWriteBackoff is the 1ms backoff between file write retries.
	fileWriteBackoff = time.Millisecond
)

// Config holds the alert manager's configuration inputs, matching the
// JSON keys of spec.md §6's common configuration table.
type Config struct {
	RedisSocketPath  string
	RedisListName    string
	RedisChannelName string
	LogFilePath      string
	FilterName       string
	RuleName         string
	DefaultTags      string // raw JSON array literal, e.g. "[]"
}

// Manager formats and delivers alerts to the configured sinks.
type Manager struct {
	filterName  string
	ruleName    string
	defaultTags string

	logEnabled bool
	logPath    string
	fileMu     sync.Mutex
	file       *os.File

	redisEnabled bool
	redisClient  *redis.Client
	redisList    string
	redisChannel string

	log *darwinlog.Logger
}

// New constructs an unconfigured Manager; call Configure before use.
func New(log *darwinlog.Logger) *Manager {
	if log == nil {
		log = darwinlog.Default()
	}
	return &Manager{log: log}
}

// Configure wires the manager's sinks from cfg. It mirrors
// AlertManager::Configure's boolean algebra exactly: succeeds iff, for
// each of {redis, log}, either the sink was not requested or it was
// requested and configured successfully — and at least one sink is enabled.
func (m *Manager) Configure(cfg Config) bool {
	m.filterName = cfg.FilterName
	m.ruleName = cfg.RuleName
	m.defaultTags = cfg.DefaultTags
	if m.defaultTags == "" {
		m.defaultTags = "[]"
	}

	redisWanted := cfg.RedisSocketPath != ""
	logWanted := cfg.LogFilePath != ""

	if !redisWanted && !logWanted {
		m.log.Warn("alert manager needs at least one of redis_socket_path or log_file_path", nil)
		return false
	}

	redisOK := false
	if redisWanted {
		redisOK = m.configureRedis(cfg)
	}
	logOK := false
	if logWanted {
		logOK = m.configureLog(cfg.LogFilePath)
	}

	return ((redisWanted && redisOK) || (!redisWanted && !redisOK)) &&
		((logWanted && logOK) || (!logWanted && !logOK))
}

func (m *Manager) configureLog(path string) bool {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		m.log.Warn("error opening alert log file, ignoring log configuration", map[string]any{"path": path, "err": err.Error()})
		m.logEnabled = false
		return false
	}
	m.logPath = path
	m.file = f
	m.logEnabled = true
	return true
}

func (m *Manager) configureRedis(cfg Config) bool {
	if cfg.RedisListName == "" && cfg.RedisChannelName == "" {
		m.log.Warn("redis_socket_path set but neither alert_redis_list_name nor alert_redis_channel_name provided, ignoring redis configuration", nil)
		m.redisEnabled = false
		return false
	}
	m.redisClient = redis.NewClient(&redis.Options{Network: "unix", Addr: cfg.RedisSocketPath})
	m.redisList = cfg.RedisListName
	m.redisChannel = cfg.RedisChannelName
	m.redisEnabled = true
	return true
}

// FormatLog renders a single-line JSON alert object with the fixed
// field order spec.md §4.3 mandates. details is inserted verbatim and
// must already be valid JSON; tags, if non-empty, overrides the
// manager's default_tags.
func (m *Manager) FormatLog(entry string, certitude uint32, evtID string, details string, tags string) string {
	if tags == "" {
		tags = m.defaultTags
	}
	return fmt.Sprintf(
		`{"alert_type": "darwin", "alert_subtype": "%s", "alert_time": "%s", "level": "high", "rule_name": "%s", "tags": %s, "entry": "%s", "score": %s, "evt_id": "%s", "details": %s}`,
		jsonEscape(m.filterName),
		time.Now().Format("2006-01-02T15:04:05-0700"),
		jsonEscape(m.ruleName),
		tags,
		jsonEscape(entry),
		strconv.FormatUint(uint64(certitude), 10),
		jsonEscape(evtID),
		details,
	)
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\\':
			out = append(out, '\\', s[i])
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

// Alert delivers a pre-formatted alert line to every configured sink.
// Equivalent to Alert(FormatLog(...)) per spec.md's stated law.
func (m *Manager) Alert(line string) {
	if len(line) == 0 {
		return
	}
	if m.logEnabled {
		m.writeLog(line)
	}
	if m.redisEnabled {
		m.redisPush(line)
	}
}

// AlertEntry formats and delivers an alert in one call, matching
// AlertManager::Alert(entry, certitude, evt_id, details, tags).
func (m *Manager) AlertEntry(entry string, certitude uint32, evtID string, details string, tags string) {
	m.Alert(m.FormatLog(entry, certitude, evtID, details, tags))
}

func (m *Manager) writeLog(line string) {
	m.fileMu.Lock()
	defer m.fileMu.Unlock()

	retries := fileWriteRetries
	var err error
	for {
		_, err = m.file.WriteString(line + "\n")
		if err == nil || retries == 0 {
			break
		}
		time.Sleep(fileWriteBackoff)
		retries--
	}
	if err != nil {
		m.log.Error("error writing alert log file after exhausting retries", map[string]any{"path": m.logPath, "err": err.Error()})
	}
}

func (m *Manager) redisPush(line string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if m.redisList != "" {
		if err := m.redisClient.LPush(ctx, m.redisList, line).Err(); err != nil {
			m.log.Warn("failed to LPUSH alert to redis", map[string]any{"err": err.Error()})
		}
	}
	if m.redisChannel != "" {
		if err := m.redisClient.Publish(ctx, m.redisChannel, line).Err(); err != nil {
			m.log.Warn("failed to PUBLISH alert to redis", map[string]any{"err": err.Error()})
		}
	}
}

// Rotate closes and reopens the log file under the file lock, so
// in-flight writers block briefly rather than race a half-closed
// handle. It is a no-op when log delivery is not enabled.
func (m *Manager) Rotate() error {
	if !m.logEnabled {
		return nil
	}
	m.fileMu.Lock()
	defer m.fileMu.Unlock()

	if m.file != nil {
		_ = m.file.Close()
	}
	f, err := os.OpenFile(m.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return darwinerr.Wrap(darwinerr.CodeIOError, "rotate: reopen alert log", err)
	}
	m.file = f
	return nil
}

// Close releases any open sinks.
func (m *Manager) Close() error {
	m.fileMu.Lock()
	defer m.fileMu.Unlock()
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}
