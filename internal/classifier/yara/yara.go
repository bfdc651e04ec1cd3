// Package yara implements the rule-scanning classifier: each entry
// carries an optionally hex- or base64-encoded data chunk that is
// scanned against a compiled rule set through the pluggable RuleScanner
// interface (the real YARA engine is out of scope; RuleScanner is the
// seam it plugs into). Grounded on
// original_source/samples/fyara/{YaraTask,Generator}.{hpp,cpp}.
package yara

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/advens/darwin-go/internal/darwinjson"
	"github.com/advens/darwin-go/internal/rescache"
	"github.com/advens/darwin-go/internal/task"
)

// FilterCode matches DARWIN_FILTER_YARA_SCAN.
const FilterCode uint32 = 0x79617261

// ScanResults carries the matched rule and tag names of one scan.
type ScanResults struct {
	Rules []string
	Tags  []string
}

// RuleScanner is the pluggable scanning backend. Scan returns the
// certitude for data plus the matched rules and tags; a scanner error
// is a ClassifyError (the task appends the error sentinel and moves
// on, per YaraTask's "error while scanning, ignoring chunk").
type RuleScanner interface {
	Scan(ctx context.Context, data []byte) (certitude uint32, results ScanResults, err error)
}

// Config carries the yara filter's configuration keys, per
// Generator::LoadConfig.
type Config struct {
	RuleFileList []string
	Fastmode     bool
	Timeout      time.Duration
}

// Classifier decodes chunks and scans them through a RuleScanner. It
// implements task.Classifier.
type Classifier struct {
	scanner  RuleScanner
	fastmode bool
	timeout  time.Duration
}

// chunk is the ClassifiedLine of this filter: the decoded data plus
// the results of its scan, filled in by Classify for AlertDetails.
type chunk struct {
	data    []byte
	results ScanResults
}

// Load validates the rule file list and binds the scanner. Every file
// in cfg.RuleFileList must be readable; the scanner is assumed to have
// been compiled from the same list by the caller.
func Load(cfg Config, scanner RuleScanner) (*Classifier, error) {
	if scanner == nil {
		return nil, fmt.Errorf("yara: no rule scanner provided")
	}
	if len(cfg.RuleFileList) == 0 {
		return nil, fmt.Errorf("yara: rule_file_list is empty, you should at least provide one valid rule file")
	}
	for _, path := range cfg.RuleFileList {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("yara: could not open rule file %q: %w", path, err)
		}
	}
	return &Classifier{scanner: scanner, fastmode: cfg.Fastmode, timeout: cfg.Timeout}, nil
}

// FilterCode implements task.Classifier.
func (c *Classifier) FilterCode() uint32 { return FilterCode }

// ParseLine implements task.Classifier: each entry is a JSON array of
// one or two strings, `[chunk]` or `[chunk, encoding]` where encoding
// is "hex" or "base64" (case-insensitive), per YaraTask::ParseLine.
func (c *Classifier) ParseLine(entry []byte) (task.ClassifiedLine, error) {
	var fields []string
	if err := darwinjson.Unmarshal(entry, &fields); err != nil {
		return nil, fmt.Errorf("the input line is not an array: %w", err)
	}

	var encodedChunk, encoding string
	switch len(fields) {
	case 2:
		encoding = fields[1]
		fallthrough
	case 1:
		encodedChunk = fields[0]
	default:
		return nil, fmt.Errorf("this filter accepts between 1 and 2 parameters (chunk [encoding])")
	}

	var data []byte
	switch {
	case encoding == "":
		data = []byte(encodedChunk)
	case strings.EqualFold(encoding, "hex"):
		decoded, err := hex.DecodeString(encodedChunk)
		if err != nil {
			return nil, fmt.Errorf("error while decoding hex data: %w", err)
		}
		data = decoded
	case strings.EqualFold(encoding, "base64"):
		decoded, err := base64.StdEncoding.DecodeString(encodedChunk)
		if err != nil {
			return nil, fmt.Errorf("error while decoding base64 data: %w", err)
		}
		data = decoded
	default:
		return nil, fmt.Errorf("unsupported encoding %q, supported encodings are base64 and hex", encoding)
	}

	return &chunk{data: data}, nil
}

// Hash implements task.Classifier: the fingerprint is over the decoded
// chunk, per YaraTask::GenerateHash.
func (c *Classifier) Hash(line task.ClassifiedLine) uint64 {
	return rescache.Fingerprint(line.(*chunk).data)
}

// Classify implements task.Classifier, bounding the scan by the
// configured timeout when one is set.
func (c *Classifier) Classify(ctx context.Context, line task.ClassifiedLine) (uint32, error) {
	ch := line.(*chunk)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	certitude, results, err := c.scanner.Scan(ctx, ch.data)
	if err != nil {
		return 0, fmt.Errorf("yara: error while scanning, ignoring chunk: %w", err)
	}
	ch.results = results
	return certitude, nil
}

// AlertEntry implements task.Classifier. The original alerts with the
// literal entry "raw_data" rather than echoing chunk contents.
func (c *Classifier) AlertEntry(task.ClassifiedLine) string { return "raw_data" }

// AlertDetails implements task.Classifier: the matched rule names as a
// JSON list, per YaraTask's `{"rules": [...]}` details payload.
func (c *Classifier) AlertDetails(line task.ClassifiedLine, _ uint32) string {
	return fmt.Sprintf(`{"rules": %s}`, JSONList(line.(*chunk).results.Rules))
}

// AlertRuleName implements task.Classifier, matching
// DARWIN_ALERT_RULE_NAME.
func (c *Classifier) AlertRuleName() string { return "Yara scanner" }

// AlertTags implements task.Classifier, matching DARWIN_ALERT_TAGS.
func (c *Classifier) AlertTags() string { return "[]" }

// LineAlertTags implements task.LineTagger: alerts carry the tag
// names of the matched rules, per YaraTask's tagListJson argument to
// Alert. No matched tags falls back to the filter default.
func (c *Classifier) LineAlertTags(line task.ClassifiedLine) string {
	tags := line.(*chunk).results.Tags
	if len(tags) == 0 {
		return ""
	}
	return JSONList(tags)
}

// JSONList renders a sorted JSON array of strings, per
// YaraTask::GetJsonListFromSet (the C++ source iterates a std::set,
// which is ordered).
func JSONList(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)

	var b strings.Builder
	b.Grow(len(sorted)*32 + 2)
	b.WriteByte('[')
	for i, item := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(item)
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return b.String()
}
