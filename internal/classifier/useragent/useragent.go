// Package useragent implements the user-agent classifier: each entry is
// tokenized against a loaded token map and handed to a pluggable Scorer
// (the real ML inference engine is out of scope; the Scorer interface is
// the seam it plugs into). Grounded on
// original_source/samples/fuseragent/{UserAgentTask,Generator}.{hpp,cpp}.
package useragent

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/advens/darwin-go/internal/darwinjson"
	"github.com/advens/darwin-go/internal/rescache"
	"github.com/advens/darwin-go/internal/task"
)

// FilterCode matches DARWIN_FILTER_USER_AGENT.
const FilterCode uint32 = 0x75736572

// DefaultMaxTokens matches Generator::DEFAULT_MAX_TOKENS.
const DefaultMaxTokens = 50

// unknownToken is the token-map key substituted for tokens absent from
// the dictionary, per UserAgentTask::UserAgentTokenizer.
const unknownToken = "UNK"

// separators are the characters the tokenizer splits a user agent on,
// matching UserAgentTask's char_separator set.
const separators = " ());,:-~?!{}/[]"

// Classes are the model's output classes, in fixed order, per
// UserAgentTask::USER_AGENT_CLASSES.
var Classes = []string{"Desktop", "Tool", "Libraries", "Good bot", "Bad bot", "Mail", "IOT", "Mobile"}

// Scorer is the pluggable inference backend: given the tokenized user
// agent (fixed length maxTokens, right-aligned, zero-padded on the
// left), return one probability per entry of Classes.
type Scorer interface {
	Score(ctx context.Context, tokens []uint32) ([]float64, error)
}

// Classifier tokenizes user agents and scores them through a Scorer.
// Certitude is the "Bad bot" class probability scaled to 0-100. It
// implements task.Classifier.
type Classifier struct {
	tokenMap  map[string]uint32
	maxTokens int
	scorer    Scorer
}

// Config carries the useragent filter's configuration keys.
type Config struct {
	TokenMapPath string
	MaxTokens    int
}

// Load reads the token map and binds the scorer. MaxTokens defaults to
// DefaultMaxTokens when unset, as Generator::LoadClassifier does.
func Load(cfg Config, scorer Scorer) (*Classifier, error) {
	if scorer == nil {
		return nil, fmt.Errorf("useragent: no scorer provided")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	tokenMap, err := loadTokenMap(cfg.TokenMapPath)
	if err != nil {
		return nil, err
	}
	return &Classifier{tokenMap: tokenMap, maxTokens: maxTokens, scorer: scorer}, nil
}

// loadTokenMap reads a token dictionary file of "token,id" lines, per
// Generator::LoadTokenMap.
func loadTokenMap(path string) (map[string]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("useragent: cannot open token map file: %w", err)
	}
	defer f.Close()

	tokenMap := make(map[string]uint32)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		token, idStr, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("useragent: malformed token map line %q", line)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("useragent: malformed token id in line %q: %w", line, err)
		}
		tokenMap[token] = uint32(id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("useragent: error reading token map: %w", err)
	}
	return tokenMap, nil
}

// FilterCode implements task.Classifier.
func (c *Classifier) FilterCode() uint32 { return FilterCode }

// ParseLine implements task.Classifier: each entry is a one-element
// JSON array holding the user agent string, per UserAgentTask::ParseBody.
func (c *Classifier) ParseLine(entry []byte) (task.ClassifiedLine, error) {
	var items []string
	if err := darwinjson.Unmarshal(entry, &items); err != nil {
		return nil, fmt.Errorf("for each request, you must provide a list: %w", err)
	}
	if len(items) != 1 {
		return nil, fmt.Errorf("you must provide exactly one argument per request: the user agent")
	}
	return items[0], nil
}

// Hash implements task.Classifier.
func (c *Classifier) Hash(line task.ClassifiedLine) uint64 {
	return rescache.Fingerprint([]byte(line.(string)))
}

// Tokenize maps a user agent onto a fixed-length token-id slice:
// tokens are looked up in the dictionary (falling back to "UNK"), then
// right-aligned into a zero-padded slice of maxTokens entries, per
// UserAgentTask::UserAgentTokenizer. Tokens past maxTokens are dropped.
func (c *Classifier) Tokenize(userAgent string) []uint32 {
	var ids []uint32
	for _, tok := range strings.FieldsFunc(userAgent, func(r rune) bool {
		return strings.ContainsRune(separators, r)
	}) {
		id, ok := c.tokenMap[tok]
		if !ok {
			id, ok = c.tokenMap[unknownToken]
			if !ok {
				// invalid dictionary: "UNK" must always be present
				continue
			}
		}
		ids = append(ids, id)
	}

	out := make([]uint32, c.maxTokens)
	if len(ids) > c.maxTokens {
		ids = ids[:c.maxTokens]
	}
	copy(out[c.maxTokens-len(ids):], ids)
	return out
}

// Classify implements task.Classifier: certitude is the "Bad bot"
// class probability scaled to 0-100 and rounded, per
// UserAgentTask::Predict.
func (c *Classifier) Classify(ctx context.Context, line task.ClassifiedLine) (uint32, error) {
	userAgent := line.(string)
	scores, err := c.scorer.Score(ctx, c.Tokenize(userAgent))
	if err != nil {
		return 0, fmt.Errorf("useragent: running model failed: %w", err)
	}
	for i, class := range Classes {
		if class != "Bad bot" {
			continue
		}
		if i >= len(scores) {
			return 0, fmt.Errorf("useragent: scorer returned %d scores, want %d", len(scores), len(Classes))
		}
		return uint32(math.Round(scores[i] * 100)), nil
	}
	return 0, nil
}

// AlertEntry implements task.Classifier.
func (c *Classifier) AlertEntry(line task.ClassifiedLine) string {
	return line.(string)
}

// AlertDetails implements task.Classifier.
func (c *Classifier) AlertDetails(line task.ClassifiedLine, certitude uint32) string {
	return fmt.Sprintf(`{"ua_classification": %d}`, certitude)
}

// AlertRuleName implements task.Classifier.
func (c *Classifier) AlertRuleName() string { return "User-Agent analysis" }

// AlertTags implements task.Classifier.
func (c *Classifier) AlertTags() string { return "[]" }
