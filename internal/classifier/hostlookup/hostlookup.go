// Package hostlookup implements the hostlookup classifier: a static
// bad-hostname database looked up per request entry, certitude the
// matched entry's score on a hit, 0 otherwise. Grounded on
// original_source/samples/fhostlookup/{HostLookupTask,Generator}.{hpp,cpp}.
package hostlookup

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/advens/darwin-go/internal/darwinjson"
	"github.com/advens/darwin-go/internal/rescache"
	"github.com/advens/darwin-go/internal/task"
)

// FilterCode matches DARWIN_FILTER_HOSTLOOKUP.
const FilterCode uint32 = 0x66726570

// Classifier looks up a hostname against a loaded bad-hostname
// database. It implements task.Classifier.
type Classifier struct {
	database map[string]int
	feedName string
}

// jsonDatabase is the shape of a db_type="json" database file, per
// Generator::LoadJsonDatabase.
type jsonDatabase struct {
	FeedName string          `json:"feed_name"`
	Data     []jsonDBEntry   `json:"data"`
}

type jsonDBEntry struct {
	Entry string `json:"entry"`
	Score *int   `json:"score,omitempty"`
}

// Load reads the database file named by path, interpreting it per
// dbType ("text" or "json", defaulting to "text" as Generator::LoadConfig
// does when db_type is absent).
func Load(path, dbType string) (*Classifier, error) {
	if dbType == "" {
		dbType = "text"
	}
	switch dbType {
	case "text":
		return loadText(path)
	case "json":
		return loadJSON(path)
	default:
		return nil, fmt.Errorf("hostlookup: unknown db_type %q", dbType)
	}
}

func loadText(path string) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hostlookup: cannot open host database: %w", err)
	}
	defer f.Close()

	db := make(map[string]int)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			db[line] = 100
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("hostlookup: error reading host database: %w", err)
	}

	feedName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Classifier{database: db, feedName: feedName}, nil
}

func loadJSON(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hostlookup: cannot open host database: %w", err)
	}

	var doc jsonDatabase
	if err := darwinjson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("hostlookup: database is not a JSON object: %w", err)
	}
	if doc.FeedName == "" {
		return nil, fmt.Errorf("hostlookup: no proper feed name provided in the database")
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("hostlookup: no entry in the database")
	}

	db := make(map[string]int, len(doc.Data))
	for _, e := range doc.Data {
		if e.Entry == "" {
			continue
		}
		score := 100
		if e.Score != nil {
			score = *e.Score
			if score < 0 || score > 100 {
				score = 100
			}
		}
		db[e.Entry] = score
	}
	if len(db) == 0 {
		return nil, fmt.Errorf("hostlookup: no usable entry in the database")
	}

	return &Classifier{database: db, feedName: doc.FeedName}, nil
}

// FilterCode implements task.Classifier.
func (c *Classifier) FilterCode() uint32 { return FilterCode }

// ParseLine implements task.Classifier: each entry is a one-element
// JSON array holding the hostname string, per HostLookupTask::ParseBody.
func (c *Classifier) ParseLine(entry []byte) (task.ClassifiedLine, error) {
	var items []string
	if err := darwinjson.Unmarshal(entry, &items); err != nil {
		return nil, fmt.Errorf("for each request, you must provide a list: %w", err)
	}
	if len(items) != 1 {
		return nil, fmt.Errorf("you must provide exactly one argument per request: the host")
	}
	return items[0], nil
}

// Hash implements task.Classifier.
func (c *Classifier) Hash(line task.ClassifiedLine) uint64 {
	return rescache.Fingerprint([]byte(line.(string)))
}

// Classify implements task.Classifier: on a database hit the certitude
// is the entry's stored score (100 for text databases and for JSON
// entries without a score), 0 otherwise, per HostLookupTask::DBLookup.
func (c *Classifier) Classify(_ context.Context, line task.ClassifiedLine) (uint32, error) {
	host := line.(string)
	if score, ok := c.database[host]; ok {
		return uint32(score), nil
	}
	return 0, nil
}

// AlertEntry implements task.Classifier.
func (c *Classifier) AlertEntry(line task.ClassifiedLine) string {
	return line.(string)
}

// AlertDetails implements task.Classifier.
func (c *Classifier) AlertDetails(line task.ClassifiedLine, certitude uint32) string {
	return fmt.Sprintf(`{"feed": %q}`, c.feedName)
}

// AlertRuleName implements task.Classifier, matching
// DARWIN_ALERT_RULE_NAME (trailing space included).
func (c *Classifier) AlertRuleName() string { return "Lookup: " }

// AlertTags implements task.Classifier, matching DARWIN_ALERT_TAGS.
func (c *Classifier) AlertTags() string { return "[]" }
