// Package task implements the per-request task lifecycle: parse body,
// parse/hash/classify each entry, consult/update the result cache,
// raise alerts past threshold, and hand the finished packet back to
// the session. Grounded on original_source/samples/base/ATask.hpp's
// lifecycle (ParseBody/ParseLine/GenerateHash/GetFilterCode), flattened
// from virtual-inheritance into the value-returning Classifier
// interface per Go convention, and on pkg/common/workerpool/task.go's
// Task/TaskFunc shape (Task implements workerpool.Task).
package task

import "context"

// ClassifiedLine is the per-entry value a Classifier extracts from a
// raw body entry during ParseLine, and later receives back in Classify
// and the alert-formatting helpers. Its concrete type is
// classifier-specific (e.g. a parsed hostname, a tokenized user agent).
type ClassifiedLine any

// Classifier is the pluggable strategy every filter's task body
// conforms to. spec.md treats classifier algorithms as out of scope;
// this interface is the minimal contract the shared task machinery
// invokes.
type Classifier interface {
	// FilterCode returns this filter's 32-bit identity tag.
	FilterCode() uint32

	// ParseLine extracts and validates one body entry. An error here
	// is a ParseFailure: the task appends ErrorReturn and continues.
	ParseLine(entry []byte) (ClassifiedLine, error)

	// Hash computes the fingerprint input material for the cache.
	// Only called when caching is enabled.
	Hash(line ClassifiedLine) uint64

	// Classify produces the certitude for a parsed line. An error here
	// is a ClassifyError: the task appends ErrorReturn and continues.
	Classify(ctx context.Context, line ClassifiedLine) (certitude uint32, err error)

	// AlertEntry renders the human-readable "entry" field of an alert
	// for this line (e.g. the looked-up hostname).
	AlertEntry(line ClassifiedLine) string

	// AlertDetails renders the "details" field of an alert as a raw
	// JSON value (the caller must return valid JSON).
	AlertDetails(line ClassifiedLine, certitude uint32) string

	// AlertRuleName returns the static rule_name stamped on this
	// filter's alerts.
	AlertRuleName() string

	// AlertTags returns this filter's default tags as a JSON array
	// literal ("[]" when it has none).
	AlertTags() string
}

// LineTagger is implemented by classifiers that override the alert
// tags per entry (e.g. the tag names of matched scan rules). An empty
// string falls back to the filter's default tags.
type LineTagger interface {
	LineAlertTags(line ClassifiedLine) string
}
