// Package buffer implements the aggregation classifier: each entry is
// a typed field tuple that is buffered into Redis through one connector
// per configured output, and periodically flushed downstream once
// enough entries have accumulated. Grounded on
// original_source/samples/fbuffer/* — BufferTask (input parsing),
// AConnector and its children (per-output buffering and formatting,
// flattened from multiple inheritance into the Kind-tagged Connector
// interface), and BufferThread/BufferThreadManager (the periodic
// flusher).
package buffer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/advens/darwin-go/internal/darwinjson"
	"github.com/advens/darwin-go/internal/rescache"
	"github.com/advens/darwin-go/internal/task"
)

// FilterCode matches DARWIN_FILTER_BUFFER (made from: bufr).
const FilterCode uint32 = 0x62756672

// ValueType is the declared type of one input_format field.
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt
	TypeDouble
	TypeFloat
)

// ParseValueType maps an input_format type string to its ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(s) {
	case "string":
		return TypeString, nil
	case "int":
		return TypeInt, nil
	case "double":
		return TypeDouble, nil
	case "float":
		return TypeFloat, nil
	default:
		return 0, fmt.Errorf("buffer: unknown input type %q", s)
	}
}

// InputField is one named, typed field the filter expects in each
// entry, in declaration order.
type InputField struct {
	Name string
	Type ValueType
}

// Classifier parses typed input tuples and fans each parsed line out
// to every connector's Redis buffer. It implements task.Classifier.
// Certitude is always 0: the buffer filter never judges traffic
// itself, it only aggregates for the filters downstream.
type Classifier struct {
	inputs     []InputField
	connectors []Connector
}

// New builds the classifier from the input format and the configured
// connectors.
func New(inputs []InputField, connectors []Connector) (*Classifier, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("buffer: input_format must declare at least one field")
	}
	if len(connectors) == 0 {
		return nil, fmt.Errorf("buffer: at least one output connector is required")
	}
	return &Classifier{inputs: inputs, connectors: connectors}, nil
}

// Connectors exposes the configured connectors, for the flusher
// manager that drains them.
func (c *Classifier) Connectors() []Connector { return c.connectors }

// FilterCode implements task.Classifier.
func (c *Classifier) FilterCode() uint32 { return FilterCode }

// ParseLine implements task.Classifier: each entry is a JSON array
// with exactly one value per input_format field, validated against the
// declared type and stringified, per BufferTask::ParseLine/ParseData.
func (c *Classifier) ParseLine(entry []byte) (task.ClassifiedLine, error) {
	var values []any
	if err := darwinjson.Unmarshal(entry, &values); err != nil {
		return nil, fmt.Errorf("for each request, you must provide a list: %w", err)
	}
	if len(values) != len(c.inputs) {
		return nil, fmt.Errorf("expected %d fields per entry, got %d", len(c.inputs), len(values))
	}

	line := make(map[string]string, len(c.inputs))
	for i, field := range c.inputs {
		s, err := stringifyValue(values[i], field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		line[field.Name] = s
	}
	return line, nil
}

// stringifyValue checks v against the declared type and renders it as
// the string the connectors buffer.
func stringifyValue(v any, t ValueType) (string, error) {
	switch t {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil
	case TypeInt:
		f, ok := v.(float64)
		if !ok || f != float64(int64(f)) {
			return "", fmt.Errorf("expected an integer, got %v", v)
		}
		return strconv.FormatInt(int64(f), 10), nil
	case TypeDouble, TypeFloat:
		f, ok := v.(float64)
		if !ok {
			return "", fmt.Errorf("expected a number, got %T", v)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unknown value type %d", t)
	}
}

// Hash implements task.Classifier: the fingerprint covers every field
// value in declaration order.
func (c *Classifier) Hash(line task.ClassifiedLine) uint64 {
	input := line.(map[string]string)
	parts := make([][]byte, 0, len(c.inputs))
	for _, field := range c.inputs {
		parts = append(parts, []byte(input[field.Name]))
	}
	return rescache.Fingerprint(parts...)
}

// Classify implements task.Classifier: buffer the parsed line through
// every connector, per BufferTask::AddEntries. Any connector failure
// fails the entry (the task appends the error sentinel).
func (c *Classifier) Classify(_ context.Context, line task.ClassifiedLine) (uint32, error) {
	input := line.(map[string]string)
	for _, conn := range c.connectors {
		if err := conn.ParseInputForRedis(input); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

// AlertEntry implements task.Classifier. The buffer filter never
// raises alerts (certitude is always 0), but the interface contract
// still wants a rendering.
func (c *Classifier) AlertEntry(line task.ClassifiedLine) string {
	input := line.(map[string]string)
	parts := make([]string, 0, len(c.inputs))
	for _, field := range c.inputs {
		parts = append(parts, input[field.Name])
	}
	return strings.Join(parts, ";")
}

// AlertDetails implements task.Classifier.
func (c *Classifier) AlertDetails(task.ClassifiedLine, uint32) string { return "{}" }

// AlertRuleName implements task.Classifier. The buffer filter never
// crosses the alert threshold, so the name is only ever seen in
// configuration logs.
func (c *Classifier) AlertRuleName() string { return "Buffer" }

// AlertTags implements task.Classifier.
func (c *Classifier) AlertTags() string { return "[]" }
