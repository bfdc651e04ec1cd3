package buffer

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the tagged-variant discriminant replacing the original
// multiple-inheritance connector hierarchy: one Connector interface,
// four behaviors.
type Kind int

const (
	KindAnomaly Kind = iota
	KindSofa
	KindSum
	KindBuffer
)

func (k Kind) String() string {
	switch k {
	case KindAnomaly:
		return "fanomaly"
	case KindSofa:
		return "fsofa"
	case KindSum:
		return "sum"
	case KindBuffer:
		return "fbuffer"
	default:
		return "unknown"
	}
}

// ParseKind maps a filter_type config value to its Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "fanomaly", "anomaly":
		return KindAnomaly, nil
	case "fsofa", "sofa":
		return KindSofa, nil
	case "sum":
		return KindSum, nil
	case "fbuffer", "buffer":
		return KindBuffer, nil
	default:
		return 0, fmt.Errorf("buffer: unknown filter_type %q", s)
	}
}

// OutputConfig describes one downstream sink: which connector behavior
// to use, where to send flushed batches, how often to check, which
// redis key buffers the entries, and how many entries must have
// accumulated before a flush.
type OutputConfig struct {
	Kind             Kind
	SocketPath       string
	Interval         time.Duration
	RedisList        string
	RequiredLogLines int64
}

// Connector buffers parsed input lines in Redis and formats
// accumulated batches for its downstream filter. ParseInputForRedis
// and FormatDataToSend vary per kind; the redis operations have
// set-based defaults that the Sum kind overrides with counter
// semantics (sum-of-values instead of list-of-values).
type Connector interface {
	Kind() Kind
	Config() OutputConfig

	// ParseInputForRedis extracts this kind's fields from one parsed
	// input line and buffers the resulting entry in Redis.
	ParseInputForRedis(input map[string]string) error

	// FormatDataToSend renders a popped batch as the body to send
	// downstream. ok is false when the batch is not worth sending yet
	// (the flusher reinserts it).
	FormatDataToSend(logs []string) (body string, ok bool)

	RedisListLen() (int64, error)
	RedisPopLogs(n int64) ([]string, error)
	RedisReinsertLogs(logs []string) error
	RedisSetExpiry(ttl time.Duration) error
}

// NewConnector builds the connector for cfg.Kind over store.
func NewConnector(store *Store, cfg OutputConfig) (Connector, error) {
	if store == nil {
		return nil, fmt.Errorf("buffer: connector %s needs a redis store", cfg.Kind)
	}
	if cfg.RedisList == "" {
		return nil, fmt.Errorf("buffer: connector %s needs a redis_list_name", cfg.Kind)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 300 * time.Second
	}
	base := connectorBase{store: store, cfg: cfg}
	switch cfg.Kind {
	case KindAnomaly:
		return &anomalyConnector{connectorBase: base}, nil
	case KindSofa:
		return &sofaConnector{connectorBase: base}, nil
	case KindSum:
		return &sumConnector{connectorBase: base}, nil
	case KindBuffer:
		return &bufferConnector{connectorBase: base}, nil
	default:
		return nil, fmt.Errorf("buffer: unknown connector kind %d", cfg.Kind)
	}
}

// connectorBase carries the shared state and the set-based redis
// operations (SADD / SCARD / SPOP).
type connectorBase struct {
	store *Store
	cfg   OutputConfig
}

func (c *connectorBase) Config() OutputConfig { return c.cfg }

// buildEntry joins the named fields of input with ";", failing when a
// field is missing, per AConnector::ParseData.
func (c *connectorBase) buildEntry(input map[string]string, fields []string) (string, error) {
	parts := make([]string, 0, len(fields))
	for _, name := range fields {
		val, ok := input[name]
		if !ok {
			return "", fmt.Errorf("buffer: %q is missing in the input line, output ignored", name)
		}
		parts = append(parts, val)
	}
	return strings.Join(parts, ";"), nil
}

func (c *connectorBase) RedisListLen() (int64, error) {
	return c.store.SetLen(c.cfg.RedisList)
}

func (c *connectorBase) RedisPopLogs(n int64) ([]string, error) {
	return c.store.PopLogs(c.cfg.RedisList, n)
}

func (c *connectorBase) RedisReinsertLogs(logs []string) error {
	for _, l := range logs {
		if err := c.store.AddEntry(c.cfg.RedisList, l); err != nil {
			return err
		}
	}
	return nil
}

func (c *connectorBase) RedisSetExpiry(ttl time.Duration) error {
	return c.store.SetExpiry(c.cfg.RedisList, ttl)
}

// jsonStringList renders fields as a JSON array of strings.
func jsonStringList(fields []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(f)
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return b.String()
}

// splitLogsToJSON renders each ";"-joined entry as a JSON string array
// and wraps them all in one outer array.
func splitLogsToJSON(logs []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, l := range logs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(jsonStringList(strings.Split(l, ";")))
	}
	b.WriteByte(']')
	return b.String()
}

// anomalyConnector buffers connection 4-tuples and pre-processes them
// into per-source fan-out counters for the anomaly filter, per
// fAnomalyConnector.
type anomalyConnector struct {
	connectorBase
}

var anomalyFields = []string{"net_src_ip", "net_dst_ip", "net_dst_port", "ip_proto"}

// minAnomalySources is the minimum count of distinct source IPs an
// anomaly batch must cover before it is sent downstream.
const minAnomalySources = 6

func (c *anomalyConnector) Kind() Kind { return KindAnomaly }

func (c *anomalyConnector) ParseInputForRedis(input map[string]string) error {
	entry, err := c.buildEntry(input, anomalyFields)
	if err != nil {
		return err
	}
	return c.store.AddEntry(c.cfg.RedisList, entry)
}

// counter slots of one source's aggregate, per fAnomalyConnector's
// data array layout.
const (
	udpNbHost = iota
	udpNbPort
	tcpNbHost
	tcpNbPort
	icmpNbHost
	anomalySlots
)

// FormatDataToSend aggregates popped "src;dst;port;proto" entries into
// one [source, udp_nb_host, udp_nb_port, tcp_nb_host, tcp_nb_port,
// icmp_nb_host] row per distinct source, counting distinct destination
// hosts and ports per protocol, per fAnomalyConnector::PreProcess.
func (c *anomalyConnector) FormatDataToSend(logs []string) (string, bool) {
	data := make(map[string]*[anomalySlots]int)
	seenHost := make(map[string]struct{})
	seenPort := make(map[string]struct{})

	for _, l := range logs {
		parts := strings.Split(l, ";")
		if len(parts) != 4 {
			continue
		}
		src, dst, port, proto := parts[0], parts[1], parts[2], parts[3]
		if src == "" || dst == "" || proto == "" || (proto != "1" && port == "") {
			continue
		}

		counters, ok := data[src]
		if !ok {
			counters = &[anomalySlots]int{}
			data[src] = counters
		}

		var hostSlot, portSlot int
		switch proto {
		case "1":
			hostSlot, portSlot = icmpNbHost, -1
		case "17":
			hostSlot, portSlot = udpNbHost, udpNbPort
		case "6":
			hostSlot, portSlot = tcpNbHost, tcpNbPort
		default:
			continue
		}

		hostKey := src + ":" + proto + ":" + dst
		if _, dup := seenHost[hostKey]; !dup {
			seenHost[hostKey] = struct{}{}
			counters[hostSlot]++
		}
		if portSlot >= 0 {
			portKey := src + ":" + proto + ":" + port
			if _, dup := seenPort[portKey]; !dup {
				seenPort[portKey] = struct{}{}
				counters[portSlot]++
			}
		}
	}

	if len(data) < minAnomalySources {
		return "", false
	}

	sources := make([]string, 0, len(data))
	for src := range data {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var b strings.Builder
	b.WriteByte('[')
	for i, src := range sources {
		if i > 0 {
			b.WriteByte(',')
		}
		counters := data[src]
		fmt.Fprintf(&b, `["%s",%d,%d,%d,%d,%d]`, src,
			counters[udpNbHost], counters[udpNbPort],
			counters[tcpNbHost], counters[tcpNbPort],
			counters[icmpNbHost])
	}
	b.WriteByte(']')
	return b.String(), true
}

// sofaConnector buffers host inventory tuples for the sofa filter, per
// fSofaConnector.
type sofaConnector struct {
	connectorBase
}

var sofaFields = []string{"ip", "hostname", "os", "proto", "port"}

func (c *sofaConnector) Kind() Kind { return KindSofa }

func (c *sofaConnector) ParseInputForRedis(input map[string]string) error {
	entry, err := c.buildEntry(input, sofaFields)
	if err != nil {
		return err
	}
	return c.store.AddEntry(c.cfg.RedisList, entry)
}

func (c *sofaConnector) FormatDataToSend(logs []string) (string, bool) {
	if len(logs) == 0 {
		return "", false
	}
	return splitLogsToJSON(logs), true
}

// bufferConnector buffers the full field set for a downstream buffer
// stage, per fBufferConnector.
type bufferConnector struct {
	connectorBase
}

var bufferFields = []string{
	"net_src_ip", "net_dst_ip", "net_dst_port", "ip_proto",
	"ip", "hostname", "os", "proto", "port",
}

func (c *bufferConnector) Kind() Kind { return KindBuffer }

func (c *bufferConnector) ParseInputForRedis(input map[string]string) error {
	entry, err := c.buildEntry(input, bufferFields)
	if err != nil {
		return err
	}
	return c.store.AddEntry(c.cfg.RedisList, entry)
}

func (c *bufferConnector) FormatDataToSend(logs []string) (string, bool) {
	if len(logs) == 0 {
		return "", false
	}
	return splitLogsToJSON(logs), true
}

// sumConnector aggregates a single decimal field as one Redis counter
// instead of a set of entries: sum-of-values, not list-of-values. It
// overrides the base's add, length, pop and reinsert operations (the
// expiry setting is inherited unchanged), and it does NOT
// reinsert on forward failure, per SumConnector::REDISReinsertLogs.
type sumConnector struct {
	connectorBase
}

func (c *sumConnector) Kind() Kind { return KindSum }

func (c *sumConnector) ParseInputForRedis(input map[string]string) error {
	entry, err := c.buildEntry(input, []string{"decimal"})
	if err != nil {
		return err
	}
	var value float64
	if _, err := fmt.Sscanf(entry, "%g", &value); err != nil {
		return fmt.Errorf("buffer: sum connector needs a decimal value, got %q", entry)
	}
	return c.store.IncrByFloat(c.cfg.RedisList, value)
}

// RedisListLen reads the counter's rounded absolute value, per
// SumConnector::REDISListLen.
func (c *sumConnector) RedisListLen() (int64, error) {
	return c.store.CounterValue(c.cfg.RedisList)
}

// RedisPopLogs atomically swaps the counter for 0 and returns the old
// value as a single pseudo-log, per SumConnector::REDISPopLogs.
func (c *sumConnector) RedisPopLogs(int64) ([]string, error) {
	val, err := c.store.GetSetZero(c.cfg.RedisList)
	if err != nil {
		return nil, err
	}
	return []string{val}, nil
}

// RedisReinsertLogs deliberately drops the popped value: re-adding a
// sum after a partial flush would double-count later increments.
func (c *sumConnector) RedisReinsertLogs([]string) error { return nil }

func (c *sumConnector) FormatDataToSend(logs []string) (string, bool) {
	if len(logs) != 1 {
		return "", false
	}
	body := fmt.Sprintf(`[[%s,"%s"]]`, logs[0], time.Now().Format("2006-01-02T15:04:05-0700"))
	return body, true
}
