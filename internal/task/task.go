package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/advens/darwin-go/internal/alert"
	"github.com/advens/darwin-go/internal/darwinjson"
	"github.com/advens/darwin-go/internal/darwinlog"
	"github.com/advens/darwin-go/internal/darwinpacket"
	"github.com/advens/darwin-go/internal/rescache"
)

// ErrorReturn is DARWIN_ERROR_RETURN: a certitude value reserved for
// per-entry errors, deliberately outside the valid 0-100 range.
const ErrorReturn uint32 = 101

// OutputMode controls how the response body is composed, per spec.md §4.6.
type OutputMode int

const (
	OutputNone OutputMode = iota
	OutputLog
	OutputRaw
	OutputParsed
)

// Result is posted exactly once by a Task's Execute to its owning
// session's result channel -- the channel-based replacement for the
// C++ enable_shared_from_this back-pointer (design note §9).
type Result struct {
	Packet       *darwinpacket.Packet
	ResponseBody []byte
}

// Task is one unit of classification work, owning one decoded packet.
type Task struct {
	FilterName string
	Classifier Classifier
	Cache      *rescache.Cache
	Alert      *alert.Manager
	Threshold  uint32
	Output     OutputMode
	Packet     *darwinpacket.Packet
	ResultCh   chan<- Result
	Log        *darwinlog.Logger
}

// Execute runs the full per-request lifecycle and implements
// workerpool.Task. It always posts exactly one Result before
// returning: the post happens in a deferred block that also recovers a
// panicking classifier into the error sentinel, so the session waiting
// on ResultCh can never be wedged by a misbehaving engine.
func (t *Task) Execute(ctx context.Context) (err error) {
	log := t.Log
	if log == nil {
		log = darwinlog.Default()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("task: recovered from panicking classifier", map[string]any{"filter": t.FilterName, "panic": fmt.Sprint(r)})
			t.Packet.AddCertitude(ErrorReturn)
			err = fmt.Errorf("classifier panic: %v", r)
		}
		if t.ResultCh != nil {
			t.ResultCh <- Result{Packet: t.Packet, ResponseBody: ComposeResponseBody(t.Output, t.Packet)}
		}
	}()

	entries, parseErr := t.parseBody()
	if parseErr != nil {
		log.Debug("task: body parse failure", map[string]any{"filter": t.FilterName, "err": parseErr.Error()})
		t.Packet.AddCertitude(ErrorReturn)
		return nil
	}

	isCache := t.Cache != nil && t.Cache.Enabled()
	for _, raw := range entries {
		t.processEntry(ctx, raw, isCache)
	}
	return nil
}

// parseBody is the default ParseBody(): interpret the body as a JSON
// array of entries. Classifiers needing a different shape set
// ParseLine to do the heavy lifting per entry; the array-of-entries
// framing itself is shared, matching ATask::ParseBody's default.
func (t *Task) parseBody() ([][]byte, error) {
	if len(t.Packet.Body) == 0 {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := darwinjson.Unmarshal(t.Packet.Body, &raw); err != nil {
		return nil, fmt.Errorf("body is not a JSON array: %w", err)
	}
	out := make([][]byte, len(raw))
	for i, r := range raw {
		out[i] = r
	}
	return out, nil
}

// processEntry classifies one body entry. A panic out of the
// classifier is treated like any other ClassifyError: the entry gets
// the error sentinel and processing continues with the next entry.
func (t *Task) processEntry(ctx context.Context, raw []byte, isCache bool) {
	start := time.Now()
	appended := false
	defer func() {
		if r := recover(); r != nil {
			if t.Log != nil {
				t.Log.Error("task: classifier panicked on entry", map[string]any{"filter": t.FilterName, "panic": fmt.Sprint(r)})
			}
			if !appended {
				t.Packet.AddCertitude(ErrorReturn)
			}
		}
	}()

	line, err := t.Classifier.ParseLine(raw)
	if err != nil {
		t.Packet.AddCertitude(ErrorReturn)
		return
	}

	var fp uint64
	if isCache {
		fp = t.Classifier.Hash(line)
		if cached, ok := t.Cache.Lookup(fp); ok {
			t.maybeAlert(line, cached)
			t.Packet.AddCertitude(cached)
			appended = true
			t.logDuration(start)
			return
		}
	}

	certitude, classifyErr := t.Classifier.Classify(ctx, line)
	if classifyErr != nil {
		t.Packet.AddCertitude(ErrorReturn)
		appended = true
		return
	}

	t.maybeAlert(line, certitude)
	t.Packet.AddCertitude(certitude)
	appended = true

	if isCache {
		t.Cache.Store(fp, certitude)
	}
	t.logDuration(start)
}

func (t *Task) maybeAlert(line ClassifiedLine, certitude uint32) {
	if certitude < t.Threshold {
		return
	}
	if t.Alert != nil {
		tags := ""
		if lt, ok := t.Classifier.(LineTagger); ok {
			tags = lt.LineAlertTags(line)
		}
		t.Alert.AlertEntry(
			t.Classifier.AlertEntry(line),
			certitude,
			t.Packet.EventID.String(),
			t.Classifier.AlertDetails(line, certitude),
			tags,
		)
	}
	if t.Output == OutputLog {
		t.Packet.Logs += fmt.Sprintf(
			`{"evt_id": "%s", "entry": "%s", "certitude": %d}`+"\n",
			t.Packet.EventID.String(), t.Classifier.AlertEntry(line), certitude,
		)
	}
}

func (t *Task) logDuration(start time.Time) {
	if t.Log == nil {
		return
	}
	t.Log.Debug("task: entry processed", map[string]any{
		"filter":      t.FilterName,
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

// ComposeResponseBody builds the response body per spec.md §4.6's
// NONE/LOG/RAW/PARSED output modes.
func ComposeResponseBody(mode OutputMode, p *darwinpacket.Packet) []byte {
	switch mode {
	case OutputLog:
		return []byte(p.Logs)
	case OutputRaw:
		return p.Body
	case OutputParsed:
		// PARSED returns the packet body unchanged, the same bytes as
		// RAW: Classify has no access to the packet, so no classifier
		// produces a separate parsed body.
		return p.Body
	default:
		return nil
	}
}
