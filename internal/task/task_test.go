package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advens/darwin-go/internal/alert"
	"github.com/advens/darwin-go/internal/darwinpacket"
	"github.com/advens/darwin-go/internal/rescache"
)

// fakeHostClassifier mimics HostLookupTask against an in-memory bad-host set.
type fakeHostClassifier struct {
	bad   map[string]bool
	calls int32
}

func (c *fakeHostClassifier) FilterCode() uint32 { return 0x66726570 }

func (c *fakeHostClassifier) ParseLine(entry []byte) (ClassifiedLine, error) {
	var items []string
	if err := json.Unmarshal(entry, &items); err != nil || len(items) != 1 {
		return nil, fmt.Errorf("expected a one-element list")
	}
	return items[0], nil
}

func (c *fakeHostClassifier) Hash(line ClassifiedLine) uint64 {
	return rescache.Fingerprint([]byte(line.(string)))
}

func (c *fakeHostClassifier) Classify(ctx context.Context, line ClassifiedLine) (uint32, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.bad[line.(string)] {
		return 100, nil
	}
	return 0, nil
}

func (c *fakeHostClassifier) AlertEntry(line ClassifiedLine) string { return line.(string) }
func (c *fakeHostClassifier) AlertDetails(line ClassifiedLine, certitude uint32) string {
	return "{}"
}
func (c *fakeHostClassifier) AlertRuleName() string { return "Lookup: " }
func (c *fakeHostClassifier) AlertTags() string     { return "[]" }

func newPacket(body string) *darwinpacket.Packet {
	return &darwinpacket.Packet{
		Type:         darwinpacket.TypeFilter,
		ResponseKind: darwinpacket.ResponseBack,
		Body:         []byte(body),
	}
}

func TestHostlookupHitProducesExpectedCertitudes(t *testing.T) {
	classifier := &fakeHostClassifier{bad: map[string]bool{"evil.example": true}}
	resultCh := make(chan Result, 1)
	p := newPacket(`[["evil.example"],["good.example"]]`)

	tk := &Task{
		FilterName: "hostlookup",
		Classifier: classifier,
		Cache:      rescache.New(0),
		Threshold:  50,
		Output:     OutputNone,
		Packet:     p,
		ResultCh:   resultCh,
	}
	require.NoError(t, tk.Execute(context.Background()))

	res := <-resultCh
	assert.Equal(t, []uint32{100, 0}, res.Packet.Certitudes)
}

func TestCacheRoundTripInvokesClassifierOnce(t *testing.T) {
	classifier := &fakeHostClassifier{bad: map[string]bool{"evil.example": true}}
	cache := rescache.New(8)

	run := func() {
		resultCh := make(chan Result, 1)
		tk := &Task{
			Classifier: classifier,
			Cache:      cache,
			Threshold:  50,
			Packet:     newPacket(`[["evil.example"]]`),
			ResultCh:   resultCh,
		}
		require.NoError(t, tk.Execute(context.Background()))
		res := <-resultCh
		assert.Equal(t, []uint32{100}, res.Packet.Certitudes)
	}

	run()
	run()
	assert.EqualValues(t, 1, atomic.LoadInt32(&classifier.calls), "second identical request must hit the cache")
}

func TestCertitudesEmittedEqualsNumberOfEntries(t *testing.T) {
	classifier := &fakeHostClassifier{bad: map[string]bool{}}
	resultCh := make(chan Result, 1)
	tk := &Task{
		Classifier: classifier,
		Cache:      rescache.New(0),
		Packet:     newPacket(`[["a"],["b"],["c"]]`),
		ResultCh:   resultCh,
	}
	require.NoError(t, tk.Execute(context.Background()))
	res := <-resultCh
	assert.Len(t, res.Packet.Certitudes, 3)
}

func TestParseLineErrorAppendsErrorReturn(t *testing.T) {
	classifier := &fakeHostClassifier{bad: map[string]bool{}}
	resultCh := make(chan Result, 1)
	tk := &Task{
		Classifier: classifier,
		Cache:      rescache.New(0),
		Packet:     newPacket(`[["a","b"]]`), // two elements -> ParseLine fails
		ResultCh:   resultCh,
	}
	require.NoError(t, tk.Execute(context.Background()))
	res := <-resultCh
	assert.Equal(t, []uint32{ErrorReturn}, res.Packet.Certitudes)
}

func TestEmptyBodyProducesNoCertitudes(t *testing.T) {
	classifier := &fakeHostClassifier{}
	resultCh := make(chan Result, 1)
	tk := &Task{Classifier: classifier, Cache: rescache.New(0), Packet: newPacket(""), ResultCh: resultCh}
	require.NoError(t, tk.Execute(context.Background()))
	res := <-resultCh
	assert.Empty(t, res.Packet.Certitudes)
}

func TestAlertRaisedAndLoggedAboveThreshold(t *testing.T) {
	classifier := &fakeHostClassifier{bad: map[string]bool{"evil.example": true}}
	m := alert.New(nil)
	require.True(t, m.Configure(alert.Config{LogFilePath: t.TempDir() + "/a.log"}))

	resultCh := make(chan Result, 1)
	tk := &Task{
		Classifier: classifier,
		Cache:      rescache.New(0),
		Alert:      m,
		Threshold:  50,
		Output:     OutputLog,
		Packet:     newPacket(`[["evil.example"]]`),
		ResultCh:   resultCh,
	}
	require.NoError(t, tk.Execute(context.Background()))
	res := <-resultCh
	assert.Contains(t, string(res.Packet.Logs), "evil.example")
}

// panickyClassifier blows up on a chosen hostname, standing in for a
// crashing third-party engine behind the classifier seam.
type panickyClassifier struct {
	fakeHostClassifier
	trigger string
}

func (c *panickyClassifier) Classify(ctx context.Context, line ClassifiedLine) (uint32, error) {
	if line.(string) == c.trigger {
		panic("engine crashed")
	}
	return c.fakeHostClassifier.Classify(ctx, line)
}

func TestPanickingClassifierStillDeliversResult(t *testing.T) {
	classifier := &panickyClassifier{
		fakeHostClassifier: fakeHostClassifier{bad: map[string]bool{"evil.example": true}},
		trigger:            "boom.example",
	}
	resultCh := make(chan Result, 1)
	tk := &Task{
		Classifier: classifier,
		Cache:      rescache.New(0),
		Threshold:  50,
		Packet:     newPacket(`[["boom.example"],["evil.example"]]`),
		ResultCh:   resultCh,
	}
	require.NoError(t, tk.Execute(context.Background()))

	res := <-resultCh
	assert.Equal(t, []uint32{ErrorReturn, 100}, res.Packet.Certitudes,
		"a panicking entry gets the error sentinel and later entries still classify")
}

func TestComposeResponseBodyModes(t *testing.T) {
	p := &darwinpacket.Packet{Body: []byte("raw-body"), Logs: "log-lines"}
	assert.Nil(t, ComposeResponseBody(OutputNone, p))
	assert.Equal(t, []byte("log-lines"), ComposeResponseBody(OutputLog, p))
	assert.Equal(t, []byte("raw-body"), ComposeResponseBody(OutputRaw, p))
}
