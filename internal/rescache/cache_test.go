package rescache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupMissOnEmptyCache(t *testing.T) {
	c := New(4)
	_, ok := c.Lookup(Fingerprint([]byte("x")))
	assert.False(t, ok)
}

func TestStoreThenLookupHits(t *testing.T) {
	c := New(4)
	fp := Fingerprint([]byte("evil.example"))
	c.Store(fp, 100)
	got, ok := c.Lookup(fp)
	assert.True(t, ok)
	assert.EqualValues(t, 100, got)
}

func TestZeroCapacityDisablesCaching(t *testing.T) {
	c := New(0)
	assert.False(t, c.Enabled())
	fp := Fingerprint([]byte("x"))
	c.Store(fp, 50)
	_, ok := c.Lookup(fp)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestEvictionNeverReturnsStaleWrongValue(t *testing.T) {
	c := New(2)
	c.Store(1, 10)
	c.Store(2, 20)
	c.Store(3, 30) // evicts fp=1, the LRU entry

	_, ok := c.Lookup(1)
	assert.False(t, ok, "evicted entry must miss, never return a stale value")

	v, ok := c.Lookup(2)
	assert.True(t, ok)
	assert.EqualValues(t, 20, v)
}

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint([]byte("same"), []byte("input"))
	b := Fingerprint([]byte("same"), []byte("input"))
	assert.Equal(t, a, b)
}
