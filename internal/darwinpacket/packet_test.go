package darwinpacket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEventID() EventID {
	return EventID{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
}

func TestEventIDString(t *testing.T) {
	assert.Equal(t, "00112233-4455-6677-8899-aabbccddeeff", sampleEventID().String())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := New(TypeFilter, ResponseBack, 0x79617261, sampleEventID(), 2, 5)
	p.Body = []byte(`[["a"]]`)
	p.Certitudes = []uint32{100, 0}

	encoded := p.Encode()
	decoded, err := Decode(encoded, DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, p.Type, decoded.Type)
	assert.Equal(t, p.ResponseKind, decoded.ResponseKind)
	assert.Equal(t, p.FilterCode, decoded.FilterCode)
	assert.Equal(t, p.EventID, decoded.EventID)
	assert.Equal(t, p.Body, decoded.Body)
	assert.Equal(t, p.Certitudes, decoded.Certitudes)
	// declared sizes reflect actual lengths, not the constructor's hint
	assert.EqualValues(t, len(p.Body), decoded.DeclaredBodySize)
	assert.EqualValues(t, len(p.Certitudes), decoded.DeclaredCertitudeCount)
}

func TestEncodeDeterministic(t *testing.T) {
	p := New(TypeOther, ResponseNone, 1, sampleEventID(), 0, 0)
	p.Body = []byte("x")
	assert.Equal(t, p.Encode(), p.Encode())
}

func TestEmptyBodyRoundTrips(t *testing.T) {
	p := New(TypeFilter, ResponseBack, 1, sampleEventID(), 0, 0)
	decoded, err := Decode(p.Encode(), DefaultLimits())
	require.NoError(t, err)
	assert.Empty(t, decoded.Body)
	assert.Empty(t, decoded.Certitudes)
}

func TestDecodeMalformedTruncated(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, DefaultLimits())
	assert.ErrorContains(t, err, "PROTO_MALFORMED")
}

func TestDecodeTooLargeBody(t *testing.T) {
	p := New(TypeOther, ResponseNone, 1, sampleEventID(), 0, 0)
	p.Body = make([]byte, 100)
	_, err := Decode(p.Encode(), Limits{MaxBodySize: 10, MaxCertitudeCount: 10})
	assert.ErrorContains(t, err, "PROTO_TOOLARGE")
}

func TestDecodeUnknownType(t *testing.T) {
	p := New(TypeOther, ResponseNone, 1, sampleEventID(), 0, 0)
	buf := p.Encode()
	buf[0] = 99
	_, err := Decode(buf, DefaultLimits())
	assert.ErrorContains(t, err, "PROTO_UNKNOWN_TYPE")
}

func TestDecodeUnknownResponseKind(t *testing.T) {
	p := New(TypeOther, ResponseNone, 1, sampleEventID(), 0, 0)
	buf := p.Encode()
	buf[4] = 99
	_, err := Decode(buf, DefaultLimits())
	assert.ErrorContains(t, err, "PROTO_UNKNOWN_RESPONSE_KIND")
}

func TestClonePerformsDeepCopy(t *testing.T) {
	p := New(TypeOther, ResponseNone, 1, sampleEventID(), 0, 0)
	p.Body = []byte("original")
	clone := p.Clone()
	clone.Body[0] = 'X'
	assert.Equal(t, byte('o'), p.Body[0])
}

func TestPeekLengthMatchesEncode(t *testing.T) {
	p := New(TypeFilter, ResponseBoth, 1, sampleEventID(), 1, 3)
	p.Body = []byte("abc")
	p.Certitudes = []uint32{42}
	encoded := p.Encode()
	n, err := PeekLength(encoded[:HeaderFixedSize()])
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
}
