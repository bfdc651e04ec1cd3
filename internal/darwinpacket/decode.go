package darwinpacket

import (
	"encoding/binary"
	"fmt"

	"github.com/advens/darwin-go/internal/darwinerr"
)

// Limits bounds what a decoder will accept, guarding against a
// malicious or buggy peer declaring an unbounded body/certitude count.
type Limits struct {
	MaxBodySize       uint64
	MaxCertitudeCount uint64
}

// DefaultLimits matches typical filter configuration ceilings.
func DefaultLimits() Limits {
	return Limits{MaxBodySize: 64 << 20, MaxCertitudeCount: 1 << 20}
}

// Decode parses a complete wire frame (header + certitudes + body) held
// entirely in buf. It fails with a darwinerr.Error carrying
// CodeMalformed on truncation, CodeTooLarge on oversized declared
// sizes, or CodeUnknownType/CodeUnknownResponseKind on bad discriminants.
func Decode(buf []byte, limits Limits) (*Packet, error) {
	if len(buf) < headerFixedSize {
		return nil, darwinerr.New(darwinerr.CodeMalformed, "header truncated")
	}

	t := Type(binary.LittleEndian.Uint32(buf[0:4]))
	if !t.valid() {
		return nil, darwinerr.New(darwinerr.CodeUnknownType, fmt.Sprintf("unknown packet type %d", t))
	}

	r := ResponseKind(binary.LittleEndian.Uint32(buf[4:8]))
	if !r.valid() {
		return nil, darwinerr.New(darwinerr.CodeUnknownResponseKind, fmt.Sprintf("unknown response kind %d", r))
	}

	filterCode := binary.LittleEndian.Uint64(buf[8:16])
	bodySize := binary.LittleEndian.Uint64(buf[16:24])
	var eventID EventID
	copy(eventID[:], buf[24:40])
	certCount := binary.LittleEndian.Uint64(buf[40:48])

	if bodySize > limits.MaxBodySize {
		return nil, darwinerr.New(darwinerr.CodeTooLarge, fmt.Sprintf("declared body size %d exceeds limit %d", bodySize, limits.MaxBodySize))
	}
	if certCount > limits.MaxCertitudeCount {
		return nil, darwinerr.New(darwinerr.CodeTooLarge, fmt.Sprintf("declared certitude count %d exceeds limit %d", certCount, limits.MaxCertitudeCount))
	}

	need := headerFixedSize + int(certCount)*certitudeSize + int(bodySize)
	if len(buf) < need {
		return nil, darwinerr.New(darwinerr.CodeMalformed, "frame truncated")
	}

	off := headerFixedSize
	certitudes := make([]uint32, certCount)
	for i := range certitudes {
		certitudes[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += certitudeSize
	}

	body := append([]byte(nil), buf[off:off+int(bodySize)]...)

	return &Packet{
		Type:                   t,
		ResponseKind:           r,
		FilterCode:             filterCode,
		EventID:                eventID,
		DeclaredBodySize:       bodySize,
		DeclaredCertitudeCount: certCount,
		Body:                   body,
		Certitudes:             certitudes,
	}, nil
}

// PeekLength reads the fixed header prefix (already validated to be at
// least headerFixedSize bytes) and returns the total wire length of the
// frame it describes, without allocating the frame itself — used by the
// session's streaming reader to know how many more bytes to buffer
// before calling Decode, mirroring getMinimalSize()'s role in the
// original read-then-decode split.
func PeekLength(header []byte) (int, error) {
	if len(header) < headerFixedSize {
		return 0, darwinerr.New(darwinerr.CodeMalformed, "header prefix too short")
	}
	bodySize := binary.LittleEndian.Uint64(header[16:24])
	certCount := binary.LittleEndian.Uint64(header[40:48])
	return headerFixedSize + int(certCount)*certitudeSize + int(bodySize), nil
}

// HeaderFixedSize exposes the fixed-prefix length to callers outside
// the package (the session's streaming reader).
func HeaderFixedSize() int { return headerFixedSize }
