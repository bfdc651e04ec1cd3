// Package darwinpacket implements the Darwin wire frame: a fixed
// 48-byte header, a variable certitude region, and a variable body.
// It owns no I/O of its own — only parse/serialize, mirroring
// pkg/proc/binary_header.go's EncodeHeader/DecodeHeader split, adapted
// for a variable-length header region (the certitudes live inside the
// header per spec.md's wire table) and grounded in semantics on
// original_source/samples/base/DarwinPacket.{hpp,cpp}.
package darwinpacket

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Type is the packet routing discriminant.
type Type int32

const (
	TypeOther Type = iota
	TypeFilter
	TypeAlert
)

func (t Type) valid() bool { return t >= TypeOther && t <= TypeAlert }

// ResponseKind controls where a processed packet's response is delivered.
type ResponseKind int32

const (
	ResponseNone ResponseKind = iota
	ResponseBack
	ResponseDarwin
	ResponseBoth
)

func (r ResponseKind) valid() bool { return r >= ResponseNone && r <= ResponseBoth }

const (
	// headerFixedSize is the 48-byte fixed prefix: type(4) + response(4)
	// + filter_code(8) + body_size(8) + event_id(16) + certitude_count(8).
	headerFixedSize = 4 + 4 + 8 + 8 + 16 + 8
	// certitudeSize is the wire size of one certitude entry.
	certitudeSize = 4
	// DefaultCertitudeListSize mirrors DEFAULT_CERTITUDE_LIST_SIZE: the
	// protocol always reserves at least one certitude slot.
	DefaultCertitudeListSize = 1
)

// MinimalSize is the minimum number of bytes that must be read to know
// a packet's full wire length (the fixed header plus one certitude slot).
func MinimalSize() int {
	return headerFixedSize + DefaultCertitudeListSize*certitudeSize
}

// EventID is the 16 opaque bytes identifying a request across filter hops.
type EventID [16]byte

// String renders the event id in canonical 8-4-4-4-12 hex form.
func (e EventID) String() string {
	return uuid.UUID(e).String()
}

// Packet is the decoded form of a Darwin wire frame. It is move-only in
// spirit: callers that need an independent copy must call Clone.
type Packet struct {
	Type                   Type
	ResponseKind           ResponseKind
	FilterCode             uint64
	EventID                EventID
	DeclaredBodySize       uint64
	DeclaredCertitudeCount uint64
	Body                   []byte
	Certitudes             []uint32
	Logs                   string
}

// New builds a zero-valued Packet with the given header fields,
// matching the DarwinPacket(type, response, filter_code, event_id,
// certitude_size, body_size) constructor.
func New(t Type, r ResponseKind, filterCode uint64, eventID EventID, certitudeSize, bodySize uint64) *Packet {
	return &Packet{
		Type:                   t,
		ResponseKind:           r,
		FilterCode:             filterCode,
		EventID:                eventID,
		DeclaredCertitudeCount: certitudeSize,
		DeclaredBodySize:       bodySize,
	}
}

// Clear resets the packet to its zero state, mirroring DarwinPacket::clear().
func (p *Packet) Clear() {
	p.Type = TypeOther
	p.ResponseKind = ResponseNone
	p.FilterCode = 0
	p.EventID = EventID{}
	p.DeclaredBodySize = 0
	p.DeclaredCertitudeCount = 0
	p.Certitudes = nil
	p.Body = nil
	p.Logs = ""
}

// AddCertitude appends a certitude to the list.
func (p *Packet) AddCertitude(c uint32) {
	p.Certitudes = append(p.Certitudes, c)
}

// Clone makes an explicit deep copy, since a Packet is otherwise move-only.
func (p *Packet) Clone() *Packet {
	out := *p
	out.Body = append([]byte(nil), p.Body...)
	out.Certitudes = append([]uint32(nil), p.Certitudes...)
	return &out
}

// Encode serializes the packet into a single contiguous buffer. Declared
// sizes in the emitted header are taken from the actual body/certitude
// lengths, never from DeclaredBodySize/DeclaredCertitudeCount.
func (p *Packet) Encode() []byte {
	bodyLen := len(p.Body)
	certLen := len(p.Certitudes)
	size := headerFixedSize + certLen*certitudeSize + bodyLen
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Type))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.ResponseKind))
	binary.LittleEndian.PutUint64(buf[8:16], p.FilterCode)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(bodyLen))
	copy(buf[24:40], p.EventID[:])
	binary.LittleEndian.PutUint64(buf[40:48], uint64(certLen))

	off := headerFixedSize
	for _, c := range p.Certitudes {
		binary.LittleEndian.PutUint32(buf[off:off+4], c)
		off += certitudeSize
	}
	copy(buf[off:], p.Body)

	return buf
}
