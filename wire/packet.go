// Package wire implements the PGM packet codec: header parse/serialize,
// option TLV chains, and checksum placement (spec.md §4.1, §6). It mirrors
// the teacher's "one struct plus a dispatch table keyed by a one-byte type"
// shape (inetdiag/structs.go, snapshot.go's attribute switch), adapted from
// netlink route attributes to PGM option headers.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/steve-o/openpgm-sub004/gsi"
)

//go:generate stringer -type=Type

// Type is the PGM packet type carried in the common header.
type Type uint8

// Packet types recognized by the codec (spec.md §4.1).
const (
	TypeSPM   Type = 0x00
	TypePOLL  Type = 0x01
	TypePOLR  Type = 0x02
	TypeODATA Type = 0x04
	TypeRDATA Type = 0x05
	TypeNAK   Type = 0x08
	TypeNNAK  Type = 0x09
	TypeNCF   Type = 0x0A
	TypeSPMR  Type = 0x0C
	TypeACK   Type = 0x0D
)

// String names a packet Type.
func (t Type) String() string {
	switch t {
	case TypeSPM:
		return "SPM"
	case TypePOLL:
		return "POLL"
	case TypePOLR:
		return "POLR"
	case TypeODATA:
		return "ODATA"
	case TypeRDATA:
		return "RDATA"
	case TypeNAK:
		return "NAK"
	case TypeNNAK:
		return "NNAK"
	case TypeNCF:
		return "NCF"
	case TypeSPMR:
		return "SPMR"
	case TypeACK:
		return "ACK"
	default:
		return fmt.Sprintf("Type(%#02x)", uint8(t))
	}
}

// HasData reports whether packets of this type carry a TSDU payload
// immediately following any option chain.
func (t Type) HasData() bool {
	return t == TypeODATA || t == TypeRDATA
}

// Header flag bits carried in the common header's "options" byte --
// distinct from the per-option TLV type byte below.
const (
	HeaderOptPresent   uint8 = 0x01 // an option chain follows the header/data
	HeaderOptNetwork   uint8 = 0x02 // a network-significant option is present
	HeaderOptVarPktlen uint8 = 0x40 // transmission group has variable packet lengths
	HeaderOptParity    uint8 = 0x80 // this ODATA/RDATA is FEC parity, not original data
)

// HeaderLen is the fixed size of the PGM common header in bytes.
const HeaderLen = 16

// Header is the 16-byte PGM common header (spec.md §6).
type Header struct {
	SourcePort uint16
	DestPort   uint16
	Type       Type
	Options    uint8 // HeaderOpt* flag bits
	Checksum   uint16
	GSI        gsi.GSI
	// DataLength is overloaded per RFC 3208: TSDU length for ODATA/RDATA,
	// otherwise type-specific (e.g. unused/reserved for SPM).
	DataLength uint16
}

// Packet is a fully parsed PGM packet: header, option chain, and body.
// Body holds everything after the option chain: for ODATA/RDATA the
// 4-byte sequence number followed by the TSDU (see DecodeDataBody), and
// the type-specific fixed body (SPM extents, NAK lists' fixed prefix,
// etc.) for everything else;
// Options holds the decoded option TLV chain, if any.
type Packet struct {
	Header  Header
	Body    []byte
	Options []Option
}

// marshalHeader writes h into the first HeaderLen bytes of buf (which must
// be at least HeaderLen bytes), leaving the checksum field as the literal
// 16 bits of h.Checksum -- callers that want a real checksum must compute
// it last, over the fully assembled packet with this field set to zero.
func marshalHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint16(buf[0:2], h.SourcePort)
	binary.BigEndian.PutUint16(buf[2:4], h.DestPort)
	buf[4] = uint8(h.Type)
	buf[5] = h.Options
	binary.BigEndian.PutUint16(buf[6:8], h.Checksum)
	copy(buf[8:14], h.GSI[:])
	binary.BigEndian.PutUint16(buf[14:16], h.DataLength)
}

func unmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, fmt.Errorf("wire: header truncated: %d bytes, want %d", len(buf), HeaderLen)
	}
	var h Header
	h.SourcePort = binary.BigEndian.Uint16(buf[0:2])
	h.DestPort = binary.BigEndian.Uint16(buf[2:4])
	h.Type = Type(buf[4])
	h.Options = buf[5]
	h.Checksum = binary.BigEndian.Uint16(buf[6:8])
	copy(h.GSI[:], buf[8:14])
	h.DataLength = binary.BigEndian.Uint16(buf[14:16])
	return h, nil
}
