package wire

import (
	"encoding/binary"

	"github.com/steve-o/openpgm-sub004/pgmerr"
)

// The codec above handles the common header and option chain uniformly
// across packet types; each type's fixed body still needs its own
// sequence-prefixed layout (RFC 3208 §8). These encode/decode pairs are
// that layer -- the source engine calls the Encode* side when building an
// outgoing Packet.Body, the receiver engine calls the Decode* side on an
// inbound Packet.Body before constructing the skb that RXW/TXW operate on.

// EncodeDataBody builds an ODATA/RDATA body: a 4-byte sequence number
// followed immediately by the TSDU. Parity packets use this same layout;
// their transmission-group membership and in-group offset travel in the
// OPT_PARITY_GRP/OPT_PARITY_CUR options instead of being derivable from
// this sequence field.
func EncodeDataBody(sequence uint32, tsdu []byte) []byte {
	body := make([]byte, 4+len(tsdu))
	binary.BigEndian.PutUint32(body[0:4], sequence)
	copy(body[4:], tsdu)
	return body
}

// DecodeDataBody splits a received ODATA/RDATA body into its sequence
// number and TSDU.
func DecodeDataBody(body []byte) (sequence uint32, tsdu []byte, err error) {
	if len(body) < 4 {
		return 0, nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "data body shorter than sequence field")
	}
	return binary.BigEndian.Uint32(body[0:4]), body[4:], nil
}

// SPMBody is an SPM's fixed body: the SPM's own sequence number plus the
// transmit-window extents it advertises (spec.md §4.5's
// update(txw_lead, txw_trail)).
type SPMBody struct {
	Sqn   uint32
	Trail uint32
	Lead  uint32
}

// EncodeSPMBody serializes an SPMBody.
func EncodeSPMBody(b SPMBody) []byte {
	body := make([]byte, 12)
	binary.BigEndian.PutUint32(body[0:4], b.Sqn)
	binary.BigEndian.PutUint32(body[4:8], b.Trail)
	binary.BigEndian.PutUint32(body[8:12], b.Lead)
	return body
}

// DecodeSPMBody parses an SPMBody.
func DecodeSPMBody(body []byte) (SPMBody, error) {
	if len(body) < 12 {
		return SPMBody{}, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "SPM body too short")
	}
	return SPMBody{
		Sqn:   binary.BigEndian.Uint32(body[0:4]),
		Trail: binary.BigEndian.Uint32(body[4:8]),
		Lead:  binary.BigEndian.Uint32(body[8:12]),
	}, nil
}

// NakBody is the fixed body shared by NAK, NNAK, and NCF: the sequence
// number being requested or confirmed. Additional coalesced sequences
// ride along in an OPT_NAK_LIST option (spec.md §4.1's 62-entry
// coalescing limit).
type NakBody struct {
	Sequence uint32
}

// EncodeNakBody serializes a NakBody.
func EncodeNakBody(b NakBody) []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, b.Sequence)
	return body
}

// DecodeNakBody parses a NakBody.
func DecodeNakBody(body []byte) (NakBody, error) {
	if len(body) < 4 {
		return NakBody{}, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "NAK body too short")
	}
	return NakBody{Sequence: binary.BigEndian.Uint32(body[0:4])}, nil
}
