package wire

import (
	"github.com/steve-o/openpgm-sub004/checksum"
	"github.com/steve-o/openpgm-sub004/pgmerr"
)

// Parse decodes a received UDP payload into a Packet, verifying the header
// checksum and, when HeaderOptPresent is set, the option TLV chain. It
// rejects malformed input with a *pgmerr.Error in DomainPacket rather than
// panicking, since buf originates from the network (spec.md §4.1).
func Parse(buf []byte) (*Packet, error) {
	if len(buf) < HeaderLen {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "packet shorter than header: %d bytes", len(buf))
	}
	h, err := unmarshalHeader(buf)
	if err != nil {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "%v", err)
	}

	verifyBuf := make([]byte, len(buf))
	copy(verifyBuf, buf)
	verifyBuf[6], verifyBuf[7] = 0, 0
	if got := checksum.Compute(verifyBuf); got != h.Checksum {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeChecksum, "checksum mismatch: got %#04x, header says %#04x", got, h.Checksum)
	}

	rest := buf[HeaderLen:]
	var options []Option
	if h.Options&HeaderOptPresent != 0 {
		if len(rest) < 4 {
			return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "OPT_PRESENT set but no room for OPT_LENGTH")
		}
		totalLen := int(rest[2])<<8 | int(rest[3])
		if totalLen > len(rest) {
			return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "option chain length %d exceeds remaining packet", totalLen)
		}
		options, err = ParseOptions(rest[:totalLen])
		if err != nil {
			return nil, err
		}
		rest = rest[totalLen:]
	}

	return &Packet{Header: h, Body: rest, Options: options}, nil
}

// Serialize encodes p into a wire-ready buffer, computing and filling in
// the header checksum and the HeaderOptPresent/HeaderOptNetwork flag bits
// from p.Options. Serialize(Parse(buf)) reproduces buf byte-for-byte for
// any buf that Parse accepted whose option chain holds only known option
// types; unknown options that Parse skips are not written back (spec.md
// §8 invariant 5).
func Serialize(p *Packet) ([]byte, error) {
	h := p.Header
	h.Options &^= HeaderOptPresent | HeaderOptNetwork
	var optBytes []byte
	if len(p.Options) > 0 {
		optBytes = SerializeOptions(p.Options)
		h.Options |= HeaderOptPresent
		for _, o := range p.Options {
			if o.NetworkSignificant {
				h.Options |= HeaderOptNetwork
				break
			}
		}
	}

	buf := make([]byte, HeaderLen+len(optBytes)+len(p.Body))
	h.Checksum = 0
	marshalHeader(buf[:HeaderLen], h)
	copy(buf[HeaderLen:HeaderLen+len(optBytes)], optBytes)
	copy(buf[HeaderLen+len(optBytes):], p.Body)

	sum := checksum.Compute(buf)
	buf[6] = byte(sum >> 8)
	buf[7] = byte(sum)
	return buf, nil
}
