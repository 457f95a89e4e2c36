package wire

import (
	"encoding/binary"
	"net"

	"github.com/steve-o/openpgm-sub004/pgmerr"
)

// OptionType is the low-6-bit option type carried in an option TLV's first
// byte; the top two bits are the End and NetworkSignificant flags (spec.md
// §4.1).
type OptionType uint8

// Option types recognized by the codec.
const (
	OptLength    OptionType = 0x00
	OptFragment  OptionType = 0x01
	OptNakList   OptionType = 0x02
	OptJoin      OptionType = 0x03
	OptRedirect  OptionType = 0x07
	OptParityPrm OptionType = 0x08
	OptParityCur OptionType = 0x09
	OptParityGrp OptionType = 0x0A
	OptRst       OptionType = 0x0B
	OptSyn       OptionType = 0x0C
	OptFin       OptionType = 0x0D
	OptCR        OptionType = 0x0E
)

const (
	optEndMask  uint8 = 0x80
	optNetMask  uint8 = 0x40
	optTypeMask uint8 = 0x3f
)

// MaxNakListEntries is the largest number of sequence numbers one
// OPT_NAK_LIST can coalesce (spec.md §4.1).
const MaxNakListEntries = 62

// Option is one decoded entry of a packet's option TLV chain.
type Option struct {
	Type               OptionType
	End                bool
	NetworkSignificant bool
	Body               []byte // raw TLV body, excluding the 2-byte type+length header
}

// knownOptionTypes lists the option types this codec understands; any other
// type encountered with NetworkSignificant set is a hard parse error.
var knownOptionTypes = map[OptionType]bool{
	OptLength: true, OptFragment: true, OptNakList: true, OptJoin: true,
	OptRedirect: true, OptParityPrm: true, OptParityCur: true, OptParityGrp: true,
	OptRst: true, OptSyn: true, OptFin: true, OptCR: true,
}

// ParseOptions decodes an option TLV chain. buf must begin with the
// mandatory OPT_LENGTH option. It validates opt_length >= 4 for every
// entry and that the running total of entry lengths equals the
// opt_total_length advertised by OPT_LENGTH, per the reference
// implementation's option-chain validation (spec.md §9 "duck-typed option
// chains").
func ParseOptions(buf []byte) ([]Option, error) {
	if len(buf) < 4 {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "option chain shorter than OPT_LENGTH header")
	}
	lengthType := OptionType(buf[0] & optTypeMask)
	if lengthType != OptLength {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "option chain does not begin with OPT_LENGTH")
	}
	firstLen := buf[1]
	if firstLen != 4 {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_LENGTH has wrong length %d, want 4", firstLen)
	}
	totalLength := binary.BigEndian.Uint16(buf[2:4])
	if int(totalLength) > len(buf) {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "opt_total_length %d exceeds buffer %d", totalLength, len(buf))
	}

	var options []Option
	pos := 4
	running := 4
	for pos < int(totalLength) {
		if pos+2 > len(buf) {
			return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "option header truncated at offset %d", pos)
		}
		typeByte := buf[pos]
		length := int(buf[pos+1])
		if length < 4 {
			return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "option length %d < 4 at offset %d", length, pos)
		}
		if pos+length > len(buf) {
			return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "option length %d overruns buffer at offset %d", length, pos)
		}
		opt := Option{
			Type:               OptionType(typeByte & optTypeMask),
			End:                typeByte&optEndMask != 0,
			NetworkSignificant: typeByte&optNetMask != 0,
			Body:               buf[pos+2 : pos+length],
		}
		if !knownOptionTypes[opt.Type] {
			if opt.NetworkSignificant {
				return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "unknown network-significant option type %#02x", opt.Type)
			}
			// Unknown, not network-significant: skip (don't decode),
			// but it still counts toward the length total.
		} else {
			options = append(options, opt)
		}
		running += length
		pos += length
		if opt.End {
			break
		}
	}
	if running != int(totalLength) {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "option chain length sum %d != opt_total_length %d", running, totalLength)
	}
	return options, nil
}

// SerializeOptions encodes an option chain, prefixing it with the
// mandatory OPT_LENGTH option and marking the last entry's End bit.
func SerializeOptions(options []Option) []byte {
	total := 4
	for _, o := range options {
		if o.Type == OptLength {
			continue
		}
		total += 2 + len(o.Body)
	}
	buf := make([]byte, 0, total)
	buf = append(buf, uint8(OptLength), 4)
	buf = append(buf, 0, 0) // opt_total_length, patched below
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))

	n := 0
	for _, o := range options {
		if o.Type == OptLength {
			continue
		}
		n++
	}
	i := 0
	for _, o := range options {
		if o.Type == OptLength {
			continue
		}
		i++
		typeByte := uint8(o.Type)
		if o.NetworkSignificant {
			typeByte |= optNetMask
		}
		if i == n {
			typeByte |= optEndMask
		}
		buf = append(buf, typeByte, uint8(2+len(o.Body)))
		buf = append(buf, o.Body...)
	}
	return buf
}

// Fragment decodes an OPT_FRAGMENT body: the first sequence number of the
// APDU, this fragment's byte offset within the APDU, and the APDU's total
// length.
type Fragment struct {
	APDUFirstSqn uint32
	Offset       uint32
	TotalLength  uint32
}

// AsFragment decodes o as an OPT_FRAGMENT.
func (o Option) AsFragment() (Fragment, error) {
	if len(o.Body) < 12 {
		return Fragment{}, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_FRAGMENT body too short")
	}
	return Fragment{
		APDUFirstSqn: binary.BigEndian.Uint32(o.Body[0:4]),
		Offset:       binary.BigEndian.Uint32(o.Body[4:8]),
		TotalLength:  binary.BigEndian.Uint32(o.Body[8:12]),
	}, nil
}

// FragmentOption builds an OPT_FRAGMENT option.
func FragmentOption(f Fragment) Option {
	body := make([]byte, 12)
	binary.BigEndian.PutUint32(body[0:4], f.APDUFirstSqn)
	binary.BigEndian.PutUint32(body[4:8], f.Offset)
	binary.BigEndian.PutUint32(body[8:12], f.TotalLength)
	return Option{Type: OptFragment, Body: body}
}

// AsNakList decodes o as an OPT_NAK_LIST: up to MaxNakListEntries
// additional sequence numbers coalesced with the packet's own sequence.
func (o Option) AsNakList() ([]uint32, error) {
	if len(o.Body)%4 != 0 {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_NAK_LIST body not a multiple of 4 bytes")
	}
	n := len(o.Body) / 4
	if n > MaxNakListEntries {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_NAK_LIST has %d entries, max %d", n, MaxNakListEntries)
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = binary.BigEndian.Uint32(o.Body[i*4 : i*4+4])
	}
	return out, nil
}

// NakListOption builds an OPT_NAK_LIST option, rejecting more than
// MaxNakListEntries sequence numbers.
func NakListOption(sqns []uint32) (Option, error) {
	if len(sqns) > MaxNakListEntries {
		return Option{}, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "%d NAKs exceeds OPT_NAK_LIST max %d", len(sqns), MaxNakListEntries)
	}
	body := make([]byte, 4*len(sqns))
	for i, s := range sqns {
		binary.BigEndian.PutUint32(body[i*4:i*4+4], s)
	}
	return Option{Type: OptNakList, Body: body}, nil
}

// ParityPrm decodes an OPT_PARITY_PRM body: FEC capability advertisement.
type ParityPrm struct {
	OnDemand   bool
	Proactive  bool
	VarPktLen  bool
	BlockSize  uint8 // n
	GroupSize  uint8 // k
}

// AsParityPrm decodes o as an OPT_PARITY_PRM.
func (o Option) AsParityPrm() (ParityPrm, error) {
	if len(o.Body) < 4 {
		return ParityPrm{}, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_PARITY_PRM body too short")
	}
	flags := o.Body[0]
	return ParityPrm{
		OnDemand:  flags&0x01 != 0,
		Proactive: flags&0x02 != 0,
		VarPktLen: flags&0x04 != 0,
		BlockSize: o.Body[2],
		GroupSize: o.Body[3],
	}, nil
}

// ParityPrmOption builds an OPT_PARITY_PRM option.
func ParityPrmOption(p ParityPrm) Option {
	body := make([]byte, 4)
	if p.OnDemand {
		body[0] |= 0x01
	}
	if p.Proactive {
		body[0] |= 0x02
	}
	if p.VarPktLen {
		body[0] |= 0x04
	}
	body[2] = p.BlockSize
	body[3] = p.GroupSize
	return Option{Type: OptParityPrm, NetworkSignificant: true, Body: body}
}

// AsParityGrp decodes o as an OPT_PARITY_GRP: the transmission group
// number this ODATA/RDATA belongs to.
func (o Option) AsParityGrp() (uint32, error) {
	if len(o.Body) < 4 {
		return 0, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_PARITY_GRP body too short")
	}
	return binary.BigEndian.Uint32(o.Body[0:4]), nil
}

// ParityGrpOption builds an OPT_PARITY_GRP option.
func ParityGrpOption(tgSqn uint32) Option {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, tgSqn)
	return Option{Type: OptParityGrp, Body: body}
}

// AsParityCur decodes o as an OPT_PARITY_CUR: the parity offset (within
// [k, n)) of this particular parity packet.
func (o Option) AsParityCur() (uint32, error) {
	if len(o.Body) < 4 {
		return 0, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_PARITY_CUR body too short")
	}
	return binary.BigEndian.Uint32(o.Body[0:4]), nil
}

// ParityCurOption builds an OPT_PARITY_CUR option.
func ParityCurOption(offset uint32) Option {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, offset)
	return Option{Type: OptParityCur, Body: body}
}

// AsJoin decodes o as an OPT_JOIN: the minimum sequence number a
// late-joining receiver may request repairs for.
func (o Option) AsJoin() (uint32, error) {
	if len(o.Body) < 4 {
		return 0, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_JOIN body too short")
	}
	return binary.BigEndian.Uint32(o.Body[0:4]), nil
}

// JoinOption builds an OPT_JOIN option.
func JoinOption(minJoinSqn uint32) Option {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, minJoinSqn)
	return Option{Type: OptJoin, Body: body}
}

// AFI identifies the address family of an embedded NLA, per spec.md §6.
type AFI uint16

// AFI values.
const (
	AFIIPv4 AFI = 1
	AFIIPv6 AFI = 2
)

// AsRedirect decodes o as an OPT_REDIRECT: an alternate source NLA.
func (o Option) AsRedirect() (net.IP, error) {
	if len(o.Body) < 2 {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_REDIRECT body too short")
	}
	afi := AFI(binary.BigEndian.Uint16(o.Body[0:2]))
	switch afi {
	case AFIIPv4:
		if len(o.Body) < 6 {
			return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_REDIRECT IPv4 body too short")
		}
		return net.IP(o.Body[2:6]), nil
	case AFIIPv6:
		if len(o.Body) < 18 {
			return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeMalformed, "OPT_REDIRECT IPv6 body too short")
		}
		return net.IP(o.Body[2:18]), nil
	default:
		return nil, pgmerr.New(pgmerr.DomainSocket, pgmerr.CodeAFNoSupport, "unsupported NLA AFI %d", afi)
	}
}

// RedirectOption builds an OPT_REDIRECT option for an IPv4 or IPv6 NLA.
func RedirectOption(ip net.IP) (Option, error) {
	if v4 := ip.To4(); v4 != nil {
		body := make([]byte, 6)
		binary.BigEndian.PutUint16(body[0:2], uint16(AFIIPv4))
		copy(body[2:6], v4)
		return Option{Type: OptRedirect, Body: body}, nil
	}
	if v6 := ip.To16(); v6 != nil {
		body := make([]byte, 18)
		binary.BigEndian.PutUint16(body[0:2], uint16(AFIIPv6))
		copy(body[2:18], v6)
		return Option{Type: OptRedirect, Body: body}, nil
	}
	return Option{}, pgmerr.New(pgmerr.DomainSocket, pgmerr.CodeAFNoSupport, "address is neither IPv4 nor IPv6")
}

// markerOption builds a connection-oriented marker option with a 2-byte
// reserved body
// (OPT_RST/OPT_SYN/OPT_FIN/OPT_CR).
func markerOption(t OptionType) Option {
	return Option{Type: t, Body: make([]byte, 2)}
}

// RstOption, SynOption, FinOption, and CROption build the connection
// lifecycle marker options used by PGM's optional ACK-based extension
// (spec.md §4.1).
func RstOption() Option { return markerOption(OptRst) }
func SynOption() Option { return markerOption(OptSyn) }
func FinOption() Option { return markerOption(OptFin) }
func CROption() Option  { return markerOption(OptCR) }
