// Package gsi implements PGM Global Session Identifiers and Transport
// Session Identifiers, and the RFC 1982 serial arithmetic used throughout
// the protocol engine for sequence number comparison.
package gsi

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/rs/xid"
)

// GSI is a 6-byte Global Session Identifier, uniquely identifying a source
// host for the lifetime of one session.
type GSI [6]byte

// TSI is a Transport Session Identifier: a GSI plus the 16-bit source port
// that the sending socket is bound to. Equality is bytewise.
type TSI struct {
	GSI   GSI
	SPort uint16
}

// String returns the canonical "g0.g1.g2.g3.g4.g5.sport" form.
func (t TSI) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d.%d.%d",
		t.GSI[0], t.GSI[1], t.GSI[2], t.GSI[3], t.GSI[4], t.GSI[5], t.SPort)
}

// Equal reports bytewise TSI equality.
func (t TSI) Equal(o TSI) bool {
	return t.GSI == o.GSI && t.SPort == o.SPort
}

var cachedHostGSI *GSI

// FromHost derives a GSI from the local hostname plus the time of its first call,
// the same "stable identity, cached for the life of the process" idiom the
// teacher uses to build socket-cookie prefixes. It is deterministic for a
// single process lifetime but not guaranteed globally unique; callers that
// need a hard uniqueness guarantee should use NewRandom instead.
func FromHost() (GSI, error) {
	if cachedHostGSI != nil {
		return *cachedHostGSI, nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		return GSI{}, err
	}
	var sum uint32
	for i := 0; i < len(hostname); i++ {
		sum = sum*31 + uint32(hostname[i])
	}
	var g GSI
	binary.BigEndian.PutUint32(g[0:4], sum)
	binary.BigEndian.PutUint16(g[4:6], uint16(time.Now().UnixNano()))
	cachedHostGSI = &g
	return g, nil
}

// NewRandom returns a GSI built from a globally-unique xid, for use when no
// stable host identity (hostname, boot time) is available -- e.g. in a
// container without a fixed hostname. Only the first 6 bytes of the 12-byte
// xid are used; xid already embeds a timestamp, machine ID, and counter, so
// truncation still leaves enough entropy to avoid collision within a single
// multicast scope.
func NewRandom() GSI {
	id := xid.New()
	var g GSI
	copy(g[:], id.Bytes()[:6])
	return g
}

// NewSecureRandom returns a cryptographically random GSI, for callers that
// cannot tolerate even the small structured bias of NewRandom.
func NewSecureRandom() (GSI, error) {
	var g GSI
	if _, err := rand.Read(g[:]); err != nil {
		return GSI{}, err
	}
	return g, nil
}

// Less implements RFC 1982 serial number arithmetic for 32-bit unsigned
// sequence numbers: a < b iff the signed difference (a-b) is negative. The
// window this applies to must never span more than 2^31-1 sequence numbers,
// per the data model invariant.
func Less(a, b uint32) bool {
	return int32(a-b) < 0
}

// LessEqual reports a <= b under serial arithmetic.
func LessEqual(a, b uint32) bool {
	return a == b || Less(a, b)
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b
// under serial arithmetic; it is always the case that Compare(a,b) ==
// -Compare(b,a).
func Compare(a, b uint32) int {
	if a == b {
		return 0
	}
	if Less(a, b) {
		return -1
	}
	return 1
}

// Distance returns b-a as a signed count of sequence numbers, i.e. how many
// sequence numbers lie between a and b (negative if b precedes a).
func Distance(a, b uint32) int32 {
	return int32(b - a)
}
