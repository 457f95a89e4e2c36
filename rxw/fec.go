package rxw

import (
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/skb"
	"github.com/steve-o/openpgm-sub004/wire"
)

// tgState tracks arrivals for one transmission group: offset (0..n-1,
// data packets at 0..k-1, parity at k..n-1) to the skb received at that
// offset.
type tgState struct {
	present  map[int]*skb.Skb
	promoted bool
}

// registerFECLocked records a data or parity arrival against its
// transmission group and attempts block promotion once k distinct
// offsets are present. Callers must hold w.mu.
func (w *RXW) registerFECLocked(tg uint32, offset int, s *skb.Skb) {
	if w.code == nil {
		return
	}
	st, ok := w.tgs[tg]
	if !ok {
		st = &tgState{present: make(map[int]*skb.Skb)}
		w.tgs[tg] = st
	}
	if st.promoted {
		return
	}
	st.present[offset] = s
	w.tryPromoteBlockLocked(tg, st)
}

// tryPromoteBlockLocked runs Reed-Solomon recovery once a transmission
// group has accumulated k of its n offsets, reconstructing any missing
// source (data) packets and installing them as HAVE_DATA slots.
// Translated in spirit from rxw.c's FEC block-completion check ahead of
// pgm_rs_decode_parity_inline.
func (w *RXW) tryPromoteBlockLocked(tg uint32, st *tgState) {
	k := w.code.K
	if st.promoted || len(st.present) < k {
		return
	}
	packetLen, ok := w.tgPacketLen[tg]
	if !ok {
		return
	}

	var parityOffsets []int
	for off := range st.present {
		if off >= k {
			parityOffsets = append(parityOffsets, off)
		}
	}

	block := make([][]byte, k)
	offsets := make([]uint8, k)
	pi := 0
	for j := 0; j < k; j++ {
		if s, have := st.present[j]; have {
			block[j] = s.TSDU()
			offsets[j] = uint8(j)
			continue
		}
		if pi >= len(parityOffsets) {
			return // not enough parity yet to cover every missing source packet
		}
		po := parityOffsets[pi]
		pi++
		block[j] = st.present[po].TSDU()
		offsets[j] = uint8(po)
	}

	if err := w.code.DecodeInline(block, offsets, packetLen); err != nil {
		return
	}
	st.promoted = true

	for j := 0; j < k; j++ {
		if _, have := st.present[j]; have {
			continue // genuine source packet, already a real slot
		}
		sequence := tg*uint32(k) + uint32(j)
		slot, ok := w.slots[sequence]
		if !ok {
			slot = &Slot{Sequence: sequence, TgSqn: tg}
			w.slots[sequence] = slot
		}
		if slot.State == HaveData || slot.State == CommitData {
			continue
		}
		w.removeFromQueueLocked(slot)
		recovered := &wire.Packet{Header: wire.Header{Type: wire.TypeODATA, DataLength: uint16(len(block[j]))}, Body: block[j]}
		slot.Skb = skb.New(gsi.TSI{}, sequence, recovered, block[j], time.Time{})
		slot.State = HaveData
	}
}
