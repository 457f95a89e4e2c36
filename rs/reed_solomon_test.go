package rs

import (
	"bytes"
	"math/rand"
	"testing"
)

func randomPackets(k, packetLen int, seed int64) [][]byte {
	r := rand.New(rand.NewSource(seed))
	out := make([][]byte, k)
	for i := range out {
		out[i] = make([]byte, packetLen)
		r.Read(out[i])
	}
	return out
}

func TestNewRejectsBadParameters(t *testing.T) {
	cases := []struct{ n, k int }{
		{0, 0}, {8, 0}, {4, 8}, {256, 4},
	}
	for _, c := range cases {
		if _, err := New(c.n, c.k); err == nil {
			t.Errorf("New(%d, %d) should fail", c.n, c.k)
		}
	}
}

func TestGeneratorMatrixIsSystematic(t *testing.T) {
	code, err := New(8, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for offset := 0; offset < code.K; offset++ {
		for i := 0; i < code.K; i++ {
			want := byte(0)
			if i == offset {
				want = 1
			}
			if got := code.GM[offset*code.K+i]; got != want {
				t.Errorf("GM[%d][%d] = %#02x, want %#02x", offset, i, got, want)
			}
		}
	}
}

func TestEncodeDecodeInlineSingleErasure(t *testing.T) {
	const n, k, packetLen = 8, 4, 32
	code, err := New(n, k)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := randomPackets(k, packetLen, 1)

	parity := make([][]byte, n-k)
	for offset := k; offset < n; offset++ {
		parity[offset-k] = make([]byte, packetLen)
		if err := code.Encode(src, offset, parity[offset-k]); err != nil {
			t.Fatalf("Encode(offset=%d): %v", offset, err)
		}
	}

	for erased := 0; erased < k; erased++ {
		block := make([][]byte, k)
		for i := range block {
			block[i] = append([]byte(nil), src[i]...)
		}
		offsets := make([]uint8, k)
		for i := range offsets {
			offsets[i] = uint8(i)
		}
		offsets[erased] = uint8(k) // stand in with the first parity packet
		block[erased] = append([]byte(nil), parity[0]...)

		if err := code.DecodeInline(block, offsets, packetLen); err != nil {
			t.Fatalf("DecodeInline(erased=%d): %v", erased, err)
		}
		if !bytes.Equal(block[erased], src[erased]) {
			t.Errorf("DecodeInline(erased=%d) = %x, want %x", erased, block[erased], src[erased])
		}
	}
}

func TestEncodeDecodeAppended(t *testing.T) {
	const n, k, packetLen = 8, 4, 16
	code, err := New(n, k)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := randomPackets(k, packetLen, 2)
	parity0 := make([]byte, packetLen)
	if err := code.Encode(src, k, parity0); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	erased := 1
	block := make([][]byte, k+1)
	for i := 0; i < k; i++ {
		if i == erased {
			block[i] = make([]byte, packetLen) // precondition: erased slot zeroed
		} else {
			block[i] = append([]byte(nil), src[i]...)
		}
	}
	block[k] = append([]byte(nil), parity0...)

	offsets := make([]uint8, k)
	for i := range offsets {
		offsets[i] = uint8(i)
	}
	offsets[erased] = uint8(k)

	if err := code.DecodeAppended(block, offsets, packetLen); err != nil {
		t.Fatalf("DecodeAppended: %v", err)
	}
	if !bytes.Equal(block[erased], src[erased]) {
		t.Errorf("DecodeAppended repaired = %x, want %x", block[erased], src[erased])
	}
}

func TestEncodeRejectsOffsetOutOfRange(t *testing.T) {
	code, err := New(8, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := randomPackets(4, 8, 3)
	dst := make([]byte, 8)
	if err := code.Encode(src, 2, dst); err == nil {
		t.Error("Encode accepted an offset within the source range")
	}
	if err := code.Encode(src, 8, dst); err == nil {
		t.Error("Encode accepted an offset at n")
	}
}

func TestDecodeRejectsWrongOffsetCount(t *testing.T) {
	code, err := New(8, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	block := make([][]byte, 4)
	for i := range block {
		block[i] = make([]byte, 8)
	}
	if err := code.DecodeInline(block, []uint8{0, 1, 2}, 8); err == nil {
		t.Error("DecodeInline accepted the wrong number of offsets")
	}
}
