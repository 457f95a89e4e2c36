package checksum

import "testing"

func TestComputeEmpty(t *testing.T) {
	if got := Compute(nil); got != 0xffff {
		t.Errorf("Compute(nil) = %#04x, want 0xffff (all-ones fold of a zero sum)", got)
	}
}

func TestFoldPreservesAllOnes(t *testing.T) {
	// A folded accumulator of exactly 0xffff must not be complemented to
	// zero (spec.md §4.1).
	if got := Fold(0xffff); got != 0xffff {
		t.Errorf("Fold(0xffff) = %#04x, want 0xffff", got)
	}
}

func TestComputeKnownValue(t *testing.T) {
	// Standard RFC 1071 worked example: bytes 0x0001 0xf203 0xf4f5 0xf6f7
	// sum (ones complement, end-around carry) to 0xddf2, whose complement
	// is 0x220d.
	data := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	got := Compute(data)
	want := uint16(0x220d)
	if got != want {
		t.Errorf("Compute(%x) = %#04x, want %#04x", data, got, want)
	}
}

func TestComputeOddLength(t *testing.T) {
	a := Compute([]byte{0x01, 0x02, 0x03})
	b := Compute([]byte{0x01, 0x02, 0x03, 0x00})
	if a != b {
		t.Errorf("trailing odd byte should checksum as if zero-padded: got %#04x vs %#04x", a, b)
	}
}

func TestPartialChaining(t *testing.T) {
	whole := []byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc}
	oneShot := Fold(Partial(whole, 0))

	p1 := Partial(whole[:2], 0)
	chained := Fold(Partial(whole[2:], p1))
	if oneShot != chained {
		t.Errorf("chained partial sums = %#04x, want %#04x (one-shot)", chained, oneShot)
	}
}

func TestBlockAddEvenOffset(t *testing.T) {
	a := Partial([]byte{0x00, 0x01}, 0)
	b := Partial([]byte{0x00, 0x02}, 0)
	combined := BlockAdd(a, b, 0)
	want := Partial([]byte{0x00, 0x01, 0x00, 0x02}, 0)
	if combined != want {
		t.Errorf("BlockAdd at even offset = %#x, want %#x", combined, want)
	}
}

func TestCopyAndChecksumMatchesCompute(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6, 7}
	dst := make([]byte, len(src))
	got := CopyAndChecksum(dst, src)
	want := Compute(src)
	if got != want {
		t.Errorf("CopyAndChecksum = %#04x, want %#04x", got, want)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("CopyAndChecksum did not copy byte %d correctly", i)
		}
	}
}
