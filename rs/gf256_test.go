package rs

import "testing"

func TestGFMulZero(t *testing.T) {
	if gfMul(0, 200) != 0 || gfMul(200, 0) != 0 {
		t.Error("gfMul with a zero operand should be 0")
	}
}

func TestGFMulDivRoundTrip(t *testing.T) {
	for a := 1; a < 256; a++ {
		for b := 1; b < 256; b++ {
			p := gfMul(byte(a), byte(b))
			if gfDiv(p, byte(b)) != byte(a) {
				t.Fatalf("gfDiv(gfMul(%d,%d), %d) = %d, want %d", a, b, b, gfDiv(p, byte(b)), a)
			}
		}
	}
}

func TestGFMulCommutative(t *testing.T) {
	for a := 0; a < 256; a += 7 {
		for b := 0; b < 256; b += 11 {
			if gfMul(byte(a), byte(b)) != gfMul(byte(b), byte(a)) {
				t.Fatalf("gfMul(%d,%d) != gfMul(%d,%d)", a, b, b, a)
			}
		}
	}
}

func TestVecAddMulZeroScalarNoOp(t *testing.T) {
	d := []byte{1, 2, 3}
	vecAddMul(d, 0, []byte{9, 9, 9})
	if d[0] != 1 || d[1] != 2 || d[2] != 3 {
		t.Errorf("vecAddMul with zero scalar mutated d: %v", d)
	}
}

func TestVecAddMulSelfCancels(t *testing.T) {
	d := make([]byte, 4)
	s := []byte{5, 6, 7, 8}
	vecAddMul(d, 3, s)
	vecAddMul(d, 3, s)
	for i, v := range d {
		if v != 0 {
			t.Errorf("d[%d] = %d after double addmul, want 0 (XOR self-cancel)", i, v)
		}
	}
}
