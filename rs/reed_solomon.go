package rs

import "github.com/steve-o/openpgm-sub004/pgmerr"

// RS is a systematic (n, k) Reed-Solomon code over GF(2⁸): k source
// packets per transmission group, n-k parity packets, translated from
// pgm_rs_t/pgm_rs_create in reed_solomon.c.
//
// This implementation always derives the Vandermonde inverse with the
// generic full-pivoting Gauss-Jordan solver in matrix.go rather than the
// reference implementation's specialized synthetic-division shortcut
// (_pgm_matinv_vandermonde) -- both produce the same generator matrix, and
// the specialized path is a constant-factor speedup with no effect on the
// code's semantics, not worth the risk of a transcription error in code
// that cannot be compiled and run here.
type RS struct {
	N, K int
	// GM is the n-by-k generator matrix, row-major: GM[offset*K+i] is the
	// coefficient by which source packet i contributes to output packet
	// offset. The first k rows form the identity (systematic property).
	GM []byte
	// rm is scratch space for the k-by-k recovery matrix used by Decode*.
	rm []byte
}

// New builds the (n, k) code's generator matrix.
func New(n, k int) (*RS, error) {
	if k <= 0 || n <= 0 || k > n || n > 255 {
		return nil, pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "invalid Reed-Solomon parameters n=%d k=%d", n, k)
	}

	// V is the k-by-n Vandermonde matrix: V[i][j] = alpha^(i*j).
	v := make([]byte, k*n)
	for i := 0; i < k; i++ {
		for j := 0; j < n; j++ {
			v[i*n+j] = gfPow(i * j)
		}
	}

	// vkk is the k-by-k submatrix formed by V's first k columns.
	vkk := make([]byte, k*k)
	for i := 0; i < k; i++ {
		copy(vkk[i*k:i*k+k], v[i*n:i*n+k])
	}
	if err := matInv(vkk, k); err != nil {
		return nil, err
	}

	// gm = vkk⁻¹ · V, a k-by-n matrix whose first k columns are the
	// identity and whose remaining columns are the parity coefficients
	// (the "GM = V_kk⁻¹ × V_kn" construction in pgm_rs_create).
	gmKN := matMul(vkk, v, k, k, n)

	// Store transposed, n-by-k, so Encode's per-output-packet coefficient
	// row is contiguous (matches pgm_rs_t::GM's layout and pgm_rs_encode's
	// indexing GM[offset*k + i]).
	gm := make([]byte, n*k)
	for offset := 0; offset < n; offset++ {
		for i := 0; i < k; i++ {
			gm[offset*k+i] = gmKN[i*n+offset]
		}
	}

	return &RS{N: n, K: k, GM: gm, rm: make([]byte, k*k)}, nil
}

// Encode produces the parity packet at the given FEC block offset
// (k <= offset < n) from the k source packets, each of length len(dst).
// Translated from pgm_rs_encode.
func (rs *RS) Encode(src [][]byte, offset int, dst []byte) error {
	if offset < rs.K || offset >= rs.N {
		return pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "parity offset %d out of range [%d, %d)", offset, rs.K, rs.N)
	}
	if len(src) != rs.K {
		return pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "encode needs %d source packets, got %d", rs.K, len(src))
	}
	for i := range dst {
		dst[i] = 0
	}
	for i := 0; i < rs.K; i++ {
		vecAddMul(dst, rs.GM[offset*rs.K+i], src[i])
	}
	return nil
}

// buildRecoveryMatrix fills rs.rm from rs.GM according to offsets (one
// entry per of the k slots in block) and inverts it, the shared first
// half of both decode variants.
func (rs *RS) buildRecoveryMatrix(offsets []uint8) error {
	if len(offsets) != rs.K {
		return pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "decode needs %d offsets, got %d", rs.K, len(offsets))
	}
	k := rs.K
	for i := 0; i < k; i++ {
		if int(offsets[i]) < k {
			for x := 0; x < k; x++ {
				rs.rm[i*k+x] = 0
			}
			rs.rm[i*k+i] = 1
			continue
		}
		if int(offsets[i]) >= rs.N {
			return pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "offset %d out of range", offsets[i])
		}
		copy(rs.rm[i*k:i*k+k], rs.GM[int(offsets[i])*k:int(offsets[i])*k+k])
	}
	return matInv(rs.rm, k)
}

// DecodeInline repairs a block of exactly k packets in place, where
// offsets[i] names which FEC block slot block[i] actually holds -- either
// its true source index (< k) or a parity offset (>= k) standing in for a
// lost source packet. Translated from pgm_rs_decode_parity_inline.
func (rs *RS) DecodeInline(block [][]byte, offsets []uint8, packetLen int) error {
	if len(block) != rs.K {
		return pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "decode needs %d packets, got %d", rs.K, len(block))
	}
	if err := rs.buildRecoveryMatrix(offsets); err != nil {
		return err
	}
	k := rs.K
	repairs := make([][]byte, k)
	for j := 0; j < k; j++ {
		if int(offsets[j]) < k {
			continue
		}
		erasure := make([]byte, packetLen)
		for i := 0; i < k; i++ {
			vecAddMul(erasure, rs.rm[j*k+i], block[i])
		}
		repairs[j] = erasure
	}
	for j := 0; j < k; j++ {
		if repairs[j] != nil {
			copy(block[j], repairs[j])
		}
	}
	return nil
}

// DecodeAppended repairs a block where the k source slots (zeroed where
// erased) are followed by whichever parity packets were actually
// received, appended in arrival order; offsets still names what each of
// the k source slots logically holds. Translated from
// pgm_rs_decode_parity_appended.
func (rs *RS) DecodeAppended(block [][]byte, offsets []uint8, packetLen int) error {
	if err := rs.buildRecoveryMatrix(offsets); err != nil {
		return err
	}
	k := rs.K
	if len(block) < k {
		return pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "appended block shorter than k=%d", k)
	}
	for j := 0; j < k; j++ {
		if int(offsets[j]) < k {
			continue
		}
		erasure := block[j]
		p := k
		for i := 0; i < k; i++ {
			var src []byte
			if int(offsets[i]) < k {
				src = block[i]
			} else {
				if p >= len(block) {
					return pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "appended block missing parity packet %d", p)
				}
				src = block[p]
				p++
			}
			vecAddMul(erasure, rs.rm[j*k+i], src)
		}
	}
	return nil
}
