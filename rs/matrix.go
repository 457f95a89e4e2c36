package rs

import "github.com/steve-o/openpgm-sub004/pgmerr"

// matMul computes C = AB over GF(2⁸), where a is m-by-n (row-major) and b
// is n-by-p, returning the m-by-p product. Translated from
// _pgm_matmul in reed_solomon.c.
func matMul(a, b []byte, m, n, p int) []byte {
	c := make([]byte, m*p)
	for j := 0; j < m; j++ {
		for i := 0; i < p; i++ {
			var sum byte
			for k := 0; k < n; k++ {
				sum ^= gfMul(a[j*n+k], b[k*p+i])
			}
			c[j*p+i] = sum
		}
	}
	return c
}

// matInv inverts the n-by-n matrix m in place over GF(2⁸) using
// Gauss-Jordan elimination with full pivoting, translated from
// _pgm_matinv. It returns an error if m is singular (no nonzero pivot
// remains), which pgm_rs_decode_parity_{inline,appended} surface as an
// unrecoverable-block condition.
func matInv(m []byte, n int) error {
	pivotRows := make([]int, n)
	pivotCols := make([]int, n)
	pivoted := make([]bool, n)
	identity := make([]byte, n)

	for i := 0; i < n; i++ {
		row, col := -1, -1
		if !pivoted[i] && m[i*n+i] != 0 {
			row, col = i, i
		} else {
			for j := 0; j < n && row < 0; j++ {
				if pivoted[j] {
					continue
				}
				for x := 0; x < n; x++ {
					if !pivoted[x] && m[j*n+x] != 0 {
						row, col = j, x
						break
					}
				}
			}
		}
		if row < 0 {
			return pgmerr.New(pgmerr.DomainPacket, pgmerr.CodeBounds, "FEC block matrix is singular, cannot invert")
		}
		pivoted[col] = true

		if row != col {
			for x := 0; x < n; x++ {
				m[row*n+x], m[col*n+x] = m[col*n+x], m[row*n+x]
			}
		}
		pivotRows[i], pivotCols[i] = row, col

		if m[col*n+col] != 1 {
			c := m[col*n+col]
			m[col*n+col] = 1
			for x := 0; x < n; x++ {
				m[col*n+x] = gfDiv(m[col*n+x], c)
			}
		}

		identity[col] = 1
		rowIsIdentity := true
		for x := 0; x < n; x++ {
			if m[col*n+x] != identity[x] {
				rowIsIdentity = false
				break
			}
		}
		if !rowIsIdentity {
			for x := 0; x < n; x++ {
				if x == col {
					continue
				}
				c := m[x*n+col]
				m[x*n+col] = 0
				vecAddMul(m[x*n:x*n+n], c, m[col*n:col*n+n])
			}
		}
		identity[col] = 0
	}

	for i := n - 1; i >= 0; i-- {
		if pivotRows[i] != pivotCols[i] {
			for j := 0; j < n; j++ {
				m[j*n+pivotRows[i]], m[j*n+pivotCols[i]] = m[j*n+pivotCols[i]], m[j*n+pivotRows[i]]
			}
		}
	}
	return nil
}
