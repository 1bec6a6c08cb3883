package codec

// GF(2^8) arithmetic with the reducing polynomial 0x11d
// (x^8+x^4+x^3+x^2+1), the field convention common in Reed-Solomon
// erasure coding.

var (
	gfExp [512]byte
	gfLog [256]byte
)

func init() {
	x := byte(1)
	for i := 0; i < 255; i++ {
		gfExp[i] = x
		gfLog[x] = byte(i)
		// multiply by generator 0x02, reduce modulo 0x11d
		hi := x & 0x80
		x <<= 1
		if hi != 0 {
			x ^= 0x1d
		}
	}
	for i := 255; i < 512; i++ {
		gfExp[i] = gfExp[i-255]
	}
}

func gfAdd(a, b byte) byte { return a ^ b }

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+int(gfLog[b])]
}

func gfDiv(a, b byte) byte {
	if a == 0 {
		return 0
	}
	if b == 0 {
		panic("codec: division by zero in GF(256)")
	}
	diff := int(gfLog[a]) - int(gfLog[b])
	if diff < 0 {
		diff += 255
	}
	return gfExp[diff]
}

func gfInv(a byte) byte {
	if a == 0 {
		panic("codec: inverse of zero in GF(256)")
	}
	return gfExp[255-int(gfLog[a])]
}

// gfMatrix is a dense matrix of GF(256) elements, row-major.
type gfMatrix struct {
	rows, cols int
	data       []byte
}

func newGFMatrix(rows, cols int) *gfMatrix {
	return &gfMatrix{rows: rows, cols: cols, data: make([]byte, rows*cols)}
}

func (m *gfMatrix) at(r, c int) byte      { return m.data[r*m.cols+c] }
func (m *gfMatrix) set(r, c int, v byte)  { m.data[r*m.cols+c] = v }

// vandermondeRow returns the encoding row for shard index i: consecutive
// powers of a distinct non-zero field element x_i = i+1, so that any k
// rows form an invertible Vandermonde submatrix.
func vandermondeRow(i, k int) []byte {
	row := make([]byte, k)
	x := byte(i + 1)
	p := byte(1)
	for j := 0; j < k; j++ {
		row[j] = p
		p = gfMul(p, x)
	}
	return row
}

// invert computes the inverse of a square GF(256) matrix via Gauss-Jordan
// elimination. The matrix must be invertible; callers that select k rows
// from a Vandermonde encoding matrix are guaranteed this.
func (m *gfMatrix) invert() (*gfMatrix, error) {
	if m.rows != m.cols {
		return nil, errNotSquare
	}
	n := m.rows

	aug := newGFMatrix(n, 2*n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			aug.set(r, c, m.at(r, c))
		}
		aug.set(r, n+r, 1)
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if aug.at(r, col) != 0 {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return nil, errSingular
		}
		if pivot != col {
			swapRows(aug, pivot, col)
		}

		inv := gfInv(aug.at(col, col))
		for c := 0; c < 2*n; c++ {
			aug.set(col, c, gfMul(aug.at(col, c), inv))
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug.at(r, col)
			if factor == 0 {
				continue
			}
			for c := 0; c < 2*n; c++ {
				aug.set(r, c, gfAdd(aug.at(r, c), gfMul(factor, aug.at(col, c))))
			}
		}
	}

	result := newGFMatrix(n, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			result.set(r, c, aug.at(r, n+c))
		}
	}
	return result, nil
}

func swapRows(m *gfMatrix, a, b int) {
	for c := 0; c < m.cols; c++ {
		ta, tb := m.at(a, c), m.at(b, c)
		m.set(a, c, tb)
		m.set(b, c, ta)
	}
}
