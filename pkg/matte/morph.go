package matte

// Square structuring elements are separable, so every operation below runs a
// 1-D min/max pass over rows and then over columns.

// Erode shrinks the foreground with a (2r+1)x(2r+1) square element
func (m *Mask) Erode(r int) *Mask {
	return m.rank(r, func(a, b uint8) bool { return a < b })
}

// Dilate grows the foreground with a (2r+1)x(2r+1) square element
func (m *Mask) Dilate(r int) *Mask {
	return m.rank(r, func(a, b uint8) bool { return a > b })
}

// Open removes foreground specks smaller than the element
func (m *Mask) Open(r int) *Mask {
	return m.Erode(r).Dilate(r)
}

// Close fills background holes smaller than the element
func (m *Mask) Close(r int) *Mask {
	return m.Dilate(r).Erode(r)
}

// rank returns a new mask where every pixel takes the neighbourhood value
// preferred by better. Out-of-range neighbours are ignored.
func (m *Mask) rank(r int, better func(a, b uint8) bool) *Mask {
	if r <= 0 {
		return m.Clone()
	}
	tmp := NewMask(m.W, m.H)
	for y := 0; y < m.H; y++ {
		row := m.Pix[y*m.W : (y+1)*m.W]
		for x := 0; x < m.W; x++ {
			best := row[x]
			lo, hi := max(0, x-r), min(m.W-1, x+r)
			for k := lo; k <= hi; k++ {
				if better(row[k], best) {
					best = row[k]
				}
			}
			tmp.Pix[y*m.W+x] = best
		}
	}

	out := NewMask(m.W, m.H)
	for x := 0; x < m.W; x++ {
		for y := 0; y < m.H; y++ {
			best := tmp.Pix[y*m.W+x]
			lo, hi := max(0, y-r), min(m.H-1, y+r)
			for k := lo; k <= hi; k++ {
				if v := tmp.Pix[k*m.W+x]; better(v, best) {
					best = v
				}
			}
			out.Pix[y*m.W+x] = best
		}
	}
	return out
}

// Repeat applies op n times
func (m *Mask) Repeat(n int, op func(*Mask) *Mask) *Mask {
	out := m
	for i := 0; i < n; i++ {
		out = op(out)
	}
	if out == m {
		return m.Clone()
	}
	return out
}
