package tensor

// Resample scales the map to w×h with bilinear interpolation. Depth planes
// are resampled directly in float64 so no precision is lost to an 8- or
// 16-bit intermediate. Returns the receiver when the size already matches.
func (m *Map) Resample(w, h int) *Map {
	if w == m.W && h == m.H {
		return m
	}
	out := NewMap(w, h)
	if m.W == 0 || m.H == 0 {
		return out
	}
	sx := float64(m.W) / float64(w)
	sy := float64(m.H) / float64(h)
	for y := 0; y < h; y++ {
		// Sample at pixel centers.
		fy := (float64(y)+0.5)*sy - 0.5
		y0 := int(fy)
		if fy < 0 {
			fy, y0 = 0, 0
		}
		y1 := y0 + 1
		if y1 > m.H-1 {
			y1 = m.H - 1
		}
		wy := fy - float64(y0)
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0 := int(fx)
			if fx < 0 {
				fx, x0 = 0, 0
			}
			x1 := x0 + 1
			if x1 > m.W-1 {
				x1 = m.W - 1
			}
			wx := fx - float64(x0)

			top := m.Pix[y0*m.W+x0]*(1-wx) + m.Pix[y0*m.W+x1]*wx
			bot := m.Pix[y1*m.W+x0]*(1-wx) + m.Pix[y1*m.W+x1]*wx
			out.Pix[y*w+x] = top*(1-wy) + bot*wy
		}
	}
	return out
}

// FitWithin returns the dimensions scaling w×h to fit inside maxSide on the
// longer edge, preserving aspect ratio. Dimensions already within the bound
// are returned unchanged.
func FitWithin(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	if w >= h {
		nh := h * maxSide / w
		if nh < 1 {
			nh = 1
		}
		return maxSide, nh
	}
	nw := w * maxSide / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxSide
}
