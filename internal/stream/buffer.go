package stream

// continuousChannel is a fixed-length window over a sampled signal. New
// samples enter on the right; the oldest fall off on the left. Gaps are
// filled by repeating the last known value so padding never adds extrema.
type continuousChannel struct {
	data   []float64
	invert bool
}

func newContinuousChannel(window int, invert bool) *continuousChannel {
	return &continuousChannel{data: make([]float64, window), invert: invert}
}

func (c *continuousChannel) last() float64 { return c.data[len(c.data)-1] }

// pad shifts n slots in, repeating the last known value.
func (c *continuousChannel) pad(n int64) {
	w := len(c.data)
	v := c.last()
	if n >= int64(w) {
		fill(c.data, v)
		return
	}
	copy(c.data, c.data[n:])
	fill(c.data[w-int(n):], v)
}

// write shifts the samples in on the right.
func (c *continuousChannel) write(samples []float64) {
	w := len(c.data)
	n := len(samples)
	if n == 0 {
		return
	}
	if n >= w {
		samples = samples[n-w:]
		n = w
	} else {
		copy(c.data, c.data[n:])
	}
	for i, s := range samples {
		if c.invert {
			s = -s
		}
		c.data[w-n+i] = s
	}
}

func (c *continuousChannel) values() []float64 {
	return append([]float64(nil), c.data...)
}

func (c *continuousChannel) reset() { fill(c.data, 0) }

// markerChannel is a window over a sparse pulse trace. It shifts with zero
// fill; pulses are written at explicit positions after the shift.
type markerChannel struct {
	data []float64
}

func newMarkerChannel(window int) *markerChannel {
	return &markerChannel{data: make([]float64, window)}
}

func (m *markerChannel) pad(n int64) {
	w := len(m.data)
	if n >= int64(w) {
		fill(m.data, 0)
		return
	}
	copy(m.data, m.data[n:])
	fill(m.data[w-int(n):], 0)
}

// set writes a pulse level at a window position. Positions outside the
// window are ignored.
func (m *markerChannel) set(pos int, level float64) {
	if pos < 0 || pos >= len(m.data) {
		return
	}
	m.data[pos] = level
}

func (m *markerChannel) values() []float64 {
	return append([]float64(nil), m.data...)
}

func (m *markerChannel) reset() { fill(m.data, 0) }

func fill(dst []float64, v float64) {
	for i := range dst {
		dst[i] = v
	}
}
