package stream

import "log/slog"

// edgeChannel is a window over a two-state contact signal. The controller
// reports absolute edge timestamps rather than samples; each edge toggles
// the channel between idle (0) and its active level at the edge's own
// sample index, so several toggles inside one packet land at their correct
// sub-packet offsets.
type edgeChannel struct {
	data     []float64
	level    float64
	lastTick int64
}

func newEdgeChannel(window int, level float64) *edgeChannel {
	return &edgeChannel{data: make([]float64, window), level: level}
}

// toggled returns the state opposite the one at the window's right edge.
func (e *edgeChannel) toggled() float64 {
	if e.data[len(e.data)-1] == 0 {
		return e.level
	}
	return 0
}

// ingest applies each edge at its timestamp, then carries the final state
// forward to the packet end so the channel stays aligned with the cursor.
func (e *edgeChannel) ingest(edges []int64, packetEnd int64, log *slog.Logger) {
	w := len(e.data)
	if n := len(edges); n > 0 && edges[n-1] > packetEnd {
		log.Warn("edge timestamp beyond packet end, clamping",
			"edge", edges[n-1], "packet_end", packetEnd)
	}
	for _, edge := range edges {
		shift := edge - e.lastTick
		switch {
		case shift <= 0:
			// A late or duplicate edge rewrites the samples it covers
			// in place; the window does not advance.
			n := -shift + 1
			if n > int64(w) {
				n = int64(w)
			}
			fill(e.data[w-int(n):], e.toggled())
		case edge > packetEnd:
			e.data[w-1] = e.toggled()
			e.lastTick = packetEnd
		default:
			if shift > int64(w-1) {
				shift = int64(w - 1)
			}
			v := e.toggled()
			last := e.data[w-1]
			copy(e.data, e.data[shift:])
			fill(e.data[w-int(shift):w-1], last)
			e.data[w-1] = v
			e.lastTick = edge
		}
	}
	e.advanceTo(packetEnd)
}

// advanceTo shifts the window forward to index, holding the current state.
func (e *edgeChannel) advanceTo(index int64) {
	shift := index - e.lastTick
	if shift <= 0 {
		return
	}
	w := len(e.data)
	last := e.data[w-1]
	if shift >= int64(w) {
		fill(e.data, last)
	} else {
		copy(e.data, e.data[shift:])
		fill(e.data[w-int(shift):], last)
	}
	e.lastTick = index
}

func (e *edgeChannel) values() []float64 {
	return append([]float64(nil), e.data...)
}

func (e *edgeChannel) reset() {
	fill(e.data, 0)
	e.lastTick = 0
}
