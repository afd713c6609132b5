package stream

// Span is one trial-active interval in window coordinates: 0 is the oldest
// visible sample, window-1 the newest.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// TrialMask tracks the trial-active intervals still visible in the window.
// Boundaries are rebased every time the window shifts; a span whose end
// scrolls past the origin is removed whole, never left as a dangling start.
type TrialMask struct {
	spans []Span
}

func (m *TrialMask) mark(start, end int) {
	m.spans = append(m.spans, Span{Start: start, End: end})
}

// rebase slides every boundary left by shift. Starts crossing the origin
// clamp to it; spans whose end crosses are dropped in pairs.
func (m *TrialMask) rebase(shift int64) {
	kept := m.spans[:0]
	for _, s := range m.spans {
		s.Start -= int(shift)
		s.End -= int(shift)
		if s.End < 0 {
			continue
		}
		if s.Start < 0 {
			s.Start = 0
		}
		kept = append(kept, s)
	}
	m.spans = kept
}

// Spans returns a copy of the visible spans, oldest first.
func (m *TrialMask) Spans() []Span {
	return append([]Span(nil), m.spans...)
}

func (m *TrialMask) reset() { m.spans = nil }
