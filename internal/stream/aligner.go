package stream

import (
	"log/slog"
)

// Config sizes an Aligner. LickChannels is fixed at construction; packets
// carrying more edge lists than channels have the extras ignored.
type Config struct {
	Window       int
	LickChannels int
	GapCeiling   int64
	InvertSniff  bool
	LickLevel    float64
}

// Packet is one burst of samples reported by the controller. EndIndex is
// the absolute sample index of the packet's last sample. Sniff may be
// absent, in which case the whole advance is treated as lost samples.
// Licks holds absolute edge timestamps per lick channel.
type Packet struct {
	EndIndex int64     `json:"end_index"`
	Count    int       `json:"count"`
	Sniff    []float64 `json:"sniff,omitempty"`
	Licks    [][]int64 `json:"licks,omitempty"`
}

// Report describes what one ingest did to the window.
type Report struct {
	Advanced int64
	Lost     int64
	Stale    bool
	Unsynced bool
}

// Snapshot is a copy of every channel window plus the loss counters, taken
// for display.
type Snapshot struct {
	Cursor     int64       `json:"cursor"`
	Sniff      []float64   `json:"sniff"`
	Licks      [][]float64 `json:"licks"`
	Marker     []float64   `json:"marker"`
	Mask       []Span      `json:"trial_mask"`
	Lost       int64       `json:"lost_samples"`
	Stale      int64       `json:"stale_packets"`
	SyncLosses int64       `json:"sync_losses"`
}

// Aligner keeps every signal channel aligned to one monotonic sample
// cursor. Packets that do not advance the cursor are dropped; gaps between
// the cursor and a packet's payload are padded and counted as lost.
type Aligner struct {
	cfg    Config
	log    *slog.Logger
	cursor int64

	sniff  *continuousChannel
	licks  []*edgeChannel
	marker *markerChannel
	mask   TrialMask

	lost       int64
	stale      int64
	syncLosses int64
}

func New(cfg Config, log *slog.Logger) *Aligner {
	if cfg.LickLevel == 0 {
		cfg.LickLevel = 1
	}
	a := &Aligner{
		cfg:    cfg,
		log:    log,
		sniff:  newContinuousChannel(cfg.Window, cfg.InvertSniff),
		marker: newMarkerChannel(cfg.Window),
	}
	for i := 0; i < cfg.LickChannels; i++ {
		a.licks = append(a.licks, newEdgeChannel(cfg.Window, cfg.LickLevel+float64(i)))
	}
	return a
}

// Cursor returns the absolute index of the newest aligned sample.
func (a *Aligner) Cursor() int64 { return a.cursor }

// Ingest aligns one packet into the window. The continuous channel is
// padded over any gap with its last value; lick channels replay their edge
// timestamps; the marker channel shifts with zero fill. All channels end
// at the packet's end index.
func (a *Aligner) Ingest(p Packet) Report {
	var r Report
	if p.EndIndex <= a.cursor {
		a.stale++
		r.Stale = true
		a.log.Warn("stream packet does not advance cursor, dropped",
			"end_index", p.EndIndex, "cursor", a.cursor)
		return r
	}

	advance := p.EndIndex - a.cursor
	samples := p.Sniff
	if int64(len(samples)) > advance {
		samples = samples[int64(len(samples))-advance:]
	}
	gap := advance - int64(len(samples))
	if gap > 0 {
		a.lost += gap
		r.Lost = gap
		a.sniff.pad(gap)
		if a.cfg.GapCeiling > 0 && gap > a.cfg.GapCeiling {
			a.syncLosses++
			r.Unsynced = true
			a.log.Warn("stream gap beyond ceiling",
				"gap", gap, "ceiling", a.cfg.GapCeiling, "end_index", p.EndIndex)
		}
	}
	a.sniff.write(samples)
	a.marker.pad(advance)
	for i, ch := range a.licks {
		var edges []int64
		if i < len(p.Licks) {
			edges = p.Licks[i]
		}
		ch.ingest(edges, p.EndIndex, a.log)
	}
	a.mask.rebase(advance)
	a.cursor = p.EndIndex
	r.Advanced = advance
	return r
}

// AdvanceTo shifts every channel forward so the window's right edge sits at
// index. Indexes at or behind the cursor are a no-op. It returns the shift.
func (a *Aligner) AdvanceTo(index int64) int64 {
	if index <= a.cursor {
		return 0
	}
	shift := index - a.cursor
	a.sniff.pad(shift)
	a.marker.pad(shift)
	for _, ch := range a.licks {
		ch.advanceTo(index)
	}
	a.mask.rebase(shift)
	a.cursor = index
	return shift
}

// MarkStimulus writes a pulse level into the marker channel at an absolute
// sample index. Indexes outside the window are ignored.
func (a *Aligner) MarkStimulus(index int64, level float64) {
	a.marker.set(a.position(index), level)
}

// MarkTrial records a trial-active interval in the mask. An interval whose
// end already scrolled out is dropped; a start that scrolled out clamps to
// the window origin.
func (a *Aligner) MarkTrial(trialStart, trialEnd int64) bool {
	end := a.position(trialEnd)
	if end < 0 {
		return false
	}
	if end >= a.cfg.Window {
		end = a.cfg.Window - 1
	}
	start := a.position(trialStart)
	if start < 0 {
		start = 0
	}
	a.mask.mark(start, end)
	return true
}

// Mask returns the visible trial spans.
func (a *Aligner) Mask() []Span { return a.mask.Spans() }

// Lost returns the lifetime count of samples padded over gaps.
func (a *Aligner) Lost() int64 { return a.lost }

// Stale returns how many non-advancing packets were dropped.
func (a *Aligner) Stale() int64 { return a.stale }

// SyncLosses returns how many ingests exceeded the gap ceiling.
func (a *Aligner) SyncLosses() int64 { return a.syncLosses }

// Snapshot copies every channel window for display.
func (a *Aligner) Snapshot() Snapshot {
	licks := make([][]float64, len(a.licks))
	for i, ch := range a.licks {
		licks[i] = ch.values()
	}
	return Snapshot{
		Cursor:     a.cursor,
		Sniff:      a.sniff.values(),
		Licks:      licks,
		Marker:     a.marker.values(),
		Mask:       a.mask.Spans(),
		Lost:       a.lost,
		Stale:      a.stale,
		SyncLosses: a.syncLosses,
	}
}

// Reset clears every channel, the mask, the counters and the cursor for a
// session restart.
func (a *Aligner) Reset() {
	a.cursor = 0
	a.sniff.reset()
	a.marker.reset()
	for _, ch := range a.licks {
		ch.reset()
	}
	a.mask.reset()
	a.lost = 0
	a.stale = 0
	a.syncLosses = 0
}

// position maps an absolute sample index to a window offset. The newest
// sample sits at Window-1.
func (a *Aligner) position(index int64) int {
	return a.cfg.Window - 1 - int(a.cursor-index)
}
