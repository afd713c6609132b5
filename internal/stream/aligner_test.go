package stream

import (
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestAligner(window int) *Aligner {
	return New(Config{Window: window, LickChannels: 2, GapCeiling: 100}, testLogger())
}

func repeat(v float64, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestAligner_ingest_without_gap(t *testing.T) {
	a := newTestAligner(100)

	r := a.Ingest(Packet{EndIndex: 50, Count: 50, Sniff: repeat(2.5, 50)})

	if r.Advanced != 50 || r.Lost != 0 || r.Stale || r.Unsynced {
		t.Fatalf("report = %+v, want advance 50 with no loss", r)
	}
	if a.Cursor() != 50 {
		t.Errorf("cursor = %d, want 50", a.Cursor())
	}
	snap := a.Snapshot()
	if len(snap.Sniff) != 100 {
		t.Fatalf("sniff window length = %d, want 100", len(snap.Sniff))
	}
	for i := 50; i < 100; i++ {
		if snap.Sniff[i] != 2.5 {
			t.Fatalf("sniff[%d] = %v, want 2.5", i, snap.Sniff[i])
		}
	}
}

func TestAligner_gap_padded_with_last_value(t *testing.T) {
	a := newTestAligner(200)
	a.Ingest(Packet{EndIndex: 50, Count: 50, Sniff: repeat(3, 50)})

	// 120 indexes advance with only 50 samples: a 70 sample gap.
	r := a.Ingest(Packet{EndIndex: 170, Count: 50, Sniff: repeat(7, 50)})

	if r.Advanced != 120 {
		t.Errorf("advanced = %d, want 120", r.Advanced)
	}
	if r.Lost != 70 {
		t.Errorf("lost = %d, want 70", r.Lost)
	}
	snap := a.Snapshot()
	if len(snap.Sniff) != 200 {
		t.Fatalf("window length = %d, want 200", len(snap.Sniff))
	}
	// The gap repeats the last real value, then the payload follows.
	for i := 130; i < 150; i++ {
		if snap.Sniff[i] != 3 {
			t.Fatalf("sniff[%d] = %v, want pad value 3", i, snap.Sniff[i])
		}
	}
	for i := 150; i < 200; i++ {
		if snap.Sniff[i] != 7 {
			t.Fatalf("sniff[%d] = %v, want payload value 7", i, snap.Sniff[i])
		}
	}
}

func TestAligner_padding_adds_no_extrema(t *testing.T) {
	a := newTestAligner(100)

	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = 1 + float64(i%5)
	}
	a.Ingest(Packet{EndIndex: 100, Count: 100, Sniff: samples})
	a.Ingest(Packet{EndIndex: 180, Count: 30, Sniff: repeat(2, 30)})

	for i, v := range a.Snapshot().Sniff {
		if v < 1 || v > 5 {
			t.Fatalf("sniff[%d] = %v outside observed range [1, 5]", i, v)
		}
	}
}

func TestAligner_stale_packet_dropped(t *testing.T) {
	a := newTestAligner(100)
	a.Ingest(Packet{EndIndex: 80, Count: 80, Sniff: repeat(4, 80)})
	before := a.Snapshot()

	r := a.Ingest(Packet{EndIndex: 60, Count: 10, Sniff: repeat(9, 10)})

	if !r.Stale {
		t.Fatal("expected stale report for a non-advancing packet")
	}
	if a.Cursor() != 80 {
		t.Errorf("cursor = %d, want unchanged 80", a.Cursor())
	}
	after := a.Snapshot()
	for i := range before.Sniff {
		if before.Sniff[i] != after.Sniff[i] {
			t.Fatalf("sniff[%d] changed from %v to %v on a stale packet", i, before.Sniff[i], after.Sniff[i])
		}
	}
	if after.Stale != 1 {
		t.Errorf("stale counter = %d, want 1", after.Stale)
	}
}

func TestAligner_absent_samples_are_pure_padding(t *testing.T) {
	a := newTestAligner(100)
	a.Ingest(Packet{EndIndex: 40, Count: 40, Sniff: repeat(6, 40)})

	r := a.Ingest(Packet{EndIndex: 70, Count: 30})

	if r.Lost != 30 {
		t.Errorf("lost = %d, want the whole 30 sample advance", r.Lost)
	}
	snap := a.Snapshot()
	for i := 30; i < 100; i++ {
		if snap.Sniff[i] != 6 {
			t.Fatalf("sniff[%d] = %v, want padded 6", i, snap.Sniff[i])
		}
	}
}

func TestAligner_gap_beyond_ceiling_reports_unsynced(t *testing.T) {
	a := newTestAligner(100)
	a.Ingest(Packet{EndIndex: 10, Count: 10, Sniff: repeat(1, 10)})

	r := a.Ingest(Packet{EndIndex: 200, Count: 10, Sniff: repeat(1, 10)})

	if !r.Unsynced {
		t.Fatal("expected unsynced report for a 180 sample gap over a 100 ceiling")
	}
	if got := a.SyncLosses(); got != 1 {
		t.Errorf("sync losses = %d, want 1", got)
	}
}

func TestAligner_window_length_invariant(t *testing.T) {
	a := newTestAligner(50)

	packets := []Packet{
		{EndIndex: 10, Count: 10, Sniff: repeat(1, 10)},
		{EndIndex: 200, Count: 20, Sniff: repeat(2, 20)},
		{EndIndex: 205, Count: 5, Sniff: repeat(3, 5)},
		{EndIndex: 100, Count: 5, Sniff: repeat(4, 5)},
		{EndIndex: 10000, Count: 0},
	}
	for _, p := range packets {
		a.Ingest(p)
		snap := a.Snapshot()
		if len(snap.Sniff) != 50 || len(snap.Marker) != 50 {
			t.Fatalf("window lengths %d/%d after end_index %d, want 50", len(snap.Sniff), len(snap.Marker), p.EndIndex)
		}
		for i, lick := range snap.Licks {
			if len(lick) != 50 {
				t.Fatalf("lick[%d] window length = %d after end_index %d, want 50", i, len(lick), p.EndIndex)
			}
		}
	}
}

func TestAligner_oversized_payload_keeps_newest_samples(t *testing.T) {
	a := newTestAligner(100)
	a.Ingest(Packet{EndIndex: 50, Count: 50, Sniff: repeat(1, 50)})

	// 20 samples but only 10 indexes of advance: the oldest 10 overlap.
	samples := make([]float64, 20)
	for i := range samples {
		samples[i] = float64(i)
	}
	r := a.Ingest(Packet{EndIndex: 60, Count: 20, Sniff: samples})

	if r.Advanced != 10 || r.Lost != 0 {
		t.Fatalf("report = %+v, want advance 10 without loss", r)
	}
	snap := a.Snapshot()
	for i := 0; i < 10; i++ {
		if got, want := snap.Sniff[90+i], float64(10+i); got != want {
			t.Fatalf("sniff[%d] = %v, want %v", 90+i, got, want)
		}
	}
}

func TestAligner_invert_sniff(t *testing.T) {
	a := New(Config{Window: 10, InvertSniff: true}, testLogger())
	a.Ingest(Packet{EndIndex: 5, Count: 5, Sniff: repeat(2, 5)})

	snap := a.Snapshot()
	if got := snap.Sniff[9]; got != -2 {
		t.Errorf("inverted sniff sample = %v, want -2", got)
	}
}

func TestAligner_advance_to(t *testing.T) {
	a := newTestAligner(100)
	a.Ingest(Packet{EndIndex: 50, Count: 50, Sniff: repeat(5, 50)})

	if shift := a.AdvanceTo(80); shift != 30 {
		t.Fatalf("shift = %d, want 30", shift)
	}
	if a.Cursor() != 80 {
		t.Errorf("cursor = %d, want 80", a.Cursor())
	}
	snap := a.Snapshot()
	for i := 70; i < 100; i++ {
		if snap.Sniff[i] != 5 {
			t.Fatalf("sniff[%d] = %v, want held value 5", i, snap.Sniff[i])
		}
	}

	if shift := a.AdvanceTo(80); shift != 0 {
		t.Errorf("repeat advance shift = %d, want 0", shift)
	}
	if shift := a.AdvanceTo(10); shift != 0 {
		t.Errorf("backward advance shift = %d, want 0", shift)
	}
}

func TestAligner_mark_stimulus(t *testing.T) {
	a := newTestAligner(100)
	a.Ingest(Packet{EndIndex: 100, Count: 100, Sniff: repeat(0, 100)})

	a.MarkStimulus(90, 1500)

	snap := a.Snapshot()
	if got := snap.Marker[89]; got != 1500 {
		t.Fatalf("marker at offset 89 = %v, want 1500", got)
	}

	// The pulse scrolls left with the window and eventually drops out.
	a.AdvanceTo(120)
	snap = a.Snapshot()
	if got := snap.Marker[69]; got != 1500 {
		t.Errorf("marker after shift = %v at offset 69, want 1500", got)
	}
	a.AdvanceTo(400)
	for i, v := range a.Snapshot().Marker {
		if v != 0 {
			t.Fatalf("marker[%d] = %v after scrolling out, want 0", i, v)
		}
	}

	// Indexes outside the window are ignored.
	a.MarkStimulus(1, 1500)
	for i, v := range a.Snapshot().Marker {
		if v != 0 {
			t.Fatalf("marker[%d] = %v after out-of-window mark, want 0", i, v)
		}
	}
}

func TestAligner_mark_trial_and_rebase(t *testing.T) {
	a := newTestAligner(100)
	a.Ingest(Packet{EndIndex: 100, Count: 100, Sniff: repeat(0, 100)})

	if !a.MarkTrial(60, 90) {
		t.Fatal("MarkTrial(60, 90) = false, want true")
	}
	spans := a.Mask()
	if len(spans) != 1 || spans[0] != (Span{Start: 59, End: 89}) {
		t.Fatalf("mask = %v, want [{59 89}]", spans)
	}

	a.Ingest(Packet{EndIndex: 130, Count: 30, Sniff: repeat(0, 30)})
	spans = a.Mask()
	if len(spans) != 1 || spans[0] != (Span{Start: 29, End: 59}) {
		t.Fatalf("mask after shift 30 = %v, want [{29 59}]", spans)
	}

	// Start scrolls out: clamp to the origin, keep the pair.
	a.AdvanceTo(170)
	spans = a.Mask()
	if len(spans) != 1 || spans[0] != (Span{Start: 0, End: 19}) {
		t.Fatalf("mask after shift 40 = %v, want [{0 19}]", spans)
	}

	// End scrolls out: the pair drops together.
	a.AdvanceTo(190)
	if spans = a.Mask(); len(spans) != 0 {
		t.Fatalf("mask = %v, want empty after trial scrolled out", spans)
	}
}

func TestAligner_mark_trial_already_out_of_window(t *testing.T) {
	a := newTestAligner(100)
	a.Ingest(Packet{EndIndex: 500, Count: 100, Sniff: repeat(0, 100)})

	if a.MarkTrial(100, 200) {
		t.Fatal("MarkTrial = true for an interval that scrolled out, want false")
	}
	if spans := a.Mask(); len(spans) != 0 {
		t.Fatalf("mask = %v, want empty", spans)
	}
}

func TestAligner_rebase_drops_pairs_independently(t *testing.T) {
	a := newTestAligner(100)
	a.Ingest(Packet{EndIndex: 100, Count: 100, Sniff: repeat(0, 100)})

	a.MarkTrial(10, 30)
	a.MarkTrial(70, 95)

	a.AdvanceTo(140)
	spans := a.Mask()
	if len(spans) != 1 {
		t.Fatalf("mask = %v, want only the later trial", spans)
	}
	if spans[0] != (Span{Start: 29, End: 54}) {
		t.Errorf("surviving span = %v, want {29 54}", spans[0])
	}
}

func TestAligner_lick_edges_via_packets(t *testing.T) {
	a := newTestAligner(100)

	a.Ingest(Packet{
		EndIndex: 100,
		Count:    100,
		Sniff:    repeat(0, 100),
		Licks:    [][]int64{{40, 60}, {}},
	})

	snap := a.Snapshot()
	// Channel 0 toggled active at 40 and idle again at 60.
	for i := 40; i < 60; i++ {
		if snap.Licks[0][i-1] != 1 {
			t.Fatalf("lick0[%d] = %v, want active 1", i-1, snap.Licks[0][i-1])
		}
	}
	if snap.Licks[0][65] != 0 {
		t.Errorf("lick0[65] = %v, want idle 0", snap.Licks[0][65])
	}
	// Channel 1 had no edges and stays idle.
	for i, v := range snap.Licks[1] {
		if v != 0 {
			t.Fatalf("lick1[%d] = %v, want 0", i, v)
		}
	}
}

func TestAligner_reset(t *testing.T) {
	a := newTestAligner(100)
	a.Ingest(Packet{EndIndex: 300, Count: 10, Sniff: repeat(9, 10), Licks: [][]int64{{250}}})
	a.MarkTrial(280, 300)

	a.Reset()

	if a.Cursor() != 0 {
		t.Errorf("cursor = %d, want 0", a.Cursor())
	}
	snap := a.Snapshot()
	if snap.Lost != 0 || snap.Stale != 0 || snap.SyncLosses != 0 {
		t.Errorf("counters = %d/%d/%d, want all 0", snap.Lost, snap.Stale, snap.SyncLosses)
	}
	if len(snap.Mask) != 0 {
		t.Errorf("mask = %v, want empty", snap.Mask)
	}
	for i, v := range snap.Sniff {
		if v != 0 {
			t.Fatalf("sniff[%d] = %v, want 0", i, v)
		}
	}
	for i, v := range snap.Licks[0] {
		if v != 0 {
			t.Fatalf("lick0[%d] = %v, want 0", i, v)
		}
	}
}
