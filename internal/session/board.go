package session

import (
	"fmt"
	"strings"

	"gonogo-host/internal/protocol"
)

// RenderBoard converts a session snapshot into a plain-text status board
// for terminal monitoring. Unresolved conditions render one per line at
// the bottom; a healthy session omits the section.
func RenderBoard(snap SessionSnapshot) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("session  %s\n", snap.ID))
	b.WriteString(fmt.Sprintf("state    %s\n\n", snap.State))

	b.WriteString(fmt.Sprintf("scheduled  %s\n", trialLine(snap.Trials.Scheduled)))
	b.WriteString(fmt.Sprintf("pending    %s\n\n", trialLine(snap.Trials.Pending)))

	p := snap.Performance
	b.WriteString(fmt.Sprintf("trials %d  rewards %d  correct %.1f%%\n", p.Trials, p.Rewards, p.PercentCorrect))
	b.WriteString(fmt.Sprintf("hits %d  cr %d  miss %d  fa %d\n", p.Hits, p.CorrectRejections, p.Misses, p.FalseAlarms))
	b.WriteString(fmt.Sprintf("accuracy  %s %.2f  %s %.2f\n\n",
		protocol.CategoryOdorOn, p.SlidingAccuracy[protocol.CategoryOdorOn],
		protocol.CategoryOdorOff, p.SlidingAccuracy[protocol.CategoryOdorOff]))

	b.WriteString(fmt.Sprintf("stream    cursor %d  lost %d  stale %d  resyncs %d\n",
		snap.StreamCursor, snap.LostSamples, snap.StalePackets, snap.SyncLosses))
	b.WriteString(fmt.Sprintf("recovery  cleans %d  cycles %d  clamped offsets %d\n",
		snap.CleanRounds, snap.RecoveryCycles, snap.ClampedOffsets))

	if len(snap.Unresolved) > 0 {
		b.WriteString("\nunresolved\n")
		for _, cond := range snap.Unresolved {
			b.WriteString(fmt.Sprintf("  %s\n", cond))
		}
	}

	return b.String()
}

// trialLine renders one pipeline slot: number, category, odorant and vial.
func trialLine(t protocol.TrialSnapshot) string {
	if t.Number == 0 {
		return "-"
	}
	return fmt.Sprintf("#%d %s %s vial %d", t.Number, t.Category, t.Odorant, t.Vial)
}
