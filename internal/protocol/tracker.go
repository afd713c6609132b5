package protocol

// Tracker keeps per-category sliding windows of recent outcomes alongside
// session-lifetime totals. The sliding windows feed the in-session accuracy
// display; the totals and reward count drive session bookkeeping.
type Tracker struct {
	window  int
	queues  map[Category][]Outcome
	correct map[Category]int
	totals  map[Outcome]int
	trials  int
}

// PerformanceSnapshot is the read-only view of a Tracker.
type PerformanceSnapshot struct {
	Hits              int                  `json:"hits"`
	CorrectRejections int                  `json:"correct_rejections"`
	Misses            int                  `json:"misses"`
	FalseAlarms       int                  `json:"false_alarms"`
	Trials            int                  `json:"trials"`
	Rewards           int                  `json:"rewards"`
	PercentCorrect    float64              `json:"percent_correct"`
	SlidingAccuracy   map[Category]float64 `json:"sliding_accuracy"`
}

// NewTracker returns a tracker whose sliding windows hold the last window
// outcomes per category.
func NewTracker(window int) *Tracker {
	t := &Tracker{window: window}
	t.Reset()
	return t
}

// Reset clears every window and total, as on session restart.
func (t *Tracker) Reset() {
	t.queues = make(map[Category][]Outcome)
	t.correct = make(map[Category]int)
	t.totals = make(map[Outcome]int)
	t.trials = 0
}

// Record folds one trial's outcome into the category's sliding window and
// the lifetime totals. When the window is already full the oldest entry is
// evicted and the running correct count gives back that entry's
// contribution before taking on the new one; while the window is still
// filling every correct outcome increments the count unopposed.
func (t *Tracker) Record(cat Category, o Outcome) {
	t.totals[o]++
	t.trials++

	q := t.queues[cat]
	if t.window > 0 && len(q) >= t.window {
		if q[0].Correct() {
			t.correct[cat]--
		}
		copy(q, q[1:])
		q = q[:len(q)-1]
	}
	if o.Correct() {
		t.correct[cat]++
	}
	t.queues[cat] = append(q, o)
}

// SlidingAccuracy returns the fraction of correct outcomes in the category's
// window, 1.0 while the window is empty.
func (t *Tracker) SlidingAccuracy(cat Category) float64 {
	q := t.queues[cat]
	if len(q) == 0 {
		return 1.0
	}
	return float64(t.correct[cat]) / float64(len(q))
}

// Rewards returns how many rewards the session has delivered. Every hit is
// rewarded.
func (t *Tracker) Rewards() int { return t.totals[OutcomeHit] }

// Trials returns the number of scored trials.
func (t *Tracker) Trials() int { return t.trials }

// PercentCorrect returns rewards over scored trials, as a percentage.
func (t *Tracker) PercentCorrect() float64 {
	if t.trials == 0 {
		return 0
	}
	return float64(t.Rewards()) / float64(t.trials) * 100
}

// Snapshot returns the tracker's current state for display. Both categories
// always appear in the accuracy map, at 1.0 until their first outcome.
func (t *Tracker) Snapshot() PerformanceSnapshot {
	acc := map[Category]float64{
		CategoryOdorOn:  t.SlidingAccuracy(CategoryOdorOn),
		CategoryOdorOff: t.SlidingAccuracy(CategoryOdorOff),
	}
	return PerformanceSnapshot{
		Hits:              t.totals[OutcomeHit],
		CorrectRejections: t.totals[OutcomeCorrectRejection],
		Misses:            t.totals[OutcomeMiss],
		FalseAlarms:       t.totals[OutcomeFalseAlarm],
		Trials:            t.trials,
		Rewards:           t.Rewards(),
		PercentCorrect:    t.PercentCorrect(),
		SlidingAccuracy:   acc,
	}
}
