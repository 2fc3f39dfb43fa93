package correlation

// Search window for Align. News is biased toward the next session: the same
// day and six days after it are tried before six days back.
const (
	ForwardWindow  = 7
	BackwardWindow = 6
)

// Align finds the trading day a news date should be compared against.
// It scans target+0 … target+6 and then target-1 … target-6, returning the
// first day present in known. ok is false when nothing in the window matches
// or target is not a valid calendar date.
func Align(target Date, known DateSet) (day Date, ok bool) {
	if len(known) == 0 {
		return "", false
	}
	t, err := target.Time()
	if err != nil {
		return "", false
	}

	for i := 0; i < ForwardWindow; i++ {
		d := DateOf(t.AddDate(0, 0, i))
		if known.Has(d) {
			return d, true
		}
	}
	for i := 1; i <= BackwardWindow; i++ {
		d := DateOf(t.AddDate(0, 0, -i))
		if known.Has(d) {
			return d, true
		}
	}
	return "", false
}
