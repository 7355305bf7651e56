package store

// maxTickerRows bounds the ring of retained ticker snapshots.
const maxTickerRows = 25

// Ticker keeps a bounded ring of the most recent ticker rows, newest first.
// Each row is the server's flat ticker array with the local receive time in
// milliseconds appended as the last column.
type Ticker struct {
	Rows [][]float64
}

// NewTicker creates an empty ticker history.
func NewTicker() *Ticker {
	return &Ticker{}
}

// Kind returns KindTicker.
func (t *Ticker) Kind() Kind { return KindTicker }

// ApplySnapshot seeds the ring. The ticker snapshot is a single flat row,
// which arrives here wrapped as rows[0].
func (t *Ticker) ApplySnapshot(rows [][]float64) {
	t.Rows = nil
	for _, row := range rows {
		t.prepend(row)
	}
}

// ApplyUpdate prepends the newest row, dropping the oldest once the ring is
// full.
func (t *Ticker) ApplyUpdate(tag string, row []float64) {
	t.prepend(row)
}

func (t *Ticker) prepend(row []float64) {
	stamped := make([]float64, len(row), len(row)+1)
	copy(stamped, row)
	stamped = append(stamped, float64(nowMillis()))

	if len(t.Rows) >= maxTickerRows {
		t.Rows = t.Rows[:maxTickerRows-1]
	}
	t.Rows = append([][]float64{stamped}, t.Rows...)
}
