package store

// maxTradeRows bounds each of the sold/bought/both rings.
const maxTradeRows = 25

// Trades splits the trade stream into sold/bought/both bounded rings by the
// sign of the trade amount, newest first. Rows are (id, mts, amount, price).
//
// The *Updated flags name the rings touched by the most recent update, so
// fanout can skip consumers watching an untouched ring.
type Trades struct {
	Sold   [][]float64
	Bought [][]float64
	Both   [][]float64

	SoldUpdated   bool
	BoughtUpdated bool
	BothUpdated   bool
}

// NewTrades creates an empty trade history.
func NewTrades() *Trades {
	return &Trades{}
}

// Kind returns KindTrades.
func (t *Trades) Kind() Kind { return KindTrades }

// ApplySnapshot seeds the rings from the snapshot's trades, which the server
// sends newest first.
func (t *Trades) ApplySnapshot(rows [][]float64) {
	t.Sold = nil
	t.Bought = nil
	t.Both = nil

	// Walk oldest to newest so prepending leaves the rings newest first.
	for i := len(rows) - 1; i >= 0; i-- {
		t.insert(rows[i])
	}
	t.SoldUpdated = true
	t.BoughtUpdated = true
	t.BothUpdated = true
}

// ApplyUpdate records an executed trade. "tu" frames re-announce a trade
// already delivered as "te" and are skipped to keep the rings duplicate
// free.
func (t *Trades) ApplyUpdate(tag string, row []float64) {
	t.SoldUpdated = false
	t.BoughtUpdated = false
	t.BothUpdated = false

	if tag == "tu" {
		return
	}
	t.insert(row)
}

func (t *Trades) insert(row []float64) {
	if len(row) < 4 {
		return
	}

	amount := row[2]
	if amount < 0 {
		t.Sold = prependBounded(t.Sold, row, maxTradeRows)
		t.SoldUpdated = true
	} else {
		t.Bought = prependBounded(t.Bought, row, maxTradeRows)
		t.BoughtUpdated = true
	}
	t.Both = prependBounded(t.Both, row, maxTradeRows)
	t.BothUpdated = true
}

func prependBounded(ring [][]float64, row []float64, max int) [][]float64 {
	if len(ring) >= max {
		ring = ring[:max-1]
	}
	return append([][]float64{row}, ring...)
}
