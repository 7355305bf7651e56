package store

// maxCandleRows bounds the retained candle history.
const maxCandleRows = 60

// Candles keeps a bounded most-recent-first candle list. Rows are
// (mts, open, close, high, low, volume).
type Candles struct {
	Rows [][]float64
}

// NewCandles creates an empty candle history.
func NewCandles() *Candles {
	return &Candles{}
}

// Kind returns KindCandles.
func (c *Candles) Kind() Kind { return KindCandles }

// ApplySnapshot keeps the first maxCandleRows candles of the snapshot, which
// the server sends newest first.
func (c *Candles) ApplySnapshot(rows [][]float64) {
	n := len(rows)
	if n > maxCandleRows {
		n = maxCandleRows
	}
	c.Rows = make([][]float64, n)
	copy(c.Rows, rows[:n])
}

// ApplyUpdate prepends the newest candle, dropping the oldest.
func (c *Candles) ApplyUpdate(tag string, row []float64) {
	if len(c.Rows) > 0 {
		c.Rows = c.Rows[:len(c.Rows)-1]
	}
	c.Rows = append([][]float64{row}, c.Rows...)
}
