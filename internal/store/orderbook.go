package store

import (
	"math"
	"sort"
)

// BookRow is one price level of an order book side.
//
// Sum is the cumulative notional from the best price outward (Sum[i] equals
// the sum of Total[0..i] on the same side), Total the level's notional
// (price*size), Size the level's size. Size and Total are always
// non-negative; deletion is signaled by count==0 updates, never by a
// negative-size row.
type BookRow struct {
	Sum   float64
	Total float64
	Size  float64
	Price float64
}

// Book reconstructs an order book from snapshot+update messages.
//
// Bid rows are ordered by descending price, ask rows by ascending price,
// with exactly one row per distinct price. After every apply the *Updated
// flags name the side touched by the most recent update, and *NewLevels
// lists prices that were inserted (rather than resized) by it.
type Book struct {
	Bids []BookRow
	Asks []BookRow

	BidUpdated   bool
	AskUpdated   bool
	BidNewLevels []float64
	AskNewLevels []float64
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{}
}

// Kind returns KindBook.
func (b *Book) Kind() Kind { return KindBook }

// ApplySnapshot seeds both sides from a flat (price, count, size) sequence:
// the first half is bids, the second half asks. The server is expected to
// deliver bids descending and asks ascending; the sides are sorted
// defensively so an out-of-order snapshot cannot leave the book violating
// its ordering invariant.
func (b *Book) ApplySnapshot(rows [][]float64) {
	splitter := len(rows) / 2

	b.Bids = seedSide(rows[:splitter], false)
	b.Asks = seedSide(rows[splitter:], true)
	b.BidUpdated = true
	b.AskUpdated = true
	b.BidNewLevels = nil
	b.AskNewLevels = nil
}

func seedSide(rows [][]float64, ascending bool) []BookRow {
	side := make([]BookRow, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		price, size := row[0], math.Abs(row[2])
		side = append(side, BookRow{Total: math.Abs(price * size), Size: size, Price: price})
	}

	sort.SliceStable(side, func(i, j int) bool {
		if ascending {
			return side[i].Price < side[j].Price
		}
		return side[i].Price > side[j].Price
	})

	recomputeSums(side)
	return side
}

// ApplyUpdate folds one (price, count, size) delta into the book.
//
// count==0 deletes the row at price; the side is asks when size is -1, bids
// otherwise. count>0 upserts: the side is picked by the sign of size, an
// existing row at the price is resized in place, a new price is spliced in
// keeping the sort order. A missing row on delete is a no-op, not an error.
func (b *Book) ApplyUpdate(tag string, row []float64) {
	b.BidUpdated = false
	b.AskUpdated = false
	b.BidNewLevels = nil
	b.AskNewLevels = nil

	if len(row) < 3 {
		return
	}
	price, count, size := row[0], row[1], row[2]

	if count == 0 {
		if size == -1 {
			b.Asks = removePrice(b.Asks, price)
			recomputeSums(b.Asks)
			b.AskUpdated = true
		} else {
			b.Bids = removePrice(b.Bids, price)
			recomputeSums(b.Bids)
			b.BidUpdated = true
		}
		return
	}

	if count < 0 {
		return
	}

	newRow := BookRow{Total: math.Abs(price * size), Size: math.Abs(size), Price: price}

	switch {
	case size > 0:
		var inserted bool
		b.Bids, inserted = upsert(b.Bids, newRow, false)
		recomputeSums(b.Bids)
		b.BidUpdated = true
		if inserted {
			b.BidNewLevels = append(b.BidNewLevels, price)
		}
	case size < 0:
		var inserted bool
		b.Asks, inserted = upsert(b.Asks, newRow, true)
		recomputeSums(b.Asks)
		b.AskUpdated = true
		if inserted {
			b.AskNewLevels = append(b.AskNewLevels, price)
		}
	}
}

// removePrice deletes the row with a matching price, if present.
func removePrice(side []BookRow, price float64) []BookRow {
	for i := range side {
		if side[i].Price == price {
			return append(side[:i], side[i+1:]...)
		}
	}
	return side
}

// upsert places newRow on the side, keeping bids descending and asks
// ascending. It reports whether a new price level was inserted as opposed
// to an existing one resized.
func upsert(side []BookRow, newRow BookRow, ascending bool) ([]BookRow, bool) {
	// Price more extreme than the last row appends.
	if len(side) == 0 || lessExtreme(newRow.Price, side[len(side)-1].Price, ascending) {
		return append(side, newRow), true
	}

	for i := range side {
		if side[i].Price == newRow.Price {
			side[i].Size = newRow.Size
			side[i].Total = newRow.Total
			return side, false
		}
		if lessExtreme(side[i].Price, newRow.Price, ascending) {
			side = append(side, BookRow{})
			copy(side[i+1:], side[i:])
			side[i] = newRow
			return side, true
		}
	}

	// Unreachable while the side is sorted.
	return append(side, newRow), true
}

// lessExtreme reports whether a ranks after b on a side with the given
// direction (worse bid = lower price, worse ask = higher price).
func lessExtreme(a, b float64, ascending bool) bool {
	if ascending {
		return a > b
	}
	return a < b
}

// recomputeSums rebuilds the cumulative notional column for a side.
func recomputeSums(side []BookRow) {
	sum := 0.0
	for i := range side {
		sum += side[i].Total
		side[i].Sum = sum
	}
}
