package subscription

import "github.com/tidefeed/bfxstream/internal/store"

// Level grades an out-of-band status message.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// Status is a side-channel message about connection state, server notices or
// request failures. Statuses are the only failure surface toward consumers;
// nothing in the core panics across the consumer boundary.
type Status struct {
	Level Level
	Title string
	Msg   string
}

// Update carries a materialized view to a consumer. Exactly one of Book or
// Records is populated, matching the consumer's request kind.
type Update struct {
	Kind store.Kind

	// Book is the requested side of the order book, best price first,
	// truncated to the requested depth. NewLevels lists prices inserted
	// (rather than resized) by the triggering server update.
	Book      []store.BookRow
	NewLevels []float64

	// Records holds ticker/trades/candles rows, newest first, truncated
	// to the requested record count.
	Records [][]float64
}

// Consumer receives decoded data updates and out-of-band statuses. A
// consumer observes at most one channel at a time; re-requesting replaces
// its prior subscription.
//
// Implementations must be comparable (pointer receivers are the norm), as
// the consumer value itself identifies the registration. Both methods are
// invoked synchronously from the stream event loop and must not block.
type Consumer interface {
	Update(u Update)
	Info(s Status)
}
