package store

import "time"

// Kind identifies the reconstruction algorithm for a channel.
type Kind int

const (
	KindBook Kind = iota
	KindTicker
	KindTrades
	KindCandles
)

// String returns the wire channel name for the kind.
func (k Kind) String() string {
	switch k {
	case KindBook:
		return "book"
	case KindTicker:
		return "ticker"
	case KindTrades:
		return "trades"
	case KindCandles:
		return "candles"
	}
	return "unknown"
}

// State is a per-channel reconstruction state machine.
type State interface {
	Kind() Kind

	// ApplySnapshot seeds the state from the channel's initial full-state
	// message, replacing anything previously held.
	ApplySnapshot(rows [][]float64)

	// ApplyUpdate folds one incremental delta into the state. The tag is
	// the optional payload tag ("te"/"tu" for trades, empty otherwise).
	ApplyUpdate(tag string, row []float64)
}

// nowMillis stamps ticker rows with the local receive time. Overridden in
// tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// Store maps live channel ids to their reconstruction state.
type Store struct {
	states map[int]State
}

// New creates an empty store.
func New() *Store {
	return &Store{states: make(map[int]State)}
}

// Create builds the state for a newly snapshotted channel. An existing state
// for the id is replaced, which covers a server-initiated resnapshot.
func (s *Store) Create(chanID int, kind Kind, rows [][]float64) State {
	var st State
	switch kind {
	case KindBook:
		st = NewBook()
	case KindTicker:
		st = NewTicker()
	case KindTrades:
		st = NewTrades()
	case KindCandles:
		st = NewCandles()
	default:
		return nil
	}

	st.ApplySnapshot(rows)
	s.states[chanID] = st
	return st
}

// Apply folds an update into the channel's state. Updates for unknown
// channel ids are ignored, never an error.
func (s *Store) Apply(chanID int, tag string, row []float64) bool {
	st, ok := s.states[chanID]
	if !ok {
		return false
	}
	st.ApplyUpdate(tag, row)
	return true
}

// Get returns the state for a channel id.
func (s *Store) Get(chanID int) (State, bool) {
	st, ok := s.states[chanID]
	return st, ok
}

// Delete drops the state for a torn-down channel.
func (s *Store) Delete(chanID int) {
	delete(s.states, chanID)
}

// Len returns the number of live channel states.
func (s *Store) Len() int {
	return len(s.states)
}
