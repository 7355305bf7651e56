package subscription

import (
	"github.com/tidefeed/bfxstream/internal/store"
	"github.com/tidefeed/bfxstream/internal/wire"
)

// BookSide selects which side of the order book a consumer renders.
type BookSide string

const (
	SideAsk BookSide = "ask"
	SideBid BookSide = "bid"
)

// UpdateRate selects the server-side throttling of book updates.
type UpdateRate string

const (
	RateRealtime  UpdateRate = "realtime"
	RateThrottled UpdateRate = "throttled"
)

// TradeSide selects which trade ring a consumer renders.
type TradeSide string

const (
	TradesSold   TradeSide = "sold"
	TradesBought TradeSide = "bought"
	TradesBoth   TradeSide = "both"
)

// ClientRequest is a consumer's declarative data request. It is immutable
// once created; the concrete variants below are the only implementations.
type ClientRequest interface {
	// Kind names the reconstruction algorithm the request maps onto.
	Kind() store.Kind

	// apiRequest derives the normalized wire request. Derivation is
	// deterministic: equal client requests yield equal wire requests.
	apiRequest() wire.Request
}

// OrderBookRequest asks for one side of an order book.
type OrderBookRequest struct {
	CurrencyPair string   // e.g. "BTCUSD"
	Precision    string   // price aggregation level, e.g. "P0"
	Depth        int      // price levels the consumer renders
	Side         BookSide // ask or bid
	UpdateRate   UpdateRate
}

// Kind returns store.KindBook.
func (r OrderBookRequest) Kind() store.Kind { return store.KindBook }

func (r OrderBookRequest) apiRequest() wire.Request {
	length := "100"
	if r.Depth <= 25 {
		length = "25"
	}
	freq := "F1"
	if r.UpdateRate == RateRealtime {
		freq = "F0"
	}
	return wire.Request{
		"event":   "subscribe",
		"channel": "book",
		"symbol":  "t" + r.CurrencyPair,
		"prec":    r.Precision,
		"freq":    freq,
		"len":     length,
	}
}

// TickerRequest asks for the rolling ticker history of a pair.
type TickerRequest struct {
	CurrencyPair string
	Depth        int // records per regular delivery
	InitialDepth int // records in the first delivery after binding
}

// Kind returns store.KindTicker.
func (r TickerRequest) Kind() store.Kind { return store.KindTicker }

func (r TickerRequest) apiRequest() wire.Request {
	return wire.Request{
		"event":   "subscribe",
		"channel": "ticker",
		"symbol":  "t" + r.CurrencyPair,
	}
}

// TradesRequest asks for the executed-trades history of a pair.
type TradesRequest struct {
	CurrencyPair string
	Depth        int
	InitialDepth int
	Side         TradeSide
}

// Kind returns store.KindTrades.
func (r TradesRequest) Kind() store.Kind { return store.KindTrades }

func (r TradesRequest) apiRequest() wire.Request {
	return wire.Request{
		"event":   "subscribe",
		"channel": "trades",
		"symbol":  "t" + r.CurrencyPair,
	}
}

// CandlesRequest asks for the candle history of a pair and time frame.
type CandlesRequest struct {
	CurrencyPair string
	TimeFrame    string // e.g. "1m", "15m", "1h"
	Depth        int
	InitialDepth int
}

// Kind returns store.KindCandles.
func (r CandlesRequest) Kind() store.Kind { return store.KindCandles }

func (r CandlesRequest) apiRequest() wire.Request {
	return wire.Request{
		"event":   "subscribe",
		"channel": "candles",
		"key":     "trade:" + r.TimeFrame + ":t" + r.CurrencyPair,
	}
}

// KindOfChannel maps a wire channel name back to its reconstruction kind.
func KindOfChannel(channel string) (store.Kind, bool) {
	switch channel {
	case "book":
		return store.KindBook, true
	case "ticker":
		return store.KindTicker, true
	case "trades":
		return store.KindTrades, true
	case "candles":
		return store.KindCandles, true
	}
	return 0, false
}
