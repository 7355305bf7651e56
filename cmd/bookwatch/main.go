// bookwatch connects to the market data server and streams one channel's
// reconstructed view to the console.
// Usage: go run ./cmd/bookwatch --config configs/bookwatch.example.yaml --pair BTCUSD
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tidefeed/bfxstream/internal/config"
	"github.com/tidefeed/bfxstream/internal/connection"
	"github.com/tidefeed/bfxstream/internal/stream"
	"github.com/tidefeed/bfxstream/internal/subscription"
	"github.com/tidefeed/bfxstream/internal/version"
	"github.com/tidefeed/bfxstream/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/bookwatch.example.yaml", "path to config file")
	pair := flag.String("pair", "BTCUSD", "currency pair")
	channel := flag.String("channel", "book", "channel: book, ticker, trades or candles")
	side := flag.String("side", "ask", "book side (ask/bid) or trade filter (sold/bought/both)")
	depth := flag.Int("depth", 10, "rows per delivery")
	precision := flag.String("precision", "P0", "book price aggregation level")
	timeframe := flag.String("timeframe", "1m", "candle time frame")
	verbose := flag.Bool("verbose", false, "print every delivered row as JSON")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()

	req, err := buildRequest(*channel, *pair, *side, *depth, *precision, *timeframe)
	if err != nil {
		log.Fatal("bad request flags", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := stream.New(stream.Config{
		Connection: connection.Config{
			URL:               cfg.Server.URL,
			HandshakeTimeout:  cfg.Server.HandshakeTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			MessageBufferSize: cfg.Server.MessageBufferSize,
		},
		ReconnectBaseDelay: cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Stream.ReconnectMaxDelay,
		PongTimeout:        cfg.Stream.PongTimeout,
		StaleSweepInterval: cfg.Stream.StaleSweepInterval,
	}, nil, log)

	if err := svc.Start(ctx); err != nil {
		log.Fatal("start service", zap.Error(err))
	}
	log.Info("watching",
		zap.String("version", version.String()),
		zap.String("instance", cfg.Instance.ID),
		zap.String("channel", *channel),
		zap.String("pair", *pair),
	)

	svc.RequestData(&consoleWatcher{verbose: *verbose}, req)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				st := svc.Stats()
				log.Info("engine stats",
					zap.String("state", st.State),
					zap.Int("live_channels", st.LiveChannels),
					zap.Int("pending", st.PendingRequests),
					zap.Int("queued", st.QueuedRequests),
					zap.Int("consumers", st.Consumers),
				)
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return svc.Stop(stopCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown", zap.Error(err))
		os.Exit(1)
	}
	log.Info("bye")
}

// buildRequest maps the flags onto a typed data request.
func buildRequest(channel, pair, side string, depth int, precision, timeframe string) (subscription.ClientRequest, error) {
	switch channel {
	case "book":
		bookSide := subscription.SideAsk
		if side == "bid" {
			bookSide = subscription.SideBid
		}
		return subscription.OrderBookRequest{
			CurrencyPair: pair,
			Precision:    precision,
			Depth:        depth,
			Side:         bookSide,
			UpdateRate:   subscription.RateThrottled,
		}, nil

	case "ticker":
		return subscription.TickerRequest{
			CurrencyPair: pair,
			Depth:        depth,
			InitialDepth: depth,
		}, nil

	case "trades":
		tradeSide := subscription.TradesBoth
		switch side {
		case "sold":
			tradeSide = subscription.TradesSold
		case "bought":
			tradeSide = subscription.TradesBought
		}
		return subscription.TradesRequest{
			CurrencyPair: pair,
			Depth:        depth,
			InitialDepth: depth,
			Side:         tradeSide,
		}, nil

	case "candles":
		return subscription.CandlesRequest{
			CurrencyPair: pair,
			TimeFrame:    timeframe,
			Depth:        depth,
			InitialDepth: depth,
		}, nil
	}
	return nil, fmt.Errorf("unknown channel %q", channel)
}

// consoleWatcher prints deliveries and statuses to stdout.
type consoleWatcher struct {
	verbose bool
}

func (w *consoleWatcher) Update(u subscription.Update) {
	switch {
	case u.Book != nil:
		fmt.Printf("--- %s (%d rows, %d new levels) ---\n", u.Kind, len(u.Book), len(u.NewLevels))
		for _, row := range u.Book {
			fmt.Printf("%12.4f  size %10.4f  total %14.4f  sum %14.4f\n",
				row.Price, row.Size, row.Total, row.Sum)
		}
	default:
		fmt.Printf("--- %s (%d records) ---\n", u.Kind, len(u.Records))
		if w.verbose {
			for _, rec := range u.Records {
				data, _ := json.Marshal(rec)
				fmt.Println(string(data))
			}
		} else if len(u.Records) > 0 {
			data, _ := json.Marshal(u.Records[0])
			fmt.Printf("latest: %s\n", data)
		}
	}
}

func (w *consoleWatcher) Info(s subscription.Status) {
	fmt.Printf("[%s] %s: %s\n", s.Level, s.Title, s.Msg)
}
