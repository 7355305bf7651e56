package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tidefeed/bfxstream/internal/connection"
	"github.com/tidefeed/bfxstream/internal/scheduler"
	"github.com/tidefeed/bfxstream/internal/store"
	"github.com/tidefeed/bfxstream/internal/subscription"
	"github.com/tidefeed/bfxstream/internal/wire"
)

// Errors
var (
	ErrAlreadyStarted = errors.New("service already started")
	ErrNotStarted     = errors.New("service not started")
)

// Named scheduler actions.
const (
	actionReconnect   = "reconnect"
	actionWaitForPong = "waitForPong"
	actionStaleSweep  = "cleanUnusedChannels"
)

// Config configures the stream service.
type Config struct {
	Connection connection.Config

	// ReconnectBaseDelay is the wait before the first reconnect attempt;
	// the delay doubles per failed attempt up to ReconnectMaxDelay.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// PongTimeout bounds how long a liveness probe waits for the server's
	// pong before the connection is declared dead.
	PongTimeout time.Duration

	// StaleSweepInterval is how often channels with no consumers are
	// unsubscribed.
	StaleSweepInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Connection:         connection.DefaultConfig(),
		ReconnectBaseDelay: 10 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		PongTimeout:        5 * time.Second,
		StaleSweepInterval: 5 * time.Minute,
	}
}

// Stats is a point-in-time snapshot of the engine, for logs and debugging.
type Stats struct {
	State           string
	LiveChannels    int
	PendingRequests int
	QueuedRequests  int
	Consumers       int
}

// Service is the market data engine.
type Service struct {
	cfg    Config
	logger *zap.Logger

	lifecycle *connection.Lifecycle
	sched     *scheduler.Scheduler
	store     *store.Store
	registry  *subscription.Registry
	fanout    *subscription.Fanout

	commands chan func()
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// Loop-confined state.
	ctx            context.Context
	online         bool
	reconnectDelay time.Duration
	started        bool
}

// New creates an unstarted service. dial is nil outside of tests.
func New(cfg Config, dial connection.Dialer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:            cfg,
		logger:         logger.Named("stream"),
		lifecycle:      connection.NewLifecycle(cfg.Connection, dial, logger),
		sched:          scheduler.New(16, logger),
		store:          store.New(),
		commands:       make(chan func(), 64),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
		online:         true,
		reconnectDelay: cfg.ReconnectBaseDelay,
	}
	s.registry = subscription.NewRegistry(s.store, s.send, logger)
	s.fanout = subscription.NewFanout(s.registry, s.store, logger)
	return s
}

// Start launches the event loop and the first connection attempt.
func (s *Service) Start(ctx context.Context) error {
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx = ctx

	go s.run(ctx)
	s.connect(ctx)

	s.logger.Info("service started", zap.String("url", s.cfg.Connection.URL))
	return nil
}

// Stop shuts the loop down and closes the connection. Safe to call more
// than once.
func (s *Service) Stop(ctx context.Context) error {
	if !s.started {
		return ErrNotStarted
	}
	s.stopOnce.Do(func() { close(s.done) })

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stopping service: %w", ctx.Err())
	}
}

// RequestData subscribes a consumer to the data its request describes. A
// consumer observes one request at a time; a repeat call replaces the
// previous one.
func (s *Service) RequestData(c subscription.Consumer, req subscription.ClientRequest) {
	s.post(func() { s.fanout.RequestData(c, req) })
}

// StopDataRequest detaches a consumer from whatever it is observing.
func (s *Service) StopDataRequest(c subscription.Consumer) {
	s.post(func() { s.fanout.StopData(c) })
}

// SetOnline informs the engine of host connectivity. Going offline pauses
// reconnect attempts; coming back online probes the connection with a ping
// and reconnects if it is dead.
func (s *Service) SetOnline(online bool) {
	s.post(func() { s.setOnline(online) })
}

// Stats snapshots the engine state from inside the loop.
func (s *Service) Stats() Stats {
	reply := make(chan Stats, 1)
	s.post(func() {
		reply <- Stats{
			State:           s.lifecycle.State().String(),
			LiveChannels:    len(s.registry.LiveChannels()),
			PendingRequests: s.registry.PendingCount(),
			QueuedRequests:  s.registry.QueuedCount(),
			Consumers:       s.fanout.ConsumerCount(),
		}
	})
	select {
	case st := <-reply:
		return st
	case <-s.stopped:
		return Stats{State: "stopped"}
	}
}

// post hands a closure to the loop goroutine.
func (s *Service) post(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.stopped:
	}
}

// run is the event loop. Every frame, command, connection error and timer
// firing is handled here, one at a time.
func (s *Service) run(ctx context.Context) {
	defer func() {
		s.sched.Shutdown()
		s.lifecycle.Close()
		close(s.stopped)
		s.logger.Info("service stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case fn := <-s.commands:
			fn()
		case data, ok := <-s.lifecycle.Messages():
			if ok {
				s.handleFrame(data)
			}
		case err := <-s.lifecycle.Errors():
			s.onConnectionLost(err)
		case name := <-s.sched.Fires():
			s.handleAction(name)
		}
	}
}

// send delivers one frame while connected and online. Any successful write
// proves the socket alive, so a pending pong deadline is cancelled.
func (s *Service) send(data []byte) bool {
	if !s.online {
		return false
	}
	if !s.lifecycle.Send(data) {
		return false
	}
	s.sched.Cancel(actionWaitForPong)
	return true
}

// connect runs a connection attempt off the loop and posts the outcome back.
func (s *Service) connect(ctx context.Context) {
	s.sched.Cancel(actionReconnect)
	go func() {
		err := s.lifecycle.Connect(ctx)
		s.post(func() {
			if errors.Is(err, connection.ErrConnectInProgress) {
				// Another attempt owns the outcome; replaying now would
				// be premature.
				return
			}
			if err != nil {
				s.scheduleReconnect()
				return
			}
			s.onConnected()
		})
	}()
}

// onConnected resets the backoff, replays all subscription work and starts
// the liveness probe and stale-channel sweep.
func (s *Service) onConnected() {
	s.reconnectDelay = s.cfg.ReconnectBaseDelay
	s.sched.Cancel(actionReconnect)
	s.sched.StartInterval(actionStaleSweep, s.cfg.StaleSweepInterval)

	s.registry.OnReconnect()
	s.probe()
}

// onConnectionLost informs every consumer and, unless the close was clean,
// schedules the reconnect. A normal close (code 1000) means the server is
// done with us; retrying it would be rude and pointless.
func (s *Service) onConnectionLost(err error) {
	s.sched.Cancel(actionWaitForPong)
	s.sched.StopInterval(actionStaleSweep)

	if connection.IsNormalClose(err) {
		s.logger.Info("connection closed by server")
		s.fanout.InformAll(subscription.Status{
			Level: subscription.LevelInfo,
			Title: "connection closed",
			Msg:   "the data server closed the connection",
		})
		return
	}

	s.logger.Warn("connection lost", zap.Error(err))
	s.lifecycle.MarkReconnecting()
	s.fanout.InformAll(subscription.Status{
		Level: subscription.LevelWarn,
		Title: "connection lost",
		Msg:   "connection to the data server was lost, reconnecting",
	})
	s.scheduleReconnect()
}

// scheduleReconnect queues the next attempt with exponential backoff. While
// offline no attempt is queued; SetOnline(true) restarts the cycle.
func (s *Service) scheduleReconnect() {
	if !s.online {
		s.logger.Debug("offline, reconnect deferred")
		return
	}
	if s.sched.Schedule(actionReconnect, s.reconnectDelay) {
		s.logger.Info("reconnect scheduled", zap.Duration("delay", s.reconnectDelay))
	}
	s.reconnectDelay *= 2
	if s.reconnectDelay > s.cfg.ReconnectMaxDelay {
		s.reconnectDelay = s.cfg.ReconnectMaxDelay
	}
}

// probe sends a ping and arms the pong deadline.
func (s *Service) probe() {
	if s.send(wire.EncodePing()) {
		s.sched.Schedule(actionWaitForPong, s.cfg.PongTimeout)
	}
}

func (s *Service) setOnline(online bool) {
	if online == s.online {
		return
	}
	s.online = online

	if !online {
		s.sched.Cancel(actionReconnect)
		s.sched.Cancel(actionWaitForPong)
		s.fanout.InformAll(subscription.Status{
			Level: subscription.LevelWarn,
			Title: "offline",
			Msg:   "host went offline, data delivery is paused",
		})
		return
	}

	// Back online: a connected socket may be silently dead, so probe it; a
	// dead one reconnects immediately.
	s.reconnectDelay = s.cfg.ReconnectBaseDelay
	if s.lifecycle.State() == connection.StateConnected {
		s.probe()
		return
	}
	s.connect(s.ctx)
}

// handleAction runs one fired timer action on the loop.
func (s *Service) handleAction(name string) {
	switch name {
	case actionReconnect:
		s.connect(s.ctx)

	case actionWaitForPong:
		// No pong inside the deadline: the socket is dead even if TCP
		// disagrees. Force it down and go through the reconnect path.
		s.logger.Warn("pong deadline passed, dropping connection")
		s.lifecycle.Drop()
		s.fanout.InformAll(subscription.Status{
			Level: subscription.LevelWarn,
			Title: "connection unresponsive",
			Msg:   "the data server stopped answering, reconnecting",
		})
		s.scheduleReconnect()

	case actionStaleSweep:
		for _, id := range s.fanout.IdleChannels() {
			s.logger.Info("unsubscribing idle channel", zap.Int("chan_id", id))
			s.registry.RequestUnsubscription(id)
		}

	default:
		s.logger.Error("unknown scheduler action", zap.String("action", name))
	}
}

// handleFrame decodes and dispatches one inbound frame.
func (s *Service) handleFrame(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		s.logger.Warn("dropping undecodable frame", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case wire.Heartbeat:
		// Liveness only; nothing to apply.

	case wire.Snapshot:
		kind, ok := s.kindOf(m.ChanID)
		if !ok {
			s.logger.Debug("snapshot for unknown channel", zap.Int("chan_id", m.ChanID))
			return
		}
		s.store.Create(m.ChanID, kind, m.Rows)
		s.fanout.NotifyAll(m.ChanID)

	case wire.Update:
		if !s.store.Apply(m.ChanID, m.Tag, m.Row) {
			// The ticker channel's initial state arrives as a flat row,
			// indistinguishable from an update until now.
			kind, ok := s.kindOf(m.ChanID)
			if !ok || kind != store.KindTicker {
				s.logger.Debug("update for unknown channel", zap.Int("chan_id", m.ChanID))
				return
			}
			s.store.Create(m.ChanID, kind, [][]float64{m.Row})
		}
		s.fanout.NotifyAll(m.ChanID)

	case wire.Subscribed:
		s.registry.OnSubscribed(m)

	case wire.Unsubscribed:
		s.registry.OnUnsubscribed(m)

	case wire.ErrorEvent:
		s.handleError(m)

	case wire.InfoEvent:
		s.handleInfo(m)

	case wire.ConnInfo:
		s.handleConnInfo(m)

	case wire.Pong:
		s.sched.Cancel(actionWaitForPong)
	}
}

// handleError drops the rejected request's pending descriptors and tells
// their consumers why.
func (s *Service) handleError(ev wire.ErrorEvent) {
	text := wire.ErrorText(ev.Code)
	s.logger.Warn("server error event",
		zap.Int("code", ev.Code),
		zap.String("category", text),
		zap.String("msg", ev.Msg),
	)

	dropped := s.registry.DropMatchingPending(ev.Fields)
	for _, d := range dropped {
		d.Consumer.Info(subscription.Status{
			Level: subscription.LevelError,
			Title: text,
			Msg:   ev.Msg,
		})
	}
	if len(dropped) == 0 {
		s.logger.Debug("error event matched no pending request", zap.Int("code", ev.Code))
	}
}

// handleInfo reacts to out-of-band server notices.
func (s *Service) handleInfo(ev wire.InfoEvent) {
	text := wire.InfoText(ev.Code)
	s.logger.Info("server info event", zap.Int("code", ev.Code), zap.String("category", text))

	switch ev.Code {
	case wire.InfoServerRestart:
		// The server is about to bounce this connection; get ahead of it.
		s.fanout.InformAll(subscription.Status{
			Level: subscription.LevelInfo,
			Title: text,
			Msg:   "the data server is restarting, reconnecting",
		})
		s.lifecycle.Drop()
		s.lifecycle.MarkReconnecting()
		s.scheduleReconnect()

	case wire.InfoMaintenanceBegin:
		s.fanout.InformAll(subscription.Status{
			Level: subscription.LevelWarn,
			Title: text,
			Msg:   "the data server entered maintenance, updates are paused",
		})

	case wire.InfoMaintenanceEnd:
		// Channel state accumulated before maintenance is suspect; tear
		// every channel down server-side and build it back up.
		s.fanout.InformAll(subscription.Status{
			Level: subscription.LevelInfo,
			Title: text,
			Msg:   "maintenance ended, resubscribing all channels",
		})
		s.registry.ResubscribeAll(true)

	default:
		s.logger.Debug("unhandled info code", zap.Int("code", ev.Code))
	}
}

// handleConnInfo checks the handshake message for protocol and platform
// problems.
func (s *Service) handleConnInfo(ci wire.ConnInfo) {
	if ci.Version != wire.SupportedVersion {
		s.logger.Error("unsupported protocol version",
			zap.Int("got", ci.Version),
			zap.Int("want", wire.SupportedVersion),
		)
		s.fanout.InformAll(subscription.Status{
			Level: subscription.LevelError,
			Title: "unsupported protocol version",
			Msg:   fmt.Sprintf("server speaks version %d, this client speaks %d", ci.Version, wire.SupportedVersion),
		})
		return
	}
	if ci.PlatformStatus == 0 {
		s.fanout.InformAll(subscription.Status{
			Level: subscription.LevelWarn,
			Title: "platform in maintenance",
			Msg:   "the trading platform is in maintenance mode",
		})
	}
	s.logger.Info("handshake complete",
		zap.Int("version", ci.Version),
		zap.Int("platform_status", ci.PlatformStatus),
	)
}

// kindOf resolves a channel id to its reconstruction kind via the registry.
func (s *Service) kindOf(chanID int) (store.Kind, bool) {
	req, ok := s.registry.ChannelOfID(chanID)
	if !ok {
		return 0, false
	}
	return subscription.KindOfChannel(req["channel"])
}
