package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"enrichdash/pkg/contracts/events"
)

// ErrClosed is returned when writing on a closed subscription
var ErrClosed = errors.New("subscription closed")

// Client opens subscriptions on one push channel endpoint
type Client struct {
	url     string
	opts    Options
	dialer  *websocket.Dialer
	logger  *slog.Logger
	metrics *Metrics
}

// NewClient creates a client for the websocket endpoint at url
func NewClient(url string, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Client{
		url:  url,
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		logger:  logger.With(slog.String("component", "channel.client")),
		metrics: GetMetrics(),
	}
}

// Open implements progress.Channel
func (c *Client) Open(ctx context.Context, room string, handler events.Handler) (events.Subscription, error) {
	return c.Dial(ctx, room, handler)
}

// Dial connects, joins room and starts delivering frames to handler.
// The first connection is made before Dial returns; later drops are redialed
// in the background.
func (c *Client) Dial(ctx context.Context, room string, handler events.Handler) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("channel: handler is required")
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.url, err)
	}

	// The subscription outlives the dial context; Close ends it.
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Subscription{
		client:  c,
		room:    room,
		handler: handler,
		ctx:     subCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  c.logger.With(slog.String("room", room)),
	}
	if err := s.join(conn); err != nil {
		cancel()
		conn.Close()
		return nil, err
	}
	go s.run(conn)
	return s, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.metrics.RecordDial(ctx, false)
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	c.metrics.RecordDial(ctx, true)
	return conn, nil
}

// Subscription keeps one room joined across reconnects
type Subscription struct {
	client  *Client
	room    string
	handler events.Handler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex // guards conn and closed
	conn   *websocket.Conn
	closed bool

	writeMu   sync.Mutex // one writer per connection
	leaveOnce sync.Once
	leaveErr  error
}

// Room implements events.Subscription
func (s *Subscription) Room() string { return s.room }

// Done is closed once the subscription stops delivering, either after Close or
// when reconnect attempts are exhausted.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Leave sends the leave frame for the room on the current connection.
// Only the first call writes. Between connections there is nothing to leave:
// the server dropped the room with the old socket, so Leave succeeds.
func (s *Subscription) Leave() error {
	s.leaveOnce.Do(func() {
		s.mu.Lock()
		conn, closed := s.conn, s.closed
		s.mu.Unlock()

		switch {
		case closed:
			s.leaveErr = ErrClosed
		case conn == nil:
			s.logger.Debug("Leave skipped, no live connection")
			return
		default:
			s.leaveErr = s.write(conn, events.LeaveFrame(s.room))
		}
		if s.leaveErr != nil {
			s.logger.Warn("Leave not delivered", slog.String("error", s.leaveErr.Error()))
			return
		}
		s.logger.Info("Left room")
	})
	return s.leaveErr
}

// Close stops the subscription and closes the connection. It does not wait for
// the read loop to exit; use Done for that.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(s.client.opts.WriteWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}

func (s *Subscription) run(conn *websocket.Conn) {
	defer close(s.done)
	opts := s.client.opts

	for {
		s.handler.HandleConnectivity(events.ConnectionStateConnected, nil)

		err := s.serve(conn)
		s.detach()
		conn.Close()
		if s.ctx.Err() != nil {
			return
		}

		s.logger.Warn("Channel disconnected", slog.String("error", err.Error()))
		s.handler.HandleConnectivity(events.ConnectionStateReconnecting, err)

		conn = s.reconnect(opts, err)
		if conn == nil {
			return
		}
	}
}

// reconnect redials and rejoins until it succeeds, the attempts run out or the
// subscription is closed. It returns nil in the last two cases.
func (s *Subscription) reconnect(opts Options, cause error) *websocket.Conn {
	limiter := rate.NewLimiter(rate.Every(opts.ReconnectDelay), 1)
	limiter.Allow() // the first redial waits a full delay too

	for attempt := 1; attempt <= opts.ReconnectAttempts; attempt++ {
		if err := limiter.Wait(s.ctx); err != nil {
			return nil
		}
		s.client.metrics.RecordReconnect(s.ctx)

		conn, err := s.client.dial(s.ctx)
		if err == nil {
			if err = s.join(conn); err == nil {
				s.logger.Info("Channel reconnected", slog.Int("attempt", attempt))
				return conn
			}
			conn.Close()
		}
		if s.ctx.Err() != nil {
			return nil
		}
		cause = err
		s.logger.Warn("Reconnect attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", opts.ReconnectAttempts),
			slog.String("error", err.Error()))
	}

	s.handler.HandleConnectivity(events.ConnectionStateDisconnected,
		fmt.Errorf("gave up after %d reconnect attempts: %w", opts.ReconnectAttempts, cause))
	return nil
}

// join makes conn the current connection and joins the room on it
func (s *Subscription) join(conn *websocket.Conn) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.conn = conn
	s.mu.Unlock()

	if err := s.write(conn, events.JoinFrame(s.room)); err != nil {
		s.detach()
		return fmt.Errorf("join %s: %w", s.room, err)
	}
	s.logger.Info("Joined room")
	return nil
}

func (s *Subscription) detach() {
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
}

// serve reads frames until the connection fails or the subscription is closed
func (s *Subscription) serve(conn *websocket.Conn) error {
	opts := s.client.opts

	pingCtx, stopPing := context.WithCancel(s.ctx)
	defer stopPing()
	go s.pingLoop(pingCtx, conn)

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(opts.PongWait))

		var frame events.Frame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Event == "" {
			if err == nil {
				err = errors.New("missing event name")
			}
			s.logger.Warn("Discarding unreadable frame",
				slog.Int("size", len(message)),
				slog.String("error", err.Error()))
			s.client.metrics.RecordFrame(s.ctx, "invalid")
			continue
		}
		s.client.metrics.RecordFrame(s.ctx, string(frame.Event))
		s.handler.HandleFrame(frame)
	}
}

func (s *Subscription) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.client.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.client.opts.WriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("Failed to send ping message", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (s *Subscription) write(conn *websocket.Conn, frame events.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(s.client.opts.WriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}
