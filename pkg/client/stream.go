package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"auction-house/internal/fanout"

	"github.com/gorilla/websocket"
)

// State is where a Stream is in its connection lifecycle.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
	messageBuffer      = 64
)

// Backoff computes reconnect delays with exponential growth and full jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns a random wait in [0, min(Max, Base*2^attempt)).
func (b Backoff) Delay(attempt int) time.Duration {
	ceiling := b.Ceiling(attempt)
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling)
}

// Ceiling is the upper bound of the delay for attempt.
func (b Backoff) Ceiling(attempt int) time.Duration {
	ceiling := b.Base
	for i := 0; i < attempt && ceiling < b.Max; i++ {
		ceiling *= 2
	}
	if ceiling > b.Max {
		ceiling = b.Max
	}
	return ceiling
}

// Stream is a live connection to the notification socket that reconnects on
// its own and restores its subscriptions after every reconnect.
type Stream struct {
	url     string
	dialer  *websocket.Dialer
	backoff Backoff

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	subs    map[string]struct{}
	onState func(State)

	writeMu  sync.Mutex
	messages chan fanout.Message
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithBackoff replaces the reconnect backoff.
func WithBackoff(b Backoff) StreamOption {
	return func(s *Stream) { s.backoff = b }
}

// WithStateHook registers fn to observe state changes.
func WithStateHook(fn func(State)) StreamOption {
	return func(s *Stream) { s.onState = fn }
}

// NewStream creates a stream dialing wsURL with the cookies in jar.
func NewStream(wsURL string, jar http.CookieJar, opts ...StreamOption) *Stream {
	s := &Stream{
		url: wsURL,
		dialer: &websocket.Dialer{
			Jar:              jar,
			HandshakeTimeout: 10 * time.Second,
		},
		backoff:  Backoff{Base: defaultBackoffBase, Max: defaultBackoffMax},
		subs:     make(map[string]struct{}),
		messages: make(chan fanout.Message, messageBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream opens the notification socket of the client's server with the
// client's session.
func (c *Client) Stream(opts ...StreamOption) *Stream {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	return NewStream(u.String(), c.http.Jar, opts...)
}

// Messages delivers every frame the server pushes. It is closed when Run
// returns.
func (s *Stream) Messages() <-chan fanout.Message { return s.messages }

// State reports the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe asks for an auction's price stream. The subscription survives
// reconnects.
func (s *Stream) Subscribe(auctionID string) error {
	s.mu.Lock()
	s.subs[auctionID] = struct{}{}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.write(conn, fanout.Subscribe{AuctionID: auctionID})
}

// Unsubscribe drops an auction's price stream.
func (s *Stream) Unsubscribe(auctionID string) error {
	s.mu.Lock()
	delete(s.subs, auctionID)
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.write(conn, fanout.Unsubscribe{AuctionID: auctionID})
}

// Run keeps the stream connected until ctx is cancelled. Handshake failures
// that mean the session is gone (401) end Run with ErrAuthExpired.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.messages)
	defer s.setState(Disconnected, nil)

	attempt := 0
	for {
		s.setState(Connecting, nil)
		conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err == nil {
			attempt = 0
			s.setState(Connected, conn)
			if err := s.resubscribe(conn); err == nil {
				s.readLoop(ctx, conn)
			}
			s.setState(Disconnected, nil)
			conn.Close()
		} else {
			if ctx.Err() != nil {
				return nil
			}
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return fmt.Errorf("client: dial %s: %w", s.url, ErrAuthExpired)
			}
			s.setState(Disconnected, nil)
		}

		if ctx.Err() != nil {
			return nil
		}
		wait := time.NewTimer(s.backoff.Delay(attempt))
		attempt++
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil
		case <-wait.C:
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m, err := fanout.Decode(data)
		if err != nil {
			continue
		}
		select {
		case s.messages <- m:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Stream) resubscribe(conn *websocket.Conn) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.write(conn, fanout.Subscribe{AuctionID: id}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) write(conn *websocket.Conn, m fanout.Message) error {
	data, err := fanout.Encode(m)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("client: write frame: %w", err)
	}
	return nil
}

func (s *Stream) setState(state State, conn *websocket.Conn) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.conn = conn
	hook := s.onState
	s.mu.Unlock()

	if changed && hook != nil {
		hook(state)
	}
}
