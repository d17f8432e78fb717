package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"auction-house/internal/fanout"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Ceiling(t *testing.T) {
	t.Parallel()
	b := Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Ceiling(tt.attempt), "attempt %d", tt.attempt)
	}

	for attempt := 0; attempt < 20; attempt++ {
		for i := 0; i < 50; i++ {
			d := b.Delay(attempt)
			require.GreaterOrEqual(t, d, time.Duration(0))
			require.Less(t, d, b.Ceiling(attempt))
		}
	}
}

// flakySocket drops its first connection right after the client subscribes
// and pushes a price update on every later one.
type flakySocket struct {
	mu          sync.Mutex
	connections int
	subscribed  [][]string
}

func (f *flakySocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f.mu.Lock()
	f.connections++
	n := f.connections
	f.subscribed = append(f.subscribed, nil)
	f.mu.Unlock()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	m, err := fanout.Decode(data)
	if err != nil {
		return
	}
	if sub, ok := m.(fanout.Subscribe); ok {
		f.mu.Lock()
		f.subscribed[n-1] = append(f.subscribed[n-1], sub.AuctionID)
		f.mu.Unlock()
	}
	if n == 1 {
		return
	}

	frame, _ := fanout.Encode(fanout.PriceUpdate{AuctionID: "a1", CurrentPrice: 99, At: time.Now().UTC()})
	_ = conn.WriteMessage(websocket.TextMessage, frame)
	// hold the connection until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestStream_ReconnectsAndResubscribes(t *testing.T) {
	t.Parallel()
	socket := &flakySocket{}
	srv := httptest.NewServer(socket)
	defer srv.Close()

	var (
		statesMu sync.Mutex
		states   []State
	)
	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), nil,
		WithBackoff(Backoff{Base: 10 * time.Millisecond, Max: 20 * time.Millisecond}),
		WithStateHook(func(st State) {
			statesMu.Lock()
			states = append(states, st)
			statesMu.Unlock()
		}),
	)
	require.NoError(t, s.Subscribe("a1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case m := <-s.Messages():
		price, ok := m.(fanout.PriceUpdate)
		require.True(t, ok, "got %T", m)
		assert.Equal(t, "a1", price.AuctionID)
		assert.Equal(t, 99.0, price.CurrentPrice)
	case <-time.After(5 * time.Second):
		t.Fatal("no price update after reconnect")
	}
	assert.Equal(t, Connected, s.State())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, Disconnected, s.State())

	socket.mu.Lock()
	defer socket.mu.Unlock()
	require.GreaterOrEqual(t, socket.connections, 2)
	assert.Equal(t, []string{"a1"}, socket.subscribed[0])
	assert.Equal(t, []string{"a1"}, socket.subscribed[1])

	statesMu.Lock()
	defer statesMu.Unlock()
	require.GreaterOrEqual(t, len(states), 5)
	assert.Equal(t, []State{Connecting, Connected, Disconnected, Connecting, Connected}, states[:5])
}

func TestStream_AgainstServer(t *testing.T) {
	t.Parallel()
	srv, app := newLiveServer(t)

	seller := loggedIn(t, srv.URL, "seller")
	viewer := loggedIn(t, srv.URL, "viewer")
	bidder := loggedIn(t, srv.URL, "bidder")
	a := openEnglishAuction(t, app, seller)

	s := viewer.Stream(WithBackoff(Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}))
	require.NoError(t, s.Subscribe(a.AuctionID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	next := func() fanout.Message {
		select {
		case m := <-s.Messages():
			return m
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a frame")
			return nil
		}
	}

	ack, ok := next().(fanout.Ack)
	require.True(t, ok)
	assert.Equal(t, a.AuctionID, ack.AuctionID)

	_, err := bidder.PlaceBid(context.Background(), a.AuctionID, 42)
	require.NoError(t, err)

	price, ok := next().(fanout.PriceUpdate)
	require.True(t, ok)
	assert.Equal(t, a.AuctionID, price.AuctionID)
	assert.Equal(t, 42.0, price.CurrentPrice)
}

func TestStream_UnauthenticatedHandshake(t *testing.T) {
	t.Parallel()
	srv, _ := newLiveServer(t)

	anonymous, err := New(srv.URL)
	require.NoError(t, err)

	s := anonymous.Stream()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = s.Run(ctx)
	require.ErrorIs(t, err, ErrAuthExpired)
}

type steppedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStream_ConnectAfterAccessExpiryKeepsSession(t *testing.T) {
	t.Parallel()
	clock := &steppedClock{now: time.Now()}
	srv, _ := newClockedServer(t, clock.Now)

	viewer := loggedIn(t, srv.URL, "viewer")
	clock.Advance(2 * time.Minute)

	s := viewer.Stream(WithBackoff(Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}))
	require.NoError(t, s.Subscribe("a1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	select {
	case m := <-s.Messages():
		_, ok := m.(fanout.Ack)
		require.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the subscription ack")
	}

	me, err := viewer.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "viewer", me.Username)
}
